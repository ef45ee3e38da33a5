package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/roach88/sportorg/internal/model"
	"github.com/roach88/sportorg/internal/ranking"
	"github.com/roach88/sportorg/internal/result"
)

// competitorState is the engine's view of one competitor. History is kept
// in (Time, Seq) order; late punches are inserted in place.
type competitorState struct {
	competitor model.Competitor
	history    []model.Punch
	override   *model.Override
	outcome    result.Outcome
}

func (cs *competitorState) has(punchID string) bool {
	for _, p := range cs.history {
		if p.ID == punchID {
			return true
		}
	}
	return false
}

// insert adds p in order and reports false for a punch already held.
func (cs *competitorState) insert(p model.Punch) bool {
	if cs.has(p.ID) {
		return false
	}
	i := sort.Search(len(cs.history), func(i int) bool { return p.Before(cs.history[i]) })
	cs.history = slices.Insert(cs.history, i, p)
	return true
}

func (cs *competitorState) remove(punchID string) (model.Punch, bool) {
	for i, p := range cs.history {
		if p.ID == punchID {
			cs.history = slices.Delete(cs.history, i, i+1)
			return p, true
		}
	}
	return model.Punch{}, false
}

func (e *Engine) track(c model.Competitor) *competitorState {
	cs := &competitorState{competitor: c}
	e.competitors[c.ID] = cs
	if c.CardID != "" {
		e.byCard[c.CardID] = c.ID
	}
	return cs
}

func (e *Engine) competitorIDs() []string {
	ids := make([]string, 0, len(e.competitors))
	for id := range e.competitors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// courseFor resolves a competitor's course: its own, else its class's.
func (e *Engine) courseFor(c model.Competitor) (model.Course, bool) {
	id := c.CourseID
	if id == "" {
		id = e.classes[c.ClassID].CourseID
	}
	course, ok := e.courses[id]
	return course, ok
}

// apply reconciles one punch from the queue.
//
// The punch is persisted first. A punch the store refuses is still
// reconciled and kept in the unsaved set until a tick stores it. A punch for
// a held card joins that competitor's history and only that competitor is
// re-derived; a punch for an unknown card waits in the unresolved buffer.
// Applying the same punch twice changes nothing.
func (e *Engine) apply(ctx context.Context, p model.Punch) error {
	if e.retracted[p.ID] {
		e.logger.Debug().Str("punch_id", p.ID).Msg("retracted punch received again, ignored")
		return nil
	}

	var errs []error
	added, err := e.store.AppendPunch(ctx, p)
	if err != nil {
		if _, ok := e.unsaved[p.ID]; !ok {
			e.unsaved[p.ID] = p
		}
		added = true
		errs = append(errs, fmt.Errorf("persist punch %s: %w", p.ID, err))
	}

	id, ok := e.byCard[p.CardID]
	if !ok {
		since := p.ReceivedAt
		if since.IsZero() {
			since = e.now()
		}
		errs = append(errs, e.holdUnresolved(ctx, p, since, added))
		return errors.Join(errs...)
	}

	cs := e.competitors[id]
	if !cs.insert(p) {
		e.logger.Debug().
			Str("code", string(ErrCodeDuplicatePunch)).
			Str("punch_id", p.ID).
			Str("competitor", id).
			Msg("duplicate punch absorbed")
		return errors.Join(errs...)
	}

	changed, err := e.recompute(ctx, cs)
	e.publish(ctx, changed...)
	errs = append(errs, err)
	return errors.Join(errs...)
}

// holds reports whether a punch is in some history or the unresolved buffer.
func (e *Engine) holds(punchID string) bool {
	for _, cs := range e.competitors {
		if cs.has(punchID) {
			return true
		}
	}
	_, ok := e.unresolved.find(punchID)
	return ok
}

// saveUnsaved retries the store write of punches the store refused earlier.
// A punch that expired from the buffer meanwhile is stored as orphaned.
func (e *Engine) saveUnsaved(ctx context.Context) error {
	if len(e.unsaved) == 0 {
		return nil
	}
	ids := make([]string, 0, len(e.unsaved))
	for id := range e.unsaved {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var errs []error
	for _, id := range ids {
		p := e.unsaved[id]
		if _, err := e.store.AppendPunch(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("persist punch %s: %w", id, err))
			continue
		}
		delete(e.unsaved, id)
		if !e.holds(id) {
			if err := e.store.SetOrphaned(ctx, id, true); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if n := len(ids) - len(e.unsaved); n > 0 {
		e.logger.Info().Int("punches", n).Int("pending", len(e.unsaved)).Msg("unsaved punches stored")
	}
	return errors.Join(errs...)
}

// holdUnresolved buffers a punch whose card no competitor holds. The first
// punch of a card raises a review item.
func (e *Engine) holdUnresolved(ctx context.Context, p model.Punch, since time.Time, added bool) error {
	first := !e.unresolved.has(p.CardID)
	if !e.unresolved.add(p, since) {
		return nil
	}

	var errs []error
	if !added {
		// Stored earlier and expired; it is waiting again.
		if err := e.store.SetOrphaned(ctx, p.ID, false); err != nil {
			errs = append(errs, err)
		}
	}
	if first {
		item := model.ReviewItem{
			ID:        model.ReviewID(model.ReviewUnresolvedCard, p.CardID, p.ID),
			Kind:      model.ReviewUnresolvedCard,
			CardID:    p.CardID,
			PunchID:   p.ID,
			Detail:    fmt.Sprintf("card %s matches no competitor; punches held for %s", p.CardID, e.cfg.UnresolvedRetention),
			CreatedAt: e.now(),
		}
		if err := e.store.AppendReview(ctx, item); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, &RuntimeError{
		Code:    ErrCodeUnresolvedCard,
		Message: "no competitor holds this card, punch buffered",
		CardID:  p.CardID,
		PunchID: p.ID,
	})
	return errors.Join(errs...)
}

// claimBuffered moves a card's buffered punches into a competitor's history.
func (e *Engine) claimBuffered(cs *competitorState) int {
	held := e.unresolved.take(cs.competitor.CardID)
	for _, p := range held {
		cs.insert(p)
	}
	if len(held) > 0 {
		e.logger.Info().
			Str("competitor", cs.competitor.ID).
			Str("card", cs.competitor.CardID).
			Int("punches", len(held)).
			Msg("buffered punches claimed")
	}
	return len(held)
}

// recompute re-derives one competitor's outcome, persists it and updates the
// board. It returns the classes whose ranking changed.
func (e *Engine) recompute(ctx context.Context, cs *competitorState) ([]string, error) {
	c := cs.competitor
	course, ok := e.courseFor(c)
	if !ok {
		return nil, fmt.Errorf("competitor %s: no course for class %s", c.ID, c.ClassID)
	}

	out := result.Classify(result.Input{
		History:        cs.history,
		Course:         course,
		ScheduledStart: c.StartTime,
		Now:            e.EventTime(),
		Closed:         e.closed,
		Override:       cs.override,
	})
	prev := cs.outcome.Status
	cs.outcome = out

	var errs []error
	if err := e.reviewAnomalies(ctx, cs, out.Anomalies); err != nil {
		errs = append(errs, err)
	}

	rec := model.ResultRecord{
		CompetitorID: c.ID,
		ClassID:      c.ClassID,
		Status:       out.Status,
		Start:        out.Start,
		Finish:       out.Finish,
		Result:       out.Result,
		Penalty:      out.Penalty,
		Misses:       out.Misses,
		Splits:       out.Splits,
		UpdatedAt:    e.now(),
	}
	if err := e.store.SaveResult(ctx, rec); err != nil {
		errs = append(errs, fmt.Errorf("save result %s: %w", c.ID, err))
	}

	if prev != out.Status {
		e.logger.Debug().
			Str("competitor", c.ID).
			Str("from", string(prev)).
			Str("to", string(out.Status)).
			Msg("status changed")
	}

	changed := e.board.Update(ranking.Entry{
		CompetitorID: c.ID,
		Name:         c.Name,
		ClassID:      c.ClassID,
		Bib:          c.Bib,
		Status:       out.Status,
		Result:       out.Result,
		Penalty:      out.Penalty,
		Splits:       out.Splits,
	})
	return changed, errors.Join(errs...)
}

func (e *Engine) recomputeAll(ctx context.Context) error {
	var (
		changed []string
		errs    []error
	)
	for _, id := range e.competitorIDs() {
		c, err := e.recompute(ctx, e.competitors[id])
		changed = append(changed, c...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	e.publish(ctx, changed...)
	return errors.Join(errs...)
}

// reviewAnomalies queues each timing anomaly for manual review once.
// Review ids are derived from the punches involved, so re-deriving the same
// anomaly after a restart does not queue it again.
func (e *Engine) reviewAnomalies(ctx context.Context, cs *competitorState, anomalies []result.Anomaly) error {
	var errs []error
	for _, a := range anomalies {
		item := model.ReviewItem{
			ID:           model.ReviewID(model.ReviewClockAnomaly, a.PunchIDs...),
			Kind:         model.ReviewClockAnomaly,
			CardID:       cs.competitor.CardID,
			CompetitorID: cs.competitor.ID,
			Detail:       fmt.Sprintf("%s: %s", a.Kind, a.Detail),
			CreatedAt:    e.now(),
		}
		if len(a.PunchIDs) > 0 {
			item.PunchID = a.PunchIDs[0]
		}
		if err := e.store.AppendReview(ctx, item); err != nil {
			errs = append(errs, fmt.Errorf("review anomaly: %w", err))
		}
	}
	return errors.Join(errs...)
}

// tick retries refused punch writes and expires buffered punches past the
// retention window. It also re-derives competitors who may have run past
// their time limit.
func (e *Engine) tick(ctx context.Context) error {
	var errs []error
	if err := e.saveUnsaved(ctx); err != nil {
		errs = append(errs, err)
	}

	expired := e.unresolved.expire(e.now())
	for _, p := range expired {
		if err := e.store.SetOrphaned(ctx, p.ID, true); err != nil {
			errs = append(errs, err)
		}
		item := model.ReviewItem{
			ID:      model.ReviewID(model.ReviewOrphanedPunch, p.ID),
			Kind:    model.ReviewOrphanedPunch,
			CardID:  p.CardID,
			PunchID: p.ID,
			Detail: fmt.Sprintf("card %s control %s at %s unclaimed after %s",
				p.CardID, p.Code, model.FormatTime(p.Time), e.cfg.UnresolvedRetention),
			CreatedAt: e.now(),
		}
		if err := e.store.AppendReview(ctx, item); err != nil {
			errs = append(errs, err)
		}
	}
	if len(expired) > 0 {
		e.logger.Warn().Int("punches", len(expired)).Msg("unresolved punches orphaned")
		if err := e.audit(ctx, model.AuditExpireOrphans, "", fmt.Sprintf("%d punches orphaned", len(expired))); err != nil {
			errs = append(errs, err)
		}
	}

	now := e.EventTime()
	var changed []string
	for _, id := range e.competitorIDs() {
		cs := e.competitors[id]
		if cs.outcome.Derived != model.StatusInProgress {
			continue
		}
		course, ok := e.courseFor(cs.competitor)
		if !ok || !course.OverTime(now-cs.outcome.Start-cs.outcome.Credit) {
			continue
		}
		c, err := e.recompute(ctx, cs)
		changed = append(changed, c...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	e.publish(ctx, changed...)
	return errors.Join(errs...)
}
