package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/sportorg/internal/model"
	"github.com/roach88/sportorg/internal/result"
)

// Register adds a competitor. Punches already buffered for its card are
// claimed and its result is derived at once.
func (e *Engine) Register(ctx context.Context, c model.Competitor) error {
	return e.submit(ctx, "register", func(ctx context.Context) error {
		return e.register(ctx, c)
	})
}

// UpdateCompetitor corrects a registered competitor. A changed card gives
// up the punches of the old card, which wait for their holder again, and
// claims any punches buffered for the new one.
func (e *Engine) UpdateCompetitor(ctx context.Context, c model.Competitor) error {
	return e.submit(ctx, "update_competitor", func(ctx context.Context) error {
		return e.updateCompetitor(ctx, c)
	})
}

// SetStatus forces a terminal status on a competitor until ClearStatus.
// A reason is required.
func (e *Engine) SetStatus(ctx context.Context, competitorID string, status model.Status, reason string) error {
	return e.submit(ctx, "set_status", func(ctx context.Context) error {
		return e.setStatus(ctx, competitorID, status, reason)
	})
}

// ClearStatus removes an override so the derived status applies again.
// Clearing a competitor without an override does nothing.
func (e *Engine) ClearStatus(ctx context.Context, competitorID string) error {
	return e.submit(ctx, "clear_status", func(ctx context.Context) error {
		return e.clearStatus(ctx, competitorID)
	})
}

// RetractPunch removes a punch from its history. The punch stays stored,
// flagged as retracted, and is ignored if a reader sends it again.
func (e *Engine) RetractPunch(ctx context.Context, punchID, reason string) error {
	return e.submit(ctx, "retract_punch", func(ctx context.Context) error {
		return e.retractPunch(ctx, punchID, reason)
	})
}

// CloseEvent marks the event closed: competitors without start evidence
// become did-not-start, those still out become did-not-finish.
func (e *Engine) CloseEvent(ctx context.Context) error {
	return e.submit(ctx, "close_event", e.closeEvent)
}

// Replay applies already sequenced punches in the given order, as if they
// had arrived that way. Seq and ReceivedAt are kept. Punches for unknown
// cards are buffered as usual and are not reported as errors.
func (e *Engine) Replay(ctx context.Context, punches []model.Punch) error {
	return e.submit(ctx, "replay", func(ctx context.Context) error {
		var errs []error
		for _, p := range punches {
			if err := e.apply(ctx, p); err != nil && !IsUnresolvedCardError(err) {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

func invalidCompetitor(c model.Competitor, msg string) error {
	return &RuntimeError{Code: ErrCodeInvalidCompetitor, Message: msg, CompetitorID: c.ID}
}

func unknownCompetitor(id string) error {
	return &RuntimeError{Code: ErrCodeUnknownCompetitor, Message: "no such competitor", CompetitorID: id}
}

// checkRouting verifies that a competitor's class, course and card resolve.
func (e *Engine) checkRouting(c model.Competitor) error {
	if err := c.Validate(); err != nil {
		return invalidCompetitor(c, err.Error())
	}
	if _, ok := e.classes[c.ClassID]; !ok {
		return invalidCompetitor(c, fmt.Sprintf("unknown class %s", c.ClassID))
	}
	if _, ok := e.courseFor(c); !ok {
		return invalidCompetitor(c, "no course for competitor")
	}
	if holder, ok := e.byCard[c.CardID]; ok && c.CardID != "" && holder != c.ID {
		return invalidCompetitor(c, fmt.Sprintf("card %s is held by %s", c.CardID, holder))
	}
	return nil
}

func (e *Engine) register(ctx context.Context, c model.Competitor) error {
	if _, ok := e.competitors[c.ID]; ok {
		return invalidCompetitor(c, "already registered")
	}
	if err := e.checkRouting(c); err != nil {
		return err
	}
	if err := e.store.SaveCompetitor(ctx, c); err != nil {
		return fmt.Errorf("register %s: %w", c.ID, err)
	}

	cs := e.track(c)
	claimed := e.claimBuffered(cs)

	var errs []error
	detail := fmt.Sprintf("class %s card %s, %d buffered punches", c.ClassID, c.CardID, claimed)
	if err := e.audit(ctx, model.AuditRegister, c.ID, detail); err != nil {
		errs = append(errs, err)
	}
	changed, err := e.recompute(ctx, cs)
	if err != nil {
		errs = append(errs, err)
	}
	e.publish(ctx, changed...)
	return errors.Join(errs...)
}

func (e *Engine) updateCompetitor(ctx context.Context, c model.Competitor) error {
	cs, ok := e.competitors[c.ID]
	if !ok {
		return unknownCompetitor(c.ID)
	}
	if err := e.checkRouting(c); err != nil {
		return err
	}
	if err := e.store.SaveCompetitor(ctx, c); err != nil {
		return fmt.Errorf("update %s: %w", c.ID, err)
	}

	old := cs.competitor
	cs.competitor = c

	var errs []error
	if old.CardID != c.CardID {
		if e.byCard[old.CardID] == c.ID {
			delete(e.byCard, old.CardID)
		}
		released := cs.history
		cs.history = nil
		for _, p := range released {
			if err := e.holdUnresolved(ctx, p, e.now(), true); err != nil && !IsUnresolvedCardError(err) {
				errs = append(errs, err)
			}
		}
		if c.CardID != "" {
			e.byCard[c.CardID] = c.ID
		}
		e.claimBuffered(cs)
	}

	if err := e.audit(ctx, model.AuditUpdate, c.ID, describeUpdate(old, c)); err != nil {
		errs = append(errs, err)
	}
	changed, err := e.recompute(ctx, cs)
	if err != nil {
		errs = append(errs, err)
	}
	e.publish(ctx, changed...)
	return errors.Join(errs...)
}

// describeUpdate lists the fields that changed, for the audit log.
func describeUpdate(old, c model.Competitor) string {
	var parts []string
	add := func(field, from, to string) {
		if from != to {
			parts = append(parts, fmt.Sprintf("%s %q -> %q", field, from, to))
		}
	}
	add("name", old.Name, c.Name)
	add("class", old.ClassID, c.ClassID)
	add("card", old.CardID, c.CardID)
	add("course", old.CourseID, c.CourseID)
	add("start", model.FormatTime(old.StartTime), model.FormatTime(c.StartTime))
	if old.Bib != c.Bib {
		parts = append(parts, fmt.Sprintf("bib %d -> %d", old.Bib, c.Bib))
	}
	if len(parts) == 0 {
		return "no changes"
	}
	return strings.Join(parts, ", ")
}

func (e *Engine) setStatus(ctx context.Context, competitorID string, status model.Status, reason string) error {
	cs, ok := e.competitors[competitorID]
	if !ok {
		return unknownCompetitor(competitorID)
	}
	if strings.TrimSpace(reason) == "" {
		return &RuntimeError{Code: ErrCodeInvalidTransition, Message: "a reason is required", CompetitorID: competitorID}
	}
	if err := result.CheckOverride(cs.outcome, status); err != nil {
		return &RuntimeError{Code: ErrCodeInvalidTransition, Message: err.Error(), CompetitorID: competitorID}
	}

	o := model.Override{
		CompetitorID: competitorID,
		Status:       status,
		Reason:       reason,
		SetAt:        e.now(),
	}
	if err := e.store.SaveOverride(ctx, o); err != nil {
		return fmt.Errorf("set status %s: %w", competitorID, err)
	}
	from := cs.outcome.Status
	cs.override = &o

	var errs []error
	detail := fmt.Sprintf("%s -> %s: %s", from, status, reason)
	if err := e.audit(ctx, model.AuditSetStatus, competitorID, detail); err != nil {
		errs = append(errs, err)
	}
	changed, err := e.recompute(ctx, cs)
	if err != nil {
		errs = append(errs, err)
	}
	e.publish(ctx, changed...)
	return errors.Join(errs...)
}

func (e *Engine) clearStatus(ctx context.Context, competitorID string) error {
	cs, ok := e.competitors[competitorID]
	if !ok {
		return unknownCompetitor(competitorID)
	}
	if cs.override == nil {
		return nil
	}
	if err := e.store.ClearOverride(ctx, competitorID); err != nil {
		return fmt.Errorf("clear status %s: %w", competitorID, err)
	}
	was := cs.override.Status
	cs.override = nil

	var errs []error
	if err := e.audit(ctx, model.AuditClearStatus, competitorID, fmt.Sprintf("override %s cleared", was)); err != nil {
		errs = append(errs, err)
	}
	changed, err := e.recompute(ctx, cs)
	if err != nil {
		errs = append(errs, err)
	}
	e.publish(ctx, changed...)
	return errors.Join(errs...)
}

func (e *Engine) retractPunch(ctx context.Context, punchID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return &RuntimeError{Code: ErrCodeInvalidTransition, Message: "a reason is required", PunchID: punchID}
	}

	var owner *competitorState
	for _, id := range e.competitorIDs() {
		if cs := e.competitors[id]; cs.has(punchID) {
			owner = cs
			break
		}
	}
	if owner == nil {
		if _, ok := e.unresolved.find(punchID); !ok {
			return &RuntimeError{Code: ErrCodeUnknownPunch, Message: "punch not held", PunchID: punchID}
		}
	}

	// Memory changes only once the retraction is stored.
	if p, ok := e.unsaved[punchID]; ok {
		if _, err := e.store.AppendPunch(ctx, p); err != nil {
			return fmt.Errorf("retract punch %s: %w", punchID, err)
		}
		delete(e.unsaved, punchID)
	}
	if err := e.store.RetractPunch(ctx, punchID, reason); err != nil {
		return fmt.Errorf("retract punch %s: %w", punchID, err)
	}

	var p model.Punch
	if owner != nil {
		p, _ = owner.remove(punchID)
	} else {
		p, _ = e.unresolved.remove(punchID)
	}
	e.retracted[punchID] = true

	var errs []error
	competitorID := ""
	if owner != nil {
		competitorID = owner.competitor.ID
	}
	detail := fmt.Sprintf("punch %s card %s control %s at %s: %s",
		punchID, p.CardID, p.Code, model.FormatTime(p.Time), reason)
	if err := e.audit(ctx, model.AuditRetractPunch, competitorID, detail); err != nil {
		errs = append(errs, err)
	}
	if owner != nil {
		changed, err := e.recompute(ctx, owner)
		if err != nil {
			errs = append(errs, err)
		}
		e.publish(ctx, changed...)
	}
	return errors.Join(errs...)
}

func (e *Engine) closeEvent(ctx context.Context) error {
	if e.closed {
		return nil
	}
	if err := e.store.SetMeta(ctx, MetaClosed, "true"); err != nil {
		return fmt.Errorf("close event: %w", err)
	}
	e.closed = true
	e.logger.Info().Int("competitors", len(e.competitors)).Msg("event closed")

	var errs []error
	if err := e.audit(ctx, model.AuditCloseEvent, "", "event closed"); err != nil {
		errs = append(errs, err)
	}
	if err := e.recomputeAll(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
