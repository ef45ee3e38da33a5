package engine

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/roach88/sportorg/internal/feed"
	"github.com/roach88/sportorg/internal/ingest"
	"github.com/roach88/sportorg/internal/model"
	"github.com/roach88/sportorg/internal/ranking"
	"github.com/roach88/sportorg/internal/result"
)

// Defaults for Config.
const (
	DefaultUnresolvedRetention = 10 * time.Minute
	DefaultTickInterval        = time.Second
)

// Meta keys persisted through Store.SetMeta.
const (
	MetaClosed = "event_closed"

	// MetaSnapshotVersion is the last snapshot version published.
	MetaSnapshotVersion = "snapshot_version"
)

// IDGenerator produces ids for audit entries and malformed punch reports.
// Implemented by NanoIDGenerator, UUIDGenerator and testutil.SequentialIDs.
type IDGenerator interface {
	Generate() string
}

// NanoIDGenerator generates short random ids.
type NanoIDGenerator struct{}

// Generate returns a 21 character nanoid.
func (NanoIDGenerator) Generate() string {
	return gonanoid.Must()
}

// UUIDGenerator generates time-sortable UUIDv7 ids.
type UUIDGenerator struct{}

// Generate returns a hyphenated UUIDv7.
func (UUIDGenerator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Config holds the engine's timing settings.
type Config struct {
	// UnresolvedRetention is how long a punch for an unknown card waits for
	// its competitor before it is reported as orphaned.
	UnresolvedRetention time.Duration

	// TickInterval is how often time-based work runs: orphan expiry and
	// time limits of competitors still out.
	TickInterval time.Duration

	// ZeroTime is the wall time of event time zero. Punch times are offsets
	// from it. When unset, the engine's creation time is used.
	ZeroTime time.Time
}

func (c Config) withDefaults() Config {
	if c.UnresolvedRetention <= 0 {
		c.UnresolvedRetention = DefaultUnresolvedRetention
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	return c
}

// Engine is the single-writer timing engine.
//
// Punches arrive through the ingest queue and administrative commands
// through the command queue; both are consumed by Run, which is the only
// goroutine that touches punch histories, the unresolved buffer and derived
// results. Rankings and snapshots are read through the Board and the Feed,
// both safe for concurrent readers.
//
// Thread-safety model:
//   - Ingest, Register, SetStatus and the other commands: any goroutine
//   - Run: exactly one goroutine
//   - Rank, Feed, ReviewItems: any goroutine
type Engine struct {
	store   Store
	board   *ranking.Board
	feed    *feed.Feed
	punches *ingest.Queue
	cmds    *commandQueue
	clock   *Clock

	cfg       Config
	now       func() time.Time
	logger    zerolog.Logger
	auditIDs  IDGenerator
	reviewIDs IDGenerator

	// Owned by the Run goroutine.
	courses     map[string]model.Course
	classes     map[string]model.Class
	competitors map[string]*competitorState
	byCard      map[string]string
	unresolved  *unresolvedBuffer
	retracted   map[string]bool
	unsaved     map[string]model.Punch
	closed      bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the engine's timing settings.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the engine's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithNow sets the wall clock.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithFeed publishes snapshots to f instead of a private feed.
func WithFeed(f *feed.Feed) Option {
	return func(e *Engine) { e.feed = f }
}

// WithIDs sets the generators for audit entry and review item ids.
func WithIDs(audit, review IDGenerator) Option {
	return func(e *Engine) {
		e.auditIDs = audit
		e.reviewIDs = review
	}
}

// New creates an Engine over s. Call Load before Run.
func New(s Store, opts ...Option) *Engine {
	e := &Engine{
		store:       s,
		board:       ranking.NewBoard(),
		cmds:        newCommandQueue(),
		clock:       NewClock(),
		now:         time.Now,
		logger:      zerolog.Nop(),
		auditIDs:    UUIDGenerator{},
		reviewIDs:   NanoIDGenerator{},
		courses:     make(map[string]model.Course),
		classes:     make(map[string]model.Class),
		competitors: make(map[string]*competitorState),
		byCard:      make(map[string]string),
		retracted:   make(map[string]bool),
		unsaved:     make(map[string]model.Punch),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.cfg = e.cfg.withDefaults()
	if e.cfg.ZeroTime.IsZero() {
		e.cfg.ZeroTime = e.now()
	}
	if e.feed == nil {
		e.feed = feed.New()
	}
	e.unresolved = newUnresolvedBuffer(e.cfg.UnresolvedRetention)
	e.punches = ingest.NewQueue(
		ingest.WithLogger(e.logger.With().Str("component", "ingest").Logger()),
		ingest.WithNow(e.now),
		ingest.WithRejectHook(e.onMalformed),
	)
	return e
}

// Queue returns the punch ingestion queue feeding this engine.
func (e *Engine) Queue() *ingest.Queue {
	return e.punches
}

// Feed returns the snapshot feed the engine publishes to.
func (e *Engine) Feed() *feed.Feed {
	return e.feed
}

// Ingest parses raw and queues it for the engine.
func (e *Engine) Ingest(raw ingest.RawPunch) error {
	return e.punches.Ingest(raw)
}

// Rank returns the current ranking of a class.
func (e *Engine) Rank(classID string) []ranking.Entry {
	return e.board.Rank(classID)
}

// Classes returns the ids of every ranked class.
func (e *Engine) Classes() []string {
	return e.board.Classes()
}

// ReviewItems returns the manual review queue.
func (e *Engine) ReviewItems(ctx context.Context) ([]model.ReviewItem, error) {
	return e.store.ListReview(ctx)
}

// EventTime is the current wall time as an offset from event zero.
func (e *Engine) EventTime() time.Duration {
	return e.now().Sub(e.cfg.ZeroTime)
}

// Load restores the event from the store: courses, classes, competitors,
// overrides and every live punch. It derives all results and publishes a
// snapshot per class. Load must not run concurrently with Run.
func (e *Engine) Load(ctx context.Context) error {
	courses, err := e.store.ListCourses(ctx)
	if err != nil {
		return fmt.Errorf("load courses: %w", err)
	}
	for _, c := range courses {
		e.courses[c.ID] = c.WithDefaults()
	}

	classes, err := e.store.ListClasses(ctx)
	if err != nil {
		return fmt.Errorf("load classes: %w", err)
	}
	for _, c := range classes {
		e.classes[c.ID] = c
	}

	competitors, err := e.store.ListCompetitors(ctx)
	if err != nil {
		return fmt.Errorf("load competitors: %w", err)
	}
	for _, c := range competitors {
		e.track(c)
	}

	overrides, err := e.store.ListOverrides(ctx)
	if err != nil {
		return fmt.Errorf("load overrides: %w", err)
	}
	for _, o := range overrides {
		if cs, ok := e.competitors[o.CompetitorID]; ok {
			cs.override = &o
		}
	}

	closed, err := e.store.GetMeta(ctx, MetaClosed)
	if err != nil {
		return fmt.Errorf("load event state: %w", err)
	}
	e.closed = closed == "true"

	version, err := e.store.GetMeta(ctx, MetaSnapshotVersion)
	if err != nil {
		return fmt.Errorf("load snapshot version: %w", err)
	}
	if version != "" {
		v, err := strconv.ParseInt(version, 10, 64)
		if err != nil {
			return fmt.Errorf("stored snapshot version %q: %w", version, err)
		}
		e.clock = NewClockAt(v)
	}

	retracted, err := e.store.RetractedPunchIDs(ctx)
	if err != nil {
		return fmt.Errorf("load retractions: %w", err)
	}
	for _, id := range retracted {
		e.retracted[id] = true
	}

	punches, err := e.store.LivePunches(ctx)
	if err != nil {
		return fmt.Errorf("load punches: %w", err)
	}
	for _, p := range punches {
		if id, ok := e.byCard[p.CardID]; ok {
			e.competitors[id].insert(p)
			continue
		}
		e.unresolved.add(p, p.ReceivedAt)
	}

	seq, err := e.store.MaxSeq(ctx)
	if err != nil {
		return fmt.Errorf("load sequence: %w", err)
	}
	e.punches.ResumeAfter(seq)

	if err := e.recomputeAll(ctx); err != nil {
		return err
	}
	e.logger.Info().
		Int("courses", len(e.courses)).
		Int("classes", len(e.classes)).
		Int("competitors", len(e.competitors)).
		Int("punches", len(punches)).
		Int("unresolved", e.unresolved.len()).
		Bool("closed", e.closed).
		Msg("event loaded")
	return nil
}

// Run starts the single-writer loop. It blocks until ctx is cancelled or
// Stop is called.
//
// Commands are executed before queued punches. A punch or command that
// fails is logged with its context and processing continues; retrying would
// make the outcome depend on timing.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info().Dur("tick", e.cfg.TickInterval).Msg("engine starting")

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	punchWait := e.punches.Wait()
	for {
		if cmd, ok := e.cmds.TryDequeue(); ok {
			e.execute(ctx, cmd)
			continue
		}
		if p, ok := e.punches.TryDequeue(); ok {
			if err := e.apply(ctx, p); err != nil {
				e.logEventError(p, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info().Msg("engine stopping: context cancelled")
			e.cmds.Close()
			e.rejectPending()
			return ctx.Err()

		case _, ok := <-e.cmds.Wait():
			if !ok && e.cmds.Len() == 0 {
				e.logger.Info().Msg("engine stopping: stopped")
				return nil
			}

		case _, ok := <-punchWait:
			if !ok {
				// Ingestion closed; keep serving commands.
				punchWait = nil
			}

		case <-ticker.C:
			if err := e.tick(ctx); err != nil {
				e.logger.Error().Err(err).Msg("tick failed")
			}
		}
	}
}

// Stop makes Run return once pending commands have executed.
func (e *Engine) Stop() {
	e.cmds.Close()
}

// Tick runs time-based work now instead of waiting for the ticker.
func (e *Engine) Tick(ctx context.Context) error {
	return e.submit(ctx, "tick", e.tick)
}

// Flush applies every punch queued so far and returns once they are
// reflected in rankings and snapshots.
func (e *Engine) Flush(ctx context.Context) error {
	return e.submit(ctx, "flush", func(ctx context.Context) error {
		for {
			p, ok := e.punches.TryDequeue()
			if !ok {
				return nil
			}
			if err := e.apply(ctx, p); err != nil {
				e.logEventError(p, err)
			}
		}
	})
}

// submit runs fn on the Run goroutine and waits for its result.
func (e *Engine) submit(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	reply := make(chan error, 1)
	if !e.cmds.Enqueue(command{name: name, run: fn, reply: reply}) {
		return ErrStopped
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) execute(ctx context.Context, cmd command) {
	err := cmd.run(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Str("command", cmd.name).Msg("command failed")
	} else {
		e.logger.Debug().Str("command", cmd.name).Msg("command executed")
	}
	if cmd.reply != nil {
		cmd.reply <- err
	}
}

func (e *Engine) rejectPending() {
	for {
		cmd, ok := e.cmds.TryDequeue()
		if !ok {
			return
		}
		if cmd.reply != nil {
			cmd.reply <- ErrStopped
		}
	}
}

// onMalformed runs on the ingesting goroutine, so the review item is
// recorded by a command.
func (e *Engine) onMalformed(err *ingest.MalformedPunchError) {
	item := model.ReviewItem{
		ID:        e.reviewIDs.Generate(),
		Kind:      model.ReviewMalformed,
		Detail:    fmt.Sprintf("%s: %q from %s", err.Reason, err.Raw, err.Source),
		CreatedAt: e.now(),
	}
	e.cmds.Enqueue(command{
		name: "review_malformed",
		run: func(ctx context.Context) error {
			return e.store.AppendReview(ctx, item)
		},
	})
}

// logEventError logs a failed punch with enough context to find it again.
func (e *Engine) logEventError(p model.Punch, err error) {
	ev := e.logger.Error()
	switch ErrorCode(err) {
	case ErrCodeUnresolvedCard, ErrCodeClockAnomaly:
		ev = e.logger.Warn()
	}
	ev.Err(err).
		Str("code", string(ErrorCode(err))).
		Str("punch_id", p.ID).
		Str("card", p.CardID).
		Str("control", p.Code).
		Str("time", model.FormatTime(p.Time)).
		Str("source", p.Source).
		Int64("seq", p.Seq).
		Msg("punch processing failed")
}

func (e *Engine) audit(ctx context.Context, action model.AuditAction, competitorID, detail string) error {
	entry := model.AuditEntry{
		ID:           e.auditIDs.Generate(),
		Action:       action,
		CompetitorID: competitorID,
		Detail:       detail,
		At:           e.now(),
	}
	if err := e.store.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("audit %s: %w", action, err)
	}
	return nil
}

// publish sends a fresh snapshot of each class, once per class, and records
// the last version so that a restarted engine carries on after it.
func (e *Engine) publish(ctx context.Context, classIDs ...string) {
	if len(classIDs) == 0 {
		return
	}
	seen := make(map[string]bool, len(classIDs))
	for _, id := range classIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		e.feed.Publish(feed.Snapshot{
			ClassID: id,
			Version: uint64(e.clock.Next()),
			At:      e.now(),
			Entries: e.board.Rank(id),
		})
	}
	version := strconv.FormatInt(e.clock.Current(), 10)
	if err := e.store.SetMeta(ctx, MetaSnapshotVersion, version); err != nil {
		e.logger.Warn().Err(err).Str("version", version).Msg("snapshot version not saved")
	}
}

// outcomeOf is used by commands and tests on the Run goroutine.
func (e *Engine) outcomeOf(competitorID string) (result.Outcome, bool) {
	cs, ok := e.competitors[competitorID]
	if !ok {
		return result.Outcome{}, false
	}
	return cs.outcome, true
}

// Outcome returns the derived state of one competitor.
func (e *Engine) Outcome(ctx context.Context, competitorID string) (result.Outcome, error) {
	var out result.Outcome
	err := e.submit(ctx, "outcome", func(context.Context) error {
		o, ok := e.outcomeOf(competitorID)
		if !ok {
			return &RuntimeError{Code: ErrCodeUnknownCompetitor, Message: "no such competitor", CompetitorID: competitorID}
		}
		out = o
		return nil
	})
	return out, err
}

// History returns a competitor's punch history in (Time, Seq) order.
func (e *Engine) History(ctx context.Context, competitorID string) ([]model.Punch, error) {
	var history []model.Punch
	err := e.submit(ctx, "history", func(context.Context) error {
		cs, ok := e.competitors[competitorID]
		if !ok {
			return unknownCompetitor(competitorID)
		}
		history = slices.Clone(cs.history)
		return nil
	})
	return history, err
}
