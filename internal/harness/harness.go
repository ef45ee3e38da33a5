package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/sportorg/internal/engine"
	"github.com/roach88/sportorg/internal/eventdef"
	"github.com/roach88/sportorg/internal/ingest"
	"github.com/roach88/sportorg/internal/model"
	"github.com/roach88/sportorg/internal/ranking"
	"github.com/roach88/sportorg/internal/result"
	"github.com/roach88/sportorg/internal/testutil"
)

// raceDay is the date every scenario runs on. The event's zero time is
// added to it.
var raceDay = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

// Result is the outcome of running a scenario.
type Result struct {
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`

	Outcomes  map[string]result.Outcome  `json:"outcomes"`
	Histories map[string][]model.Punch   `json:"histories"`
	Rankings  map[string][]ranking.Entry `json:"rankings"`
	Review    []model.ReviewItem         `json:"review"`
}

func newResult() *Result {
	return &Result{
		Pass:      true,
		Outcomes:  make(map[string]result.Outcome),
		Histories: make(map[string][]model.Punch),
		Rankings:  make(map[string][]ranking.Entry),
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// harness drives one engine through a scenario.
type harness struct {
	engine *engine.Engine
	clock  *testutil.WallClock
}

// Run executes a scenario on a fresh in-memory event.
//
// An error is returned only when the scenario cannot run at all; failed
// steps and assertions are reported in Result.Errors.
func Run(sc *Scenario) (*Result, error) {
	return run(sc, sc.Steps)
}

func run(sc *Scenario, steps []Step) (*Result, error) {
	ctx := context.Background()

	def, errs := eventdef.LoadDir(sc.Event)
	if len(errs) > 0 {
		return nil, fmt.Errorf("load event %s: %w", sc.Event, errors.Join(errs...))
	}
	s := engine.NewMemoryStore()
	if err := def.Apply(ctx, s); err != nil {
		return nil, fmt.Errorf("apply event: %w", err)
	}

	zero := raceDay.Add(def.ZeroTime)
	clock := testutil.NewWallClock(zero)
	e := engine.New(s,
		engine.WithNow(clock.Now),
		engine.WithLogger(zerolog.Nop()),
		engine.WithConfig(engine.Config{ZeroTime: zero, TickInterval: time.Hour}),
		engine.WithIDs(testutil.NewSequentialIDs("audit"), testutil.NewSequentialIDs("review")),
	)
	if err := e.Load(ctx); err != nil {
		return nil, fmt.Errorf("load engine: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- e.Run(runCtx) }()
	defer func() {
		cancel()
		<-done
	}()

	h := &harness{engine: e, clock: clock}
	res := newResult()
	for i, step := range steps {
		err := h.step(ctx, step)
		switch {
		case step.ExpectError != "":
			if got := string(engine.ErrorCode(err)); got != step.ExpectError {
				res.AddError(fmt.Sprintf("steps[%d] %s: expected error %s, got %v", i, step.action(), step.ExpectError, err))
			}
		case err != nil:
			res.AddError(fmt.Sprintf("steps[%d] %s: %v", i, step.action(), err))
		}
	}

	if err := h.collect(ctx, s, res); err != nil {
		return nil, err
	}
	for i, a := range sc.Assertions {
		if err := check(res, a); err != nil {
			res.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return res, nil
}

func (h *harness) step(ctx context.Context, s Step) error {
	e := h.engine
	switch s.action() {
	case "register":
		c, err := s.Register.competitor()
		if err != nil {
			return err
		}
		return e.Register(ctx, c)
	case "update":
		c, err := s.Update.competitor()
		if err != nil {
			return err
		}
		return e.UpdateCompetitor(ctx, c)
	case "punch":
		source := s.Punch.Source
		if source == "" {
			source = "r1"
		}
		err := e.Ingest(ingest.RawPunch{Source: source, Card: s.Punch.Card, Code: s.Punch.Code, Time: s.Punch.Time})
		if ferr := e.Flush(ctx); ferr != nil {
			return ferr
		}
		return err
	case "advance":
		d, err := time.ParseDuration(s.Advance)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		h.clock.Advance(d)
		return e.Tick(ctx)
	case "set_status":
		status, err := model.ParseStatus(s.SetStatus.Status)
		if err != nil {
			return err
		}
		return e.SetStatus(ctx, s.SetStatus.Competitor, status, s.SetStatus.Reason)
	case "clear_status":
		return e.ClearStatus(ctx, s.ClearStatus)
	case "retract":
		t, err := model.ParseTime(s.Retract.Time)
		if err != nil {
			return err
		}
		id, err := model.PunchID(s.Retract.Card, s.Retract.Code, t)
		if err != nil {
			return err
		}
		return e.RetractPunch(ctx, id, s.Retract.Reason)
	case "close":
		return e.CloseEvent(ctx)
	}
	return fmt.Errorf("step has no action")
}

// collect reads the final state of every competitor and of each class that
// has competitors.
func (h *harness) collect(ctx context.Context, s *engine.MemoryStore, res *Result) error {
	competitors, err := s.ListCompetitors(ctx)
	if err != nil {
		return err
	}
	var classes []string
	for _, c := range competitors {
		out, err := h.engine.Outcome(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("outcome %s: %w", c.ID, err)
		}
		res.Outcomes[c.ID] = out
		history, err := h.engine.History(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("history %s: %w", c.ID, err)
		}
		res.Histories[c.ID] = history
		if !slices.Contains(classes, c.ClassID) {
			classes = append(classes, c.ClassID)
		}
	}
	for _, id := range classes {
		res.Rankings[id] = h.engine.Rank(id)
	}

	res.Review, err = h.engine.ReviewItems(ctx)
	return err
}
