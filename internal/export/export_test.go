package export

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/sportorg/internal/engine"
	"github.com/roach88/sportorg/internal/ingest"
	"github.com/roach88/sportorg/internal/model"
	"github.com/roach88/sportorg/internal/testutil"
)

var zeroTime = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

// startEngine runs an engine over one course A (31, 32) used by class M21,
// with competitor C1 on card 100 registered.
func startEngine(t *testing.T) *engine.Engine {
	t.Helper()
	ctx := context.Background()
	s := engine.NewMemoryStore()
	require.NoError(t, s.SaveCourse(ctx, model.Course{ID: "A", Controls: []string{"31", "32"}}.WithDefaults()))
	require.NoError(t, s.SaveClass(ctx, model.Class{ID: "M21", CourseID: "A"}))

	clock := testutil.NewWallClock(zeroTime)
	e := engine.New(s,
		engine.WithNow(clock.Now),
		engine.WithConfig(engine.Config{ZeroTime: zeroTime, TickInterval: time.Hour}),
		engine.WithIDs(testutil.NewSequentialIDs("audit"), testutil.NewSequentialIDs("review")),
	)
	require.NoError(t, e.Load(ctx))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- e.Run(runCtx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.NoError(t, e.Register(ctx, model.Competitor{ID: "C1", Name: "Ana Berg", ClassID: "M21", CardID: "100"}))
	return e
}

// run punches card 100 through start, the given controls and finish, one
// second apart.
func run(t *testing.T, e *engine.Engine, codes ...string) {
	t.Helper()
	codes = append(append([]string{model.DefaultStartCode}, codes...), model.DefaultFinishCode)
	for i, code := range codes {
		require.NoError(t, e.Ingest(ingest.RawPunch{
			Source: "test",
			Card:   "100",
			Code:   code,
			Time:   strconv.Itoa((i + 1) * 10000),
		}))
	}
	require.NoError(t, e.Flush(context.Background()))
}
