package ingest

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(q *Queue) []string {
	var out []string
	for {
		p, ok := q.TryDequeue()
		if !ok {
			return out
		}
		out = append(out, p.Source+":"+p.Code)
	}
}

func TestPumpMultipleSources(t *testing.T) {
	q := NewQueue()
	a := NewLineSource("a", strings.NewReader("1,31,10\n1,32,20\n"))
	b := NewLineSource("b", strings.NewReader("2,31,11\nbad\n2,32,21\n"))

	err := Pump(context.Background(), q, zerolog.Nop(), a, b)
	require.NoError(t, err)

	got := drain(q)
	assert.Len(t, got, 4)

	// Per-source arrival order is preserved.
	var fromA, fromB []string
	for _, s := range got {
		if strings.HasPrefix(s, "a:") {
			fromA = append(fromA, s)
		} else {
			fromB = append(fromB, s)
		}
	}
	assert.Equal(t, []string{"a:31", "a:32"}, fromA)
	assert.Equal(t, []string{"b:31", "b:32"}, fromB)
	assert.Equal(t, uint64(1), q.Stats().Rejected)
}

// blockingReader blocks reads until closed.
type blockingReader struct {
	once   sync.Once
	closed chan struct{}
}

func (r *blockingReader) Read(p []byte) (int, error) {
	<-r.closed
	return 0, io.ErrClosedPipe
}

func (r *blockingReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

func TestPumpCancellationKeepsIngestedPunches(t *testing.T) {
	q := NewQueue()
	stuck := &blockingReader{closed: make(chan struct{})}
	done := NewLineSource("done", strings.NewReader("1,31,10\n"))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- Pump(ctx, q, zerolog.Nop(), done, NewLineSource("stuck", stuck)) }()

	require.Eventually(t, func() bool { return q.Len() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Pump did not return after cancellation")
	}
	assert.Equal(t, 1, q.Len())
}

func TestPumpStopsOnClosedQueue(t *testing.T) {
	q := NewQueue()
	q.Close()
	src := NewLineSource("a", strings.NewReader("1,31,10\n1,32,20\n"))

	require.NoError(t, Pump(context.Background(), q, zerolog.Nop(), src))
	assert.Zero(t, q.Len())
}
