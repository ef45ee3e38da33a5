package ingest

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/sportorg/internal/model"
)

// ErrQueueClosed is returned when ingesting into a closed queue.
var ErrQueueClosed = errors.New("ingest: queue closed")

// Queue is an unbounded FIFO of parsed punches.
//
// Any goroutine may ingest; the engine is the only consumer. Each accepted
// punch gets the next ingestion sequence number, so Seq order is the order
// in which punches entered the queue.
//
// The queue signals through a size-1 channel so the consumer can wait on it
// in a select alongside context cancellation.
type Queue struct {
	mu      sync.Mutex
	punches []model.Punch
	seq     int64
	closed  bool
	signal  chan struct{}

	accepted uint64
	rejected uint64

	now      func() time.Time
	logger   zerolog.Logger
	onReject func(*MalformedPunchError)
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithLogger sets the queue's logger.
func WithLogger(logger zerolog.Logger) QueueOption {
	return func(q *Queue) { q.logger = logger }
}

// WithNow sets the wall clock used for ReceivedAt.
func WithNow(now func() time.Time) QueueOption {
	return func(q *Queue) { q.now = now }
}

// WithStartSeq resumes sequence numbering after seq.
func WithStartSeq(seq int64) QueueOption {
	return func(q *Queue) { q.seq = seq }
}

// WithRejectHook registers a callback for malformed punches. It runs on the
// ingesting goroutine, outside the queue lock.
func WithRejectHook(fn func(*MalformedPunchError)) QueueOption {
	return func(q *Queue) { q.onReject = fn }
}

// NewQueue creates an empty queue.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		punches: make([]model.Punch, 0, 64),
		signal:  make(chan struct{}, 1),
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Ingest parses raw and enqueues the resulting punch.
// A malformed punch is rejected with a *MalformedPunchError and the queue is
// left untouched.
func (q *Queue) Ingest(raw RawPunch) error {
	p, err := Parse(raw)
	if err != nil {
		var me *MalformedPunchError
		if errors.As(err, &me) {
			q.Reject(me)
		}
		return err
	}
	return q.Enqueue(p)
}

// Enqueue adds an already parsed punch, stamping Seq and ReceivedAt.
func (q *Queue) Enqueue(p model.Punch) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.seq++
	p.Seq = q.seq
	if p.ReceivedAt.IsZero() {
		p.ReceivedAt = q.now()
	}
	q.punches = append(q.punches, p)
	q.accepted++

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// Reject records a malformed punch.
func (q *Queue) Reject(err *MalformedPunchError) {
	q.mu.Lock()
	q.rejected++
	q.mu.Unlock()

	q.logger.Warn().
		Str("source", err.Source).
		Str("raw", err.Raw).
		Str("reason", err.Reason).
		Msg("malformed punch rejected")

	if q.onReject != nil {
		q.onReject(err)
	}
}

// TryDequeue removes the oldest punch without blocking.
func (q *Queue) TryDequeue() (model.Punch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.punches) == 0 {
		return model.Punch{}, false
	}
	p := q.punches[0]
	q.punches[0] = model.Punch{}
	if len(q.punches) == 1 {
		q.punches = q.punches[:0]
	} else {
		q.punches = q.punches[1:]
	}
	return p, true
}

// Wait returns a channel that receives when punches may be available.
// It is closed when the queue is closed.
func (q *Queue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued punches.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.punches)
}

// Seq returns the last assigned sequence number.
func (q *Queue) Seq() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seq
}

// ResumeAfter moves sequence numbering forward so the next punch gets a
// number above seq. It never moves numbering backwards.
func (q *Queue) ResumeAfter(seq int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if seq > q.seq {
		q.seq = seq
	}
}

// Close stops accepting punches. Queued punches can still be dequeued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Stats counts accepted and rejected punches.
type Stats struct {
	Accepted uint64 `json:"accepted"`
	Rejected uint64 `json:"rejected"`
	Queued   int    `json:"queued"`
}

// Stats returns the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Accepted: q.accepted, Rejected: q.rejected, Queued: len(q.punches)}
}
