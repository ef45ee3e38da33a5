package feed

import (
	"context"
	"sync"
)

// Subscription is a coalescing mailbox of snapshots.
// Next must be called from a single goroutine.
type Subscription struct {
	id     uint64
	feed   *Feed
	filter map[string]bool // nil means every class

	mu      sync.Mutex
	pending map[string]Snapshot
	order   []string // class ids with a pending snapshot, oldest first
	drops   uint64
	closed  bool
	signal  chan struct{} // buffered, size 1
}

func (s *Subscription) wants(classID string) bool {
	return s.filter == nil || s.filter[classID]
}

// offer stores snap, replacing any unread snapshot of the same class.
func (s *Subscription) offer(snap Snapshot) {
	if !s.wants(snap.ClassID) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if _, unread := s.pending[snap.ClassID]; unread {
		s.drops++
	} else {
		s.order = append(s.order, snap.ClassID)
	}
	s.pending[snap.ClassID] = snap

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) tryNext() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return Snapshot{}, false
	}
	classID := s.order[0]
	s.order = s.order[1:]
	snap := s.pending[classID]
	delete(s.pending, classID)
	return snap.Clone(), true
}

// Next returns the oldest pending snapshot, blocking until one is published,
// the context is done or the subscription is closed.
func (s *Subscription) Next(ctx context.Context) (Snapshot, error) {
	for {
		if snap, ok := s.tryNext(); ok {
			return snap, nil
		}

		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return Snapshot{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case <-s.signal:
		}
	}
}

// Drops returns how many snapshots were overwritten before being read.
func (s *Subscription) Drops() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops
}

// Close unsubscribes from the feed.
func (s *Subscription) Close() {
	if s.feed != nil {
		s.feed.Unsubscribe(s)
		return
	}
	s.close()
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.pending = make(map[string]Snapshot)
	s.order = nil
	close(s.signal)
}
