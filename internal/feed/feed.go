package feed

import (
	"errors"
	"slices"
	"sync"
)

// ErrClosed is returned by Next once the subscription or feed is closed.
var ErrClosed = errors.New("feed: closed")

// Feed fans class snapshots out to subscribers.
type Feed struct {
	mu      sync.Mutex
	current map[string]Snapshot
	subs    map[uint64]*Subscription
	nextID  uint64
	closed  bool
}

// New creates an empty feed.
func New() *Feed {
	return &Feed{
		current: make(map[string]Snapshot),
		subs:    make(map[uint64]*Subscription),
	}
}

// Publish records snap as the latest snapshot of its class and delivers it to
// every subscriber of that class. A snapshot whose version is not newer than
// the current one is ignored, so versions seen by subscribers never go
// backwards. Publish never blocks on subscribers.
func (f *Feed) Publish(snap Snapshot) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}
	if cur, ok := f.current[snap.ClassID]; ok && snap.Version <= cur.Version {
		return false
	}
	snap = snap.Clone()
	f.current[snap.ClassID] = snap

	for _, sub := range f.subs {
		sub.offer(snap)
	}
	return true
}

// Current returns the latest snapshot of a class.
func (f *Feed) Current(classID string) (Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.current[classID]
	if !ok {
		return Snapshot{}, false
	}
	return snap.Clone(), true
}

// Classes lists the classes that have a snapshot, sorted.
func (f *Feed) Classes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.current))
	for id := range f.current {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Subscribe registers a subscriber for the given classes, or for every class
// when none are given. The subscriber immediately receives the current
// snapshot of each matching class.
func (f *Feed) Subscribe(classIDs ...string) *Subscription {
	sub := &Subscription{
		pending: make(map[string]Snapshot),
		signal:  make(chan struct{}, 1),
	}
	if len(classIDs) > 0 {
		sub.filter = make(map[string]bool, len(classIDs))
		for _, id := range classIDs {
			sub.filter[id] = true
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		sub.close()
		return sub
	}
	f.nextID++
	sub.id = f.nextID
	sub.feed = f
	f.subs[sub.id] = sub

	classes := make([]string, 0, len(f.current))
	for id := range f.current {
		classes = append(classes, id)
	}
	slices.Sort(classes)
	for _, id := range classes {
		sub.offer(f.current[id])
	}
	return sub
}

// Unsubscribe removes a subscriber and wakes any pending Next.
func (f *Feed) Unsubscribe(sub *Subscription) {
	f.mu.Lock()
	delete(f.subs, sub.id)
	f.mu.Unlock()
	sub.close()
}

// Subscribers returns the number of active subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close closes every subscription. Later publishes are ignored.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	subs := f.subs
	f.subs = make(map[uint64]*Subscription)
	f.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
