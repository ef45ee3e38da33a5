package ranking

import (
	"slices"
	"sync"
)

// Board holds the ranking entries of every class.
//
// Writers call Update; a class is re-sorted only on the next Rank after one
// of its entries actually changed. All methods are safe for concurrent use.
type Board struct {
	mu      sync.Mutex
	classes map[string]*classBoard
	classOf map[string]string // competitor id -> class id
}

type classBoard struct {
	entries map[string]Entry
	ranked  []Entry
	dirty   bool
	version uint64
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{
		classes: make(map[string]*classBoard),
		classOf: make(map[string]string),
	}
}

func (b *Board) class(id string) *classBoard {
	cb, ok := b.classes[id]
	if !ok {
		cb = &classBoard{entries: make(map[string]Entry)}
		b.classes[id] = cb
	}
	return cb
}

// Update stores e and reports the class ids whose ranking changed.
// Storing an identical entry changes nothing. An entry whose class differs
// from the competitor's previous class moves between classes.
func (b *Board) Update(e Entry) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var changed []string
	if prev, ok := b.classOf[e.CompetitorID]; ok && prev != e.ClassID {
		if b.removeLocked(prev, e.CompetitorID) {
			changed = append(changed, prev)
		}
	}

	cb := b.class(e.ClassID)
	e.Place, e.Behind = 0, 0
	e.LegPlaces, e.SplitPlaces = nil, nil
	if old, ok := cb.entries[e.CompetitorID]; ok && old.Equal(e) {
		return changed
	}
	cb.entries[e.CompetitorID] = e.Clone()
	cb.dirty = true
	cb.version++
	b.classOf[e.CompetitorID] = e.ClassID
	return append(changed, e.ClassID)
}

// Remove drops a competitor from the board and reports whether it was there.
func (b *Board) Remove(competitorID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	classID, ok := b.classOf[competitorID]
	if !ok {
		return false
	}
	return b.removeLocked(classID, competitorID)
}

func (b *Board) removeLocked(classID, competitorID string) bool {
	cb, ok := b.classes[classID]
	if !ok {
		return false
	}
	if _, ok := cb.entries[competitorID]; !ok {
		return false
	}
	delete(cb.entries, competitorID)
	delete(b.classOf, competitorID)
	cb.dirty = true
	cb.version++
	return true
}

// Rank returns the current ranking of a class, re-sorting it first if any
// entry changed since the last call. The result is a copy.
func (b *Board) Rank(classID string) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	cb, ok := b.classes[classID]
	if !ok {
		return nil
	}
	if cb.dirty {
		entries := make([]Entry, 0, len(cb.entries))
		for _, e := range cb.entries {
			entries = append(entries, e)
		}
		cb.ranked = Rank(entries)
		cb.dirty = false
	}

	out := make([]Entry, len(cb.ranked))
	for i, e := range cb.ranked {
		out[i] = e.Clone()
	}
	return out
}

// Version returns a counter that increases whenever the class changes.
func (b *Board) Version(classID string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.classes[classID]; ok {
		return cb.version
	}
	return 0
}

// Entry returns the stored entry of a competitor.
func (b *Board) Entry(competitorID string) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	classID, ok := b.classOf[competitorID]
	if !ok {
		return Entry{}, false
	}
	e, ok := b.classes[classID].entries[competitorID]
	return e.Clone(), ok
}

// Classes lists the ids of classes with at least one entry, sorted.
func (b *Board) Classes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.classes))
	for id, cb := range b.classes {
		if len(cb.entries) > 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
