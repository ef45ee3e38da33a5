package engine

import (
	"slices"
	"strings"
	"time"

	"github.com/roach88/sportorg/internal/model"
)

type bufferedPunch struct {
	punch model.Punch
	since time.Time
}

// unresolvedBuffer holds punches whose card no competitor holds yet, keyed
// by card id. Entries older than the retention window are expired.
type unresolvedBuffer struct {
	retention time.Duration
	cards     map[string][]bufferedPunch
}

func newUnresolvedBuffer(retention time.Duration) *unresolvedBuffer {
	return &unresolvedBuffer{
		retention: retention,
		cards:     make(map[string][]bufferedPunch),
	}
}

// add buffers p and reports false if it is already buffered.
func (b *unresolvedBuffer) add(p model.Punch, since time.Time) bool {
	for _, bp := range b.cards[p.CardID] {
		if bp.punch.ID == p.ID {
			return false
		}
	}
	b.cards[p.CardID] = append(b.cards[p.CardID], bufferedPunch{punch: p, since: since})
	return true
}

func (b *unresolvedBuffer) has(cardID string) bool {
	return len(b.cards[cardID]) > 0
}

// take removes and returns every punch buffered for a card.
func (b *unresolvedBuffer) take(cardID string) []model.Punch {
	if cardID == "" {
		return nil
	}
	held := b.cards[cardID]
	delete(b.cards, cardID)
	out := make([]model.Punch, len(held))
	for i, bp := range held {
		out[i] = bp.punch
	}
	return out
}

func (b *unresolvedBuffer) find(punchID string) (model.Punch, bool) {
	for _, held := range b.cards {
		for _, bp := range held {
			if bp.punch.ID == punchID {
				return bp.punch, true
			}
		}
	}
	return model.Punch{}, false
}

// remove drops one punch by id.
func (b *unresolvedBuffer) remove(punchID string) (model.Punch, bool) {
	for card, held := range b.cards {
		for i, bp := range held {
			if bp.punch.ID != punchID {
				continue
			}
			held = slices.Delete(held, i, i+1)
			if len(held) == 0 {
				delete(b.cards, card)
			} else {
				b.cards[card] = held
			}
			return bp.punch, true
		}
	}
	return model.Punch{}, false
}

// expire removes and returns punches held longer than the retention window,
// ordered by card then punch order.
func (b *unresolvedBuffer) expire(now time.Time) []model.Punch {
	var out []model.Punch
	for card, held := range b.cards {
		kept := held[:0]
		for _, bp := range held {
			if now.Sub(bp.since) > b.retention {
				out = append(out, bp.punch)
			} else {
				kept = append(kept, bp)
			}
		}
		if len(kept) == 0 {
			delete(b.cards, card)
		} else {
			b.cards[card] = kept
		}
	}
	slices.SortFunc(out, func(a, b model.Punch) int {
		if c := strings.Compare(a.CardID, b.CardID); c != 0 {
			return c
		}
		if a.Before(b) {
			return -1
		}
		if b.Before(a) {
			return 1
		}
		return 0
	})
	return out
}

func (b *unresolvedBuffer) len() int {
	n := 0
	for _, held := range b.cards {
		n += len(held)
	}
	return n
}
