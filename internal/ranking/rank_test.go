package ranking

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sportorg/internal/model"
)

func sec(n int) time.Duration { return time.Duration(n) * time.Second }

func finished(id string, result int) Entry {
	return Entry{CompetitorID: id, ClassID: "M21", Status: model.StatusFinished, Result: sec(result)}
}

func withStatus(id string, s model.Status) Entry {
	return Entry{CompetitorID: id, ClassID: "M21", Status: s}
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.CompetitorID
	}
	return out
}

func TestRankOrder(t *testing.T) {
	entries := []Entry{
		withStatus("dns", model.StatusDidNotStart),
		withStatus("dnf", model.StatusDidNotFinish),
		withStatus("dsq-b", model.StatusDisqualified),
		withStatus("dsq-a", model.StatusDisqualified),
		withStatus("ot", model.StatusOverTime),
		withStatus("run", model.StatusInProgress),
		withStatus("wait", model.StatusNotStarted),
		finished("slow", 90),
		finished("fast", 50),
	}

	ranked := Rank(entries)

	assert.Equal(t, []string{"fast", "slow", "run", "wait", "ot", "dsq-a", "dsq-b", "dnf", "dns"}, ids(ranked))
	assert.Equal(t, 1, ranked[0].Place)
	assert.Equal(t, 2, ranked[1].Place)
	assert.Equal(t, sec(40), ranked[1].Behind)
	for _, e := range ranked[2:] {
		assert.Zero(t, e.Place, e.CompetitorID)
		assert.Zero(t, e.Behind, e.CompetitorID)
	}
}

func TestRankTiesSharePlace(t *testing.T) {
	ranked := Rank([]Entry{finished("c", 60), finished("b", 50), finished("a", 50), finished("d", 70)})

	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(ranked))
	assert.Equal(t, []int{1, 1, 3, 4}, []int{ranked[0].Place, ranked[1].Place, ranked[2].Place, ranked[3].Place})
	assert.Zero(t, ranked[1].Behind)
}

func TestRankDeterministic(t *testing.T) {
	entries := []Entry{
		finished("a", 50), finished("b", 50), finished("c", 40),
		withStatus("d", model.StatusDisqualified), withStatus("e", model.StatusOverTime),
		withStatus("f", model.StatusDidNotStart),
	}
	want := Rank(entries)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := make([]Entry, len(entries))
		for j, k := range rng.Perm(len(entries)) {
			shuffled[j] = entries[k]
		}
		assert.Equal(t, want, Rank(shuffled))
	}
}

func TestRankDoesNotMutateInput(t *testing.T) {
	entries := []Entry{finished("b", 60), finished("a", 50)}
	entries[0].Splits = []model.Split{{Code: "31"}}

	ranked := Rank(entries)
	ranked[1].Splits[0].Code = "changed"

	assert.Equal(t, "b", entries[0].CompetitorID)
	assert.Zero(t, entries[0].Place)
	assert.Equal(t, "31", entries[0].Splits[0].Code)
}

func TestRankLegPlaces(t *testing.T) {
	split := func(idx, leg, elapsed int) model.Split {
		return model.Split{Code: "3" + string(rune('1'+idx)), CourseIndex: idx, Leg: sec(leg), Elapsed: sec(elapsed)}
	}
	a := finished("a", 60)
	a.Splits = []model.Split{split(0, 10, 10), split(1, 30, 40)}
	b := finished("b", 55)
	b.Splits = []model.Split{split(0, 20, 20), split(1, 20, 40)}
	c := finished("c", 70)
	c.Splits = []model.Split{split(1, 20, 50)}
	dsq := withStatus("dsq", model.StatusDisqualified)
	dsq.Splits = []model.Split{split(0, 5, 5)}

	ranked := Rank([]Entry{a, b, c, dsq})

	require.Equal(t, []string{"b", "a", "c", "dsq"}, ids(ranked))
	assert.Equal(t, []int{2, 1}, ranked[0].LegPlaces)
	assert.Equal(t, []int{1, 3}, ranked[1].LegPlaces)
	assert.Equal(t, []int{1}, ranked[2].LegPlaces)
	assert.Equal(t, []int{2, 1}, ranked[0].SplitPlaces)
	assert.Equal(t, []int{1, 1}, ranked[1].SplitPlaces)
	assert.Equal(t, []int{3}, ranked[2].SplitPlaces)
	assert.Nil(t, ranked[3].LegPlaces, "only finished entries are placed on legs")
	assert.Nil(t, ranked[3].SplitPlaces)
}

func TestRankEmpty(t *testing.T) {
	require.Empty(t, Rank(nil))
}
