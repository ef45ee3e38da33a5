package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sportorg/internal/model"
)

func TestUnresolvedBufferAddTake(t *testing.T) {
	b := newUnresolvedBuffer(time.Minute)
	now := zeroTime
	p1 := model.NewPunch("9", "31", 10*time.Second, "r1")
	p2 := model.NewPunch("9", "32", 20*time.Second, "r1")

	assert.True(t, b.add(p1, now))
	assert.False(t, b.add(p1, now), "same punch twice")
	assert.True(t, b.add(p2, now))
	assert.True(t, b.has("9"))
	assert.Equal(t, 2, b.len())

	got := b.take("9")
	assert.Equal(t, []model.Punch{p1, p2}, got)
	assert.False(t, b.has("9"))
	assert.Nil(t, b.take(""))
}

func TestUnresolvedBufferExpire(t *testing.T) {
	b := newUnresolvedBuffer(time.Minute)
	old := model.NewPunch("8", "31", 10*time.Second, "r1")
	young := model.NewPunch("8", "32", 20*time.Second, "r1")
	other := model.NewPunch("7", "31", 5*time.Second, "r1")
	b.add(old, zeroTime)
	b.add(other, zeroTime)
	b.add(young, zeroTime.Add(50*time.Second))

	assert.Empty(t, b.expire(zeroTime.Add(time.Minute)), "exactly at the window is kept")

	expired := b.expire(zeroTime.Add(61 * time.Second))
	require.Len(t, expired, 2)
	assert.Equal(t, other.ID, expired[0].ID, "ordered by card")
	assert.Equal(t, old.ID, expired[1].ID)
	assert.Equal(t, 1, b.len())

	got, ok := b.remove(young.ID)
	assert.True(t, ok)
	assert.Equal(t, young, got)
	_, ok = b.remove(young.ID)
	assert.False(t, ok)
	assert.Zero(t, b.len())
}
