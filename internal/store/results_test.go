package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sportorg/internal/model"
)

func TestSaveResultLastWriteWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC)

	first := model.ResultRecord{
		CompetitorID: "a", ClassID: "M21", Status: model.StatusInProgress,
		Splits: []model.Split{}, UpdatedAt: at,
	}
	require.NoError(t, s.SaveResult(ctx, first))

	second := model.ResultRecord{
		CompetitorID: "a", ClassID: "M21", Status: model.StatusFinished,
		Finish: 50 * time.Second, Result: 50 * time.Second,
		Splits: []model.Split{
			{Code: "31", CourseIndex: 0, Time: 10 * time.Second, Elapsed: 10 * time.Second, Leg: 10 * time.Second},
			{Code: "32", CourseIndex: 1, Time: 25 * time.Second, Elapsed: 25 * time.Second, Leg: 15 * time.Second, Flagged: true},
		},
		UpdatedAt: at.Add(time.Minute),
	}
	require.NoError(t, s.SaveResult(ctx, second))

	got, err := s.GetResult(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, second, got)

	byClass, err := s.ResultsByClass(ctx, "M21")
	require.NoError(t, err)
	assert.Len(t, byClass, 1)

	_, err = s.GetResult(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOverrides(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	o := model.Override{CompetitorID: "a", Status: model.StatusDisqualified, Reason: "shortcut", SetAt: at}
	require.NoError(t, s.SaveOverride(ctx, o))
	o.Reason = "shortcut through private land"
	require.NoError(t, s.SaveOverride(ctx, o))

	list, err := s.ListOverrides(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Override{o}, list)

	require.NoError(t, s.ClearOverride(ctx, "a"))
	require.NoError(t, s.ClearOverride(ctx, "a"))
	list, err = s.ListOverrides(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
