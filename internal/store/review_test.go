package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sportorg/internal/model"
)

func TestReviewQueueOrderAndIdempotence(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	items := []model.ReviewItem{
		{ID: "zz", Kind: model.ReviewUnresolvedCard, CardID: "999", Detail: "unknown card", CreatedAt: at},
		{ID: "aa", Kind: model.ReviewClockAnomaly, CompetitorID: "c1", PunchID: "p1", Detail: "equal times", CreatedAt: at},
	}
	for _, item := range items {
		require.NoError(t, s.AppendReview(ctx, item))
	}
	require.NoError(t, s.AppendReview(ctx, items[0]))

	got, err := s.ListReview(ctx)
	require.NoError(t, err)
	assert.Equal(t, items, got)
}

func TestAuditLog(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	entries := []model.AuditEntry{
		{ID: "2", Action: model.AuditRegister, CompetitorID: "c1", Detail: "card 999", At: at},
		{ID: "1", Action: model.AuditSetStatus, CompetitorID: "c1", Detail: "disqualified: shortcut", At: at.Add(time.Second)},
	}
	for _, e := range entries {
		require.NoError(t, s.AppendAudit(ctx, e))
	}

	got, err := s.ListAudit(ctx)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}
