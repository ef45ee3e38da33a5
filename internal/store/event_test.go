package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sportorg/internal/model"
)

func TestCourseRoundTrip(t *testing.T) {
	s := createTestStore(t)
	course, _ := seedEvent(t, s)

	got, err := s.GetCourse(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, course, got)
}

func TestSaveCourseUpdates(t *testing.T) {
	s := createTestStore(t)
	course, _ := seedEvent(t, s)
	ctx := context.Background()

	course.Controls = []string{"31", "34"}
	course.Order = model.OrderFree
	course.TimeLimit = time.Hour
	course.MaxOverrun = 5 * time.Minute
	course.CreditControl = "34"
	require.NoError(t, s.SaveCourse(ctx, course))

	got, err := s.GetCourse(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"31", "34"}, got.Controls)
	assert.Equal(t, model.OrderFree, got.Order)
	assert.Equal(t, 5*time.Minute, got.MaxOverrun)
	assert.Equal(t, "34", got.CreditControl)
}

func TestGetCourseNotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetCourse(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClassesAndCompetitors(t *testing.T) {
	s := createTestStore(t)
	_, class := seedEvent(t, s)
	ctx := context.Background()

	require.NoError(t, s.SaveClass(ctx, model.Class{ID: "W21", CourseID: "A"}))
	classes, err := s.ListClasses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Class{class, {ID: "W21", CourseID: "A"}}, classes)

	b := model.Competitor{ID: "b", Name: "Bea", ClassID: "W21", CardID: "200", Bib: 2, StartTime: 5 * time.Minute}
	a := model.Competitor{ID: "a", Name: "Ann", ClassID: "M21", CardID: "100"}
	c := model.Competitor{ID: "c", Name: "Cid", ClassID: "M21", CardID: "300", CourseID: "A"}
	for _, comp := range []model.Competitor{b, a, c} {
		require.NoError(t, s.SaveCompetitor(ctx, comp))
	}

	all, err := s.ListCompetitors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Competitor{a, b, c}, all)

	m21, err := s.CompetitorsByClass(ctx, "M21")
	require.NoError(t, err)
	assert.Equal(t, []model.Competitor{a, c}, m21)

	got, err := s.GetCompetitor(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, b, got)

	_, err = s.GetCompetitor(ctx, "zzz")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompetitorRequiresKnownClass(t *testing.T) {
	s := createTestStore(t)
	seedEvent(t, s)

	err := s.SaveCompetitor(context.Background(), model.Competitor{ID: "x", ClassID: "nope"})
	assert.Error(t, err)
}

func TestMeta(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	v, err := s.GetMeta(ctx, "closed")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMeta(ctx, "closed", "true"))
	require.NoError(t, s.SetMeta(ctx, "closed", "false"))
	v, err = s.GetMeta(ctx, "closed")
	require.NoError(t, err)
	assert.Equal(t, "false", v)
}
