package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/sportorg/internal/model"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedEvent stores one course, one class and returns them.
func seedEvent(t *testing.T, s *Store) (model.Course, model.Class) {
	t.Helper()
	ctx := context.Background()
	course := model.Course{
		ID:             "A",
		Name:           "Long",
		Controls:       []string{"31", "32", "33"},
		TimeLimit:      90 * time.Minute,
		PenaltyPerMiss: 2 * time.Minute,
	}.WithDefaults()
	class := model.Class{ID: "M21", Name: "Men 21", CourseID: "A"}
	if err := s.SaveCourse(ctx, course); err != nil {
		t.Fatalf("SaveCourse() failed: %v", err)
	}
	if err := s.SaveClass(ctx, class); err != nil {
		t.Fatalf("SaveClass() failed: %v", err)
	}
	return course, class
}

func testPunch(card, code string, t time.Duration, seq int64) model.Punch {
	p := model.NewPunch(card, code, t, "reader-1")
	p.Seq = seq
	p.ReceivedAt = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Second)
	return p
}
