package engine

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/sportorg/internal/model"
	"github.com/roach88/sportorg/internal/store"
)

// Store is the persistence boundary of the engine.
// *store.Store implements it on SQLite; MemoryStore keeps everything in
// memory for replays and scenario runs.
type Store interface {
	ListCourses(ctx context.Context) ([]model.Course, error)
	ListClasses(ctx context.Context) ([]model.Class, error)
	ListCompetitors(ctx context.Context) ([]model.Competitor, error)
	SaveCompetitor(ctx context.Context, c model.Competitor) error

	AppendPunch(ctx context.Context, p model.Punch) (bool, error)
	LivePunches(ctx context.Context) ([]model.Punch, error)
	RetractedPunchIDs(ctx context.Context) ([]string, error)
	RetractPunch(ctx context.Context, punchID, reason string) error
	SetOrphaned(ctx context.Context, punchID string, orphaned bool) error
	MaxSeq(ctx context.Context) (int64, error)

	SaveResult(ctx context.Context, r model.ResultRecord) error
	SaveOverride(ctx context.Context, o model.Override) error
	ClearOverride(ctx context.Context, competitorID string) error
	ListOverrides(ctx context.Context) ([]model.Override, error)

	AppendReview(ctx context.Context, item model.ReviewItem) error
	ListReview(ctx context.Context) ([]model.ReviewItem, error)
	AppendAudit(ctx context.Context, e model.AuditEntry) error

	SetMeta(ctx context.Context, key, value string) error
	GetMeta(ctx context.Context, key string) (string, error)
}

var (
	_ Store = (*store.Store)(nil)
	_ Store = (*MemoryStore)(nil)
)

type storedPunch struct {
	punch     model.Punch
	orphaned  bool
	retracted bool
}

// MemoryStore is an in-memory Store. It is safe for concurrent use.
type MemoryStore struct {
	mu          sync.Mutex
	courses     map[string]model.Course
	classes     map[string]model.Class
	competitors map[string]model.Competitor
	punches     map[string]*storedPunch
	results     map[string]model.ResultRecord
	overrides   map[string]model.Override
	review      []model.ReviewItem
	audit       []model.AuditEntry
	meta        map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		courses:     make(map[string]model.Course),
		classes:     make(map[string]model.Class),
		competitors: make(map[string]model.Competitor),
		punches:     make(map[string]*storedPunch),
		results:     make(map[string]model.ResultRecord),
		overrides:   make(map[string]model.Override),
		meta:        make(map[string]string),
	}
}

func sortedValues[V any](m map[string]V) []V {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

// SaveCourse stores a course.
func (m *MemoryStore) SaveCourse(_ context.Context, c model.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Controls = slices.Clone(c.Controls)
	m.courses[c.ID] = c
	return nil
}

// ListCourses returns courses ordered by id.
func (m *MemoryStore) ListCourses(context.Context) ([]model.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedValues(m.courses), nil
}

// SaveClass stores a class. Its course must exist.
func (m *MemoryStore) SaveClass(_ context.Context, c model.Class) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[c.CourseID]; !ok {
		return fmt.Errorf("save class %s: course %s: %w", c.ID, c.CourseID, store.ErrNotFound)
	}
	m.classes[c.ID] = c
	return nil
}

// ListClasses returns classes ordered by id.
func (m *MemoryStore) ListClasses(context.Context) ([]model.Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedValues(m.classes), nil
}

// SaveCompetitor upserts a competitor. Its class must exist.
func (m *MemoryStore) SaveCompetitor(_ context.Context, c model.Competitor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.classes[c.ClassID]; !ok {
		return fmt.Errorf("save competitor %s: class %s: %w", c.ID, c.ClassID, store.ErrNotFound)
	}
	m.competitors[c.ID] = c
	return nil
}

// ListCompetitors returns competitors ordered by id.
func (m *MemoryStore) ListCompetitors(context.Context) ([]model.Competitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedValues(m.competitors), nil
}

// AppendPunch stores p unless a punch with the same id exists.
func (m *MemoryStore) AppendPunch(_ context.Context, p model.Punch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.punches[p.ID]; ok {
		return false, nil
	}
	m.punches[p.ID] = &storedPunch{punch: p}
	return true, nil
}

// LivePunches returns punches that are neither retracted nor orphaned, in
// (time, seq, id) order.
func (m *MemoryStore) LivePunches(context.Context) ([]model.Punch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Punch{}
	for _, sp := range m.punches {
		if !sp.orphaned && !sp.retracted {
			out = append(out, sp.punch)
		}
	}
	slices.SortFunc(out, func(a, b model.Punch) int {
		return cmp.Or(
			cmp.Compare(a.Time, b.Time),
			cmp.Compare(a.Seq, b.Seq),
			strings.Compare(a.ID, b.ID),
		)
	})
	return out, nil
}

// RetractedPunchIDs returns the ids of retracted punches in id order.
func (m *MemoryStore) RetractedPunchIDs(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []string{}
	for id, sp := range m.punches {
		if sp.retracted {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// RetractPunch flags a punch as retracted.
func (m *MemoryStore) RetractPunch(_ context.Context, punchID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.punches[punchID]
	if !ok {
		return fmt.Errorf("punch %s: %w", punchID, store.ErrNotFound)
	}
	sp.retracted = true
	return nil
}

// SetOrphaned flags or unflags a punch as orphaned.
func (m *MemoryStore) SetOrphaned(_ context.Context, punchID string, orphaned bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sp, ok := m.punches[punchID]; ok {
		sp.orphaned = orphaned
	}
	return nil
}

// MaxSeq returns the highest stored ingestion sequence number.
func (m *MemoryStore) MaxSeq(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var seq int64
	for _, sp := range m.punches {
		seq = max(seq, sp.punch.Seq)
	}
	return seq, nil
}

// SaveResult replaces a competitor's result.
func (m *MemoryStore) SaveResult(_ context.Context, r model.ResultRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Splits = slices.Clone(r.Splits)
	m.results[r.CompetitorID] = r
	return nil
}

// Result returns the stored result of one competitor.
func (m *MemoryStore) Result(competitorID string) (model.ResultRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[competitorID]
	return r, ok
}

// SaveOverride upserts an override.
func (m *MemoryStore) SaveOverride(_ context.Context, o model.Override) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[o.CompetitorID] = o
	return nil
}

// ClearOverride removes an override, if any.
func (m *MemoryStore) ClearOverride(_ context.Context, competitorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, competitorID)
	return nil
}

// ListOverrides returns overrides ordered by competitor id.
func (m *MemoryStore) ListOverrides(context.Context) ([]model.Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedValues(m.overrides), nil
}

// AppendReview queues a review item unless its id is already queued.
func (m *MemoryStore) AppendReview(_ context.Context, item model.ReviewItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.review {
		if existing.ID == item.ID {
			return nil
		}
	}
	m.review = append(m.review, item)
	return nil
}

// ListReview returns review items in insertion order.
func (m *MemoryStore) ListReview(context.Context) ([]model.ReviewItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ReviewItem{}, m.review...), nil
}

// AppendAudit records an audit entry.
func (m *MemoryStore) AppendAudit(_ context.Context, e model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	return nil
}

// Audit returns the audit log in insertion order.
func (m *MemoryStore) Audit() []model.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.AuditEntry{}, m.audit...)
}

// SetMeta stores an event-level setting.
func (m *MemoryStore) SetMeta(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[key] = value
	return nil
}

// GetMeta returns an event-level setting, or "" when unset.
func (m *MemoryStore) GetMeta(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta[key], nil
}
