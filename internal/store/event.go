package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/sportorg/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: not found")

// SaveCourse inserts or replaces a course.
func (s *Store) SaveCourse(ctx context.Context, c model.Course) error {
	controls, err := marshalControls(c.Controls)
	if err != nil {
		return fmt.Errorf("save course %s: %w", c.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO courses
		(id, name, controls, order_mode, missing_policy, penalty_ms, time_limit_ms, start_code, finish_code, max_overrun_ms, credit_control)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			controls = excluded.controls,
			order_mode = excluded.order_mode,
			missing_policy = excluded.missing_policy,
			penalty_ms = excluded.penalty_ms,
			time_limit_ms = excluded.time_limit_ms,
			start_code = excluded.start_code,
			finish_code = excluded.finish_code,
			max_overrun_ms = excluded.max_overrun_ms,
			credit_control = excluded.credit_control
	`,
		c.ID, c.Name, controls, string(c.Order), string(c.MissingPolicy),
		toMS(c.PenaltyPerMiss), toMS(c.TimeLimit), c.StartCode, c.FinishCode,
		toMS(c.MaxOverrun), c.CreditControl,
	)
	if err != nil {
		return fmt.Errorf("save course %s: %w", c.ID, err)
	}
	return nil
}

const courseColumns = `id, name, controls, order_mode, missing_policy, penalty_ms, time_limit_ms, start_code, finish_code, max_overrun_ms, credit_control`

func scanCourse(row interface{ Scan(...any) error }) (model.Course, error) {
	var (
		c                       model.Course
		controls, order, pol    string
		penalty, limit, overrun int64
	)
	if err := row.Scan(&c.ID, &c.Name, &controls, &order, &pol, &penalty, &limit, &c.StartCode, &c.FinishCode, &overrun, &c.CreditControl); err != nil {
		return model.Course{}, err
	}
	cs, err := unmarshalControls(controls)
	if err != nil {
		return model.Course{}, err
	}
	c.Controls = cs
	c.Order = model.OrderMode(order)
	c.MissingPolicy = model.MissingPolicy(pol)
	c.PenaltyPerMiss = fromMS(penalty)
	c.TimeLimit = fromMS(limit)
	c.MaxOverrun = fromMS(overrun)
	return c, nil
}

// GetCourse loads a course by id.
func (s *Store) GetCourse(ctx context.Context, id string) (model.Course, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = ?`, id)
	c, err := scanCourse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Course{}, fmt.Errorf("course %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Course{}, fmt.Errorf("get course %s: %w", id, err)
	}
	return c, nil
}

// ListCourses returns all courses ordered by id.
func (s *Store) ListCourses(ctx context.Context) ([]model.Course, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+courseColumns+` FROM courses ORDER BY id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	courses := []model.Course{}
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}
	return courses, nil
}

// SaveClass inserts or replaces a class.
func (s *Store) SaveClass(ctx context.Context, c model.Class) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO classes (id, name, course_id) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, course_id = excluded.course_id
	`, c.ID, c.Name, c.CourseID)
	if err != nil {
		return fmt.Errorf("save class %s: %w", c.ID, err)
	}
	return nil
}

// ListClasses returns all classes ordered by id.
func (s *Store) ListClasses(ctx context.Context) ([]model.Class, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, course_id FROM classes ORDER BY id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query classes: %w", err)
	}
	defer rows.Close()

	classes := []model.Class{}
	for rows.Next() {
		var c model.Class
		if err := rows.Scan(&c.ID, &c.Name, &c.CourseID); err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		classes = append(classes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classes: %w", err)
	}
	return classes, nil
}

// SaveCompetitor inserts or replaces a competitor.
func (s *Store) SaveCompetitor(ctx context.Context, c model.Competitor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO competitors (id, name, class_id, card_id, course_id, bib, start_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			class_id = excluded.class_id,
			card_id = excluded.card_id,
			course_id = excluded.course_id,
			bib = excluded.bib,
			start_time_ms = excluded.start_time_ms
	`, c.ID, c.Name, c.ClassID, c.CardID, c.CourseID, c.Bib, toMS(c.StartTime))
	if err != nil {
		return fmt.Errorf("save competitor %s: %w", c.ID, err)
	}
	return nil
}

const competitorColumns = `id, name, class_id, card_id, course_id, bib, start_time_ms`

func scanCompetitor(row interface{ Scan(...any) error }) (model.Competitor, error) {
	var (
		c     model.Competitor
		start int64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.ClassID, &c.CardID, &c.CourseID, &c.Bib, &start); err != nil {
		return model.Competitor{}, err
	}
	c.StartTime = fromMS(start)
	return c, nil
}

// GetCompetitor loads a competitor by id.
func (s *Store) GetCompetitor(ctx context.Context, id string) (model.Competitor, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+competitorColumns+` FROM competitors WHERE id = ?`, id)
	c, err := scanCompetitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Competitor{}, fmt.Errorf("competitor %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Competitor{}, fmt.Errorf("get competitor %s: %w", id, err)
	}
	return c, nil
}

// ListCompetitors returns all competitors ordered by id.
func (s *Store) ListCompetitors(ctx context.Context) ([]model.Competitor, error) {
	return s.queryCompetitors(ctx, `SELECT `+competitorColumns+` FROM competitors ORDER BY id COLLATE BINARY ASC`)
}

// CompetitorsByClass returns the competitors of a class ordered by id.
func (s *Store) CompetitorsByClass(ctx context.Context, classID string) ([]model.Competitor, error) {
	return s.queryCompetitors(ctx, `
		SELECT `+competitorColumns+` FROM competitors
		WHERE class_id = ?
		ORDER BY id COLLATE BINARY ASC
	`, classID)
}

func (s *Store) queryCompetitors(ctx context.Context, query string, args ...any) ([]model.Competitor, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query competitors: %w", err)
	}
	defer rows.Close()

	competitors := []model.Competitor{}
	for rows.Next() {
		c, err := scanCompetitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan competitor: %w", err)
		}
		competitors = append(competitors, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate competitors: %w", err)
	}
	return competitors, nil
}

// SetMeta stores an event-level setting.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// GetMeta returns an event-level setting, or "" when unset.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get meta %s: %w", key, err)
	}
	return value, nil
}
