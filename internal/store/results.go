package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/sportorg/internal/model"
)

// SaveResult upserts a competitor's derived result (last write wins).
func (s *Store) SaveResult(ctx context.Context, r model.ResultRecord) error {
	splits, err := marshalSplits(r.Splits)
	if err != nil {
		return fmt.Errorf("save result %s: %w", r.CompetitorID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results
		(competitor_id, class_id, status, start_ms, finish_ms, result_ms, penalty_ms, misses, splits, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(competitor_id) DO UPDATE SET
			class_id = excluded.class_id,
			status = excluded.status,
			start_ms = excluded.start_ms,
			finish_ms = excluded.finish_ms,
			result_ms = excluded.result_ms,
			penalty_ms = excluded.penalty_ms,
			misses = excluded.misses,
			splits = excluded.splits,
			updated_at = excluded.updated_at
	`,
		r.CompetitorID, r.ClassID, string(r.Status),
		toMS(r.Start), toMS(r.Finish), toMS(r.Result), toMS(r.Penalty),
		r.Misses, splits, toUnixMS(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save result %s: %w", r.CompetitorID, err)
	}
	return nil
}

const resultColumns = `competitor_id, class_id, status, start_ms, finish_ms, result_ms, penalty_ms, misses, splits, updated_at`

func scanResult(row interface{ Scan(...any) error }) (model.ResultRecord, error) {
	var (
		r                                 model.ResultRecord
		status, splits                    string
		start, finish, result, pen, updAt int64
	)
	if err := row.Scan(&r.CompetitorID, &r.ClassID, &status, &start, &finish, &result, &pen, &r.Misses, &splits, &updAt); err != nil {
		return model.ResultRecord{}, err
	}
	ss, err := unmarshalSplits(splits)
	if err != nil {
		return model.ResultRecord{}, err
	}
	r.Status = model.Status(status)
	r.Start = fromMS(start)
	r.Finish = fromMS(finish)
	r.Result = fromMS(result)
	r.Penalty = fromMS(pen)
	r.Splits = ss
	r.UpdatedAt = fromUnixMS(updAt)
	return r, nil
}

// GetResult loads a competitor's stored result.
func (s *Store) GetResult(ctx context.Context, competitorID string) (model.ResultRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM results WHERE competitor_id = ?`, competitorID)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ResultRecord{}, fmt.Errorf("result %s: %w", competitorID, ErrNotFound)
	}
	if err != nil {
		return model.ResultRecord{}, fmt.Errorf("get result %s: %w", competitorID, err)
	}
	return r, nil
}

// ResultsByClass returns the stored results of a class ordered by competitor id.
func (s *Store) ResultsByClass(ctx context.Context, classID string) ([]model.ResultRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+resultColumns+` FROM results
		WHERE class_id = ?
		ORDER BY competitor_id COLLATE BINARY ASC
	`, classID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	results := []model.ResultRecord{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

// SaveOverride upserts an operator status override.
func (s *Store) SaveOverride(ctx context.Context, o model.Override) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO overrides (competitor_id, status, reason, set_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(competitor_id) DO UPDATE SET
			status = excluded.status,
			reason = excluded.reason,
			set_at = excluded.set_at
	`, o.CompetitorID, string(o.Status), o.Reason, toUnixMS(o.SetAt))
	if err != nil {
		return fmt.Errorf("save override %s: %w", o.CompetitorID, err)
	}
	return nil
}

// ClearOverride removes a competitor's override, if any.
func (s *Store) ClearOverride(ctx context.Context, competitorID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM overrides WHERE competitor_id = ?`, competitorID); err != nil {
		return fmt.Errorf("clear override %s: %w", competitorID, err)
	}
	return nil
}

// ListOverrides returns all overrides ordered by competitor id.
func (s *Store) ListOverrides(ctx context.Context) ([]model.Override, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT competitor_id, status, reason, set_at FROM overrides
		ORDER BY competitor_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	defer rows.Close()

	overrides := []model.Override{}
	for rows.Next() {
		var (
			o      model.Override
			status string
			setAt  int64
		)
		if err := rows.Scan(&o.CompetitorID, &status, &o.Reason, &setAt); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		o.Status = model.Status(status)
		o.SetAt = fromUnixMS(setAt)
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overrides: %w", err)
	}
	return overrides, nil
}
