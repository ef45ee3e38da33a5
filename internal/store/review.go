package store

import (
	"context"
	"fmt"

	"github.com/roach88/sportorg/internal/model"
)

// AppendReview adds an item to the review queue. Items are idempotent on id.
func (s *Store) AppendReview(ctx context.Context, item model.ReviewItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO review_items (id, kind, card_id, competitor_id, punch_id, detail, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM review_items))
		ON CONFLICT(id) DO NOTHING
	`, item.ID, string(item.Kind), item.CardID, item.CompetitorID, item.PunchID, item.Detail, toUnixMS(item.CreatedAt))
	if err != nil {
		return fmt.Errorf("append review item %s: %w", item.ID, err)
	}
	return nil
}

// ListReview returns the review queue in insertion order.
func (s *Store) ListReview(ctx context.Context) ([]model.ReviewItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, card_id, competitor_id, punch_id, detail, created_at
		FROM review_items
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query review items: %w", err)
	}
	defer rows.Close()

	items := []model.ReviewItem{}
	for rows.Next() {
		var (
			item    model.ReviewItem
			kind    string
			created int64
		)
		if err := rows.Scan(&item.ID, &kind, &item.CardID, &item.CompetitorID, &item.PunchID, &item.Detail, &created); err != nil {
			return nil, fmt.Errorf("scan review item: %w", err)
		}
		item.Kind = model.ReviewKind(kind)
		item.CreatedAt = fromUnixMS(created)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review items: %w", err)
	}
	return items, nil
}

// AppendAudit records an administrative change.
func (s *Store) AppendAudit(ctx context.Context, e model.AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, competitor_id, detail, at, seq)
		VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_log))
		ON CONFLICT(id) DO NOTHING
	`, e.ID, string(e.Action), e.CompetitorID, e.Detail, toUnixMS(e.At))
	if err != nil {
		return fmt.Errorf("append audit %s: %w", e.ID, err)
	}
	return nil
}

// ListAudit returns the audit log in insertion order.
func (s *Store) ListAudit(ctx context.Context) ([]model.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, competitor_id, detail, at FROM audit_log
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	entries := []model.AuditEntry{}
	for rows.Next() {
		var (
			e      model.AuditEntry
			action string
			at     int64
		)
		if err := rows.Scan(&e.ID, &action, &e.CompetitorID, &e.Detail, &at); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = model.AuditAction(action)
		e.At = fromUnixMS(at)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return entries, nil
}
