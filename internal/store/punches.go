package store

import (
	"context"
	"fmt"

	"github.com/roach88/sportorg/internal/model"
)

// AppendPunch records an accepted punch.
// Uses ON CONFLICT(id) DO NOTHING: a retransmitted punch has the same
// content address and is silently ignored. Reports whether a row was added.
func (s *Store) AppendPunch(ctx context.Context, p model.Punch) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO punches (id, card_id, code, time_ms, source, seq, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, p.ID, p.CardID, p.Code, toMS(p.Time), p.Source, p.Seq, toUnixMS(p.ReceivedAt))
	if err != nil {
		return false, fmt.Errorf("append punch %s: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append punch %s: %w", p.ID, err)
	}
	return n > 0, nil
}

// PunchFilter selects which punches ListPunches returns.
type PunchFilter struct {
	CardID           string // empty means every card
	IncludeRetracted bool
	IncludeOrphaned  bool
}

// ListPunches returns punches in (time, seq, id) order.
func (s *Store) ListPunches(ctx context.Context, f PunchFilter) ([]model.Punch, error) {
	query := `
		SELECT id, card_id, code, time_ms, source, seq, received_at
		FROM punches
		WHERE (? = '' OR card_id = ?)
		  AND (? OR retracted = 0)
		  AND (? OR orphaned = 0)
		ORDER BY time_ms ASC, seq ASC, id COLLATE BINARY ASC
	`
	rows, err := s.db.QueryContext(ctx, query, f.CardID, f.CardID, f.IncludeRetracted, f.IncludeOrphaned)
	if err != nil {
		return nil, fmt.Errorf("query punches: %w", err)
	}
	defer rows.Close()

	punches := []model.Punch{}
	for rows.Next() {
		var (
			p              model.Punch
			timeMS, recvMS int64
		)
		if err := rows.Scan(&p.ID, &p.CardID, &p.Code, &timeMS, &p.Source, &p.Seq, &recvMS); err != nil {
			return nil, fmt.Errorf("scan punch: %w", err)
		}
		p.Time = fromMS(timeMS)
		p.ReceivedAt = fromUnixMS(recvMS)
		punches = append(punches, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate punches: %w", err)
	}
	return punches, nil
}

// PunchesByCard returns the live punches of one card.
func (s *Store) PunchesByCard(ctx context.Context, cardID string) ([]model.Punch, error) {
	if cardID == "" {
		return []model.Punch{}, nil
	}
	return s.ListPunches(ctx, PunchFilter{CardID: cardID})
}

// RetractPunch flags a punch as administratively retracted.
func (s *Store) RetractPunch(ctx context.Context, punchID, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE punches SET retracted = 1, retract_reason = ? WHERE id = ?
	`, reason, punchID)
	if err != nil {
		return fmt.Errorf("retract punch %s: %w", punchID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("punch %s: %w", punchID, ErrNotFound)
	}
	return nil
}

// SetOrphaned flags or unflags a punch whose card matched no competitor
// within the retention window.
func (s *Store) SetOrphaned(ctx context.Context, punchID string, orphaned bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE punches SET orphaned = ? WHERE id = ?`, boolToInt(orphaned), punchID)
	if err != nil {
		return fmt.Errorf("mark punch %s orphaned: %w", punchID, err)
	}
	return nil
}

// MaxSeq returns the highest stored ingestion sequence number.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM punches`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq, nil
}

// LivePunches returns every punch that is neither retracted nor orphaned.
func (s *Store) LivePunches(ctx context.Context) ([]model.Punch, error) {
	return s.ListPunches(ctx, PunchFilter{})
}

// RetractedPunchIDs returns the ids of retracted punches in id order.
func (s *Store) RetractedPunchIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM punches WHERE retracted = 1 ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query retracted punches: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan retracted punch: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
