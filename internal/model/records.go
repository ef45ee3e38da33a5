package model

import "time"

// ResultRecord is the persisted derived result of one competitor.
// It is rewritten after every change (last write wins).
type ResultRecord struct {
	CompetitorID string        `json:"competitor_id"`
	ClassID      string        `json:"class_id"`
	Status       Status        `json:"status"`
	Start        time.Duration `json:"start"`
	Finish       time.Duration `json:"finish"`
	Result       time.Duration `json:"result"`
	Penalty      time.Duration `json:"penalty"`
	Misses       int           `json:"misses"`
	Splits       []Split       `json:"splits"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// AuditAction names an administrative change.
type AuditAction string

const (
	AuditRegister      AuditAction = "register"
	AuditUpdate        AuditAction = "update_competitor"
	AuditSetStatus     AuditAction = "set_status"
	AuditClearStatus   AuditAction = "clear_status"
	AuditRetractPunch  AuditAction = "retract_punch"
	AuditCloseEvent    AuditAction = "close_event"
	AuditExpireOrphans AuditAction = "expire_orphans"
)

// AuditEntry records one administrative change.
type AuditEntry struct {
	ID           string      `json:"id"`
	Action       AuditAction `json:"action"`
	CompetitorID string      `json:"competitor_id,omitempty"`
	Detail       string      `json:"detail"`
	At           time.Time   `json:"at"`
}
