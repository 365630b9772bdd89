package models

import (
	"time"

	"github.com/uptrace/bun"
)

// MaintenanceLogEntry is an append-only operator note, scoped either
// to a session or facility-wide (empty SessionID). Entries are never
// mutated or deleted, only superseded by newer ones.
type MaintenanceLogEntry struct {
	bun.BaseModel `bun:"table:maintenance_logs"`

	EntryID     string    `bun:"entry_id,pk" json:"entry_id"`
	SessionID   string    `bun:"session_id" json:"session_id,omitempty"`
	Description string    `bun:"description,notnull" json:"description"`
	OperatorID  string    `bun:"operator_id,notnull" json:"operator_id"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
}
