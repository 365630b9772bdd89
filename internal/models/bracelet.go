package models

import (
	"time"

	"github.com/uptrace/bun"
)

// BraceletAssignment binds a physical bracelet code to one admitted
// ticket. An assignment is active while ReturnedAt is unset; a code
// has at most one active assignment at any time.
type BraceletAssignment struct {
	bun.BaseModel `bun:"table:bracelet_assignments"`

	AssignmentID string    `bun:"assignment_id,pk" json:"assignment_id"`
	Code         string    `bun:"code,notnull" json:"code"`
	TicketID     string    `bun:"ticket_id,notnull" json:"ticket_id"`
	SessionID    string    `bun:"session_id,notnull" json:"session_id"`
	AssignedAt   time.Time `bun:"assigned_at,notnull" json:"assigned_at"`
	ReturnedAt   time.Time `bun:"returned_at,nullzero" json:"returned_at,omitempty"`
}

// BraceletLookup is the operational view used to locate a person by
// their bracelet: the assignment plus the ticket it is bound to.
type BraceletLookup struct {
	Assignment BraceletAssignment `json:"assignment"`
	Ticket     Ticket             `json:"ticket"`
	Session    Session            `json:"session"`
}
