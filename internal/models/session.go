package models

import (
	"time"

	"github.com/uptrace/bun"
)

type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionOpen      SessionStatus = "open"
	SessionClosed    SessionStatus = "closed"
	SessionCancelled SessionStatus = "cancelled"
)

// Session is a bookable time window for the pool with a hard capacity
// ceiling. SoldCount and OccupantCount are only ever mutated through
// the conditional updates in sessions/db, never written directly.
type Session struct {
	bun.BaseModel `bun:"table:sessions"`

	SessionID     string        `bun:"session_id,pk" json:"session_id"`
	Name          string        `bun:"name" json:"name"`
	StartsAt      time.Time     `bun:"starts_at,notnull" json:"starts_at"`
	EndsAt        time.Time     `bun:"ends_at,notnull" json:"ends_at"`
	MaxCapacity   int           `bun:"max_capacity,notnull" json:"max_capacity"`
	SoldCount     int           `bun:"sold_count,notnull,default:0" json:"sold_count"`
	OccupantCount int           `bun:"occupant_count,notnull,default:0" json:"occupant_count"`
	Status        SessionStatus `bun:"status,notnull" json:"status"`
	CreatedAt     time.Time     `bun:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// SessionPatch carries the updatable fields of a session. Nil means
// "leave unchanged".
type SessionPatch struct {
	Name        *string        `json:"name,omitempty"`
	StartsAt    *time.Time     `json:"starts_at,omitempty"`
	EndsAt      *time.Time     `json:"ends_at,omitempty"`
	MaxCapacity *int           `json:"max_capacity,omitempty"`
	Status      *SessionStatus `json:"status,omitempty"`
}

// Availability is the point-in-time sellable capacity view of a
// session. Callers must not assume it stays valid after the call
// returns; the real check happens inside PurchaseTicket.
type Availability struct {
	SessionID string `json:"session_id"`
	Capacity  int    `json:"capacity"`
	Sold      int    `json:"sold"`
	Remaining int    `json:"remaining"`
}

// GateStatus is the occupancy view reported by the admission gate.
type GateStatus struct {
	SessionID string `json:"session_id"`
	Capacity  int    `json:"capacity"`
	Occupancy int    `json:"occupancy"`
	Remaining int    `json:"remaining"`
}

// SessionFilter narrows ListSessions.
type SessionFilter struct {
	Status SessionStatus
	Date   time.Time // zero value means any date
}
