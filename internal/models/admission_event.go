package models

import (
	"time"

	"github.com/uptrace/bun"
)

type AdmissionEventType string

const (
	AdmissionEntry AdmissionEventType = "entry"
	AdmissionExit  AdmissionEventType = "exit"
	AdmissionReset AdmissionEventType = "reset"
)

// AdmissionEvent is one row of the append-only gate ledger, written in
// the same transaction as the occupancy mutation it records. Daily
// reports replay this ledger; reset events carry the prior occupancy
// for audit.
type AdmissionEvent struct {
	bun.BaseModel `bun:"table:admission_events"`

	ID             int64              `bun:"id,pk,autoincrement" json:"id"`
	SessionID      string             `bun:"session_id,notnull" json:"session_id"`
	TicketID       string             `bun:"ticket_id" json:"ticket_id,omitempty"`
	Type           AdmissionEventType `bun:"type,notnull" json:"type"`
	OccupancyAfter int                `bun:"occupancy_after,notnull" json:"occupancy_after"`
	PriorOccupancy int                `bun:"prior_occupancy" json:"prior_occupancy,omitempty"`
	Actor          string             `bun:"actor" json:"actor,omitempty"`
	CreatedAt      time.Time          `bun:"created_at,notnull" json:"created_at"`
}

// AdmissionEventDto is the wire shape published to Kafka after the
// gate transaction commits.
type AdmissionEventDto struct {
	SessionID      string             `json:"session_id"`
	TicketID       string             `json:"ticket_id,omitempty"`
	Type           AdmissionEventType `json:"type"`
	OccupancyAfter int                `json:"occupancy_after"`
	Actor          string             `json:"actor,omitempty"`
	OccurredAt     time.Time          `json:"occurred_at"`
}
