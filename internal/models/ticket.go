package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketIssued    TicketStatus = "issued"
	TicketPresent   TicketStatus = "present"
	TicketCompleted TicketStatus = "completed"
	TicketCancelled TicketStatus = "cancelled"
	TicketExpired   TicketStatus = "expired"
)

// legalTransitions enumerates every permitted ticket status change.
// Anything not listed here is rejected, no matter who asks.
var legalTransitions = map[TicketStatus][]TicketStatus{
	TicketIssued:  {TicketPresent, TicketCancelled, TicketExpired},
	TicketPresent: {TicketCompleted},
}

// CanTransition reports whether from → to is a legal ticket status
// change. Terminal statuses (completed, cancelled, expired) have no
// outgoing transitions.
func CanTransition(from, to TicketStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Ticket is a purchased right to attend one session. It belongs to
// that session for its whole lifetime. UserID is empty for anonymous
// walk-up purchases.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	TicketID    string       `bun:"ticket_id,pk" json:"ticket_id"`
	SessionID   string       `bun:"session_id,notnull" json:"session_id"`
	UserID      string       `bun:"user_id" json:"user_id,omitempty"`
	Price       float64      `bun:"price" json:"price"`
	Status      TicketStatus `bun:"status,notnull" json:"status"`
	QRCode      []byte       `bun:"qr_code" json:"-"`
	IssuedAt    time.Time    `bun:"issued_at,notnull" json:"issued_at"`
	EnteredAt   time.Time    `bun:"entered_at,nullzero" json:"entered_at,omitempty"`
	ExitedAt    time.Time    `bun:"exited_at,nullzero" json:"exited_at,omitempty"`
	CancelledAt time.Time    `bun:"cancelled_at,nullzero" json:"cancelled_at,omitempty"`
	CancelledBy string       `bun:"cancelled_by" json:"cancelled_by,omitempty"`
}

// QRPayload is the part of a ticket embedded in its encrypted QR code.
type QRPayload struct {
	TicketID  string    `json:"ticket_id"`
	SessionID string    `json:"session_id"`
	IssuedAt  time.Time `json:"issued_at"`
}
