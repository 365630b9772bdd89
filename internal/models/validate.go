package models

import (
	"time"

	"ms-pooladmission/internal/apperr"
)

// ValidateForEntry checks that a ticket may pass the gate right now:
// it must still be issued and the session window (widened by the
// entry grace period at the front) must cover "now". It never mutates
// state; the admission itself is a separate conditional update.
func ValidateForEntry(ticket *Ticket, session *Session, now time.Time, grace time.Duration) error {
	switch ticket.Status {
	case TicketIssued:
		// fall through to window checks
	case TicketPresent:
		return apperr.InvalidTicket("ticket %s is already inside", ticket.TicketID)
	case TicketCompleted:
		return apperr.InvalidTicket("ticket %s has already been used", ticket.TicketID)
	case TicketCancelled:
		return apperr.InvalidTicket("ticket %s was cancelled", ticket.TicketID)
	case TicketExpired:
		return apperr.ExpiredTicket("ticket %s has expired", ticket.TicketID)
	default:
		return apperr.InvalidTicket("ticket %s has unknown status %q", ticket.TicketID, ticket.Status)
	}

	if session.Status == SessionCancelled {
		return apperr.SessionClosed("session %s was cancelled", session.SessionID)
	}
	if now.After(session.EndsAt) {
		return apperr.ExpiredTicket("session %s ended at %s", session.SessionID, session.EndsAt.Format(time.RFC3339))
	}
	if now.Before(session.StartsAt.Add(-grace)) {
		return apperr.InvalidTicket("session %s does not start until %s", session.SessionID, session.StartsAt.Format(time.RFC3339))
	}
	return nil
}
