package tickets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-pooladmission/internal/apperr"
	"ms-pooladmission/internal/clock"
	"ms-pooladmission/internal/config"
	"ms-pooladmission/internal/gate"
	"ms-pooladmission/internal/logger"
	"ms-pooladmission/internal/models"
	sessiondb "ms-pooladmission/internal/sessions/db"
	ticketdb "ms-pooladmission/internal/tickets/db"
	"ms-pooladmission/internal/tickets/qr"
)

// TicketService is the ticket ledger: it issues and cancels tickets
// against a session without overselling, and hands entry/exit over to
// the admission gate. The sold-count check and increment happen in a
// single conditional update inside the purchase transaction.
type TicketService struct {
	Bun    *bun.DB
	Gate   *gate.Gate
	QR     *qr.Generator
	Clock  clock.Clock
	Logger *logger.Logger
	Cfg    config.GateConfig
}

func NewTicketService(bunDB *bun.DB, g *gate.Gate, qrGen *qr.Generator, clk clock.Clock, log *logger.Logger, cfg config.GateConfig) *TicketService {
	return &TicketService{Bun: bunDB, Gate: g, QR: qrGen, Clock: clk, Logger: log, Cfg: cfg}
}

// oversellHeadroom is how far sold_count may run past max_capacity.
// The counter update compares against the committed capacity itself,
// so only the headroom is passed down; the gate still strictly caps
// occupancy.
func (s *TicketService) oversellHeadroom() int {
	if s.Cfg.Oversell {
		return s.Cfg.OversellBuffer
	}
	return 0
}

// PurchaseTicket issues a ticket against a session. UserID may be
// empty (anonymous walk-up sale). The session check, the sold-count
// increment and the ticket insert commit together or not at all.
func (s *TicketService) PurchaseTicket(ctx context.Context, sessionID, userID string, price float64) (*models.Ticket, error) {
	if price < 0 {
		return nil, apperr.Validation("price must not be negative")
	}

	now := s.Clock.Now()
	ticket := models.Ticket{
		TicketID:  uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Price:     price,
		Status:    models.TicketIssued,
		IssuedAt:  now,
	}

	err := s.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		sessions := sessiondb.New(tx)

		session, err := sessions.GetSessionByID(ctx, sessionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("session %s not found", sessionID)
			}
			return apperr.Infrastructure(err, "failed to load session %s", sessionID)
		}
		if session.Status != models.SessionOpen {
			return apperr.SessionClosed("session %s is %s, not open for sales", sessionID, session.Status)
		}
		if now.After(session.EndsAt) {
			return apperr.SessionClosed("session %s ended, sales are closed", sessionID)
		}

		ok, err := sessions.IncrementSold(ctx, sessionID, s.oversellHeadroom())
		if err != nil {
			return apperr.Infrastructure(err, "failed to increment sold count")
		}
		if !ok {
			return apperr.CapacityExceeded("session %s is sold out (%d tickets)", sessionID, session.MaxCapacity+s.oversellHeadroom())
		}

		if s.QR != nil {
			qrBytes, err := s.QR.GenerateEncryptedQR(models.QRPayload{
				TicketID:  ticket.TicketID,
				SessionID: sessionID,
				IssuedAt:  now,
			})
			if err != nil {
				return apperr.Infrastructure(err, "failed to generate ticket QR")
			}
			ticket.QRCode = qrBytes
		}

		if err := ticketdb.New(tx).CreateTicket(ctx, ticket); err != nil {
			return apperr.Infrastructure(err, "failed to create ticket")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogTicket("PURCHASE", ticket.TicketID, fmt.Sprintf("Issued for session %s at %.2f", sessionID, price))
	return &ticket, nil
}

func (s *TicketService) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	ticket, err := ticketdb.New(s.Bun).GetTicketByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("ticket %s not found", id)
		}
		return nil, apperr.Infrastructure(err, "failed to load ticket %s", id)
	}
	return ticket, nil
}

func (s *TicketService) GetMyTickets(ctx context.Context, userID string) ([]models.Ticket, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}
	tickets, err := ticketdb.New(s.Bun).GetTicketsByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Infrastructure(err, "failed to fetch tickets for user %s", userID)
	}
	return tickets, nil
}

// ValidateTicket checks admissibility without mutating anything. It
// is the same check Admit runs inside its transaction.
func (s *TicketService) ValidateTicket(ctx context.Context, id string) error {
	ticket, err := s.GetTicket(ctx, id)
	if err != nil {
		return err
	}
	session, err := sessiondb.New(s.Bun).GetSessionByID(ctx, ticket.SessionID)
	if err != nil {
		return apperr.Infrastructure(err, "failed to load session %s", ticket.SessionID)
	}
	return models.ValidateForEntry(ticket, session, s.Clock.Now(), s.Cfg.EntryGrace)
}

// CancelTicket voids a still-issued ticket and gives its capacity
// back. The status guard makes the race against a concurrent entry
// deterministic: whichever operation sees `issued` first wins, the
// other gets a conflict.
func (s *TicketService) CancelTicket(ctx context.Context, id, actor string) (*models.Ticket, error) {
	if actor == "" {
		return nil, apperr.Validation("cancellation requires an authenticated actor")
	}

	now := s.Clock.Now()
	err := s.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		tickets := ticketdb.New(tx)

		ticket, err := tickets.GetTicketByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("ticket %s not found", id)
			}
			return apperr.Infrastructure(err, "failed to load ticket %s", id)
		}
		if !models.CanTransition(ticket.Status, models.TicketCancelled) {
			return apperr.Conflict("ticket %s is %s and can no longer be cancelled", id, ticket.Status)
		}

		moved, err := tickets.MarkCancelled(ctx, id, actor, now)
		if err != nil {
			return apperr.Infrastructure(err, "failed to cancel ticket %s", id)
		}
		if !moved {
			return apperr.Conflict("ticket %s was used or cancelled concurrently", id)
		}

		ok, err := sessiondb.New(tx).DecrementSold(ctx, ticket.SessionID)
		if err != nil {
			return apperr.Infrastructure(err, "failed to decrement sold count")
		}
		if !ok {
			s.Logger.Error("TICKET", fmt.Sprintf("Sold count underflow on session %s cancelling ticket %s", ticket.SessionID, id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogTicket("CANCEL", id, fmt.Sprintf("Cancelled by %s", actor))
	return s.GetTicket(ctx, id)
}

// RecordEntry admits the ticket holder through the gate.
func (s *TicketService) RecordEntry(ctx context.Context, id string) (*models.Ticket, error) {
	return s.Gate.Admit(ctx, id)
}

// RecordExit releases the ticket holder through the gate.
func (s *TicketService) RecordExit(ctx context.Context, id string) (*models.Ticket, error) {
	return s.Gate.Release(ctx, id)
}

// ResolveScan maps a scanned QR string to a ticket ID.
func (s *TicketService) ResolveScan(encrypted string) (string, error) {
	if s.QR == nil {
		return "", apperr.Validation("QR scanning is not configured")
	}
	payload, err := s.QR.DecryptPayload(encrypted)
	if err != nil {
		return "", apperr.InvalidTicket("unreadable QR code")
	}
	return payload.TicketID, nil
}
