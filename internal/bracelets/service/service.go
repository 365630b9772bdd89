package bracelets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-pooladmission/internal/apperr"
	braceletdb "ms-pooladmission/internal/bracelets/db"
	"ms-pooladmission/internal/clock"
	"ms-pooladmission/internal/logger"
	"ms-pooladmission/internal/models"
	sessiondb "ms-pooladmission/internal/sessions/db"
	ticketdb "ms-pooladmission/internal/tickets/db"
)

// Locker guards a bracelet code against concurrent assignment.
type Locker interface {
	Acquire(ctx context.Context, code string) (bool, error)
	Release(ctx context.Context, code string) error
}

// BraceletService binds physical bracelet codes to admitted tickets.
// A code has at most one active assignment and a ticket holds at most
// one active bracelet; both rules are checked inside the assignment
// transaction.
type BraceletService struct {
	Bun    *bun.DB
	Lock   Locker
	Clock  clock.Clock
	Logger *logger.Logger
}

func NewBraceletService(bunDB *bun.DB, lock Locker, clk clock.Clock, log *logger.Logger) *BraceletService {
	return &BraceletService{Bun: bunDB, Lock: lock, Clock: clk, Logger: log}
}

func (s *BraceletService) AssignBracelet(ctx context.Context, ticketID, code string) (*models.BraceletAssignment, error) {
	if code == "" {
		return nil, apperr.Validation("bracelet code is required")
	}

	if s.Lock != nil {
		ok, err := s.Lock.Acquire(ctx, code)
		if err != nil {
			return nil, apperr.Infrastructure(err, "bracelet lock unavailable")
		}
		if !ok {
			return nil, apperr.Conflict("bracelet %s is being assigned elsewhere", code)
		}
		defer func() { _ = s.Lock.Release(ctx, code) }()
	}

	now := s.Clock.Now()
	assignment := models.BraceletAssignment{
		AssignmentID: uuid.NewString(),
		Code:         code,
		TicketID:     ticketID,
		AssignedAt:   now,
	}

	err := s.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		tickets := ticketdb.New(tx)
		bracelets := braceletdb.New(tx)

		ticket, err := tickets.GetTicketByID(ctx, ticketID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("ticket %s not found", ticketID)
			}
			return apperr.Infrastructure(err, "failed to load ticket %s", ticketID)
		}
		if ticket.Status != models.TicketPresent {
			return apperr.Conflict("ticket %s is %s; bracelets are assigned at entry only", ticketID, ticket.Status)
		}

		codeBusy, err := bracelets.HasActiveByCode(ctx, code)
		if err != nil {
			return apperr.Infrastructure(err, "failed to check bracelet %s", code)
		}
		if codeBusy {
			return apperr.Conflict("bracelet %s is already assigned", code)
		}

		ticketBusy, err := bracelets.HasActiveByTicket(ctx, ticketID)
		if err != nil {
			return apperr.Infrastructure(err, "failed to check ticket %s bracelets", ticketID)
		}
		if ticketBusy {
			return apperr.Conflict("ticket %s already holds a bracelet", ticketID)
		}

		assignment.SessionID = ticket.SessionID
		if err := bracelets.InsertAssignment(ctx, assignment); err != nil {
			return apperr.Infrastructure(err, "failed to assign bracelet %s", code)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("BRACELET", fmt.Sprintf("Assigned %s to ticket %s", code, ticketID))
	return &assignment, nil
}

// ReturnBracelet closes the active assignment for a code. Returning
// an unassigned code is NotFound, so a double return is rejected the
// second time and never double-counts anything.
func (s *BraceletService) ReturnBracelet(ctx context.Context, code string) error {
	ok, err := braceletdb.New(s.Bun).ReturnByCode(ctx, code, s.Clock.Now())
	if err != nil {
		return apperr.Infrastructure(err, "failed to return bracelet %s", code)
	}
	if !ok {
		return apperr.NotFound("bracelet %s has no active assignment", code)
	}
	s.Logger.Info("BRACELET", fmt.Sprintf("Returned %s", code))
	return nil
}

func (s *BraceletService) GetActiveBracelets(ctx context.Context, sessionID string) ([]models.BraceletAssignment, error) {
	assignments, err := braceletdb.New(s.Bun).ListActiveBySession(ctx, sessionID)
	if err != nil {
		return nil, apperr.Infrastructure(err, "failed to list bracelets for session %s", sessionID)
	}
	return assignments, nil
}

// SearchByBracelet locates the person behind a bracelet: the active
// assignment, its ticket and its session. Read-only.
func (s *BraceletService) SearchByBracelet(ctx context.Context, code string) (*models.BraceletLookup, error) {
	assignment, err := braceletdb.New(s.Bun).GetActiveByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("bracelet %s has no active assignment", code)
		}
		return nil, apperr.Infrastructure(err, "failed to look up bracelet %s", code)
	}

	ticket, err := ticketdb.New(s.Bun).GetTicketByID(ctx, assignment.TicketID)
	if err != nil {
		return nil, apperr.Infrastructure(err, "failed to load ticket %s", assignment.TicketID)
	}
	session, err := sessiondb.New(s.Bun).GetSessionByID(ctx, assignment.SessionID)
	if err != nil {
		return nil, apperr.Infrastructure(err, "failed to load session %s", assignment.SessionID)
	}

	return &models.BraceletLookup{
		Assignment: *assignment,
		Ticket:     *ticket,
		Session:    *session,
	}, nil
}
