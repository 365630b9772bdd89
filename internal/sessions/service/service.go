package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"ms-pooladmission/internal/apperr"
	"ms-pooladmission/internal/clock"
	"ms-pooladmission/internal/logger"
	"ms-pooladmission/internal/models"
	sessiondb "ms-pooladmission/internal/sessions/db"
	ticketdb "ms-pooladmission/internal/tickets/db"
)

// CreateSessionRequest is the payload for opening a new bookable
// window.
type CreateSessionRequest struct {
	Name        string    `json:"name"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	MaxCapacity int       `json:"max_capacity"`
	Open        bool      `json:"open"`
}

// SessionService owns the session registry: windows, capacity
// ceilings and lifecycle. Counters are mutated only through the
// conditional updates in sessions/db; this service never writes them
// directly.
type SessionService struct {
	Bun    *bun.DB
	Clock  clock.Clock
	Logger *logger.Logger
}

func NewSessionService(bunDB *bun.DB, clk clock.Clock, log *logger.Logger) *SessionService {
	return &SessionService{Bun: bunDB, Clock: clk, Logger: log}
}

func (s *SessionService) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	if req.MaxCapacity <= 0 {
		return nil, apperr.Validation("capacity must be positive, got %d", req.MaxCapacity)
	}
	if !req.StartsAt.Before(req.EndsAt) {
		return nil, apperr.Validation("session must start before it ends")
	}

	db := sessiondb.New(s.Bun)
	overlaps, err := db.HasOverlapping(ctx, req.StartsAt, req.EndsAt, "")
	if err != nil {
		return nil, apperr.Infrastructure(err, "failed to check overlapping sessions")
	}
	if overlaps {
		return nil, apperr.Validation("session window overlaps an existing session")
	}

	status := models.SessionScheduled
	if req.Open {
		status = models.SessionOpen
	}

	session := models.Session{
		SessionID:   uuid.NewString(),
		Name:        req.Name,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		MaxCapacity: req.MaxCapacity,
		Status:      status,
		CreatedAt:   s.Clock.Now(),
	}
	if err := db.CreateSession(ctx, session); err != nil {
		if isExclusionViolation(err) {
			return nil, apperr.Validation("session window overlaps an existing session")
		}
		return nil, apperr.Infrastructure(err, "failed to create session")
	}

	s.Logger.Info("SESSION", fmt.Sprintf("Created session %s (%s, capacity %d)", session.SessionID, session.Name, session.MaxCapacity))
	return &session, nil
}

func (s *SessionService) GetSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := sessiondb.New(s.Bun).GetSessionByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("session %s not found", id)
		}
		return nil, apperr.Infrastructure(err, "failed to load session %s", id)
	}
	return session, nil
}

func (s *SessionService) ListSessions(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	sessions, err := sessiondb.New(s.Bun).ListSessions(ctx, filter)
	if err != nil {
		return nil, apperr.Infrastructure(err, "failed to list sessions")
	}
	return sessions, nil
}

// GetAvailability returns the sellable headroom of a session. It
// reads the committed row, so it is read-your-writes with respect to
// purchases; it is still only a point-in-time value.
func (s *SessionService) GetAvailability(ctx context.Context, id string) (*models.Availability, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	remaining := session.MaxCapacity - session.SoldCount
	if remaining < 0 {
		remaining = 0
	}
	return &models.Availability{
		SessionID: session.SessionID,
		Capacity:  session.MaxCapacity,
		Sold:      session.SoldCount,
		Remaining: remaining,
	}, nil
}

func (s *SessionService) UpdateSession(ctx context.Context, id string, patch models.SessionPatch) (*models.Session, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionClosed {
		return nil, apperr.Conflict("session %s is closed and can no longer change", id)
	}
	if session.Status == models.SessionCancelled {
		return nil, apperr.Conflict("session %s is cancelled", id)
	}

	if patch.Name != nil {
		session.Name = *patch.Name
	}
	if patch.StartsAt != nil {
		session.StartsAt = *patch.StartsAt
	}
	if patch.EndsAt != nil {
		session.EndsAt = *patch.EndsAt
	}
	if !session.StartsAt.Before(session.EndsAt) {
		return nil, apperr.Validation("session must start before it ends")
	}
	shrinking := false
	if patch.MaxCapacity != nil {
		if *patch.MaxCapacity <= 0 {
			return nil, apperr.Validation("capacity must be positive, got %d", *patch.MaxCapacity)
		}
		if *patch.MaxCapacity < session.SoldCount {
			return nil, apperr.Conflict("cannot reduce capacity to %d below %d sold tickets", *patch.MaxCapacity, session.SoldCount)
		}
		shrinking = *patch.MaxCapacity < session.MaxCapacity
		session.MaxCapacity = *patch.MaxCapacity
	}
	if patch.Status != nil {
		if !validStatusChange(session.Status, *patch.Status) {
			return nil, apperr.Conflict("cannot move session %s from %s to %s", id, session.Status, *patch.Status)
		}
		session.Status = *patch.Status
	}

	db := sessiondb.New(s.Bun)
	if patch.StartsAt != nil || patch.EndsAt != nil {
		overlaps, err := db.HasOverlapping(ctx, session.StartsAt, session.EndsAt, id)
		if err != nil {
			return nil, apperr.Infrastructure(err, "failed to check overlapping sessions")
		}
		if overlaps {
			return nil, apperr.Validation("session window overlaps an existing session")
		}
	}

	session.UpdatedAt = s.Clock.Now()
	err = s.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		db := sessiondb.New(tx)
		if shrinking {
			// The sold check above ran against a snapshot; a sale may
			// have landed since. The conditional update re-checks
			// against the committed counter in one statement.
			ok, err := db.ReduceMaxCapacity(ctx, id, session.MaxCapacity)
			if err != nil {
				return apperr.Infrastructure(err, "failed to reduce capacity of session %s", id)
			}
			if !ok {
				return apperr.Conflict("cannot reduce capacity of session %s below its sold tickets", id)
			}
		}
		if err := db.UpdateSession(ctx, *session); err != nil {
			if isExclusionViolation(err) {
				return apperr.Validation("session window overlaps an existing session")
			}
			return apperr.Infrastructure(err, "failed to update session %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("SESSION", fmt.Sprintf("Updated session %s", id))
	return session, nil
}

// isExclusionViolation detects the Postgres exclusion constraint on
// the session window. The service-level overlap check stays for the
// friendly error path; the constraint is what makes two concurrent
// creates safe.
func isExclusionViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23P01"
}

// validStatusChange enumerates the legal session lifecycle moves.
// Cancellation only happens through DeleteSession.
func validStatusChange(from, to models.SessionStatus) bool {
	switch from {
	case models.SessionScheduled:
		return to == models.SessionOpen || to == models.SessionClosed
	case models.SessionOpen:
		return to == models.SessionClosed
	}
	return from == to
}

// DeleteSession soft-deletes: the session moves to cancelled and its
// still-issued tickets are cancelled with it, all in one transaction.
// Sessions with occupants inside cannot be deleted.
func (s *SessionService) DeleteSession(ctx context.Context, id, actor string) error {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if session.Status == models.SessionCancelled {
		return apperr.Conflict("session %s is already cancelled", id)
	}

	err = s.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		tickets := ticketdb.New(tx)
		present, err := tickets.CountBySessionInStatus(ctx, id, models.TicketPresent)
		if err != nil {
			return apperr.Infrastructure(err, "failed to count present tickets")
		}
		if present > 0 {
			return apperr.Conflict("session %s still has %d occupants inside", id, present)
		}

		// The present-ticket count above gives the readable error; the
		// conditional update is what actually keeps a concurrently
		// admitted swimmer out of a cancelled session.
		moved, err := sessiondb.New(tx).CancelSession(ctx, id, s.Clock.Now())
		if err != nil {
			return apperr.Infrastructure(err, "failed to cancel session %s", id)
		}
		if !moved {
			return apperr.Conflict("session %s still has occupants inside or was cancelled concurrently", id)
		}

		cancelled, err := tickets.CancelIssuedBySession(ctx, id, actor, s.Clock.Now())
		if err != nil {
			return apperr.Infrastructure(err, "failed to cascade ticket cancellation")
		}

		s.Logger.Info("SESSION", fmt.Sprintf("Cancelled session %s, cascaded %d issued tickets", id, cancelled))
		return nil
	})
	return err
}
