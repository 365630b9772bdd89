package gate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-pooladmission/internal/apperr"
	braceletdb "ms-pooladmission/internal/bracelets/db"
	"ms-pooladmission/internal/clock"
	"ms-pooladmission/internal/config"
	"ms-pooladmission/internal/logger"
	"ms-pooladmission/internal/models"
	sessiondb "ms-pooladmission/internal/sessions/db"
	ticketdb "ms-pooladmission/internal/tickets/db"
)

// TicketLocker is the double-scan guard in front of the gate.
type TicketLocker interface {
	Acquire(ctx context.Context, ticketID string) (bool, error)
	Release(ctx context.Context, ticketID string) error
}

// EventPublisher streams committed admission events. Publish failures
// never roll back an admission.
type EventPublisher interface {
	PublishAdmission(topic string, event models.AdmissionEventDto) error
}

// Gate is the per-session occupancy state machine. The ticket status
// change, the occupancy counter move and the ledger row are committed
// as one transaction, so readers see either all of an admission or
// none of it.
type Gate struct {
	Bun       *bun.DB
	Lock      TicketLocker
	Publisher EventPublisher
	Clock     clock.Clock
	Logger    *logger.Logger
	Cfg       config.GateConfig
	Topics    config.TopicConfig
}

func New(bunDB *bun.DB, lock TicketLocker, publisher EventPublisher, clk clock.Clock, log *logger.Logger, cfg config.GateConfig, topics config.TopicConfig) *Gate {
	return &Gate{Bun: bunDB, Lock: lock, Publisher: publisher, Clock: clk, Logger: log, Cfg: cfg, Topics: topics}
}

// Admit turns a validated issued ticket into a present occupant,
// consuming one unit of session capacity. The occupancy check and
// increment are a single conditional update, so two simultaneous
// admits for the last slot cannot both pass.
func (g *Gate) Admit(ctx context.Context, ticketID string) (*models.Ticket, error) {
	if g.Lock != nil {
		ok, err := g.Lock.Acquire(ctx, ticketID)
		if err != nil {
			return nil, apperr.Infrastructure(err, "scan lock unavailable")
		}
		if !ok {
			return nil, apperr.Conflict("ticket %s is already being scanned", ticketID)
		}
	}

	now := g.Clock.Now()
	var admitted *models.Ticket
	var occupancyAfter int
	var sessionID string

	err := g.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		tickets := ticketdb.New(tx)
		sessions := sessiondb.New(tx)

		ticket, err := tickets.GetTicketByID(ctx, ticketID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("ticket %s not found", ticketID)
			}
			return apperr.Infrastructure(err, "failed to load ticket %s", ticketID)
		}
		session, err := sessions.GetSessionByID(ctx, ticket.SessionID)
		if err != nil {
			return apperr.Infrastructure(err, "failed to load session %s", ticket.SessionID)
		}

		if err := models.ValidateForEntry(ticket, session, now, g.Cfg.EntryGrace); err != nil {
			return err
		}

		moved, err := tickets.MarkPresent(ctx, ticketID, now)
		if err != nil {
			return apperr.Infrastructure(err, "failed to mark ticket present")
		}
		if !moved {
			// A concurrent scan or cancellation observed `issued` first.
			return apperr.Conflict("ticket %s is no longer admissible", ticketID)
		}

		ok, err := sessions.IncrementOccupancy(ctx, session.SessionID)
		if err != nil {
			return apperr.Infrastructure(err, "failed to increment occupancy")
		}
		if !ok {
			// Reachable only when overselling is enabled; the gate still
			// defends the ceiling. Rolling back undoes MarkPresent too.
			return apperr.CapacityExceeded("session %s is at capacity (%d)", session.SessionID, session.MaxCapacity)
		}

		updated, err := sessions.GetSessionByID(ctx, session.SessionID)
		if err != nil {
			return apperr.Infrastructure(err, "failed to re-read session %s", session.SessionID)
		}
		occupancyAfter = updated.OccupantCount
		sessionID = session.SessionID

		event := models.AdmissionEvent{
			SessionID:      session.SessionID,
			TicketID:       ticketID,
			Type:           models.AdmissionEntry,
			OccupancyAfter: occupancyAfter,
			CreatedAt:      now,
		}
		if _, err := tx.NewInsert().Model(&event).Exec(ctx); err != nil {
			return apperr.Infrastructure(err, "failed to record admission event")
		}

		ticket.Status = models.TicketPresent
		ticket.EnteredAt = now
		admitted = ticket
		return nil
	})
	if err != nil {
		if g.Lock != nil {
			_ = g.Lock.Release(ctx, ticketID)
		}
		return nil, err
	}

	g.Logger.LogGate("ADMIT", sessionID, fmt.Sprintf("Ticket %s admitted, occupancy now %d", ticketID, occupancyAfter))
	g.publish(g.Topics.AdmissionEntry, models.AdmissionEventDto{
		SessionID:      sessionID,
		TicketID:       ticketID,
		Type:           models.AdmissionEntry,
		OccupancyAfter: occupancyAfter,
		OccurredAt:     now,
	})
	return admitted, nil
}

// Release converts a present occupant back into capacity. Any
// bracelet the ticket still holds is force-returned in the same
// transaction so no assignment is orphaned.
func (g *Gate) Release(ctx context.Context, ticketID string) (*models.Ticket, error) {
	now := g.Clock.Now()
	var released *models.Ticket
	var occupancyAfter int
	var sessionID string
	var underflow bool

	err := g.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		tickets := ticketdb.New(tx)
		sessions := sessiondb.New(tx)
		bracelets := braceletdb.New(tx)

		ticket, err := tickets.GetTicketByID(ctx, ticketID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("ticket %s not found", ticketID)
			}
			return apperr.Infrastructure(err, "failed to load ticket %s", ticketID)
		}
		if ticket.Status != models.TicketPresent {
			return apperr.Conflict("ticket %s is %s, not present", ticketID, ticket.Status)
		}

		moved, err := tickets.MarkCompleted(ctx, ticketID, now)
		if err != nil {
			return apperr.Infrastructure(err, "failed to mark ticket completed")
		}
		if !moved {
			return apperr.Conflict("ticket %s was released concurrently", ticketID)
		}

		ok, err := sessions.DecrementOccupancy(ctx, ticket.SessionID)
		if err != nil {
			return apperr.Infrastructure(err, "failed to decrement occupancy")
		}
		// Occupancy is floored at zero; an underflow means the counter
		// and the ticket ledger disagree and must be surfaced.
		underflow = !ok

		if _, err := bracelets.ReturnByTicket(ctx, ticketID, now); err != nil {
			return apperr.Infrastructure(err, "failed to force-return bracelet")
		}

		updated, err := sessions.GetSessionByID(ctx, ticket.SessionID)
		if err != nil {
			return apperr.Infrastructure(err, "failed to re-read session %s", ticket.SessionID)
		}
		occupancyAfter = updated.OccupantCount
		sessionID = ticket.SessionID

		event := models.AdmissionEvent{
			SessionID:      ticket.SessionID,
			TicketID:       ticketID,
			Type:           models.AdmissionExit,
			OccupancyAfter: occupancyAfter,
			CreatedAt:      now,
		}
		if _, err := tx.NewInsert().Model(&event).Exec(ctx); err != nil {
			return apperr.Infrastructure(err, "failed to record exit event")
		}

		ticket.Status = models.TicketCompleted
		ticket.ExitedAt = now
		released = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}

	if underflow {
		g.Logger.Error("GATE", fmt.Sprintf("Occupancy underflow on session %s releasing ticket %s: counter was already 0", sessionID, ticketID))
	}
	g.Logger.LogGate("RELEASE", sessionID, fmt.Sprintf("Ticket %s released, occupancy now %d", ticketID, occupancyAfter))
	g.publish(g.Topics.AdmissionExit, models.AdmissionEventDto{
		SessionID:      sessionID,
		TicketID:       ticketID,
		Type:           models.AdmissionExit,
		OccupancyAfter: occupancyAfter,
		OccurredAt:     now,
	})
	return released, nil
}

// ResetOccupancy is the end-of-day administrative override: occupancy
// drops to zero, the prior value and the actor go into the audit
// ledger, and no ticket status changes.
func (g *Gate) ResetOccupancy(ctx context.Context, sessionID, actor string) (int, error) {
	now := g.Clock.Now()
	var prior int

	err := g.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		sessions := sessiondb.New(tx)
		p, err := sessions.ResetOccupancy(ctx, sessionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("session %s not found", sessionID)
			}
			return apperr.Infrastructure(err, "failed to reset occupancy")
		}
		prior = p

		event := models.AdmissionEvent{
			SessionID:      sessionID,
			Type:           models.AdmissionReset,
			OccupancyAfter: 0,
			PriorOccupancy: prior,
			Actor:          actor,
			CreatedAt:      now,
		}
		if _, err := tx.NewInsert().Model(&event).Exec(ctx); err != nil {
			return apperr.Infrastructure(err, "failed to record reset event")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	g.Logger.LogAudit("OCCUPANCY_RESET", actor, fmt.Sprintf("Session %s occupancy reset from %d to 0", sessionID, prior))
	g.publish(g.Topics.OccupancyReset, models.AdmissionEventDto{
		SessionID:  sessionID,
		Type:       models.AdmissionReset,
		Actor:      actor,
		OccurredAt: now,
	})
	return prior, nil
}

// GetCurrentCapacity is a point-in-time occupancy read. It can be
// stale by the time the caller looks at it; the binding check lives
// inside Admit.
func (g *Gate) GetCurrentCapacity(ctx context.Context, sessionID string) (*models.GateStatus, error) {
	session, err := sessiondb.New(g.Bun).GetSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("session %s not found", sessionID)
		}
		return nil, apperr.Infrastructure(err, "failed to load session %s", sessionID)
	}
	remaining := session.MaxCapacity - session.OccupantCount
	if remaining < 0 {
		remaining = 0
	}
	return &models.GateStatus{
		SessionID: session.SessionID,
		Capacity:  session.MaxCapacity,
		Occupancy: session.OccupantCount,
		Remaining: remaining,
	}, nil
}

func (g *Gate) publish(topic string, event models.AdmissionEventDto) {
	if g.Publisher == nil {
		return
	}
	if err := g.Publisher.PublishAdmission(topic, event); err != nil {
		g.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s event for session %s: %v", event.Type, event.SessionID, err))
	}
}
