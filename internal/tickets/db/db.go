package db

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"ms-pooladmission/internal/models"
)

type DB struct {
	Bun bun.IDB
}

func New(idb bun.IDB) *DB {
	return &DB{Bun: idb}
}

func (d *DB) CreateTicket(ctx context.Context, ticket models.Ticket) error {
	_, err := d.Bun.NewInsert().Model(&ticket).Exec(ctx)
	return err
}

func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("ticket_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) GetTicketsByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("user_id = ?", userID).
		Order("issued_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) GetTicketsBySession(ctx context.Context, sessionID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("session_id = ?", sessionID).
		Order("issued_at").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// ---------------- STATUS TRANSITIONS ----------------
//
// Every transition is a single conditional UPDATE guarded by the
// current status. A false return means another operation won the race
// (the ticket was no longer in the expected status) and nothing
// changed. Combined with models.CanTransition this is the whole
// ticket state machine.

func (d *DB) MarkPresent(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	return d.transition(ctx, ticketID, models.TicketIssued, models.TicketPresent, "entered_at", at)
}

func (d *DB) MarkCompleted(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	return d.transition(ctx, ticketID, models.TicketPresent, models.TicketCompleted, "exited_at", at)
}

func (d *DB) MarkExpired(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	return d.transition(ctx, ticketID, models.TicketIssued, models.TicketExpired, "cancelled_at", at)
}

func (d *DB) MarkCancelled(ctx context.Context, ticketID, actor string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketCancelled).
		Set("cancelled_at = ?", at).
		Set("cancelled_by = ?", actor).
		Where("ticket_id = ?", ticketID).
		Where("status = ?", models.TicketIssued).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

func (d *DB) transition(ctx context.Context, ticketID string, from, to models.TicketStatus, tsColumn string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", to).
		Set(tsColumn+" = ?", at).
		Where("ticket_id = ?", ticketID).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

// ---------------- SESSION-SCOPED QUERIES ----------------

// CountBySessionInStatus counts tickets for a session in any of the
// given statuses.
func (d *DB) CountBySessionInStatus(ctx context.Context, sessionID string, statuses ...models.TicketStatus) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("session_id = ?", sessionID).
		Where("status IN (?)", bun.In(statuses)).
		Count(ctx)
}

// CancelIssuedBySession cancels every still-issued ticket of a
// session (used when the session itself is cancelled). Returns how
// many were cancelled.
func (d *DB) CancelIssuedBySession(ctx context.Context, sessionID, actor string, at time.Time) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketCancelled).
		Set("cancelled_at = ?", at).
		Set("cancelled_by = ?", actor).
		Where("session_id = ?", sessionID).
		Where("status = ?", models.TicketIssued).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountIssuedInRange counts tickets issued inside [from, to) for the
// daily report.
func (d *DB) CountIssuedInRange(ctx context.Context, sessionID string, from, to time.Time) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("session_id = ?", sessionID).
		Where("issued_at >= ?", from).
		Where("issued_at < ?", to).
		Count(ctx)
}

// CountCancelledInRange counts tickets cancelled inside [from, to).
func (d *DB) CountCancelledInRange(ctx context.Context, sessionID string, from, to time.Time) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("session_id = ?", sessionID).
		Where("status = ?", models.TicketCancelled).
		Where("cancelled_at >= ?", from).
		Where("cancelled_at < ?", to).
		Count(ctx)
}
