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

func (d *DB) InsertAssignment(ctx context.Context, assignment models.BraceletAssignment) error {
	_, err := d.Bun.NewInsert().Model(&assignment).Exec(ctx)
	return err
}

// GetActiveByCode returns the unreturned assignment for a code, or
// sql.ErrNoRows via bun when there is none.
func (d *DB) GetActiveByCode(ctx context.Context, code string) (*models.BraceletAssignment, error) {
	var assignment models.BraceletAssignment
	err := d.Bun.NewSelect().
		Model(&assignment).
		Where("code = ?", code).
		Where("returned_at IS NULL").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

// HasActiveByCode reports whether the code is currently bound.
func (d *DB) HasActiveByCode(ctx context.Context, code string) (bool, error) {
	count, err := d.Bun.NewSelect().
		Model((*models.BraceletAssignment)(nil)).
		Where("code = ?", code).
		Where("returned_at IS NULL").
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// HasActiveByTicket reports whether the ticket already holds a
// bracelet.
func (d *DB) HasActiveByTicket(ctx context.Context, ticketID string) (bool, error) {
	count, err := d.Bun.NewSelect().
		Model((*models.BraceletAssignment)(nil)).
		Where("ticket_id = ?", ticketID).
		Where("returned_at IS NULL").
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ReturnByCode soft-closes the active assignment for a code. A false
// return means there was no active assignment, and nothing changed.
func (d *DB) ReturnByCode(ctx context.Context, code string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.BraceletAssignment)(nil)).
		Set("returned_at = ?", at).
		Where("code = ?", code).
		Where("returned_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

// ReturnByTicket force-returns whatever bracelet the ticket still
// holds (used on exit so no assignment is orphaned).
func (d *DB) ReturnByTicket(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.BraceletAssignment)(nil)).
		Set("returned_at = ?", at).
		Where("ticket_id = ?", ticketID).
		Where("returned_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows >= 1, err
}

func (d *DB) ListActiveBySession(ctx context.Context, sessionID string) ([]models.BraceletAssignment, error) {
	var assignments []models.BraceletAssignment
	err := d.Bun.NewSelect().
		Model(&assignments).
		Where("session_id = ?", sessionID).
		Where("returned_at IS NULL").
		Order("assigned_at").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return assignments, nil
}
