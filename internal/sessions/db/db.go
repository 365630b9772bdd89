package db

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"ms-pooladmission/internal/models"
)

// DB wraps a bun handle. Passing a bun.Tx lets the same queries run
// inside a caller-owned transaction.
type DB struct {
	Bun bun.IDB
}

func New(idb bun.IDB) *DB {
	return &DB{Bun: idb}
}

func (d *DB) CreateSession(ctx context.Context, session models.Session) error {
	_, err := d.Bun.NewInsert().Model(&session).Exec(ctx)
	return err
}

func (d *DB) GetSessionByID(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := d.Bun.NewSelect().
		Model(&session).
		Where("session_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (d *DB) ListSessions(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	var sessions []models.Session
	q := d.Bun.NewSelect().Model(&sessions)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if !filter.Date.IsZero() {
		dayStart := filter.Date.Truncate(24 * time.Hour)
		dayEnd := dayStart.Add(24 * time.Hour)
		q = q.Where("starts_at < ?", dayEnd).Where("ends_at > ?", dayStart)
	}
	err := q.Order("starts_at").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (d *DB) UpdateSession(ctx context.Context, session models.Session) error {
	_, err := d.Bun.NewUpdate().
		Model(&session).
		Column("name", "starts_at", "ends_at", "max_capacity", "status", "updated_at").
		Where("session_id = ?", session.SessionID).
		Exec(ctx)
	return err
}

// HasOverlapping reports whether any non-cancelled session overlaps
// the given window. The pool is a single resource, so overlapping
// sessions would make capacity ambiguous.
func (d *DB) HasOverlapping(ctx context.Context, startsAt, endsAt time.Time, excludeID string) (bool, error) {
	q := d.Bun.NewSelect().
		Model((*models.Session)(nil)).
		Where("status != ?", models.SessionCancelled).
		Where("starts_at < ?", endsAt).
		Where("ends_at > ?", startsAt)
	if excludeID != "" {
		q = q.Where("session_id != ?", excludeID)
	}
	count, err := q.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ---------------- COUNTERS ----------------
//
// The sold and occupancy counters are only ever moved through the
// conditional updates below. Each update carries its own bound check
// in the WHERE clause, so check-then-increment is a single statement
// and cannot oversell under concurrent callers. A false return means
// the bound was hit (or the row vanished), with no state change.

// IncrementSold sells one ticket. The bound is the row's committed
// max_capacity plus the oversell headroom, read in the same statement,
// so a concurrent capacity change can never be raced past with a
// stale ceiling.
func (d *DB) IncrementSold(ctx context.Context, sessionID string, oversell int) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Session)(nil)).
		Set("sold_count = sold_count + 1").
		Set("updated_at = ?", time.Now()).
		Where("session_id = ?", sessionID).
		Where("sold_count < max_capacity + ?", oversell).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

// ReduceMaxCapacity lowers the capacity ceiling only while the sold
// count still fits under the new value. Paired with IncrementSold
// checking the committed ceiling, either the reduction lands first and
// the sale sees it, or the sale lands first and the reduction fails
// here.
func (d *DB) ReduceMaxCapacity(ctx context.Context, sessionID string, capacity int) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Session)(nil)).
		Set("max_capacity = ?", capacity).
		Set("updated_at = ?", time.Now()).
		Where("session_id = ?", sessionID).
		Where("sold_count <= ?", capacity).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

func (d *DB) DecrementSold(ctx context.Context, sessionID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Session)(nil)).
		Set("sold_count = sold_count - 1").
		Set("updated_at = ?", time.Now()).
		Where("session_id = ?", sessionID).
		Where("sold_count > 0").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

func (d *DB) IncrementOccupancy(ctx context.Context, sessionID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Session)(nil)).
		Set("occupant_count = occupant_count + 1").
		Set("updated_at = ?", time.Now()).
		Where("session_id = ?", sessionID).
		Where("occupant_count < max_capacity").
		Where("status != ?", models.SessionCancelled).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

func (d *DB) DecrementOccupancy(ctx context.Context, sessionID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Session)(nil)).
		Set("occupant_count = occupant_count - 1").
		Set("updated_at = ?", time.Now()).
		Where("session_id = ?", sessionID).
		Where("occupant_count > 0").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}

// ResetOccupancy zeroes the occupancy counter and returns the prior
// value so the caller can audit it. The zeroing is conditional on the
// counter still holding the value that was read; if a turnstile moved
// it in between, the read is retried so the audited prior is exactly
// what was wiped.
func (d *DB) ResetOccupancy(ctx context.Context, sessionID string) (int, error) {
	for {
		session, err := d.GetSessionByID(ctx, sessionID)
		if err != nil {
			return 0, err
		}
		prior := session.OccupantCount

		res, err := d.Bun.NewUpdate().
			Model((*models.Session)(nil)).
			Set("occupant_count = 0").
			Set("updated_at = ?", time.Now()).
			Where("session_id = ?", sessionID).
			Where("occupant_count = ?", prior).
			Exec(ctx)
		if err != nil {
			return 0, err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		if rows == 1 {
			return prior, nil
		}
	}
}

// CancelSession moves a session to cancelled only while nobody is
// inside. The occupancy check rides in the same statement, so an admit
// committing in between fails here instead of stranding a swimmer in a
// cancelled session.
func (d *DB) CancelSession(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Session)(nil)).
		Set("status = ?", models.SessionCancelled).
		Set("updated_at = ?", at).
		Where("session_id = ?", sessionID).
		Where("status != ?", models.SessionCancelled).
		Where("occupant_count = 0").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows == 1, err
}
