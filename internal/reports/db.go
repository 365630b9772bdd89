package reports

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"ms-pooladmission/internal/models"
)

// DB holds the ledger-side queries the report service aggregates
// over. Everything here reads committed rows only; no report query
// takes a session lock.
type DB struct {
	Bun bun.IDB
}

func NewDB(idb bun.IDB) *DB {
	return &DB{Bun: idb}
}

func (d *DB) CountEvents(ctx context.Context, sessionID string, eventType models.AdmissionEventType, from, to time.Time) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.AdmissionEvent)(nil)).
		Where("session_id = ?", sessionID).
		Where("type = ?", eventType).
		Where("created_at >= ?", from).
		Where("created_at < ?", to).
		Count(ctx)
}

// PeakOccupancy returns the highest occupancy the ledger recorded for
// a session in the range. Zero when there were no entries.
func (d *DB) PeakOccupancy(ctx context.Context, sessionID string, from, to time.Time) (int, error) {
	var peak int
	err := d.Bun.NewSelect().
		Model((*models.AdmissionEvent)(nil)).
		ColumnExpr("COALESCE(MAX(occupancy_after), 0)").
		Where("session_id = ?", sessionID).
		Where("type = ?", models.AdmissionEntry).
		Where("created_at >= ?", from).
		Where("created_at < ?", to).
		Scan(ctx, &peak)
	return peak, err
}

// ---------------- MAINTENANCE LOG ----------------

func (d *DB) InsertMaintenanceLog(ctx context.Context, entry models.MaintenanceLogEntry) error {
	_, err := d.Bun.NewInsert().Model(&entry).Exec(ctx)
	return err
}

// ListMaintenanceLogs returns entries ordered by timestamp; sessionID
// empty means all scopes.
func (d *DB) ListMaintenanceLogs(ctx context.Context, sessionID string) ([]models.MaintenanceLogEntry, error) {
	var entries []models.MaintenanceLogEntry
	q := d.Bun.NewSelect().Model(&entries)
	if sessionID != "" {
		q = q.Where("session_id = ?", sessionID)
	}
	err := q.Order("created_at").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ---------------- ADMISSION TALLIES ----------------

// BumpTally increments the mirrored daily entry/exit counters for a
// session, creating the row on first sight of the day.
func (d *DB) BumpTally(ctx context.Context, sessionID string, day time.Time, eventType models.AdmissionEventType) error {
	date := day.Truncate(24 * time.Hour)

	var existing models.AdmissionTally
	err := d.Bun.NewSelect().
		Model(&existing).
		Where("session_id = ?", sessionID).
		Where("date = ?", date).
		Limit(1).
		Scan(ctx)
	if err != nil {
		tally := models.AdmissionTally{SessionID: sessionID, Date: date}
		switch eventType {
		case models.AdmissionEntry:
			tally.Entries = 1
		case models.AdmissionExit:
			tally.Exits = 1
		}
		_, err = d.Bun.NewInsert().Model(&tally).Exec(ctx)
		return err
	}

	column := "entries"
	if eventType == models.AdmissionExit {
		column = "exits"
	}
	_, err = d.Bun.NewUpdate().
		Model((*models.AdmissionTally)(nil)).
		Set(column+" = "+column+" + 1").
		Where("session_id = ?", sessionID).
		Where("date = ?", date).
		Exec(ctx)
	return err
}

func (d *DB) GetTalliesForDate(ctx context.Context, day time.Time) ([]models.AdmissionTally, error) {
	date := day.Truncate(24 * time.Hour)
	var tallies []models.AdmissionTally
	err := d.Bun.NewSelect().
		Model(&tallies).
		Where("date = ?", date).
		Order("session_id").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tallies, nil
}
