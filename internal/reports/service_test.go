package reports_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-pooladmission/internal/apperr"
	"ms-pooladmission/internal/clock"
	"ms-pooladmission/internal/logger"
	"ms-pooladmission/internal/models"
	"ms-pooladmission/internal/reports"
	sessiondb "ms-pooladmission/internal/sessions/db"
	ticketdb "ms-pooladmission/internal/tickets/db"
)

var testNow = time.Date(2026, 7, 14, 12, 0, 0, 0, time.UTC)

func setupService(t *testing.T) (*reports.ReportService, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	for _, model := range []interface{}{
		(*models.Session)(nil),
		(*models.Ticket)(nil),
		(*models.AdmissionEvent)(nil),
		(*models.MaintenanceLogEntry)(nil),
		(*models.AdmissionTally)(nil),
	} {
		_, err := bunDB.NewCreateTable().Model(model).Exec(context.Background())
		require.NoError(t, err)
	}

	svc := reports.NewReportService(bunDB, clock.Fixed{T: testNow}, logger.NewNop())
	return svc, bunDB
}

func createSession(t *testing.T, bunDB *bun.DB, name string) string {
	session := models.Session{
		SessionID:   uuid.New().String(),
		Name:        name,
		StartsAt:    testNow.Add(-2 * time.Hour),
		EndsAt:      testNow.Add(2 * time.Hour),
		MaxCapacity: 20,
		Status:      models.SessionOpen,
		CreatedAt:   testNow,
	}
	require.NoError(t, sessiondb.New(bunDB).CreateSession(context.Background(), session))
	return session.SessionID
}

func insertEvent(t *testing.T, bunDB *bun.DB, sessionID string, eventType models.AdmissionEventType, occupancyAfter int, at time.Time) {
	event := models.AdmissionEvent{
		SessionID:      sessionID,
		TicketID:       uuid.New().String(),
		Type:           eventType,
		OccupancyAfter: occupancyAfter,
		CreatedAt:      at,
	}
	_, err := bunDB.NewInsert().Model(&event).Exec(context.Background())
	require.NoError(t, err)
}

func TestGetDailyReport(t *testing.T) {
	svc, bunDB := setupService(t)
	defer bunDB.Close()

	morning := createSession(t, bunDB, "Morning swim")
	tickets := ticketdb.New(bunDB)
	for i := 0; i < 3; i++ {
		require.NoError(t, tickets.CreateTicket(context.Background(), models.Ticket{
			TicketID:  uuid.New().String(),
			SessionID: morning,
			Status:    models.TicketIssued,
			IssuedAt:  testNow,
		}))
	}
	require.NoError(t, tickets.CreateTicket(context.Background(), models.Ticket{
		TicketID:    uuid.New().String(),
		SessionID:   morning,
		Status:      models.TicketCancelled,
		IssuedAt:    testNow,
		CancelledAt: testNow,
	}))

	insertEvent(t, bunDB, morning, models.AdmissionEntry, 1, testNow)
	insertEvent(t, bunDB, morning, models.AdmissionEntry, 2, testNow.Add(5*time.Minute))
	insertEvent(t, bunDB, morning, models.AdmissionExit, 1, testNow.Add(20*time.Minute))
	insertEvent(t, bunDB, morning, models.AdmissionEntry, 2, testNow.Add(30*time.Minute))

	report, err := svc.GetDailyReport(context.Background(), testNow)
	require.NoError(t, err)

	// The cancelled ticket still counts as a sale on the day it was
	// issued; the cancellation is reported alongside.
	assert.Equal(t, 4, report.TicketsSold)
	assert.Equal(t, 1, report.TicketsCancelled)
	assert.Equal(t, 3, report.TotalEntries)
	assert.Equal(t, 1, report.TotalExits)
	assert.Equal(t, 2, report.PeakOccupancy)

	require.Len(t, report.Sessions, 1)
	assert.Equal(t, "Morning swim", report.Sessions[0].Name)
	assert.Equal(t, 2, report.Sessions[0].PeakOccupancy)
}

func TestGetDailyReportIsRepeatable(t *testing.T) {
	svc, bunDB := setupService(t)
	defer bunDB.Close()

	sessionID := createSession(t, bunDB, "Lap swim")
	insertEvent(t, bunDB, sessionID, models.AdmissionEntry, 1, testNow)

	first, err := svc.GetDailyReport(context.Background(), testNow)
	require.NoError(t, err)
	second, err := svc.GetDailyReport(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGetDailyReportIgnoresOtherDays(t *testing.T) {
	svc, bunDB := setupService(t)
	defer bunDB.Close()

	sessionID := createSession(t, bunDB, "Lap swim")
	insertEvent(t, bunDB, sessionID, models.AdmissionEntry, 1, testNow)
	insertEvent(t, bunDB, sessionID, models.AdmissionEntry, 5, testNow.Add(-48*time.Hour))

	report, err := svc.GetDailyReport(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalEntries)
	assert.Equal(t, 1, report.PeakOccupancy)
}

func TestMaintenanceLogAppendAndList(t *testing.T) {
	svc, bunDB := setupService(t)
	defer bunDB.Close()

	sessionID := createSession(t, bunDB, "Lap swim")

	entry, err := svc.CreateMaintenanceLog(context.Background(), sessionID, "Chlorine level checked", "op-1")
	require.NoError(t, err)
	assert.NotEmpty(t, entry.EntryID)
	assert.Equal(t, testNow, entry.CreatedAt)

	// Facility-wide entry, no session scope.
	_, err = svc.CreateMaintenanceLog(context.Background(), "", "Filter replaced", "op-2")
	require.NoError(t, err)

	scoped, err := svc.GetMaintenanceLogs(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Len(t, scoped, 1)

	all, err := svc.GetMaintenanceLogs(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMaintenanceLogValidation(t *testing.T) {
	svc, bunDB := setupService(t)
	defer bunDB.Close()

	_, err := svc.CreateMaintenanceLog(context.Background(), "", "", "op-1")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.CreateMaintenanceLog(context.Background(), "", "Note", "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.CreateMaintenanceLog(context.Background(), "missing", "Note", "op-1")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestHandleAdmissionEventBumpsTally(t *testing.T) {
	svc, bunDB := setupService(t)
	defer bunDB.Close()

	sessionID := uuid.New().String()
	svc.HandleAdmissionEvent(models.AdmissionEventDto{SessionID: sessionID, Type: models.AdmissionEntry, OccurredAt: testNow})
	svc.HandleAdmissionEvent(models.AdmissionEventDto{SessionID: sessionID, Type: models.AdmissionEntry, OccurredAt: testNow.Add(time.Minute)})
	svc.HandleAdmissionEvent(models.AdmissionEventDto{SessionID: sessionID, Type: models.AdmissionExit, OccurredAt: testNow.Add(2 * time.Minute)})
	// Resets are not mirrored.
	svc.HandleAdmissionEvent(models.AdmissionEventDto{SessionID: sessionID, Type: models.AdmissionReset, OccurredAt: testNow})

	tallies, err := reports.NewDB(bunDB).GetTalliesForDate(context.Background(), testNow)
	require.NoError(t, err)
	require.Len(t, tallies, 1)
	assert.Equal(t, 2, tallies[0].Entries)
	assert.Equal(t, 1, tallies[0].Exits)
}
