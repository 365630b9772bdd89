package db_test

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

	"ms-pooladmission/internal/models"
	ticketdb "ms-pooladmission/internal/tickets/db"
)

func setupTestDB(t *testing.T) (*ticketdb.DB, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = bunDB.NewCreateTable().Model((*models.Ticket)(nil)).Exec(context.Background())
	if err != nil {
		t.Fatalf("Failed to create tickets table: %v", err)
	}

	return ticketdb.New(bunDB), bunDB
}

func makeTicket(sessionID string, status models.TicketStatus) models.Ticket {
	return models.Ticket{
		TicketID:  uuid.New().String(),
		SessionID: sessionID,
		UserID:    "user-1",
		Price:     5.50,
		Status:    status,
		IssuedAt:  time.Now(),
	}
}

func TestCreateAndGetTicket(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	ticket := makeTicket("session-1", models.TicketIssued)
	require.NoError(t, db.CreateTicket(context.Background(), ticket))

	got, err := db.GetTicketByID(context.Background(), ticket.TicketID)
	assert.NoError(t, err)
	assert.Equal(t, models.TicketIssued, got.Status)
	assert.Equal(t, "session-1", got.SessionID)

	_, err = db.GetTicketByID(context.Background(), "missing")
	assert.Error(t, err)
}

func TestMarkPresentOnlyFromIssued(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	ticket := makeTicket("session-1", models.TicketIssued)
	require.NoError(t, db.CreateTicket(context.Background(), ticket))

	now := time.Now()
	ok, err := db.MarkPresent(context.Background(), ticket.TicketID, now)
	assert.NoError(t, err)
	assert.True(t, ok)

	// A second attempt must fail: the ticket is already present.
	ok, err = db.MarkPresent(context.Background(), ticket.TicketID, now)
	assert.NoError(t, err)
	assert.False(t, ok)

	got, err := db.GetTicketByID(context.Background(), ticket.TicketID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketPresent, got.Status)
	assert.False(t, got.EnteredAt.IsZero())
}

func TestMarkCompletedRequiresPresent(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	ticket := makeTicket("session-1", models.TicketIssued)
	require.NoError(t, db.CreateTicket(context.Background(), ticket))

	ok, err := db.MarkCompleted(context.Background(), ticket.TicketID, time.Now())
	assert.NoError(t, err)
	assert.False(t, ok, "issued ticket cannot be completed")

	_, err = db.MarkPresent(context.Background(), ticket.TicketID, time.Now())
	require.NoError(t, err)

	ok, err = db.MarkCompleted(context.Background(), ticket.TicketID, time.Now())
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestMarkCancelledRecordsActor(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	ticket := makeTicket("session-1", models.TicketIssued)
	require.NoError(t, db.CreateTicket(context.Background(), ticket))

	ok, err := db.MarkCancelled(context.Background(), ticket.TicketID, "admin-1", time.Now())
	assert.NoError(t, err)
	assert.True(t, ok)

	got, err := db.GetTicketByID(context.Background(), ticket.TicketID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketCancelled, got.Status)
	assert.Equal(t, "admin-1", got.CancelledBy)

	// Cancelled is terminal.
	ok, err = db.MarkPresent(context.Background(), ticket.TicketID, time.Now())
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestCancelIssuedBySession(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	issued := makeTicket("session-1", models.TicketIssued)
	present := makeTicket("session-1", models.TicketPresent)
	other := makeTicket("session-2", models.TicketIssued)
	for _, tk := range []models.Ticket{issued, present, other} {
		require.NoError(t, db.CreateTicket(context.Background(), tk))
	}

	n, err := db.CancelIssuedBySession(context.Background(), "session-1", "system", time.Now())
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := db.GetTicketByID(context.Background(), present.TicketID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketPresent, got.Status, "present tickets are untouched")

	got, err = db.GetTicketByID(context.Background(), other.TicketID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketIssued, got.Status, "other sessions are untouched")
}

func TestCountBySessionInStatus(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	for _, status := range []models.TicketStatus{models.TicketIssued, models.TicketIssued, models.TicketPresent, models.TicketCancelled} {
		require.NoError(t, db.CreateTicket(context.Background(), makeTicket("session-1", status)))
	}

	n, err := db.CountBySessionInStatus(context.Background(), "session-1", models.TicketIssued)
	assert.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = db.CountBySessionInStatus(context.Background(), "session-1", models.TicketIssued, models.TicketPresent)
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
}
