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
	sessiondb "ms-pooladmission/internal/sessions/db"
)

func setupTestDB(t *testing.T) (*sessiondb.DB, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = bunDB.NewCreateTable().Model((*models.Session)(nil)).Exec(context.Background())
	if err != nil {
		t.Fatalf("Failed to create sessions table: %v", err)
	}

	return sessiondb.New(bunDB), bunDB
}

func makeSession(capacity int) models.Session {
	now := time.Now()
	return models.Session{
		SessionID:   uuid.New().String(),
		Name:        "Morning swim",
		StartsAt:    now.Add(-time.Hour),
		EndsAt:      now.Add(time.Hour),
		MaxCapacity: capacity,
		Status:      models.SessionOpen,
		CreatedAt:   now,
	}
}

func TestCreateAndGetSession(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	session := makeSession(20)
	err := db.CreateSession(context.Background(), session)
	assert.NoError(t, err)

	got, err := db.GetSessionByID(context.Background(), session.SessionID)
	assert.NoError(t, err)
	assert.Equal(t, session.SessionID, got.SessionID)
	assert.Equal(t, 20, got.MaxCapacity)
	assert.Equal(t, 0, got.SoldCount)
	assert.Equal(t, 0, got.OccupantCount)

	_, err = db.GetSessionByID(context.Background(), "non-existent")
	assert.Error(t, err)
}

func TestHasOverlapping(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	session := makeSession(20)
	require.NoError(t, db.CreateSession(context.Background(), session))

	// Overlapping window
	overlaps, err := db.HasOverlapping(context.Background(), session.StartsAt.Add(30*time.Minute), session.EndsAt.Add(time.Hour), "")
	assert.NoError(t, err)
	assert.True(t, overlaps)

	// Disjoint window
	overlaps, err = db.HasOverlapping(context.Background(), session.EndsAt.Add(time.Hour), session.EndsAt.Add(2*time.Hour), "")
	assert.NoError(t, err)
	assert.False(t, overlaps)

	// The session itself can be excluded for updates
	overlaps, err = db.HasOverlapping(context.Background(), session.StartsAt, session.EndsAt, session.SessionID)
	assert.NoError(t, err)
	assert.False(t, overlaps)
}

func TestIncrementSoldStopsAtCapacity(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	session := makeSession(2)
	require.NoError(t, db.CreateSession(context.Background(), session))

	for i := 0; i < 2; i++ {
		ok, err := db.IncrementSold(context.Background(), session.SessionID, 0)
		assert.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := db.IncrementSold(context.Background(), session.SessionID, 0)
	assert.NoError(t, err)
	assert.False(t, ok, "third increment must hit the capacity")

	// An oversell headroom of one admits exactly one more sale.
	ok, err = db.IncrementSold(context.Background(), session.SessionID, 1)
	assert.NoError(t, err)
	assert.True(t, ok)
	ok, err = db.IncrementSold(context.Background(), session.SessionID, 1)
	assert.NoError(t, err)
	assert.False(t, ok)

	got, err := db.GetSessionByID(context.Background(), session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.SoldCount)
}

func TestIncrementSoldSeesReducedCapacity(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	session := makeSession(10)
	require.NoError(t, db.CreateSession(context.Background(), session))

	ok, err := db.IncrementSold(context.Background(), session.SessionID, 0)
	require.NoError(t, err)
	require.True(t, ok)

	// A sale that started while capacity was 10 still checks the
	// committed ceiling, so a reduction to 1 stops it.
	ok, err = db.ReduceMaxCapacity(context.Background(), session.SessionID, 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = db.IncrementSold(context.Background(), session.SessionID, 0)
	assert.NoError(t, err)
	assert.False(t, ok, "sale must respect the reduced ceiling")

	got, err := db.GetSessionByID(context.Background(), session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SoldCount)
	assert.Equal(t, 1, got.MaxCapacity)
}

func TestReduceMaxCapacityGuardsSoldCount(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	session := makeSession(10)
	require.NoError(t, db.CreateSession(context.Background(), session))

	for i := 0; i < 3; i++ {
		ok, err := db.IncrementSold(context.Background(), session.SessionID, 0)
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := db.ReduceMaxCapacity(context.Background(), session.SessionID, 2)
	assert.NoError(t, err)
	assert.False(t, ok, "capacity must not drop below sold tickets")

	got, err := db.GetSessionByID(context.Background(), session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.MaxCapacity, "failed reduction must leave capacity untouched")

	ok, err = db.ReduceMaxCapacity(context.Background(), session.SessionID, 3)
	assert.NoError(t, err)
	assert.True(t, ok, "reduction down to the sold count is allowed")
}

func TestDecrementSoldFloorsAtZero(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	session := makeSession(2)
	require.NoError(t, db.CreateSession(context.Background(), session))

	ok, err := db.DecrementSold(context.Background(), session.SessionID)
	assert.NoError(t, err)
	assert.False(t, ok, "decrement below zero must not apply")

	got, err := db.GetSessionByID(context.Background(), session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.SoldCount)
}

func TestOccupancyCounters(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	session := makeSession(1)
	require.NoError(t, db.CreateSession(context.Background(), session))

	ok, err := db.IncrementOccupancy(context.Background(), session.SessionID)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.IncrementOccupancy(context.Background(), session.SessionID)
	assert.NoError(t, err)
	assert.False(t, ok, "occupancy must not exceed capacity")

	ok, err = db.DecrementOccupancy(context.Background(), session.SessionID)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.DecrementOccupancy(context.Background(), session.SessionID)
	assert.NoError(t, err)
	assert.False(t, ok, "occupancy is floored at zero")
}

func TestResetOccupancyReturnsPrior(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	session := makeSession(5)
	require.NoError(t, db.CreateSession(context.Background(), session))

	for i := 0; i < 3; i++ {
		_, err := db.IncrementOccupancy(context.Background(), session.SessionID)
		require.NoError(t, err)
	}

	prior, err := db.ResetOccupancy(context.Background(), session.SessionID)
	assert.NoError(t, err)
	assert.Equal(t, 3, prior)

	got, err := db.GetSessionByID(context.Background(), session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.OccupantCount)
}

func TestCancelSessionRequiresEmptyPool(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	session := makeSession(5)
	require.NoError(t, db.CreateSession(context.Background(), session))

	ok, err := db.IncrementOccupancy(context.Background(), session.SessionID)
	require.NoError(t, err)
	require.True(t, ok)

	moved, err := db.CancelSession(context.Background(), session.SessionID, time.Now())
	assert.NoError(t, err)
	assert.False(t, moved, "cancellation must not strand an occupant")

	ok, err = db.DecrementOccupancy(context.Background(), session.SessionID)
	require.NoError(t, err)
	require.True(t, ok)

	moved, err = db.CancelSession(context.Background(), session.SessionID, time.Now())
	assert.NoError(t, err)
	assert.True(t, moved)

	moved, err = db.CancelSession(context.Background(), session.SessionID, time.Now())
	assert.NoError(t, err)
	assert.False(t, moved, "already cancelled")
}

func TestIncrementOccupancyRejectsCancelledSession(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	session := makeSession(5)
	require.NoError(t, db.CreateSession(context.Background(), session))

	moved, err := db.CancelSession(context.Background(), session.SessionID, time.Now())
	require.NoError(t, err)
	require.True(t, moved)

	ok, err := db.IncrementOccupancy(context.Background(), session.SessionID)
	assert.NoError(t, err)
	assert.False(t, ok, "cancelled session must not gain occupants")
}

func TestListSessionsByDate(t *testing.T) {
	db, bunDB := setupTestDB(t)
	defer bunDB.Close()

	today := makeSession(10)
	require.NoError(t, db.CreateSession(context.Background(), today))

	tomorrow := makeSession(10)
	tomorrow.StartsAt = time.Now().Add(26 * time.Hour)
	tomorrow.EndsAt = time.Now().Add(28 * time.Hour)
	require.NoError(t, db.CreateSession(context.Background(), tomorrow))

	list, err := db.ListSessions(context.Background(), models.SessionFilter{Date: time.Now()})
	assert.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, today.SessionID, list[0].SessionID)
}
