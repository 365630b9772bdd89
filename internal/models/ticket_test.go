package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ms-pooladmission/internal/apperr"
	"ms-pooladmission/internal/models"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, models.CanTransition(models.TicketIssued, models.TicketPresent))
	assert.True(t, models.CanTransition(models.TicketIssued, models.TicketCancelled))
	assert.True(t, models.CanTransition(models.TicketIssued, models.TicketExpired))
	assert.True(t, models.CanTransition(models.TicketPresent, models.TicketCompleted))

	// Terminal statuses have no way out.
	for _, terminal := range []models.TicketStatus{models.TicketCompleted, models.TicketCancelled, models.TicketExpired} {
		assert.False(t, models.CanTransition(terminal, models.TicketPresent))
		assert.False(t, models.CanTransition(terminal, models.TicketIssued))
	}

	assert.False(t, models.CanTransition(models.TicketPresent, models.TicketCancelled))
	assert.False(t, models.CanTransition(models.TicketIssued, models.TicketCompleted))
}

func TestValidateForEntry(t *testing.T) {
	now := time.Date(2026, 7, 14, 10, 0, 0, 0, time.UTC)
	grace := 15 * time.Minute
	session := &models.Session{
		SessionID: "sess-1",
		StartsAt:  now.Add(-time.Hour),
		EndsAt:    now.Add(time.Hour),
		Status:    models.SessionOpen,
	}

	ticket := &models.Ticket{TicketID: "tk-1", SessionID: "sess-1", Status: models.TicketIssued}
	assert.NoError(t, models.ValidateForEntry(ticket, session, now, grace))

	cases := []struct {
		name   string
		status models.TicketStatus
		kind   apperr.Kind
	}{
		{"present", models.TicketPresent, apperr.KindInvalidTicket},
		{"completed", models.TicketCompleted, apperr.KindInvalidTicket},
		{"cancelled", models.TicketCancelled, apperr.KindInvalidTicket},
		{"expired", models.TicketExpired, apperr.KindExpiredTicket},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := models.ValidateForEntry(&models.Ticket{TicketID: "tk-1", Status: tc.status}, session, now, grace)
			assert.True(t, apperr.IsKind(err, tc.kind))
		})
	}
}

func TestValidateForEntryWindow(t *testing.T) {
	now := time.Date(2026, 7, 14, 10, 0, 0, 0, time.UTC)
	grace := 15 * time.Minute
	ticket := &models.Ticket{TicketID: "tk-1", Status: models.TicketIssued}

	// Inside the grace window before start.
	soon := &models.Session{SessionID: "s", StartsAt: now.Add(10 * time.Minute), EndsAt: now.Add(2 * time.Hour), Status: models.SessionOpen}
	assert.NoError(t, models.ValidateForEntry(ticket, soon, now, grace))

	// Too early.
	later := &models.Session{SessionID: "s", StartsAt: now.Add(time.Hour), EndsAt: now.Add(2 * time.Hour), Status: models.SessionOpen}
	assert.True(t, apperr.IsKind(models.ValidateForEntry(ticket, later, now, grace), apperr.KindInvalidTicket))

	// Session is over.
	done := &models.Session{SessionID: "s", StartsAt: now.Add(-2 * time.Hour), EndsAt: now.Add(-time.Hour), Status: models.SessionOpen}
	assert.True(t, apperr.IsKind(models.ValidateForEntry(ticket, done, now, grace), apperr.KindExpiredTicket))

	// Cancelled session.
	gone := &models.Session{SessionID: "s", StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour), Status: models.SessionCancelled}
	assert.True(t, apperr.IsKind(models.ValidateForEntry(ticket, gone, now, grace), apperr.KindSessionClosed))
}
