package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-pooladmission/internal/apperr"
	"ms-pooladmission/internal/clock"
	"ms-pooladmission/internal/logger"
	"ms-pooladmission/internal/models"
	sessiondb "ms-pooladmission/internal/sessions/db"
	ticketdb "ms-pooladmission/internal/tickets/db"
	"ms-pooladmission/internal/utils"
)

// ReportService aggregates committed ledger and gate records into
// daily reports, and owns the append-only maintenance log.
type ReportService struct {
	Bun    *bun.DB
	Clock  clock.Clock
	Logger *logger.Logger
}

func NewReportService(bunDB *bun.DB, clk clock.Clock, log *logger.Logger) *ReportService {
	return &ReportService{Bun: bunDB, Clock: clk, Logger: log}
}

// GetDailyReport aggregates per-session sales, cancellations, gate
// traffic and peak occupancy for every session whose window touches
// the given date. It only reads committed rows, so rerunning it over
// settled data reproduces the same numbers.
func (s *ReportService) GetDailyReport(ctx context.Context, date time.Time) (*models.DailyReport, error) {
	dayStart := date.Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	sessions, err := sessiondb.New(s.Bun).ListSessions(ctx, models.SessionFilter{Date: dayStart})
	if err != nil {
		return nil, apperr.Infrastructure(err, "failed to list sessions for %s", dayStart.Format("2006-01-02"))
	}

	tickets := ticketdb.New(s.Bun)
	events := NewDB(s.Bun)

	report := &models.DailyReport{
		Date:     dayStart,
		Sessions: make([]models.SessionReport, 0, len(sessions)),
	}

	for _, session := range sessions {
		sold, err := tickets.CountIssuedInRange(ctx, session.SessionID, dayStart, dayEnd)
		if err != nil {
			return nil, apperr.Infrastructure(err, "failed to count sold tickets")
		}
		cancelled, err := tickets.CountCancelledInRange(ctx, session.SessionID, dayStart, dayEnd)
		if err != nil {
			return nil, apperr.Infrastructure(err, "failed to count cancelled tickets")
		}
		entries, err := events.CountEvents(ctx, session.SessionID, models.AdmissionEntry, dayStart, dayEnd)
		if err != nil {
			return nil, apperr.Infrastructure(err, "failed to count entries")
		}
		exits, err := events.CountEvents(ctx, session.SessionID, models.AdmissionExit, dayStart, dayEnd)
		if err != nil {
			return nil, apperr.Infrastructure(err, "failed to count exits")
		}
		peak, err := events.PeakOccupancy(ctx, session.SessionID, dayStart, dayEnd)
		if err != nil {
			return nil, apperr.Infrastructure(err, "failed to compute peak occupancy")
		}

		report.Sessions = append(report.Sessions, models.SessionReport{
			SessionID:        session.SessionID,
			Name:             session.Name,
			TicketsSold:      sold,
			TicketsCancelled: cancelled,
			Entries:          entries,
			Exits:            exits,
			PeakOccupancy:    peak,
		})

		report.TicketsSold += sold
		report.TicketsCancelled += cancelled
		report.TotalEntries += entries
		report.TotalExits += exits
		if peak > report.PeakOccupancy {
			report.PeakOccupancy = peak
		}
	}

	return report, nil
}

// CreateMaintenanceLog appends an operator note. SessionID empty
// means facility-wide scope. Entries are never edited afterwards.
func (s *ReportService) CreateMaintenanceLog(ctx context.Context, sessionID, description, operatorID string) (*models.MaintenanceLogEntry, error) {
	if description == "" {
		return nil, apperr.Validation("maintenance description is required")
	}
	if operatorID == "" {
		return nil, apperr.Validation("maintenance entries require an operator")
	}
	if sessionID != "" {
		if _, err := sessiondb.New(s.Bun).GetSessionByID(ctx, sessionID); err != nil {
			return nil, apperr.NotFound("session %s not found", sessionID)
		}
	}

	entry := models.MaintenanceLogEntry{
		EntryID:     utils.GenerateEntryID(),
		SessionID:   sessionID,
		Description: description,
		OperatorID:  operatorID,
		CreatedAt:   s.Clock.Now(),
	}
	if err := NewDB(s.Bun).InsertMaintenanceLog(ctx, entry); err != nil {
		return nil, apperr.Infrastructure(err, "failed to append maintenance log")
	}

	s.Logger.Info("REPORT", fmt.Sprintf("Maintenance log %s by %s", entry.EntryID, operatorID))
	return &entry, nil
}

func (s *ReportService) GetMaintenanceLogs(ctx context.Context, sessionID string) ([]models.MaintenanceLogEntry, error) {
	entries, err := NewDB(s.Bun).ListMaintenanceLogs(ctx, sessionID)
	if err != nil {
		return nil, apperr.Infrastructure(err, "failed to list maintenance logs")
	}
	return entries, nil
}

// HandleAdmissionEvent mirrors a Kafka admission event into the daily
// tally table. Wired as the consumer handler in main.
func (s *ReportService) HandleAdmissionEvent(event models.AdmissionEventDto) {
	if event.Type != models.AdmissionEntry && event.Type != models.AdmissionExit {
		return
	}
	err := NewDB(s.Bun).BumpTally(context.Background(), event.SessionID, event.OccurredAt, event.Type)
	if err != nil {
		s.Logger.Error("REPORT", fmt.Sprintf("Failed to bump tally for session %s: %v", event.SessionID, err))
	}
}
