package models

import (
	"time"

	"github.com/uptrace/bun"
)

// SessionReport is the per-session slice of a daily report.
type SessionReport struct {
	SessionID        string `json:"session_id"`
	Name             string `json:"name"`
	TicketsSold      int    `json:"tickets_sold"`
	TicketsCancelled int    `json:"tickets_cancelled"`
	Entries          int    `json:"entries"`
	Exits            int    `json:"exits"`
	PeakOccupancy    int    `json:"peak_occupancy"`
}

// DailyReport aggregates committed ledger and gate records for all
// sessions within one calendar date. Rerunning it over the same data
// yields the same numbers.
type DailyReport struct {
	Date             time.Time       `json:"date"`
	TicketsSold      int             `json:"tickets_sold"`
	TicketsCancelled int             `json:"tickets_cancelled"`
	TotalEntries     int             `json:"total_entries"`
	TotalExits       int             `json:"total_exits"`
	PeakOccupancy    int             `json:"peak_occupancy"`
	Sessions         []SessionReport `json:"sessions"`
}

// AdmissionTally is a per-session daily counter mirrored from the
// Kafka admission stream for cheap dashboard reads. The authoritative
// report is computed from the admission_events ledger, not from here.
type AdmissionTally struct {
	bun.BaseModel `bun:"table:admission_tallies"`

	ID        int64     `bun:"id,pk,autoincrement"`
	SessionID string    `bun:"session_id,notnull"`
	Date      time.Time `bun:"date,notnull"`
	Entries   int       `bun:"entries,notnull,default:0"`
	Exits     int       `bun:"exits,notnull,default:0"`
}
