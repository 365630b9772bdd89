package main

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"ms-pooladmission/internal/models"
)

// bootstrapSchema creates the service tables from the bun models.
// Used for development databases; production schemas go through the
// file-based runner in internal/database/migrations.
func bootstrapSchema(ctx context.Context, bunDB *bun.DB) error {
	tables := []interface{}{
		(*models.Session)(nil),
		(*models.Ticket)(nil),
		(*models.BraceletAssignment)(nil),
		(*models.MaintenanceLogEntry)(nil),
		(*models.AdmissionEvent)(nil),
		(*models.AdmissionTally)(nil),
	}

	for _, table := range tables {
		_, err := bunDB.NewCreateTable().
			Model(table).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	log.Println("[Database] Schema bootstrap complete")
	return nil
}
