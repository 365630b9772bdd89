package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-pooladmission/internal/auth"
	"ms-pooladmission/internal/bracelets/bracelet_api"
	bracelets "ms-pooladmission/internal/bracelets/service"
	"ms-pooladmission/internal/clock"
	"ms-pooladmission/internal/config"
	"ms-pooladmission/internal/database/migrations"
	"ms-pooladmission/internal/gate"
	"ms-pooladmission/internal/gate/gate_api"
	"ms-pooladmission/internal/kafka"
	"ms-pooladmission/internal/logger"
	"ms-pooladmission/internal/reports"
	reports_api "ms-pooladmission/internal/reports/api"
	"ms-pooladmission/internal/sessions/session_api"
	sessions "ms-pooladmission/internal/sessions/service"
	"ms-pooladmission/internal/tickets/qr"
	tickets "ms-pooladmission/internal/tickets/service"
	"ms-pooladmission/internal/tickets/ticket_api"
)

func connectDatabase(cfg *config.Config, log *logger.Logger) *bun.DB {
	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open Postgres: %v", err))
	}
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}
	log.Info("DATABASE", "Postgres connection successful")

	return bun.NewDB(sqldb, pgdialect.New())
}

func main() {
	_ = godotenv.Load() // Loads .env file if present

	cfg := config.Load()
	appLogger := logger.NewLogger()
	defer appLogger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bunDB := connectDatabase(cfg, appLogger)
	defer bunDB.Close()

	if ok, _ := strconv.ParseBool(os.Getenv("BOOTSTRAP_SCHEMA")); ok {
		if err := bootstrapSchema(ctx, bunDB); err != nil {
			appLogger.Fatal("DATABASE", fmt.Sprintf("Schema bootstrap failed: %v", err))
		}
	} else {
		opts := migrations.DefaultOptions()
		if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
			opts.MigrationsDir = dir
		}
		runner := migrations.NewRunner(bunDB, opts)
		if err := runner.Initialize(); err != nil {
			appLogger.Warn("DATABASE", fmt.Sprintf("Migrations unavailable: %v", err))
		} else if err := runner.Up(); err != nil {
			appLogger.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		} else if version, dirty, err := runner.Version(); err == nil {
			appLogger.Info("DATABASE", fmt.Sprintf("Schema at version %d (dirty=%t)", version, dirty))
		}
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		appLogger.Fatal("REDIS", fmt.Sprintf("Failed to connect to Redis: %v", err))
	}
	appLogger.Info("REDIS", "Redis connection successful")

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		topics := []string{
			cfg.Kafka.Topics.AdmissionEntry,
			cfg.Kafka.Topics.AdmissionExit,
			cfg.Kafka.Topics.OccupancyReset,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			appLogger.Warn("KAFKA", fmt.Sprintf("Topic bootstrap failed: %v", err))
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
	}

	realClock := clock.Real{}
	scanLock := gate.NewScanLock(rdb, cfg.Gate.ScanLockTTL)
	codeLock := bracelets.NewCodeLock(rdb, cfg.Gate.ScanLockTTL)
	qrGen := qr.NewGenerator(cfg.Gate.QRSecret)

	var publisher gate.EventPublisher
	if producer != nil {
		publisher = producer
	}

	admissionGate := gate.New(bunDB, scanLock, publisher, realClock, appLogger, cfg.Gate, cfg.Kafka.Topics)
	sessionService := sessions.NewSessionService(bunDB, realClock, appLogger)
	ticketService := tickets.NewTicketService(bunDB, admissionGate, qrGen, realClock, appLogger, cfg.Gate)
	braceletService := bracelets.NewBraceletService(bunDB, codeLock, realClock, appLogger)
	reportService := reports.NewReportService(bunDB, realClock, appLogger)

	if cfg.Kafka.Enabled {
		for _, topic := range []string{cfg.Kafka.Topics.AdmissionEntry, cfg.Kafka.Topics.AdmissionExit} {
			consumer := kafka.NewConsumer(cfg.Kafka.Brokers, topic, cfg.Kafka.GroupID, appLogger)
			defer consumer.Close()
			go consumer.Start(ctx, reportService.HandleAdmissionEvent)
		}
	}

	sessionHandler := session_api.NewHandler(sessionService, appLogger)
	ticketHandler := ticket_api.NewHandler(ticketService, appLogger)
	gateHandler := gate_api.NewHandler(ticketService, admissionGate, appLogger)
	braceletHandler := bracelet_api.NewHandler(braceletService, appLogger)
	reportHandler := reports_api.NewHandler(reportService, appLogger)

	var verifier auth.Verifier
	if cfg.Auth.OIDCIssuer != "" {
		v, err := auth.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer)
		if err != nil {
			appLogger.Fatal("AUTH", fmt.Sprintf("Failed to create OIDC verifier: %v", err))
		}
		verifier = v
	}

	r := chi.NewRouter()

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", sessionHandler.ListSessions)
		r.Get("/{sessionID}", sessionHandler.GetSession)
		r.Get("/{sessionID}/availability", sessionHandler.GetAvailability)
		r.Get("/{sessionID}/bracelets", braceletHandler.GetActiveBracelets)

		if verifier != nil {
			r.Group(func(r chi.Router) {
				r.Use(auth.Middleware(verifier))
				r.Use(auth.RequireRole(cfg.Auth.AdminRole))
				r.Post("/", sessionHandler.CreateSession)
				r.Patch("/{sessionID}", sessionHandler.UpdateSession)
				r.Delete("/{sessionID}", sessionHandler.DeleteSession)
			})
		} else {
			r.Post("/", sessionHandler.CreateSession)
			r.Patch("/{sessionID}", sessionHandler.UpdateSession)
			r.Delete("/{sessionID}", sessionHandler.DeleteSession)
		}
	})

	r.Route("/tickets", func(r chi.Router) {
		if verifier != nil {
			r.With(auth.OptionalMiddleware(verifier)).Post("/", ticketHandler.PurchaseTicket)
			r.With(auth.Middleware(verifier)).Get("/mine", ticketHandler.GetMyTickets)
			r.With(auth.Middleware(verifier)).Post("/{ticketID}/cancel", ticketHandler.CancelTicket)
		} else {
			r.Post("/", ticketHandler.PurchaseTicket)
			r.Get("/mine", ticketHandler.GetMyTickets)
			r.Post("/{ticketID}/cancel", ticketHandler.CancelTicket)
		}
		r.Get("/{ticketID}", ticketHandler.GetTicket)
		r.Get("/{ticketID}/validate", ticketHandler.ValidateTicket)
	})

	r.Route("/gate", func(r chi.Router) {
		if verifier != nil {
			r.Group(func(r chi.Router) {
				r.Use(auth.Middleware(verifier))
				r.Use(auth.RequireRole(cfg.Auth.GateRole))
				r.Post("/entry", gateHandler.RecordEntry)
				r.Post("/exit", gateHandler.RecordExit)
				r.Get("/sessions/{sessionID}", gateHandler.GetStatus)
			})
			r.With(auth.Middleware(verifier), auth.RequireRole(cfg.Auth.AdminRole)).
				Post("/sessions/{sessionID}/reset", gateHandler.ResetOccupancy)
		} else {
			r.Post("/entry", gateHandler.RecordEntry)
			r.Post("/exit", gateHandler.RecordExit)
			r.Get("/sessions/{sessionID}", gateHandler.GetStatus)
			r.Post("/sessions/{sessionID}/reset", gateHandler.ResetOccupancy)
		}
	})

	r.Route("/bracelets", func(r chi.Router) {
		if verifier != nil {
			r.Use(auth.Middleware(verifier))
			r.Use(auth.RequireRole(cfg.Auth.GateRole))
		}
		r.Post("/", braceletHandler.AssignBracelet)
		r.Post("/{code}/return", braceletHandler.ReturnBracelet)
		r.Get("/{code}", braceletHandler.SearchByBracelet)
	})

	r.Route("/reports", func(r chi.Router) {
		if verifier != nil {
			r.Use(auth.Middleware(verifier))
			r.Use(auth.RequireRole(cfg.Auth.AdminRole))
		}
		r.Get("/daily", reportHandler.GetDailyReport)
		r.Post("/maintenance", reportHandler.CreateMaintenanceLog)
		r.Get("/maintenance", reportHandler.GetMaintenanceLogs)
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		appLogger.Info("SERVER", fmt.Sprintf("Pool admission service on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("SERVER", fmt.Sprintf("HTTP error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel()
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = server.Shutdown(ctxShutdown)
	appLogger.Info("SERVER", "Shutdown complete")
}
