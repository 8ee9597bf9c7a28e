// Package main is the entry point for the invoice tracker API server.
// Its sole responsibility is wiring dependencies together and starting the server.
// No business logic belongs here.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/pkordes/lesson-invoices/backend/internal/config"
	"github.com/pkordes/lesson-invoices/backend/internal/distance"
	"github.com/pkordes/lesson-invoices/backend/internal/geo"
	"github.com/pkordes/lesson-invoices/backend/internal/handler"
	"github.com/pkordes/lesson-invoices/backend/internal/ingest"
	"github.com/pkordes/lesson-invoices/backend/internal/middleware"
	"github.com/pkordes/lesson-invoices/backend/internal/repo"
	"github.com/pkordes/lesson-invoices/backend/internal/route"
	"github.com/pkordes/lesson-invoices/backend/internal/service"
	"github.com/pkordes/lesson-invoices/backend/migrations"
)

func main() {
	// A missing .env is fine; the real environment still applies.
	_ = godotenv.Load()

	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if cfg.RoutingAPIKey == "" {
		logger.Warn("ROUTING_API_KEY not set; distances will be recorded as 0")
	}

	// --- Database ---------------------------------------------------------
	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	slog.Info("database connection established")

	if err := migrate(ctx, pool); err != nil {
		slog.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	// --- Domain -----------------------------------------------------------
	invoices := repo.NewInvoiceRepo(pool)
	addresses := repo.NewAddressRepo(pool)
	distances := repo.NewDistanceRepo(pool)

	client := geo.NewClient(geo.Config{
		APIKey:      cfg.RoutingAPIKey,
		BaseURL:     cfg.RoutingBaseURL,
		Profile:     cfg.RoutingProfile,
		MaxAttempts: cfg.RoutingMaxAttempts,
		Backoff:     cfg.RoutingBackoff,
	}, geo.NewLimiter(cfg.RoutingMinInterval), logger)

	cache := distance.NewCache(client, logger,
		distance.NewMemoryTier(),
		distance.NewStoreTier(distances),
	)
	calc := route.NewCalculator(cache, addresses, invoices, logger)

	uploadSvc := service.NewUploadService(invoices, ingest.NewParser(cfg.TotalAmountCell), logger)
	invoiceSvc := service.NewInvoiceService(invoices)
	routeSvc := service.NewRouteService(invoices, calc, cache, logger)
	addressSvc := service.NewAddressService(addresses)

	job := service.NewBackfillJob(routeSvc, uploadSvc, cfg.PendingUploadTTL, logger)
	uploadSvc.OnChange(job.Trigger)
	invoiceSvc.OnChange(job.Trigger)
	if cfg.BackfillSchedule != "" {
		if err := job.Schedule(cfg.BackfillSchedule); err != nil {
			slog.Error("invalid BACKFILL_SCHEDULE", "error", err)
			os.Exit(1)
		}
	}
	jobDone := make(chan struct{})
	go func() {
		defer close(jobDone)
		job.Run(ctx)
	}()

	// --- Router -----------------------------------------------------------
	// Middleware is applied in order: RequestID → RealIP → Logger → Recoverer → CORS → body limit.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(cfg.MaxUploadBytes))

	r.Mount("/", handler.NewServer(uploadSvc, invoiceSvc, routeSvc, addressSvc).Routes())

	// --- HTTP Server ------------------------------------------------------
	// Route computation calls a throttled provider, so writes get a long deadline.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	<-jobDone
	slog.Info("server stopped")
}

// migrate applies pending goose migrations using a database/sql handle that
// shares the pool's connections.
func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return err
	}
	for _, res := range results {
		slog.Info("migration applied", "version", res.Source.Version, "duration", res.Duration)
	}
	return nil
}
