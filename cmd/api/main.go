package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tidyops/tidyops-backend/api/routes"
	"github.com/tidyops/tidyops-backend/internal/assignments"
	"github.com/tidyops/tidyops-backend/internal/bookings"
	"github.com/tidyops/tidyops-backend/internal/charges"
	squarewebhook "github.com/tidyops/tidyops-backend/internal/webhooks/square"
	"github.com/tidyops/tidyops-backend/pkg/auth/session"
	"github.com/tidyops/tidyops-backend/pkg/config"
	"github.com/tidyops/tidyops-backend/pkg/db"
	"github.com/tidyops/tidyops-backend/pkg/logger"
	"github.com/tidyops/tidyops-backend/pkg/metrics"
	"github.com/tidyops/tidyops-backend/pkg/migrate"
	"github.com/tidyops/tidyops-backend/pkg/outbox"
	"github.com/tidyops/tidyops-backend/pkg/redis"
	"github.com/tidyops/tidyops-backend/pkg/square"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create square client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bookingMetrics := metrics.NewBookingMetrics(registry)

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	bookingService, err := bookings.NewService(
		bookings.NewRepository(dbClient.DB()),
		dbClient,
		outboxSvc,
		bookingMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create bookings service", err)
		os.Exit(1)
	}

	assignmentService, err := assignments.NewService(
		assignments.NewRepository(dbClient.DB()),
		dbClient,
		bookingService,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create assignments service", err)
		os.Exit(1)
	}

	chargesRepo := charges.NewRepository(dbClient.DB())
	chargeService, err := charges.NewService(
		chargesRepo,
		dbClient,
		bookingService,
		squareClient,
		squareClient,
		outboxSvc,
		bookingMetrics,
		logg,
		cfg.Square,
		cfg.Charges,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create charges service", err)
		os.Exit(1)
	}

	webhookService, err := squarewebhook.NewService(squarewebhook.ServiceParams{
		Events:            squarewebhook.NewEventStore(dbClient.DB()),
		Charges:           chargeService,
		Bookings:          bookingService,
		PaymentMethods:    chargesRepo,
		TransactionRunner: dbClient,
		Metrics:           bookingMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := squarewebhook.NewIdempotencyGuard(redisClient, cfg.Webhooks.DedupeTTL, "webhook:square")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:       cfg,
			Logger:       logg,
			DB:           dbClient.DB(),
			Redis:        redisClient,
			Metrics:      registry,
			Sessions:     sessionManager,
			Bookings:     bookingService,
			Assignments:  assignmentService,
			Charges:      chargeService,
			SquareClient: squareClient,
			WebhookSvc:   webhookService,
			WebhookGuard: webhookGuard,
		}),
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "error during server shutdown", err)
		}
	}

	logg.Info(ctx, "api server shutting down gracefully")
}
