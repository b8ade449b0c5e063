// Package main is the entry point for the storefleet controller.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefleet/internal/config"
	"storefleet/internal/controller"
	"storefleet/internal/controller/middleware"
	"storefleet/internal/coordinator"
	"storefleet/internal/logger"
	"storefleet/internal/observability"
	"storefleet/internal/store/postgres"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to env-format config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New(cfg.App.LogLevel)

	ctx := context.Background()
	store, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer store.Close()

	if *migrateFlag {
		slogger.Info("running database migrations")
		if err := postgres.Migrate(store.DB()); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		slogger.Info("migrations completed")
	}

	// Tracing
	if cfg.OTel.Enabled {
		shutdownTracer, err := observability.InitTracer(ctx, cfg.OTel.ServiceName+"-controller", cfg.OTel.CollectorAddr)
		if err != nil {
			log.Fatalf("Failed to init tracing: %v", err)
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				slogger.Warn("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			slogger.Warn("failed to shutdown metrics", "error", err)
		}
	}()

	coord := coordinator.New(store, coordinator.DefaultHeartbeatFreshness, slogger)

	// Observable gauges that query the DB only when scraped.
	meter := otel.Meter("storefleet-controller")
	_, err = meter.Int64ObservableGauge("storefleet.queue.depth",
		metric.WithDescription("Current number of queued provisioning jobs"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			count, err := store.CountQueuedJobs(ctx)
			if err != nil {
				slogger.Warn("failed to count queue depth", "error", err)
				return nil // don't fail the scrape on a DB error
			}
			obs.Observe(count)
			return nil
		}),
	)
	if err != nil {
		slogger.Warn("failed to register queue depth metric", "error", err)
	}
	_, err = meter.Int64ObservableGauge("storefleet.servers.live",
		metric.WithDescription("Servers with a fresh heartbeat"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			live, err := coord.CountLiveServers(ctx)
			if err != nil {
				slogger.Warn("failed to count live servers", "error", err)
				return nil
			}
			obs.Observe(live)
			return nil
		}),
	)
	if err != nil {
		slogger.Warn("failed to register live servers metric", "error", err)
	}

	intake := middleware.IntakeLimit{
		RequestsPerMinute: cfg.Intake.RequestsPerMinute,
		Burst:             cfg.Intake.Burst,
	}
	srv := controller.New(cfg.Server.Addr(), store, coord, intake, metricsHandler)

	go func() {
		slogger.Info("controller starting", "addr", cfg.Server.Addr())
		if err := srv.Run(ctx); err != nil {
			slogger.Error("server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slogger.Info("shutting down controller")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	slogger.Info("server exited properly")
}
