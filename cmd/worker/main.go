// Package main is the entry point for the storefleet worker.
// The worker is the host agent: it owns the tenant environments on its
// machine and runs their provisioning pipelines strictly one at a time.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefleet/internal/allocator"
	"storefleet/internal/certs"
	"storefleet/internal/config"
	"storefleet/internal/logger"
	"storefleet/internal/monitor"
	"storefleet/internal/notify"
	"storefleet/internal/observability"
	"storefleet/internal/pipeline"
	"storefleet/internal/pipeline/steps"
	"storefleet/internal/proxy"
	"storefleet/internal/runtime"
	"storefleet/internal/secrets"
	"storefleet/internal/store"
	"storefleet/internal/store/postgres"
	"storefleet/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "Path to env-format config file")
	metricsAddr := flag.String("metrics-addr", ":7072", "Metrics listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateWorker(); err != nil {
		log.Fatalf("Invalid worker config: %v", err)
	}

	slogger := logger.New(cfg.App.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.Close()

	// Tracing
	if cfg.OTel.Enabled {
		shutdownTracer, err := observability.InitTracer(ctx, cfg.OTel.ServiceName+"-worker", cfg.OTel.CollectorAddr)
		if err != nil {
			log.Fatalf("Failed to init tracing: %v", err)
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				slogger.Warn("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// Register this host; the upsert refreshes capacity and port range
	// on every boot.
	srv := &store.Server{
		Name:           cfg.Worker.ServerName,
		Address:        cfg.Worker.Address,
		MaxTenants:     cfg.Worker.MaxTenants,
		PortRangeStart: cfg.Worker.PortRangeStart,
		PortRangeEnd:   cfg.Worker.PortRangeEnd,
		Status:         store.ServerStatusActive,
	}
	serverID, err := worker.RegisterServer(ctx, db, srv)
	if err != nil {
		log.Fatalf("Failed to register server: %v", err)
	}
	slogger.Info("server registered", "server_id", serverID, "name", srv.Name)

	sealer, err := secrets.NewSealer(cfg.Secrets.SealingKey)
	if err != nil {
		log.Fatalf("Invalid sealing key: %v", err)
	}

	rt, err := runtime.NewComposeRuntime("docker", slogger)
	if err != nil {
		log.Fatalf("Failed to create compose runtime: %v", err)
	}

	routes := proxy.New(cfg.Proxy.ConfDir, cfg.Proxy.CheckCmd, cfg.Proxy.ReloadCmd, slogger)

	var issuer certs.Issuer = certs.NopIssuer{}
	if cfg.Certs.Enabled {
		issuer = certs.NewExternalIssuer(cfg.Certs.Command, cfg.Certs.Webroot, cfg.Certs.Email, 2*time.Minute, slogger)
	}

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL)
	}

	alloc := allocator.New(db, slogger)

	set := &steps.Set{
		Store:          db,
		Alloc:          alloc,
		Runtime:        rt,
		Routes:         routes,
		Issuer:         issuer,
		Notifier:       notifier,
		Sealer:         sealer,
		WorkspaceRoot:  cfg.Worker.WorkspaceRoot,
		HealthTimeout:  cfg.Worker.HealthTimeout,
		HealthInterval: cfg.Worker.HealthInterval,
		Log:            slogger,
	}

	runner := pipeline.NewRunner(db, set.Sequences(), slogger)

	agent := worker.New(db, runner, worker.AgentConfig{
		ServerID:          serverID,
		PollInterval:      cfg.Worker.PollInterval,
		MaxBackoff:        cfg.Worker.MaxBackoff,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
		JobStaleAfter:     cfg.Worker.JobStaleAfter,
		JanitorInterval:   cfg.Worker.JanitorInterval,
	}, slogger)

	heartbeat := worker.NewHeartbeat(db, serverID, cfg.Worker.HeartbeatInterval, slogger)
	janitor := worker.NewJanitor(db, cfg.Worker.JobStaleAfter, cfg.Worker.JanitorInterval, slogger)
	usage := monitor.New(db, notifier, monitor.Config{
		ServerID:      serverID,
		WorkspaceRoot: cfg.Worker.WorkspaceRoot,
		Interval:      cfg.Monitor.Interval,
		AlertCooldown: cfg.Monitor.AlertCooldown,
	}, slogger)

	go heartbeat.Run(ctx)
	go janitor.Run(ctx)
	go usage.Run(ctx)
	go agent.Run(ctx)

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

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		slogger.Info("worker metrics listening", "addr", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			slogger.Error("metrics server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slogger.Info("shutting down worker")
	cancel()

	<-agent.Done()
}
