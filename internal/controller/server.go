// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"net/http"
	"time"

	"storefleet/internal/controller/handlers"
	"storefleet/internal/controller/middleware"
)

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server. metricsHandler serves the
// Prometheus scrape endpoint and may be nil.
func New(addr string, store handlers.StoreFactory, placer handlers.Placer, intake middleware.IntakeLimit, metricsHandler http.Handler) *Server {
	h := handlers.New(store, placer)
	limitMW := middleware.RateLimit(intake)

	mux := http.NewServeMux()

	// Intake is rate limited per client; provisioning work is expensive
	// compared to the request that triggers it.
	mux.Handle("POST /stores", limitMW(http.HandlerFunc(h.CreateStore)))

	mux.HandleFunc("GET /stores/{id}", h.GetStore)
	mux.HandleFunc("GET /stores/{id}/jobs", h.ListStoreJobs)
	mux.HandleFunc("POST /stores/{id}/retry", h.RetryStore)
	mux.HandleFunc("POST /stores/{id}/suspend", h.SuspendStore)
	mux.HandleFunc("POST /stores/{id}/resume", h.ResumeStore)
	mux.HandleFunc("DELETE /stores/{id}", h.DeleteStore)

	// Fleet management. These should sit behind strict network rules;
	// worker hosts register themselves here on boot.
	mux.HandleFunc("POST /servers", h.RegisterServer)
	mux.HandleFunc("GET /servers", h.ListServers)
	mux.HandleFunc("PUT /servers/{id}/maintenance", h.SetMaintenance)
	mux.HandleFunc("GET /fleet/status", h.FleetStatus)

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      middleware.RequestID(mux),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
