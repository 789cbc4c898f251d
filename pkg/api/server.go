// Package api KMALL inspection REST API
//
// @title           KMALL REST API
// @version         1.0.0
// @description     Read-only inspection API over a directory of KMALL multibeam files.
// @host            localhost:8080
// @BasePath        /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in              header
// @name            X-API-Key
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

// NewRouter builds the HTTP handler with all routes configured
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Prometheus metrics endpoint (unprotected for scraping)
	if s.config.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	m := s.metrics
	r.Route("/api/v1", func(r chi.Router) {
		if s.config.APIKey != "" {
			r.Use(apiKeyMiddleware(s.config.APIKey))
		}

		r.Get("/health", m.InstrumentHandler("GET", "/api/v1/health", s.handleHealth))
		r.Get("/format", m.InstrumentHandler("GET", "/api/v1/format", s.handleFormat))

		// Files
		r.Get("/files", m.InstrumentHandler("GET", "/api/v1/files", s.handleListFiles))
		r.Get("/files/index/*", m.InstrumentHandler("GET", "/api/v1/files/index/{name}", s.handleIndex))
		r.Get("/files/records/*", m.InstrumentHandler("GET", "/api/v1/files/records/{name}", s.handleRecords))
	})

	return r
}

// StartServer serves the API until ctx is cancelled, then shuts down
// gracefully.
func StartServer(ctx context.Context, s *Server) error {
	addr := net.JoinHostPort(s.config.Bind, strconv.Itoa(s.config.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(s),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting KMALL REST API server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("serve %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down KMALL REST API server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
