// Package httpapi serves the local debug surface: liveness, the stats
// document, and Prometheus metrics. It binds to loopback by default and
// carries no authentication.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wayfinder-io/wayfinder/internal/pkg/metrics"
	"github.com/wayfinder-io/wayfinder/pkg/log"
)

// StatsReporter supplies the document served at /stats.
type StatsReporter interface {
	Report() any
}

// ReporterFunc adapts a plain function to StatsReporter.
type ReporterFunc func() any

func (f ReporterFunc) Report() any { return f() }

// Server is the debug HTTP server.
type Server struct {
	server *http.Server
}

// NewServer builds the debug server on addr.
func NewServer(addr string, reporter StatsReporter) *Server {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reporter.Report()); err != nil {
			log.Error(err, "Failed to encode stats document")
		}
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: r,
		},
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	log.Info("Starting debug HTTP server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
