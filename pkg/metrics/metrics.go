// Package metrics exposes the Prometheus metrics of dashboard-news.
// All metrics are defined in their respective packages (client, batch, cache,
// ledger, raster, publish) with promauto and registered on the default
// registry. This package serves them and documents the catalogue.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the Prometheus registerer every package registers on.
var Registry = prometheus.DefaultRegisterer

// Gatherer is read by the /metrics handler.
var Gatherer = prometheus.DefaultGatherer

// ShutdownTimeout bounds the graceful stop of the metrics server.
const ShutdownTimeout = 5 * time.Second

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - sumo_requests_total{method, status} (Counter): API requests by method and HTTP status
//   - sumo_request_duration_seconds{method} (Histogram): request duration by method
//   - sumo_errors_total{class} (Counter): errors by class (client, server, network)
//
// Export Job Metrics (pkg/client):
//   - sumo_export_polls_total{status} (Counter): status checks by observed status
//   - sumo_export_jobs_total{outcome} (Counter): jobs by outcome (success, exhausted, error)
//   - sumo_export_wait_seconds (Histogram): time spent waiting between status checks per job
//
// Batch Metrics (pkg/batch):
//   - dashboard_news_entries_total{stage, outcome} (Counter): dashboards by final stage and outcome
//   - dashboard_news_run_duration_seconds (Histogram): duration of a whole run
//
// Rasterizer Metrics (pkg/raster):
//   - dashboard_news_pages_rendered_total{rasterizer} (Counter): page images written
//
// Cache Metrics (pkg/cache):
//   - dashboard_news_cache_hits_total (Counter): endpoint cache hits
//   - dashboard_news_cache_misses_total (Counter): endpoint cache misses
//   - dashboard_news_cache_errors_total{operation} (Counter): cache operation errors
//
// Ledger Metrics (pkg/ledger):
//   - dashboard_news_ledger_writes_total{kind, result} (Counter): ledger writes
//
// Publish Metrics (pkg/publish):
//   - dashboard_news_reports_published_total{result} (Counter): report uploads
//   - dashboard_news_publish_duration_seconds (Histogram): upload duration
//
// Example Prometheus Queries:
//
//   # Share of jobs that ran out of poll budget
//   sum(rate(sumo_export_jobs_total{outcome="exhausted"}[1h])) /
//   sum(rate(sumo_export_jobs_total[1h]))
//
//   # Failed dashboards per stage
//   sum by (stage) (dashboard_news_entries_total{outcome="failed"})
//
//   # P95 API latency
//   histogram_quantile(0.95, rate(sumo_request_duration_seconds_bucket[5m]))

// Handler returns a mux serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// Server serves Handler until its context ends.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   zerolog.Logger
}

// Listen binds addr. Use ":0" for an ephemeral port.
func Listen(addr string, logger zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return &Server{
		srv: &http.Server{
			Handler:           Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		logger:   logger,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until ctx is done, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.Addr()).Msg("Serving metrics")
		errCh <- s.srv.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return nil
}
