package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/FranksOps/endpoints/internal/endpoint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "endpoints_scans_total",
			Help: "Total number of finished scans by outcome",
		},
		[]string{"outcome"},
	)

	ItemsProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "endpoints_items_processed_total",
			Help: "Total number of history items processed across scans",
		},
	)

	CandidatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "endpoints_candidates_total",
			Help: "Total number of raw endpoint candidates extracted",
		},
	)

	ScanErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "endpoints_scan_errors_total",
			Help: "Total number of history items that failed during a scan",
		},
	)

	UniqueEndpoints = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "endpoints_unique_endpoints",
			Help: "Distinct endpoints found by the most recent scan",
		},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "endpoints_scan_duration_seconds",
			Help:    "Duration of scans in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 120},
		},
	)
)

// Outcome labels for ScansTotal.
const (
	OutcomeCompleted = "completed"
	OutcomeStopped   = "stopped"
	OutcomeFailed    = "failed"
)

// RecordScan updates the metrics from a finished scan.
func RecordScan(res endpoint.ScanResult) {
	outcome := OutcomeCompleted
	if res.Stopped {
		outcome = OutcomeStopped
	}

	ScansTotal.WithLabelValues(outcome).Inc()
	ItemsProcessedTotal.Add(float64(res.ProcessedItems))
	CandidatesTotal.Add(float64(res.TotalCandidates))
	ScanErrorsTotal.Add(float64(res.ErrorCount))
	UniqueEndpoints.Set(float64(res.UniqueEndpoints))
	ScanDuration.Observe((time.Duration(res.DurationMS) * time.Millisecond).Seconds())
}

// RecordFailure counts a scan that never produced a result.
func RecordFailure() {
	ScansTotal.WithLabelValues(OutcomeFailed).Inc()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics. A
// listen failure is logged to logger; stdout is left to the caller.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", srv.Addr, "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
