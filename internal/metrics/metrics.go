// Package metrics holds the Prometheus collectors of a scrape run.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PagesFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fbref_pages_fetched_total",
			Help: "Pages requested from the remote host, by outcome.",
		},
		[]string{"outcome"},
	)
	FetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fbref_fetch_duration_seconds",
			Help:    "Page fetch latency including limiter wait.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		},
	)
	TablesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fbref_tables_skipped_total",
			Help: "Match page tables left out of the merge.",
		},
		[]string{"reason"},
	)
	RecordsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fbref_records_written_total",
			Help: "Rows handed to the sink, by kind and result.",
		},
		[]string{"kind", "result"},
	)
	MatchesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fbref_matches_processed_total",
			Help: "Match pages merged, by league.",
		},
		[]string{"league"},
	)
)

func init() {
	prometheus.MustRegister(PagesFetched, FetchDuration, TablesSkipped, RecordsWritten, MatchesProcessed)
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
