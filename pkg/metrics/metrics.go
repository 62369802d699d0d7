// Package metrics exposes replication counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// passTotal counts finished passes by result (ok, error).
	passTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitcouch_pass_total",
		Help: "Replication passes by result",
	}, []string{"result"})

	passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gitcouch_pass_duration_seconds",
		Help:    "Replication pass duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 16), // 10ms to ~5min
	})

	// writeTotal counts document writes by kind and outcome
	// (created, updated, unchanged, error).
	writeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitcouch_document_writes_total",
		Help: "Document writes by kind and outcome",
	}, []string{"kind", "outcome"})

	conflictTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gitcouch_write_conflicts_total",
		Help: "Revision conflicts retried by the write protocol",
	})

	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitcouch_source_fetches_total",
		Help: "Objects fetched from the source by kind",
	}, []string{"kind"})

	cacheResetTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gitcouch_cache_resets_total",
		Help: "Times the materialized-document cache overflowed and was reset",
	})

	truncationTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gitcouch_pending_truncations_total",
		Help: "Times the pending work list was truncated",
	})

	pendingDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gitcouch_pending_depth",
		Help: "Current length of the pending work list",
	})
)

// ObservePass records one finished pass.
func ObservePass(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	passTotal.WithLabelValues(result).Inc()
	passDuration.Observe(d.Seconds())
}

// ObserveWrite records one document write.
func ObserveWrite(kind, outcome string, conflicts int) {
	writeTotal.WithLabelValues(kind, outcome).Inc()
	if conflicts > 0 {
		conflictTotal.Add(float64(conflicts))
	}
}

// ObserveFetch records one source fetch.
func ObserveFetch(kind string) {
	fetchTotal.WithLabelValues(kind).Inc()
}

// ObserveCacheReset records a cache overflow.
func ObserveCacheReset() {
	cacheResetTotal.Inc()
}

// ObserveTruncation records a work-list truncation.
func ObserveTruncation() {
	truncationTotal.Inc()
}

// SetPendingDepth publishes the work-list length.
func SetPendingDepth(n int) {
	pendingDepth.Set(float64(n))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
