package pipeline

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	rowsExtractedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "extractor_rows_total",
			Help: "Total number of rows accepted from the dataset API",
		},
	)

	batchesExtractedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "extractor_batches_total",
			Help: "Total number of successfully fetched pages",
		},
	)

	failedAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "extractor_failed_attempts_total",
			Help: "Total number of unsuccessful fetch attempts",
		},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_runs_total",
			Help: "Extraction runs by outcome",
		},
		[]string{"status"}, // success, failure
	)

	batchDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "extractor_batch_duration_seconds",
			Help:    "Duration of one accepted page fetch",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
	)
)

// PromObserver bridges run events into the prometheus registry.
type PromObserver struct{}

func (PromObserver) OnEvent(ev RunEvent) {
	switch ev.Kind {
	case EventBatchFetched:
		rowsExtractedTotal.Add(float64(ev.Rows))
		batchesExtractedTotal.Inc()
		batchDurationSeconds.Observe(ev.Elapsed.Seconds())
	case EventAttemptFailed:
		failedAttemptsTotal.Inc()
	case EventRunFinished:
		if ev.Err != nil {
			runsTotal.WithLabelValues("failure").Inc()
		} else {
			runsTotal.WithLabelValues("success").Inc()
		}
	}
}

// StartMetricsServer exposes /metrics on the given port in the
// background until ctx is cancelled. Exposition is best-effort and
// never blocks extraction.
func StartMetricsServer(ctx context.Context, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.S().Errorw("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.S().Warnw("metrics server shutdown failed", "error", err)
		}
	}()
	zap.S().Infow("metrics endpoint running", "port", port)
}
