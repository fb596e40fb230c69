// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	CyclesTotal         prometheus.Counter
	CyclesSkipped       prometheus.Counter // ticks skipped because a cycle was still in flight
	CyclesAborted       prometheus.Counter // cycles aborted by snapshot-store errors
	FetchErrors         prometheus.Counter
	KeyPoolExhausted    prometheus.Counter
	NotificationsSent   prometheus.Counter
	NotificationsFailed prometheus.Counter
	MetadataLookups     prometheus.Counter

	// ChangesDetected is labelled by change kind (game_started, game_switched, ...).
	ChangesDetected *prometheus.CounterVec

	// Histograms (seconds)
	CycleDuration prometheus.Observer
	FetchDuration prometheus.Observer

	// Gauges
	TrackedAccountsGauge  prometheus.Gauge
	SchedulerRunningGauge prometheus.Gauge // 1=running,0=stopped
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "steamwatch_cycles_total", Help: "Number of watch cycles executed"})
		CyclesSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "steamwatch_cycles_skipped_total", Help: "Number of ticks skipped because the previous cycle was still running"})
		CyclesAborted = promauto.NewCounter(prometheus.CounterOpts{Name: "steamwatch_cycles_aborted_total", Help: "Number of cycles aborted by snapshot store errors"})
		FetchErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "steamwatch_fetch_errors_total", Help: "Number of per-account status fetch failures"})
		KeyPoolExhausted = promauto.NewCounter(prometheus.CounterOpts{Name: "steamwatch_key_pool_exhausted_total", Help: "Number of requests that failed on every API key"})
		NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "steamwatch_notifications_sent_total", Help: "Number of notifications handed to the sender"})
		NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "steamwatch_notifications_failed_total", Help: "Number of notification sends that failed"})
		MetadataLookups = promauto.NewCounter(prometheus.CounterOpts{Name: "steamwatch_metadata_lookups_total", Help: "Number of batched game metadata lookups"})
		ChangesDetected = promauto.NewCounterVec(prometheus.CounterOpts{Name: "steamwatch_changes_detected_total", Help: "Number of detected status changes by kind"}, []string{"kind"})
		CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "steamwatch_cycle_duration_seconds", Help: "Watch cycle duration seconds", Buckets: prometheus.DefBuckets})
		FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "steamwatch_fetch_duration_seconds", Help: "Status fetch phase duration seconds", Buckets: prometheus.DefBuckets})
		TrackedAccountsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "steamwatch_tracked_accounts", Help: "Current number of tracked accounts"})
		SchedulerRunningGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "steamwatch_scheduler_running", Help: "Scheduler running=1 stopped=0"})
	})
}

// UpdateSchedulerGauge sets gauge to 1 if running else 0.
func UpdateSchedulerGauge(running bool) {
	if SchedulerRunningGauge != nil {
		if running {
			SchedulerRunningGauge.Set(1)
		} else {
			SchedulerRunningGauge.Set(0)
		}
	}
}

// SetTrackedAccounts records the current tracked account count.
func SetTrackedAccounts(n int) {
	if TrackedAccountsGauge != nil {
		TrackedAccountsGauge.Set(float64(n))
	}
}

// CountChange increments the change counter for a kind label.
func CountChange(kind string) {
	if ChangesDetected != nil {
		ChangesDetected.WithLabelValues(kind).Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
