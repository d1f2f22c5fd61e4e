// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Pipeline metrics
	EventsClassified      *prometheus.CounterVec
	ResolverSourceUsed    *prometheus.CounterVec
	TradesAppended        prometheus.Counter
	TradesDuplicate       prometheus.Counter
	EventProcessingErrors *prometheus.CounterVec

	// Recompute metrics
	RecomputeRunsTotal *prometheus.CounterVec
	RecomputeDuration  prometheus.Histogram
	ClosedLotsWritten  prometheus.Counter
	OrphanSells        prometheus.Counter
	DustClosures       prometheus.Counter
	LockContention     prometheus.Counter
	MirrorErrors       prometheus.Counter

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCRetries     *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulIngestion prometheus.Gauge
	LastSuccessfulRecompute prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	return newMetrics(namespace, promauto.With(prometheus.DefaultRegisterer))
}

// NewMetricsWithRegistry creates a Metrics instance registered on reg.
// Tests use it with a fresh prometheus.Registry.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	return newMetrics(namespace, promauto.With(reg))
}

func newMetrics(namespace string, f promauto.Factory) *Metrics {
	if namespace == "" {
		namespace = "wallet_ledger"
	}

	return &Metrics{
		// Pipeline metrics
		EventsClassified: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "events_classified_total",
			Help:      "Total number of raw events classified, by outcome",
		}, []string{"outcome"}),
		ResolverSourceUsed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "resolver_source_used_total",
			Help:      "Total number of base amounts resolved, by source",
		}, []string{"source"}),
		TradesAppended: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "trades_appended_total",
			Help:      "Total number of trades appended to the ledger",
		}),
		TradesDuplicate: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "trades_duplicate_total",
			Help:      "Total number of resubmitted trades ignored by the ledger",
		}),
		EventProcessingErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "event_processing_errors_total",
			Help:      "Total number of event processing errors by stage",
		}, []string{"stage"}),

		// Recompute metrics
		RecomputeRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lots",
			Name:      "recompute_runs_total",
			Help:      "Total number of recompute runs by status",
		}, []string{"status"}),
		RecomputeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lots",
			Name:      "recompute_duration_seconds",
			Help:      "Recompute duration for one (wallet, token) pair in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
		ClosedLotsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lots",
			Name:      "closed_lots_written_total",
			Help:      "Total number of closed lots persisted",
		}),
		OrphanSells: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lots",
			Name:      "orphan_sells_total",
			Help:      "Total number of sells with volume exceeding open lots",
		}),
		DustClosures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lots",
			Name:      "dust_closures_total",
			Help:      "Total number of synthetic dust-closure lots produced",
		}),
		LockContention: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lots",
			Name:      "lock_contention_total",
			Help:      "Total number of recompute attempts that found the distributed lock held",
		}),
		MirrorErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lots",
			Name:      "mirror_errors_total",
			Help:      "Total number of failed analytics mirror writes",
		}),

		// Latency metrics
		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_retries_total",
			Help:      "Total number of retried Solana RPC attempts by method and reason",
		}, []string{"method", "reason"}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulIngestion: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of last successful ingestion",
		}),
		LastSuccessfulRecompute: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_recompute_timestamp",
			Help:      "Unix timestamp of last successful recompute",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordClassified increments the classified events counter for an outcome.
func RecordClassified(outcome string) {
	DefaultMetrics.EventsClassified.WithLabelValues(outcome).Inc()
}

// RecordResolverSource increments the resolver source counter.
func RecordResolverSource(source string) {
	DefaultMetrics.ResolverSourceUsed.WithLabelValues(source).Inc()
}

// RecordAppend records a ledger append result.
func RecordAppend(created bool) {
	if created {
		DefaultMetrics.TradesAppended.Inc()
		return
	}
	DefaultMetrics.TradesDuplicate.Inc()
}

// RecordEventError records an event processing error.
func RecordEventError(stage string) {
	DefaultMetrics.EventProcessingErrors.WithLabelValues(stage).Inc()
}

// RecordRecompute records one recompute run.
func RecordRecompute(status string, durationSeconds float64, lots, orphans, dust int) {
	DefaultMetrics.RecomputeRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.RecomputeDuration.Observe(durationSeconds)
	DefaultMetrics.ClosedLotsWritten.Add(float64(lots))
	DefaultMetrics.OrphanSells.Add(float64(orphans))
	DefaultMetrics.DustClosures.Add(float64(dust))
}

// RecordLockContention increments the lock contention counter.
func RecordLockContention() {
	DefaultMetrics.LockContention.Inc()
}

// RecordMirrorError increments the analytics mirror error counter.
func RecordMirrorError() {
	DefaultMetrics.MirrorErrors.Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordRPCRetry increments the RPC retry counter.
func RecordRPCRetry(method, reason string) {
	DefaultMetrics.RPCRetries.WithLabelValues(method, reason).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// MarkIngestion sets the last successful ingestion timestamp.
func MarkIngestion(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulIngestion.Set(float64(unixSeconds))
}

// MarkRecompute sets the last successful recompute timestamp.
func MarkRecompute(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulRecompute.Set(float64(unixSeconds))
}
