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
	// Feed metrics
	FramesReceived    *prometheus.CounterVec
	FramesSkipped     prometheus.Counter
	DecodeFailures    prometheus.Counter
	ReconnectsTotal   prometheus.Counter
	QueueDepth        prometheus.Gauge

	// Processing metrics
	TradesPersisted  prometheus.Counter
	TradesDuplicate  prometheus.Counter
	TradesInvalid    *prometheus.CounterVec
	BatchesProcessed prometheus.Counter
	BatchDuration    prometheus.Histogram
	RequeuesTotal    prometheus.Counter

	// Enrichment metrics
	MetadataFetches    *prometheus.CounterVec
	RateLimitedFetches prometheus.Counter
	SolPriceRefreshes  *prometheus.CounterVec

	// Aggregation metrics
	CandlesUpserted     *prometheus.CounterVec
	AggregationRuns     *prometheus.CounterVec
	AggregationDuration prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastTradePersisted prometheus.Gauge
	LastAggregationRun prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "trade_feed"
	}

	return &Metrics{
		// Feed metrics
		FramesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "frames_received_total",
			Help:      "Total number of data frames received by subject",
		}, []string{"subject"}),
		FramesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "frames_skipped_total",
			Help:      "Total number of malformed protocol lines skipped",
		}),
		DecodeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "decode_failures_total",
			Help:      "Total number of payloads dropped as undecodable",
		}),
		ReconnectsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Total number of reconnect attempts scheduled",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "queue_depth",
			Help:      "Current number of events waiting in the queue",
		}),

		// Processing metrics
		TradesPersisted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processing",
			Name:      "trades_persisted_total",
			Help:      "Total number of trades inserted into storage",
		}),
		TradesDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processing",
			Name:      "trades_duplicate_total",
			Help:      "Total number of trades skipped as already persisted",
		}),
		TradesInvalid: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processing",
			Name:      "trades_invalid_total",
			Help:      "Total number of trades dropped by validation reason",
		}, []string{"reason"}),
		BatchesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processing",
			Name:      "batches_processed_total",
			Help:      "Total number of drain batches processed",
		}),
		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "processing",
			Name:      "batch_duration_seconds",
			Help:      "Batch processing duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		RequeuesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processing",
			Name:      "requeues_total",
			Help:      "Total number of events requeued after persistence failure",
		}),

		// Enrichment metrics
		MetadataFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "metadata_fetches_total",
			Help:      "Total number of metadata fetches by status",
		}, []string{"status"}),
		RateLimitedFetches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "rate_limited_fetches_total",
			Help:      "Total number of fetches skipped by the rate limiter",
		}),
		SolPriceRefreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "sol_price_refreshes_total",
			Help:      "Total number of SOL/USD rate refreshes by status",
		}, []string{"status"}),

		// Aggregation metrics
		CandlesUpserted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "candles_upserted_total",
			Help:      "Total number of candles written by interval",
		}, []string{"interval"}),
		AggregationRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "runs_total",
			Help:      "Total number of aggregation runs by status",
		}, []string{"status"}),
		AggregationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "duration_seconds",
			Help:      "Aggregation run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastTradePersisted: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_trade_persisted_timestamp",
			Help:      "Unix timestamp of the last successfully persisted trade",
		}),
		LastAggregationRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_aggregation_run_timestamp",
			Help:      "Unix timestamp of the last successful aggregation run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordFrameReceived increments the received data frame counter.
func RecordFrameReceived(subject string) {
	DefaultMetrics.FramesReceived.WithLabelValues(subject).Inc()
}

// RecordFramesSkipped adds to the skipped protocol line counter.
func RecordFramesSkipped(n int) {
	DefaultMetrics.FramesSkipped.Add(float64(n))
}

// RecordDecodeFailure increments the undecodable payload counter.
func RecordDecodeFailure() {
	DefaultMetrics.DecodeFailures.Inc()
}

// RecordReconnectScheduled increments the reconnect counter.
func RecordReconnectScheduled() {
	DefaultMetrics.ReconnectsTotal.Inc()
}

// UpdateQueueDepth updates the event queue depth gauge.
func UpdateQueueDepth(depth int) {
	DefaultMetrics.QueueDepth.Set(float64(depth))
}

// RecordTradePersisted increments the persisted trade counter and
// refreshes the health timestamp.
func RecordTradePersisted(unixSeconds int64) {
	DefaultMetrics.TradesPersisted.Inc()
	DefaultMetrics.LastTradePersisted.Set(float64(unixSeconds))
}

// RecordTradeDuplicate increments the duplicate trade counter.
func RecordTradeDuplicate() {
	DefaultMetrics.TradesDuplicate.Inc()
}

// RecordTradeInvalid records a trade dropped by validation.
func RecordTradeInvalid(reason string) {
	DefaultMetrics.TradesInvalid.WithLabelValues(reason).Inc()
}

// RecordBatch records one processed drain batch.
func RecordBatch(seconds float64) {
	DefaultMetrics.BatchesProcessed.Inc()
	DefaultMetrics.BatchDuration.Observe(seconds)
}

// RecordRequeue increments the requeue counter.
func RecordRequeue() {
	DefaultMetrics.RequeuesTotal.Inc()
}

// RecordMetadataFetch records a metadata fetch outcome.
func RecordMetadataFetch(status string) {
	DefaultMetrics.MetadataFetches.WithLabelValues(status).Inc()
}

// RecordRateLimitedFetch increments the rate limited fetch counter.
func RecordRateLimitedFetch() {
	DefaultMetrics.RateLimitedFetches.Inc()
}

// RecordSolPriceRefresh records a SOL/USD rate refresh outcome.
func RecordSolPriceRefresh(status string) {
	DefaultMetrics.SolPriceRefreshes.WithLabelValues(status).Inc()
}

// RecordCandleUpserted increments the candle counter for an interval.
func RecordCandleUpserted(interval string) {
	DefaultMetrics.CandlesUpserted.WithLabelValues(interval).Inc()
}

// RecordAggregationRun records an aggregation run.
func RecordAggregationRun(status string, seconds float64, unixSeconds int64) {
	DefaultMetrics.AggregationRuns.WithLabelValues(status).Inc()
	DefaultMetrics.AggregationDuration.Observe(seconds)
	if status == "ok" {
		DefaultMetrics.LastAggregationRun.Set(float64(unixSeconds))
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
