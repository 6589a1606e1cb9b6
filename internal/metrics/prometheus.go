// Package metrics registers and records Prometheus metrics for all gateway
// subsystems: MQTT measurement ingestion, outcome batching, the bit pool,
// randomness validation verdicts, and the analysis HTTP API.
package metrics

import (
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MQTTInboundMessages prometheus.Counter
	MQTTConnected       prometheus.Gauge
	MQTTConnects        prometheus.Counter
	MQTTDisconnects     prometheus.Counter
	MQTTReconnects      prometheus.Counter

	BitsReceived  prometheus.Counter
	EventsDropped *prometheus.CounterVec

	BatchesFlushed         prometheus.Counter
	BatchSize              prometheus.Histogram
	CollectorPoolSize      prometheus.Gauge
	CollectorBatchSize     prometheus.Gauge
	CollectorFlushDuration prometheus.Histogram

	PoolBits           prometheus.Gauge
	PoolDraws          prometheus.Counter
	PoolDrawnBits      prometheus.Counter
	PoolRejections     *prometheus.CounterVec
	RepetitionFailures prometheus.Counter
	ProportionFailures prometheus.Counter

	BatchEntropyRatio prometheus.Histogram
	BatchMinEntropy   prometheus.Histogram
	TestRuns          *prometheus.CounterVec
	TestFailures      *prometheus.CounterVec

	APIRequests    *prometheus.CounterVec
	API503Total    prometheus.Counter
	APIRateLimited prometheus.Counter
	APILatency     prometheus.Histogram

	metricsMu         sync.RWMutex
	currentRegisterer prometheus.Registerer = prometheus.DefaultRegisterer
)

func init() {
	resetMetrics(prometheus.DefaultRegisterer)
}

// SetRegisterer sets a new registerer and reinitializes all metrics.
// It returns the previous registerer so it can be restored later.
// This function is thread-safe and designed for use in tests to provide
// isolated metric registries per test.
func SetRegisterer(registerer prometheus.Registerer) prometheus.Registerer {
	metricsMu.Lock()
	defer metricsMu.Unlock()

	previous := currentRegisterer

	if currentRegisterer != nil {
		unregisterAll(currentRegisterer)
	}

	currentRegisterer = registerer
	initializeMetrics(registerer)

	return previous
}

// ResetForTesting reconfigures all metric collectors against the provided
// registerer. It unregisters the existing metrics from the previous
// registerer to prevent duplicate registrations when invoked repeatedly.
func ResetForTesting(registerer prometheus.Registerer) {
	resetMetrics(registerer)
}

func resetMetrics(registerer prometheus.Registerer) {
	metricsMu.Lock()
	defer metricsMu.Unlock()

	if currentRegisterer != nil {
		unregisterAll(currentRegisterer)
	}

	currentRegisterer = registerer
	initializeMetrics(registerer)
}

// initializeMetrics creates all metrics using the provided registerer.
// This function must be called while holding metricsMu.
func initializeMetrics(registerer prometheus.Registerer) {
	factory := promauto.With(registerer)

	MQTTInboundMessages = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "qrng_mqtt_inbound_messages_total",
			Help: "Total number of MQTT messages received from the quantum device",
		},
	)

	MQTTConnected = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "qrng_mqtt_connected",
			Help: "Whether the MQTT client is currently connected (1) or not (0)",
		},
	)

	MQTTConnects = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "qrng_mqtt_connects_total",
			Help: "Total number of successful MQTT connections",
		},
	)

	MQTTDisconnects = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "qrng_mqtt_disconnects_total",
			Help: "Total number of MQTT disconnections",
		},
	)

	MQTTReconnects = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "qrng_mqtt_reconnects_total",
			Help: "Total number of MQTT reconnections",
		},
	)

	BitsReceived = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "qrng_bits_received_total",
			Help: "Total number of measurement bits parsed from MQTT payloads",
		},
	)

	EventsDropped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrng_events_dropped_total",
			Help: "Total number of measurement messages dropped",
		},
		[]string{"reason"},
	)

	BatchesFlushed = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "qrng_batches_flushed_total",
			Help: "Total number of outcome batches flushed to the bit pool",
		},
	)

	BatchSize = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qrng_batch_size_bits",
			Help:    "Distribution of flushed batch sizes in bits",
			Buckets: prometheus.ExponentialBuckets(64, 2, 12),
		},
	)

	CollectorPoolSize = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "qrng_collector_buffered_bits",
			Help: "Number of bits currently buffered by the batch collector",
		},
	)

	CollectorBatchSize = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "qrng_collector_batch_size_bits",
			Help: "Configured collector batch size in bits",
		},
	)

	CollectorFlushDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qrng_collector_flush_duration_seconds",
			Help:    "Time taken to dispatch a batch to the bit pool",
			Buckets: prometheus.DefBuckets,
		},
	)

	PoolBits = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "qrng_pool_bits",
			Help: "Number of bits currently stored in the bit pool",
		},
	)

	PoolDraws = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "qrng_pool_draws_total",
			Help: "Total number of successful draws served by the bit pool",
		},
	)

	PoolDrawnBits = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "qrng_pool_drawn_bits_total",
			Help: "Total number of bits handed out by the bit pool",
		},
	)

	PoolRejections = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrng_pool_rejections_total",
			Help: "Total number of rejected draw attempts",
		},
		[]string{"reason"},
	)

	RepetitionFailures = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "qrng_health_repetition_failures_total",
			Help: "Total number of repetition count health check failures",
		},
	)

	ProportionFailures = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "qrng_health_proportion_failures_total",
			Help: "Total number of adaptive proportion health check failures",
		},
	)

	BatchEntropyRatio = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qrng_batch_entropy_ratio",
			Help:    "Shannon entropy ratio of ingested batches (0.0-1.0)",
			Buckets: prometheus.LinearBuckets(0.0, 0.05, 21),
		},
	)

	BatchMinEntropy = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qrng_batch_min_entropy_bits",
			Help:    "Conservative min-entropy estimate of ingested batches (bits/sample)",
			Buckets: prometheus.LinearBuckets(0.0, 0.05, 21),
		},
	)

	TestRuns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrng_tests_run_total",
			Help: "Total number of randomness test executions by test name",
		},
		[]string{"test"},
	)

	TestFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrng_tests_failed_total",
			Help: "Total number of randomness test failures by test name",
		},
		[]string{"test"},
	)

	APIRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrng_api_requests_total",
			Help: "Total number of analysis API requests by HTTP status code",
		},
		[]string{"code"},
	)

	API503Total = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "qrng_api_unavailable_total",
			Help: "Total number of analysis API requests answered with 503",
		},
	)

	APIRateLimited = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "qrng_api_rate_limited_total",
			Help: "Total number of analysis API requests rejected by the rate limiter",
		},
	)

	APILatency = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qrng_api_request_duration_seconds",
			Help:    "Analysis API request latency",
			Buckets: prometheus.DefBuckets,
		},
	)
}

// unregisterAll removes every collector from the given registerer so a
// subsequent initializeMetrics call cannot collide.
func unregisterAll(registerer prometheus.Registerer) {
	collectors := []prometheus.Collector{
		MQTTInboundMessages,
		MQTTConnected,
		MQTTConnects,
		MQTTDisconnects,
		MQTTReconnects,
		BitsReceived,
		EventsDropped,
		BatchesFlushed,
		BatchSize,
		CollectorPoolSize,
		CollectorBatchSize,
		CollectorFlushDuration,
		PoolBits,
		PoolDraws,
		PoolDrawnBits,
		PoolRejections,
		RepetitionFailures,
		ProportionFailures,
		BatchEntropyRatio,
		BatchMinEntropy,
		TestRuns,
		TestFailures,
		APIRequests,
		API503Total,
		APIRateLimited,
		APILatency,
	}

	for _, collector := range collectors {
		if collector == nil {
			continue
		}
		// Concrete-typed vars such as *prometheus.CounterVec produce a
		// non-nil interface even when the pointer itself is nil.
		if v := reflect.ValueOf(collector); v.Kind() == reflect.Pointer && v.IsNil() {
			continue
		}
		registerer.Unregister(collector)
	}
}

// RecordMQTTMessage counts one inbound MQTT message.
func RecordMQTTMessage() {
	MQTTInboundMessages.Inc()
}

// SetMQTTConnected reflects the broker connection state.
func SetMQTTConnected(connected bool) {
	if connected {
		MQTTConnected.Set(1)
		return
	}
	MQTTConnected.Set(0)
}

// RecordMQTTConnect counts a successful broker connection.
func RecordMQTTConnect() {
	MQTTConnects.Inc()
}

// RecordMQTTDisconnect counts a broker disconnection.
func RecordMQTTDisconnect() {
	MQTTDisconnects.Inc()
}

// RecordMQTTReconnect counts a broker reconnection.
func RecordMQTTReconnect() {
	MQTTReconnects.Inc()
}

// RecordBitsReceived counts measurement bits parsed from MQTT payloads.
func RecordBitsReceived(count int) {
	if count > 0 {
		BitsReceived.Add(float64(count))
	}
}

// RecordEventDropped counts a dropped measurement message by reason.
func RecordEventDropped(reason string) {
	EventsDropped.WithLabelValues(reason).Inc()
}

// RecordBatchFlush records a flushed batch and its dispatch duration.
func RecordBatchFlush(sizeBits int, duration time.Duration) {
	BatchesFlushed.Inc()
	BatchSize.Observe(float64(sizeBits))
	CollectorFlushDuration.Observe(duration.Seconds())
}

// SetCollectorPoolSize reflects the number of buffered collector bits.
func SetCollectorPoolSize(bits int) {
	CollectorPoolSize.Set(float64(bits))
}

// SetCollectorBatchSize reflects the configured collector batch size.
func SetCollectorBatchSize(bits int) {
	CollectorBatchSize.Set(float64(bits))
}

// SetPoolBits reflects the current bit pool fill level.
func SetPoolBits(bits int) {
	PoolBits.Set(float64(bits))
}

// RecordDraw records a successful pool draw of the given size.
func RecordDraw(bits int) {
	PoolDraws.Inc()
	PoolDrawnBits.Add(float64(bits))
}

// RecordPoolRejection counts a rejected draw attempt by reason.
func RecordPoolRejection(reason string) {
	PoolRejections.WithLabelValues(reason).Inc()
}

// RecordRepetitionFailure counts a repetition count health check failure.
func RecordRepetitionFailure() {
	RepetitionFailures.Inc()
}

// RecordProportionFailure counts an adaptive proportion health check failure.
func RecordProportionFailure() {
	ProportionFailures.Inc()
}

// RecordBatchQuality records the entropy metrics of an ingested batch.
func RecordBatchQuality(entropyRatio, minEntropy float64) {
	BatchEntropyRatio.Observe(entropyRatio)
	BatchMinEntropy.Observe(minEntropy)
}

// RecordTestVerdict counts one execution of the named randomness test and
// its failure when passed is false.
func RecordTestVerdict(test string, passed bool) {
	TestRuns.WithLabelValues(test).Inc()
	if !passed {
		TestFailures.WithLabelValues(test).Inc()
	}
}

// RecordAPIRequest records one analysis API request with its status code
// and latency.
func RecordAPIRequest(code int, duration time.Duration) {
	APIRequests.WithLabelValues(strconv.Itoa(code)).Inc()
	APILatency.Observe(duration.Seconds())
}

// RecordAPI503 counts an analysis API request answered with 503.
func RecordAPI503() {
	API503Total.Inc()
}

// RecordAPIRateLimited counts a rate-limited analysis API request.
func RecordAPIRateLimited() {
	APIRateLimited.Inc()
}
