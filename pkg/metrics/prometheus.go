package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	snapshots      *prometheus.CounterVec
	windowsReady   *prometheus.CounterVec
	predictions    *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	runStates      *prometheus.CounterVec
	activeRuns     prometheus.Gauge
	trainEpoch     prometheus.Gauge
	trainLoss      prometheus.Gauge
	trainAccuracy  prometheus.Gauge
	cacheEvents    *prometheus.CounterVec
	feedReconnects prometheus.Counter
	queueDepth     prometheus.Gauge
}

// New creates a Prometheus recorder with all collectors registered on the
// default registry.
func New() *Recorder {
	return &Recorder{
		snapshots: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lobcast_snapshots_ingested_total",
				Help: "Order book snapshots ingested per instrument",
			},
			[]string{"instrument"},
		),
		windowsReady: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lobcast_windows_ready_total",
				Help: "Rolling windows that reached full length",
			},
			[]string{"instrument"},
		),
		predictions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lobcast_predictions_total",
				Help: "Predictions served, by movement class",
			},
			[]string{"instrument", "class"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lobcast_errors_total",
				Help: "Errors encountered, by kind",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lobcast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		runStates: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lobcast_training_runs_total",
				Help: "Training run state transitions",
			},
			[]string{"status"},
		),
		activeRuns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lobcast_training_runs_active",
				Help: "Training runs currently in flight",
			},
		),
		trainEpoch: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lobcast_training_epoch",
				Help: "Epoch of the most recently polled run",
			},
		),
		trainLoss: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lobcast_training_loss",
				Help: "Loss of the most recently polled run",
			},
		),
		trainAccuracy: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lobcast_training_accuracy",
				Help: "Accuracy of the most recently polled run",
			},
		),
		cacheEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lobcast_prediction_cache_events_total",
				Help: "Prediction cache lookups, by result",
			},
			[]string{"result"},
		),
		feedReconnects: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lobcast_feed_reconnects_total",
				Help: "Depth feed reconnects",
			},
		),
		queueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lobcast_training_queue_depth",
				Help: "Jobs waiting in the training queue",
			},
		),
	}
}

// RecordSnapshot counts one ingested snapshot.
func (r *Recorder) RecordSnapshot(instrument string) {
	r.snapshots.WithLabelValues(instrument).Inc()
}

// RecordWindowReady counts a window that became full for an instrument.
func (r *Recorder) RecordWindowReady(instrument string) {
	r.windowsReady.WithLabelValues(instrument).Inc()
}

// RecordPrediction counts a served prediction by class name.
func (r *Recorder) RecordPrediction(instrument, class string) {
	r.predictions.WithLabelValues(instrument, class).Inc()
}

// RecordError counts an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency observes operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordRunState counts a run entering the given status.
func (r *Recorder) RecordRunState(status string) {
	r.runStates.WithLabelValues(status).Inc()
}

// SetActiveRuns sets the in-flight run gauge.
func (r *Recorder) SetActiveRuns(n int) {
	r.activeRuns.Set(float64(n))
}

// RecordTrainingProgress publishes the latest polled epoch metrics.
func (r *Recorder) RecordTrainingProgress(epoch int, loss, accuracy float64) {
	r.trainEpoch.Set(float64(epoch))
	r.trainLoss.Set(loss)
	r.trainAccuracy.Set(accuracy)
}

// RecordCache counts a prediction cache hit or miss.
func (r *Recorder) RecordCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheEvents.WithLabelValues(result).Inc()
}

// RecordFeedReconnect counts a depth feed reconnect.
func (r *Recorder) RecordFeedReconnect() {
	r.feedReconnects.Inc()
}

// SetQueueDepth sets the training queue depth gauge.
func (r *Recorder) SetQueueDepth(n int) {
	r.queueDepth.Set(float64(n))
}
