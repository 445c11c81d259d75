package metrics

import (
	"EnergyDash/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// sessionStates lists every label value the state gauge can take.
var sessionStates = []string{"disconnected", "connecting", "open", "closed", "reconnect_wait", "torn_down"}

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	samplesTotal   prometheus.Counter
	dropsTotal     *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	reconnectTotal prometheus.Counter
	state          *prometheus.GaugeVec
	windowLen      prometheus.Gauge
	storage        prometheus.Gauge
	storagePercent prometheus.Gauge
	confidence     *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
}

// New creates a Prometheus metrics recorder on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder on reg, so tests can use a private registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		samplesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "energydash_samples_total",
			Help: "Total number of feed frames normalized into samples",
		}),
		dropsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "energydash_frames_dropped_total",
				Help: "Total number of feed frames dropped",
			},
			[]string{"reason"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "energydash_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		reconnectTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "energydash_reconnects_scheduled_total",
			Help: "Total number of reconnect timers armed",
		}),
		state: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "energydash_session_state",
				Help: "1 for the current stream session state, 0 otherwise",
			},
			[]string{"state"},
		),
		windowLen: f.NewGauge(prometheus.GaugeOpts{
			Name: "energydash_window_samples",
			Help: "Number of samples held in the rolling window",
		}),
		storage: f.NewGauge(prometheus.GaugeOpts{
			Name: "energydash_storage_kwh",
			Help: "Latest reported stored energy",
		}),
		storagePercent: f.NewGauge(prometheus.GaugeOpts{
			Name: "energydash_storage_percent",
			Help: "Latest stored energy as a percentage of capacity",
		}),
		confidence: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "energydash_recommendation_confidence",
				Help: "Confidence of the latest recommendation, labelled by action",
			},
			[]string{"action"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "energydash_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordSample records a committed sample.
func (r *Recorder) RecordSample(s models.Sample) {
	r.samplesTotal.Inc()
	r.storage.Set(s.Storage)
	r.storagePercent.Set(s.StoragePercent)
	r.confidence.Reset()
	r.confidence.WithLabelValues(string(s.Recommendation.Action)).Set(s.Recommendation.Confidence)
}

// RecordDrop records a dropped frame.
func (r *Recorder) RecordDrop(reason string) {
	r.dropsTotal.WithLabelValues(reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordReconnect records an armed reconnect timer.
func (r *Recorder) RecordReconnect() {
	r.reconnectTotal.Inc()
}

// RecordState flips the state gauge to the given state.
func (r *Recorder) RecordState(state string) {
	for _, s := range sessionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		r.state.WithLabelValues(s).Set(v)
	}
}

// RecordWindowLen records the rolling window length.
func (r *Recorder) RecordWindowLen(n int) {
	r.windowLen.Set(float64(n))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordSample(models.Sample)    {}
func (Nop) RecordDrop(string)             {}
func (Nop) RecordError(string)            {}
func (Nop) RecordReconnect()              {}
func (Nop) RecordState(string)            {}
func (Nop) RecordWindowLen(int)           {}
func (Nop) RecordLatency(string, float64) {}
