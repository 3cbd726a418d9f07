package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sheharfix"

// Metrics groups the classifier's Prometheus collectors.
type Metrics struct {
	Predictions   *prometheus.CounterVec
	Failures      *prometheus.CounterVec
	Latency       prometheus.Histogram
	PersistErrors prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Successful classifications by predicted label.",
		}, []string{"label"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_failures_total",
			Help:      "Classification requests that produced an error result, by kind.",
		}, []string{"kind"}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classify_duration_seconds",
			Help:      "Time spent in decode, preprocessing and inference.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		PersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Failed writes of the latest prediction.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Predictions, m.Failures, m.Latency, m.PersistErrors)
	}
	return m
}

func (m *Metrics) ObserveSuccess(label string, elapsed time.Duration) {
	m.Predictions.WithLabelValues(label).Inc()
	m.Latency.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveFailure(kind string, elapsed time.Duration) {
	m.Failures.WithLabelValues(kind).Inc()
	m.Latency.Observe(elapsed.Seconds())
}

func (m *Metrics) ObservePersistFailure() {
	m.PersistErrors.Inc()
}
