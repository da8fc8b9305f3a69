package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gosubgen"

// Admission outcomes recorded by the dispatcher.
const (
	OutcomeAdmitted = "admitted"
	OutcomeVetoed   = "vetoed"
	OutcomeRejected = "rejected" // queue full or stopped
)

// Metrics holds the collectors for one service instance. Each instance owns
// its registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	webhooks   *prometheus.CounterVec
	admissions *prometheus.CounterVec
	jobs       *prometheus.CounterVec
	inFlight   prometheus.Gauge
	duration   prometheus.Histogram
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Webhook notifications received, by provider and normalized event.",
		}, []string{"provider", "event"}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Admission decisions, by outcome and veto reason.",
		}, []string{"outcome", "reason"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Finished transcription jobs, by result.",
		}, []string{"result"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Paths currently held in the admission table.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_duration_seconds",
			Help:      "Wall time of engine transcription plus serialization.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200, 2400, 3600},
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.webhooks, m.admissions, m.jobs, m.inFlight, m.duration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the registry for inspection.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

func (m *Metrics) WebhookReceived(provider, event string) {
	m.webhooks.WithLabelValues(provider, event).Inc()
}

// Admission records one dispatcher decision. reason is empty for admitted jobs.
func (m *Metrics) Admission(outcome, reason string) {
	m.admissions.WithLabelValues(outcome, reason).Inc()
}

func (m *Metrics) SetInFlight(n int) {
	m.inFlight.Set(float64(n))
}

// JobFinished records the result label and how long the engine took. Jobs
// that never reached the engine pass a zero duration and are not observed.
func (m *Metrics) JobFinished(result string, took time.Duration) {
	m.jobs.WithLabelValues(result).Inc()
	if took > 0 {
		m.duration.Observe(took.Seconds())
	}
}
