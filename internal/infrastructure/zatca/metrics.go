package zatca

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contadores Prometheus del flujo ZATCA. Un *Metrics nil es válido (no registra nada).
type Metrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	submissions *prometheus.CounterVec
	onboarding  *prometheus.CounterVec
}

// NewMetrics crea y registra las métricas en reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zatca_ca_requests_total",
				Help: "Llamadas a la CA por operación y resultado",
			},
			[]string{"operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zatca_ca_request_duration_seconds",
				Help:    "Duración de cada intento de llamada a la CA",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zatca_submissions_total",
				Help: "Envíos registrados en el ledger por tipo y estado final",
			},
			[]string{"type", "status"},
		),
		onboarding: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zatca_onboarding_transitions_total",
				Help: "Transiciones de onboarding por paso y resultado",
			},
			[]string{"step", "outcome"},
		),
	}
	reg.MustRegister(m.requests, m.duration, m.submissions, m.onboarding)
	return m
}

func (m *Metrics) observeRequest(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveSubmission cuenta un envío con su estado final.
func (m *Metrics) ObserveSubmission(submissionType, status string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(submissionType, status).Inc()
}

// ObserveOnboarding cuenta una transición de onboarding (ok | rejected | transport | invalid | conflict).
func (m *Metrics) ObserveOnboarding(step, outcome string) {
	if m == nil {
		return
	}
	m.onboarding.WithLabelValues(step, outcome).Inc()
}
