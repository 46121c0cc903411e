package app

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records reveal and reciprocity activity. A nil *Metrics records nothing.
type Metrics struct {
	passDuration      *prometheus.SummaryVec
	fundsRevealed     *prometheus.CounterVec
	revealStepFailure *prometheus.CounterVec
	notifications     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		passDuration: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Name:       "gifting_reveal_pass_duration_seconds",
				Help:       "Duration of surprise reveal passes in seconds.",
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
				MaxAge:     5 * time.Minute,
			},
			[]string{"outcome"},
		),
		fundsRevealed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gifting_funds_revealed_total",
				Help: "Surprise funds processed by reveal passes, by whether the reveal transition was won.",
			},
			[]string{"revealed"},
		),
		revealStepFailure: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gifting_reveal_step_failures_total",
				Help: "Failed reveal pipeline steps.",
			},
			[]string{"step"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gifting_notifications_enqueued_total",
				Help: "Scheduled notifications inserted, by notification type.",
			},
			[]string{"type"},
		),
	}
	reg.MustRegister(m.passDuration, m.fundsRevealed, m.revealStepFailure, m.notifications)
	return m
}

func (m *Metrics) observePass(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.passDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
}

func (m *Metrics) fundProcessed(revealed bool) {
	if m == nil {
		return
	}
	label := "false"
	if revealed {
		label = "true"
	}
	m.fundsRevealed.WithLabelValues(label).Inc()
}

func (m *Metrics) stepFailed(step string) {
	if m == nil {
		return
	}
	m.revealStepFailure.WithLabelValues(step).Inc()
}

func (m *Metrics) notificationsEnqueued(notificationType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.notifications.WithLabelValues(notificationType).Add(float64(n))
}
