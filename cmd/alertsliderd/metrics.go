package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records reconciler activity. A nil *Metrics records nothing.
type Metrics struct {
	keyEvents      *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	applyErrors    *prometheus.CounterVec
	rechecks       *prometheus.CounterVec
	hapticsSkipped *prometheus.CounterVec
	applyDuration  prometheus.Histogram
}

// NewMetrics registers the reconciler metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		keyEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertslider_key_events_total",
				Help: "Key events seen by the slider handler, by outcome",
			},
			[]string{"outcome"},
		),
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertslider_transitions_total",
				Help: "Applied slider mode transitions",
			},
			[]string{"from", "to"},
		),
		applyErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertslider_apply_errors_total",
				Help: "Reconciliations abandoned because a platform write failed",
			},
			[]string{"stage"},
		),
		rechecks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertslider_rechecks_total",
				Help: "Delayed ringer re-checks, by outcome",
			},
			[]string{"outcome"},
		),
		hapticsSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertslider_haptics_skipped_total",
				Help: "Haptic confirmations that were not played",
			},
			[]string{"reason"},
		),
		applyDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "alertslider_apply_duration_seconds",
				Help:    "Time spent applying one slider transition",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
	}
}

func (m *Metrics) keyEvent(outcome string) {
	if m == nil {
		return
	}
	m.keyEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) transition(from, to LogicalMode, took time.Duration) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from.String(), to.String()).Inc()
	m.applyDuration.Observe(took.Seconds())
}

func (m *Metrics) applyError(stage string) {
	if m == nil {
		return
	}
	m.applyErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) recheck(outcome string) {
	if m == nil {
		return
	}
	m.rechecks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) hapticSkipped(reason string) {
	if m == nil {
		return
	}
	m.hapticsSkipped.WithLabelValues(reason).Inc()
}
