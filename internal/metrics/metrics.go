// Package metrics exposes the engine's Prometheus instrumentation,
// generalising the teacher's reminders metrics (counters/gauges/
// histograms built with promauto) onto this engine's vocabulary.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every counter, gauge, and histogram the engine
// records. A zero-value Metrics is not usable; construct with New.
type Metrics struct {
	RemindersFiredTotal       *prometheus.CounterVec
	RemindersDeactivatedTotal *prometheus.CounterVec
	TickDuration              prometheus.Histogram
	TickErrorsTotal           prometheus.Counter
	DispatchFailuresTotal     *prometheus.CounterVec
	RemindersActive           prometheus.Gauge
}

// New registers and returns the engine's metrics against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the
// default registry across parallel test binaries.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RemindersFiredTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reminders_fired_total",
			Help: "Total reminders for which an alert was dispatched, by kind.",
		}, []string{"kind"}),
		RemindersDeactivatedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reminders_deactivated_total",
			Help: "Total reminders deactivated, by reason.",
		}, []string{"reason"}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "reminder_tick_duration_seconds",
			Help:    "Wall-clock duration of one scheduling loop tick.",
			Buckets: prometheus.DefBuckets,
		}),
		TickErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "reminder_tick_errors_total",
			Help: "Total ticks that failed because the active reminders could not be loaded.",
		}),
		DispatchFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reminder_dispatch_failures_total",
			Help: "Total per-contact notification failures, by mode.",
		}, []string{"mode"}),
		RemindersActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "reminders_active",
			Help: "Current count of active reminders observed by the last tick.",
		}),
	}
}

// Kind labels for RemindersFiredTotal.
const (
	KindOneTime   = "one_time"
	KindRecurring = "recurring"
)

// RecordDispatchFailure increments DispatchFailuresTotal for mode. It
// satisfies the dispatch package's failureRecorder interface so
// *Metrics can be handed to dispatch.Dispatcher.WithMetrics without
// dispatch importing this package's concrete type.
func (m *Metrics) RecordDispatchFailure(mode string) {
	m.DispatchFailuresTotal.WithLabelValues(mode).Inc()
}
