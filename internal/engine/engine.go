// Package engine implements the scheduling loop (C7), the cleanup
// sweep (C8), and the "fire one reminder" primitive they and the
// external-trigger adapter (C9) share.
package engine

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"reminderd/internal/alertselect"
	"reminderd/internal/dispatch"
	"reminderd/internal/metrics"
	"reminderd/internal/policy"
	"reminderd/internal/recurrence"
	"reminderd/internal/reminder"
	"reminderd/internal/store"
)

// Engine wires together the store, clock, dispatcher, and metrics that
// the tick and cleanup operations need. It holds no per-tick state:
// everything mutable lives in the store.
type Engine struct {
	Store          store.Store
	Clock          clockwork.Clock
	Dispatcher     *dispatch.Dispatcher
	Metrics        *metrics.Metrics
	Log            zerolog.Logger
	TickInterval   time.Duration
	StaleThreshold time.Duration
}

// TickResult summarizes one scheduling-loop tick.
type TickResult struct {
	Checked     int
	Fired       int
	Deactivated int
	Errored     int
}

// CleanupResult summarizes one cleanup sweep.
type CleanupResult struct {
	Checked     int
	Deactivated int
}

// resolveEventTime computes eventTime for a reminder and reports
// whether the reminder should be deactivated instead, following the
// exact branch order in spec.md §4.6/§4.7: recurring reminders consult
// the recurrence engine and the recurring deactivation predicate;
// one-time reminders consult the one-time predicate first and only
// fall back to the stored date if they survive it.
func (e *Engine) resolveEventTime(r *reminder.Reminder, now time.Time) (eventTime time.Time, deactivate bool, reason string, skip bool) {
	if r.IsRecurring && r.Recurrence != nil {
		next, err := recurrence.NextOccurrence(*r.Recurrence, now)
		if err != nil {
			e.Log.Warn().Err(err).Int64("reminder_id", r.ID).Msg("cron parse failed, skipping this tick")
			return time.Time{}, false, "", true
		}
		d := policy.Recurring(r, next)
		if d.ShouldDeactivate {
			return time.Time{}, true, d.Reason, false
		}
		return next, false, "", false
	}

	d := policy.OneTime(r, now, e.StaleThreshold)
	if d.ShouldDeactivate {
		return time.Time{}, true, d.Reason, false
	}
	return r.Date, false, "", false
}

// fireOne runs the shared "decide and maybe fire" primitive for a
// single reminder snapshot, used by both Tick's active-list loop and
// the cleanup sweep. When dispatch is false (the cleanup
// sweep), the alert selector and dispatcher are never consulted,
// satisfying invariant 7 ("cleanup sweep never invokes the
// dispatcher").
func (e *Engine) fireOne(ctx context.Context, r reminder.Reminder, now time.Time, dispatchEnabled bool) (fired, deactivated bool) {
	if len(r.Alerts) == 0 {
		return false, false
	}

	eventTime, shouldDeactivate, reason, skip := e.resolveEventTime(&r, now)
	if skip {
		return false, false
	}
	if shouldDeactivate {
		if err := e.Store.Deactivate(ctx, r.ID); err != nil {
			e.Log.Error().Err(err).Int64("reminder_id", r.ID).Msg("deactivate failed")
			return false, false
		}
		if e.Metrics != nil {
			e.Metrics.RemindersDeactivatedTotal.WithLabelValues(reason).Inc()
		}
		e.Log.Info().Int64("reminder_id", r.ID).Str("reason", reason).Msg("reminder deactivated")
		return false, true
	}

	if !dispatchEnabled {
		return false, false
	}

	toFire := alertselect.GetAlertsToFire(&r, eventTime, now, e.TickInterval)
	if toFire == nil {
		return false, false
	}

	e.Fire(ctx, &r, now)
	return true, false
}

// Fire is the shared "dispatch and acknowledge" primitive used by
// Tick's inner loop and directly by the external-trigger adapter,
// which skips time-window evaluation entirely (spec.md §9 Design
// Notes: the two execution modes are unified by extracting this
// operation out of the per-tick active-list loop).
func (e *Engine) Fire(ctx context.Context, r *reminder.Reminder, now time.Time) {
	e.Dispatcher.Send(ctx, r, r.Contacts)
	if err := e.Store.SetLastAlertTime(ctx, r.ID, now); err != nil {
		e.Log.Error().Err(err).Int64("reminder_id", r.ID).Msg("set last alert time failed")
	}
	if e.Metrics != nil {
		kind := metrics.KindOneTime
		if r.IsRecurring {
			kind = metrics.KindRecurring
		}
		e.Metrics.RemindersFiredTotal.WithLabelValues(kind).Inc()
	}
}

// Tick runs one full scheduling-loop pass: pulls active reminders,
// resolves each one's event time, applies the deactivation policy,
// selects alerts, and dispatches. Reminders are processed sequentially
// in store order, matching the ordering guarantee in spec.md §5.
func (e *Engine) Tick(ctx context.Context) (TickResult, error) {
	start := e.Clock.Now()
	var result TickResult

	active, err := e.Store.FindActive(ctx)
	if err != nil {
		if e.Metrics != nil {
			e.Metrics.TickErrorsTotal.Inc()
		}
		return result, err
	}
	if e.Metrics != nil {
		e.Metrics.RemindersActive.Set(float64(len(active)))
	}

	now := e.Clock.Now()
	for _, r := range active {
		result.Checked++
		fired, deactivated := e.fireOne(ctx, r, now, true)
		if fired {
			result.Fired++
		}
		if deactivated {
			result.Deactivated++
		}
	}

	if e.Metrics != nil {
		e.Metrics.TickDuration.Observe(e.Clock.Now().Sub(start).Seconds())
	}
	return result, nil
}

// Cleanup runs the batch variant of Tick that only ever deactivates,
// intended for low-frequency execution to reap reminders the live
// loop never saw.
func (e *Engine) Cleanup(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult

	all, err := e.Store.FindActive(ctx)
	if err != nil {
		return result, err
	}

	now := e.Clock.Now()
	for _, r := range all {
		result.Checked++
		_, deactivated := e.fireOne(ctx, r, now, false)
		if deactivated {
			result.Deactivated++
		}
	}
	return result, nil
}
