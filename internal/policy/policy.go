// Package policy holds the pure predicates that decide when a
// reminder's lifecycle is over. Nothing here touches the store, the
// clock's wall-clock source, or I/O — every function takes the
// instants it needs as arguments so it can be tested without a fake
// clock.
package policy

import (
	"time"

	"reminderd/internal/reminder"
)

// StaleThreshold is the grace period after which an unfired one-time
// reminder is considered unserviceable. Overridable by callers that
// read it from config; the zero value falls back to this default.
const StaleThreshold = time.Hour

// Decision is the outcome of a deactivation check.
type Decision struct {
	ShouldDeactivate bool
	Reason           string
}

const (
	ReasonAlreadyAlerted = "already alerted"
	ReasonStaleMissed    = "stale/missed"
	ReasonPastEndDate    = "past end_date"
)

func keep() Decision { return Decision{} }

// OneTime decides whether a non-recurring reminder's lifecycle is
// over. A reminder that already has a lastAlertTime is retired on the
// tick after it fired — this is deliberate two-phase behaviour: the
// fire happens in one tick, the retirement in the next, with
// lastAlertTime as the sole cursor distinguishing the two.
func OneTime(r *reminder.Reminder, now time.Time, staleThreshold time.Duration) Decision {
	if staleThreshold <= 0 {
		staleThreshold = StaleThreshold
	}
	if r.LastAlertTime != nil {
		return Decision{true, ReasonAlreadyAlerted}
	}
	if r.Date.Before(now.Add(-staleThreshold)) {
		return Decision{true, ReasonStaleMissed}
	}
	return keep()
}

// Recurring decides whether a recurring reminder has left its
// configured recurrence window.
func Recurring(r *reminder.Reminder, nextEventTime time.Time) Decision {
	if r.EndDate != nil && nextEventTime.After(*r.EndDate) {
		return Decision{true, ReasonPastEndDate}
	}
	return keep()
}
