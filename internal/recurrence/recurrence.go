// Package recurrence computes the next occurrence of a cron-based
// recurring reminder, in UTC, using the standard 5-field grammar.
package recurrence

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextOccurrence parses a standard 5-field cron expression and returns
// the smallest instant strictly greater than reference that matches
// it. A parse failure is returned as an error; callers treat this as
// CronParseError per the engine's error taxonomy and skip the
// reminder for the current tick.
func NextOccurrence(expr string, reference time.Time) (time.Time, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("recurrence: parse %q: %w", expr, err)
	}
	return schedule.Next(reference.UTC()).UTC(), nil
}
