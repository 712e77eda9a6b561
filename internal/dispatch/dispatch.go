// Package dispatch fans out notifications to a reminder's contacts by
// mode, isolating per-contact failures so one bad address never stops
// the rest from being notified.
package dispatch

import (
	"context"

	"github.com/rs/zerolog"

	"reminderd/internal/reminder"
)

// Sender is the transport-agnostic notification interface the engine
// depends on. Implementations must not panic; a failed send is
// reported through the returned error and logged by the Dispatcher,
// never retried here.
type Sender interface {
	Send(ctx context.Context, address, subject, body string) error
}

// Dispatcher fans notifications for a reminder out to its contacts.
// Send never returns an error to the caller: a per-contact failure is
// logged and swallowed so other contacts still get attempted, matching
// the engine's liveness-over-consistency error policy.
type Dispatcher struct {
	senders map[reminder.ContactMode]Sender
	log     zerolog.Logger
	metrics failureRecorder
}

// failureRecorder lets the dispatcher report per-mode failures to
// metrics without importing the metrics package directly, avoiding an
// import cycle between dispatch and metrics-consuming callers.
type failureRecorder interface {
	RecordDispatchFailure(mode string)
}

type noopRecorder struct{}

func (noopRecorder) RecordDispatchFailure(string) {}

// New builds a Dispatcher. senders maps each supported ContactMode to
// its transport; modes with no entry are silently skipped, matching
// the "non-email modes are reserved" rule from the data model.
func New(senders map[reminder.ContactMode]Sender, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{senders: senders, log: log, metrics: noopRecorder{}}
}

// WithMetrics attaches a failure recorder (typically *metrics.Metrics)
// used to count per-mode dispatch failures.
func (d *Dispatcher) WithMetrics(m failureRecorder) *Dispatcher {
	d.metrics = m
	return d
}

// Send iterates contacts sequentially, dispatching to each one whose
// mode has a registered Sender. It never throws to the caller.
func (d *Dispatcher) Send(ctx context.Context, r *reminder.Reminder, contacts []reminder.Contact) {
	for _, c := range contacts {
		sender, ok := d.senders[c.Mode]
		if !ok {
			continue
		}
		if err := sender.Send(ctx, c.Address, r.Title, r.Description); err != nil {
			d.log.Error().
				Err(err).
				Int64("reminder_id", r.ID).
				Str("mode", string(c.Mode)).
				Str("address", c.Address).
				Msg("notification send failed")
			d.metrics.RecordDispatchFailure(string(c.Mode))
			continue
		}
		d.log.Debug().
			Int64("reminder_id", r.ID).
			Str("mode", string(c.Mode)).
			Msg("notification sent")
	}
}
