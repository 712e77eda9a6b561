package engine

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"reminderd/internal/dispatch"
	"reminderd/internal/reminder"
	"reminderd/internal/store"
)

type recordingSender struct {
	sent []string
}

func (r *recordingSender) Send(ctx context.Context, address, subject, body string) error {
	r.sent = append(r.sent, address)
	return nil
}

func newTestEngine(t *testing.T, now time.Time) (*Engine, *store.MemStore, *recordingSender, clockwork.FakeClock) {
	t.Helper()
	s := store.NewMemStore()
	sender := &recordingSender{}
	d := dispatch.New(map[reminder.ContactMode]dispatch.Sender{reminder.ModeEmail: sender}, zerolog.Nop())
	clock := clockwork.NewFakeClockAt(now)

	e := &Engine{
		Store:          s,
		Clock:          clock,
		Dispatcher:     d,
		Log:            zerolog.Nop(),
		TickInterval:   3 * time.Second,
		StaleThreshold: time.Hour,
	}
	return e, s, sender, clock
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339Nano, s)
	require.NoError(t, err)
	return ts
}

func TestTick_S1_OneTimeFiresOnceThenDeactivatesNextTick(t *testing.T) {
	now := mustTime(t, "2025-06-01T09:59:00.500Z")
	e, s, sender, clock := newTestEngine(t, now)
	ctx := context.Background()

	id, err := s.Create(ctx, store.Input{
		Title:       "Pay rent",
		Description: "d",
		Date:        mustTime(t, "2025-06-01T10:00:00Z"),
		Contacts:    []reminder.Contact{{Mode: reminder.ModeEmail, Address: "a@example.com"}},
		Alerts:      []reminder.Alert{reminder.NewAlert(1, 60000)},
	})
	require.NoError(t, err)

	result, err := e.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Fired)
	require.Len(t, sender.sent, 1)

	got, err := s.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.LastAlertTime)
	require.True(t, got.IsActive, "one-time reminder retires the tick AFTER it fires, not the same tick")

	clock.Advance(e.TickInterval)
	result, err = e.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, result.Fired)
	require.Equal(t, 1, result.Deactivated)
	require.Len(t, sender.sent, 1, "must not dispatch twice")

	got, err = s.FindByID(ctx, id)
	require.NoError(t, err)
	require.False(t, got.IsActive)
}

func TestTick_S2_StaleOneTimeReapedWithoutFiring(t *testing.T) {
	now := mustTime(t, "2025-06-01T10:00:01Z")
	e, s, sender, _ := newTestEngine(t, now)
	ctx := context.Background()

	id, err := s.Create(ctx, store.Input{
		Title:       "Old",
		Description: "d",
		Date:        mustTime(t, "2025-06-01T08:00:00Z"),
		Alerts:      []reminder.Alert{reminder.NewAlert(1, 60000)},
	})
	require.NoError(t, err)

	result, err := e.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, result.Fired)
	require.Equal(t, 1, result.Deactivated)
	require.Empty(t, sender.sent)

	got, err := s.FindByID(ctx, id)
	require.NoError(t, err)
	require.False(t, got.IsActive)
}

func TestTick_S4_RecurringPastEndDateDeactivates(t *testing.T) {
	now := mustTime(t, "2025-06-02T00:00:00Z")
	e, s, sender, _ := newTestEngine(t, now)
	ctx := context.Background()

	cron := "0 9 * * *"
	end := mustTime(t, "2025-06-01T00:00:00Z")
	start := mustTime(t, "2025-01-01T00:00:00Z")
	id, err := s.Create(ctx, store.Input{
		Title:       "Daily",
		Description: "d",
		Date:        start,
		IsRecurring: true,
		Recurrence:  &cron,
		StartDate:   &start,
		EndDate:     &end,
		Alerts:      []reminder.Alert{reminder.NewAlert(1, 60000)},
	})
	require.NoError(t, err)

	result, err := e.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Deactivated)
	require.Empty(t, sender.sent)

	got, err := s.FindByID(ctx, id)
	require.NoError(t, err)
	require.False(t, got.IsActive)
}

func TestTick_SkipsReminderWithNoAlerts(t *testing.T) {
	now := mustTime(t, "2025-06-01T10:00:00Z")
	e, s, sender, _ := newTestEngine(t, now)
	ctx := context.Background()

	_, err := s.Create(ctx, store.Input{Title: "No alerts", Description: "d", Date: now})
	require.NoError(t, err)

	result, err := e.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Checked)
	require.Equal(t, 0, result.Fired)
	require.Equal(t, 0, result.Deactivated)
	require.Empty(t, sender.sent)
}

func TestCleanup_S7_NeverDispatches(t *testing.T) {
	now := mustTime(t, "2025-06-01T09:59:00.500Z")
	e, s, sender, _ := newTestEngine(t, now)
	ctx := context.Background()

	_, err := s.Create(ctx, store.Input{
		Title:       "Due now",
		Description: "d",
		Date:        mustTime(t, "2025-06-01T10:00:00Z"),
		Contacts:    []reminder.Contact{{Mode: reminder.ModeEmail, Address: "a@example.com"}},
		Alerts:      []reminder.Alert{reminder.NewAlert(1, 60000)},
	})
	require.NoError(t, err)

	result, err := e.Cleanup(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Checked)
	require.Equal(t, 0, result.Deactivated)
	require.Empty(t, sender.sent, "cleanup sweep must never invoke the dispatcher")
}

func TestCleanup_DeactivatesStaleReminders(t *testing.T) {
	now := mustTime(t, "2025-06-01T10:00:01Z")
	e, s, sender, _ := newTestEngine(t, now)
	ctx := context.Background()

	_, err := s.Create(ctx, store.Input{
		Title:       "Old",
		Description: "d",
		Date:        mustTime(t, "2025-06-01T08:00:00Z"),
		Alerts:      []reminder.Alert{reminder.NewAlert(1, 60000)},
	})
	require.NoError(t, err)

	result, err := e.Cleanup(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Deactivated)
	require.Empty(t, sender.sent)
}

func TestFire_DispatchesAndAcknowledges(t *testing.T) {
	now := mustTime(t, "2025-06-01T10:00:00Z")
	e, s, sender, _ := newTestEngine(t, now)
	ctx := context.Background()

	id, err := s.Create(ctx, store.Input{
		Title:       "Direct",
		Description: "d",
		Date:        now,
		Contacts:    []reminder.Contact{{Mode: reminder.ModeEmail, Address: "a@example.com"}},
	})
	require.NoError(t, err)

	r, err := s.FindByID(ctx, id)
	require.NoError(t, err)

	e.Fire(ctx, r, now)

	require.Len(t, sender.sent, 1)
	got, err := s.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.LastAlertTime)
}
