package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reminderd/internal/reminder"
	"reminderd/internal/store"
)

func TestLoop_TicksOnInterval(t *testing.T) {
	now := mustTime(t, "2025-06-01T10:00:00Z")
	e, s, sender, clock := newTestEngine(t, now)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The alert (offset 3s) is due exactly tickInterval from now, so it
	// only becomes due after the loop's first tick runs post-Advance — if
	// Loop.run/runOneTick never actually called Tick, sender.sent would
	// stay empty forever.
	_, err := s.Create(context.Background(), store.Input{
		Title:       "A",
		Description: "d",
		Date:        now.Add(e.TickInterval + 3*time.Second),
		Contacts:    []reminder.Contact{{Mode: reminder.ModeEmail, Address: "a@example.com"}},
		Alerts:      []reminder.Alert{reminder.NewAlert(1, 3000)},
	})
	require.NoError(t, err)

	loop := NewLoop(e)
	loop.Start(ctx)
	defer loop.Stop()

	clock.BlockUntil(1)
	clock.Advance(e.TickInterval)

	require.Eventually(t, func() bool {
		return len(sender.sent) == 1
	}, time.Second, 10*time.Millisecond, "loop must actually run a tick and dispatch the due alert")
}

func TestLoop_StopIsIdempotentAndBlocksUntilExit(t *testing.T) {
	now := mustTime(t, "2025-06-01T10:00:00Z")
	e, _, _, _ := newTestEngine(t, now)
	ctx := context.Background()

	loop := NewLoop(e)
	loop.Start(ctx)
	loop.Stop()
	loop.Stop()
}

func TestLoop_ConsecutiveErrorsResetsOnSuccess(t *testing.T) {
	now := mustTime(t, "2025-06-01T10:00:00Z")
	e, _, _, _ := newTestEngine(t, now)
	loop := NewLoop(e)

	loop.consecutiveErrors.Store(3)
	require.Equal(t, int64(3), loop.ConsecutiveErrors())
	loop.runOneTick(context.Background())
	require.Equal(t, int64(0), loop.ConsecutiveErrors())
}
