package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reminderd/internal/reminder"
)

type fakeSender struct {
	calls []string
	err   error
}

func (f *fakeSender) Send(ctx context.Context, address, subject, body string) error {
	f.calls = append(f.calls, address)
	return f.err
}

type fakeRecorder struct {
	failures []string
}

func (f *fakeRecorder) RecordDispatchFailure(mode string) {
	f.failures = append(f.failures, mode)
}

func TestDispatcher_SendsToAllContacts(t *testing.T) {
	email := &fakeSender{}
	d := New(map[reminder.ContactMode]Sender{reminder.ModeEmail: email}, zerolog.Nop())

	r := &reminder.Reminder{ID: 1, Title: "t", Description: "d"}
	contacts := []reminder.Contact{
		{Mode: reminder.ModeEmail, Address: "a@example.com"},
		{Mode: reminder.ModeEmail, Address: "b@example.com"},
	}

	d.Send(context.Background(), r, contacts)

	assert.Equal(t, []string{"a@example.com", "b@example.com"}, email.calls)
}

func TestDispatcher_SkipsUnregisteredModes(t *testing.T) {
	email := &fakeSender{}
	d := New(map[reminder.ContactMode]Sender{reminder.ModeEmail: email}, zerolog.Nop())

	r := &reminder.Reminder{ID: 1, Title: "t", Description: "d"}
	contacts := []reminder.Contact{
		{Mode: reminder.ModeSMS, Address: "+15555550100"},
		{Mode: reminder.ModeEmail, Address: "a@example.com"},
	}

	d.Send(context.Background(), r, contacts)

	assert.Equal(t, []string{"a@example.com"}, email.calls)
}

func TestDispatcher_IsolatesPerContactFailure(t *testing.T) {
	email := &fakeSender{err: errors.New("smtp down")}
	rec := &fakeRecorder{}
	d := New(map[reminder.ContactMode]Sender{reminder.ModeEmail: email}, zerolog.Nop()).WithMetrics(rec)

	r := &reminder.Reminder{ID: 1, Title: "t", Description: "d"}
	contacts := []reminder.Contact{
		{Mode: reminder.ModeEmail, Address: "a@example.com"},
		{Mode: reminder.ModeEmail, Address: "b@example.com"},
	}

	d.Send(context.Background(), r, contacts)

	require.Len(t, email.calls, 2, "a failure on one contact must not abort the remaining contacts")
	assert.Equal(t, []string{"email", "email"}, rec.failures)
}
