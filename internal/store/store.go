// Package store defines the Reminder Store contract (C1) and provides
// two implementations: a SQLite-backed store for production and an
// in-memory store for tests and the event-mode adapter's unit tests.
package store

import (
	"context"
	"errors"
	"time"

	"reminderd/internal/reminder"
)

// ErrNotFound is returned by FindByID when no row matches.
var ErrNotFound = errors.New("store: reminder not found")

// ErrUnavailable wraps any underlying storage fault. The engine treats
// it as fatal-to-tick: skip the offending reminder, continue the loop.
var ErrUnavailable = errors.New("store: unavailable")

// Input is the payload accepted by Create. ID, CreatedAt, UpdatedAt and
// IsActive are assigned by the store.
type Input struct {
	Title       string
	Description string
	Date        time.Time
	Location    *string
	Contacts    []reminder.Contact
	Alerts      []reminder.Alert
	IsRecurring bool
	Recurrence  *string
	StartDate   *time.Time
	EndDate     *time.Time
}

// Patch is a partial update. Nil fields are left unchanged; the store
// merges Patch onto the existing row and re-validates the result
// before committing, so an update can never leave behind a row that
// Create would have rejected.
type Patch struct {
	Title       *string
	Description *string
	Date        *time.Time
	Location    **string
	Contacts    *[]reminder.Contact
	Alerts      *[]reminder.Alert
	IsRecurring *bool
	Recurrence  **string
	StartDate   **time.Time
	EndDate     **time.Time
}

// Store is the engine's only view of persistence. All methods that can
// fail return ErrUnavailable-wrapped errors on storage faults;
// FindByID additionally distinguishes ErrNotFound.
type Store interface {
	FindAll(ctx context.Context) ([]reminder.Reminder, error)
	FindActive(ctx context.Context) ([]reminder.Reminder, error)
	FindByID(ctx context.Context, id int64) (*reminder.Reminder, error)

	Create(ctx context.Context, in Input) (int64, error)
	Update(ctx context.Context, id int64, patch Patch) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	DeleteBulk(ctx context.Context, ids []int64) (int, error)

	Deactivate(ctx context.Context, id int64) error
	SetLastAlertTime(ctx context.Context, id int64, instant time.Time) error

	Close() error
}
