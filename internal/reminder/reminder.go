// Package reminder defines the Reminder aggregate and the invariants
// enforced at creation and update time.
package reminder

import (
	"errors"
	"time"
)

// MinAlertOffset is the floor enforced on every alert's offset. The
// source schema that this system was distilled from enforced this floor
// in one place but not a parallel one; we adopt it uniformly.
const MinAlertOffset = 3 * time.Second

// StaleThreshold is the default grace period after which an unfired
// one-time reminder is considered unserviceable. Overridable via config.
const StaleThreshold = time.Hour

var (
	// ErrEmptyTitle is returned when a reminder is created or updated
	// without a title.
	ErrEmptyTitle = errors.New("reminder: title must not be empty")
	// ErrEmptyDescription is returned when a reminder is created or
	// updated without a description.
	ErrEmptyDescription = errors.New("reminder: description must not be empty")
	// ErrMissingDate is returned when a reminder has no date set.
	ErrMissingDate = errors.New("reminder: date is required")
	// ErrAlertOffsetTooSmall is returned when an alert's offset is below
	// MinAlertOffset.
	ErrAlertOffsetTooSmall = errors.New("reminder: alert offset must be at least 3s")
	// ErrRecurrenceMissing is returned when isRecurring is true but no
	// cron expression was supplied.
	ErrRecurrenceMissing = errors.New("reminder: recurring reminders require a recurrence expression")
	// ErrStartDateMissing is returned when isRecurring is true but no
	// startDate was supplied.
	ErrStartDateMissing = errors.New("reminder: recurring reminders require a start date")
	// ErrInvalidContactMode is returned for a contact whose mode isn't
	// one of the closed variant values.
	ErrInvalidContactMode = errors.New("reminder: unknown contact mode")
)

// ContactMode is the closed set of notification channels a contact can
// use. Only ModeEmail has a dispatch implementation; the others are
// accepted and reserved for future transports.
type ContactMode string

const (
	ModeEmail ContactMode = "email"
	ModeSMS   ContactMode = "sms"
	ModePush  ContactMode = "push"
	ModeICal  ContactMode = "ical"
)

func (m ContactMode) valid() bool {
	switch m {
	case ModeEmail, ModeSMS, ModePush, ModeICal:
		return true
	default:
		return false
	}
}

// Contact is a single notification target attached to a reminder.
type Contact struct {
	ID      int64       `json:"id"`
	Mode    ContactMode `json:"mode"`
	Address string      `json:"address"`
}

// Alert describes one offset-based trigger relative to a reminder's
// event time.
type Alert struct {
	ID       int64         `json:"id"`
	OffsetMs int64         `json:"offsetMs"`
	Offset   time.Duration `json:"-"`
}

// Reminder is the single aggregate root of the system.
type Reminder struct {
	ID          int64
	Title       string
	Description string
	Date        time.Time
	Location    *string
	Contacts    []Contact
	Alerts      []Alert

	IsRecurring bool
	Recurrence  *string
	StartDate   *time.Time
	EndDate     *time.Time

	LastAlertTime *time.Time
	IsActive      bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate enforces the invariants from the data model: non-empty
// title/description, a required date, an alert-offset floor, and the
// recurring-requires-recurrence-and-startDate invariant. It is run both
// at creation and before persisting an update, so a partial update can
// never leave the store holding an invalid aggregate.
func (r *Reminder) Validate() error {
	if r.Title == "" {
		return ErrEmptyTitle
	}
	if r.Description == "" {
		return ErrEmptyDescription
	}
	if r.Date.IsZero() {
		return ErrMissingDate
	}
	for _, a := range r.Alerts {
		if a.Offset < MinAlertOffset {
			return ErrAlertOffsetTooSmall
		}
	}
	for _, c := range r.Contacts {
		if !c.Mode.valid() {
			return ErrInvalidContactMode
		}
	}
	if r.IsRecurring {
		if r.Recurrence == nil || *r.Recurrence == "" {
			return ErrRecurrenceMissing
		}
		if r.StartDate == nil {
			return ErrStartDateMissing
		}
	}
	return nil
}

// NewAlert builds an Alert from a millisecond offset, keeping OffsetMs
// and Offset in sync.
func NewAlert(id int64, offsetMs int64) Alert {
	return Alert{ID: id, OffsetMs: offsetMs, Offset: time.Duration(offsetMs) * time.Millisecond}
}
