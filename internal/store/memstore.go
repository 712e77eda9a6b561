package store

import (
	"context"
	"sync"
	"time"

	"reminderd/internal/reminder"
)

// MemStore is an in-memory Store used by engine tests and by the
// event-mode adapter's own unit tests, where spinning up SQLite would
// only add noise. It enforces the same validation as the SQLite store.
type MemStore struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]reminder.Reminder
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[int64]reminder.Reminder)}
}

func cloneReminder(r reminder.Reminder) reminder.Reminder {
	out := r
	out.Contacts = append([]reminder.Contact(nil), r.Contacts...)
	out.Alerts = append([]reminder.Alert(nil), r.Alerts...)
	if r.Location != nil {
		v := *r.Location
		out.Location = &v
	}
	if r.Recurrence != nil {
		v := *r.Recurrence
		out.Recurrence = &v
	}
	if r.StartDate != nil {
		v := *r.StartDate
		out.StartDate = &v
	}
	if r.EndDate != nil {
		v := *r.EndDate
		out.EndDate = &v
	}
	if r.LastAlertTime != nil {
		v := *r.LastAlertTime
		out.LastAlertTime = &v
	}
	return out
}

func (m *MemStore) FindAll(ctx context.Context) ([]reminder.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]reminder.Reminder, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, cloneReminder(r))
	}
	return out, nil
}

func (m *MemStore) FindActive(ctx context.Context) ([]reminder.Reminder, error) {
	all, _ := m.FindAll(ctx)
	out := make([]reminder.Reminder, 0, len(all))
	for _, r := range all {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemStore) FindByID(ctx context.Context, id int64) (*reminder.Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cloned := cloneReminder(r)
	return &cloned, nil
}

func (m *MemStore) Create(ctx context.Context, in Input) (int64, error) {
	r := reminder.Reminder{
		Title:       in.Title,
		Description: in.Description,
		Date:        in.Date,
		Location:    in.Location,
		Contacts:    in.Contacts,
		Alerts:      in.Alerts,
		IsRecurring: in.IsRecurring,
		Recurrence:  in.Recurrence,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		IsActive:    true,
	}
	if err := r.Validate(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	m.records[r.ID] = r
	return r.ID, nil
}

func (m *MemStore) Update(ctx context.Context, id int64, patch Patch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return false, nil
	}
	applyPatch(&r, patch)
	if err := r.Validate(); err != nil {
		return false, err
	}
	r.UpdatedAt = time.Now().UTC()
	m.records[id] = r
	return true, nil
}

func applyPatch(r *reminder.Reminder, p Patch) {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Date != nil {
		r.Date = *p.Date
	}
	if p.Location != nil {
		r.Location = *p.Location
	}
	if p.Contacts != nil {
		r.Contacts = *p.Contacts
	}
	if p.Alerts != nil {
		r.Alerts = *p.Alerts
	}
	if p.IsRecurring != nil {
		r.IsRecurring = *p.IsRecurring
	}
	if p.Recurrence != nil {
		r.Recurrence = *p.Recurrence
	}
	if p.StartDate != nil {
		r.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		r.EndDate = *p.EndDate
	}
}

func (m *MemStore) Delete(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return false, nil
	}
	delete(m.records, id)
	return true, nil
}

func (m *MemStore) DeleteBulk(ctx context.Context, ids []int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, id := range ids {
		if _, ok := m.records[id]; ok {
			delete(m.records, id)
			count++
		}
	}
	return count, nil
}

func (m *MemStore) Deactivate(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil
	}
	r.IsActive = false
	r.UpdatedAt = time.Now().UTC()
	m.records[id] = r
	return nil
}

func (m *MemStore) SetLastAlertTime(ctx context.Context, id int64, instant time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil
	}
	t := instant.UTC()
	r.LastAlertTime = &t
	r.UpdatedAt = time.Now().UTC()
	m.records[id] = r
	return nil
}

func (m *MemStore) Close() error { return nil }
