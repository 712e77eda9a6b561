package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"reminderd/internal/reminder"
)

// SQLiteStore is the production Store implementation. It wraps a
// single *sql.DB with a mutex the way the teacher's database layer
// serializes writes against SQLite's single-writer model, and creates
// its schema with CREATE TABLE IF NOT EXISTS on open.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS reminders (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL,
	date          TEXT NOT NULL,
	location      TEXT,
	contacts_json TEXT NOT NULL DEFAULT '[]',
	alerts_json   TEXT NOT NULL DEFAULT '[]',
	is_recurring  INTEGER NOT NULL DEFAULT 0,
	recurrence    TEXT,
	start_date    TEXT,
	end_date      TEXT,
	last_alert_time TEXT,
	is_active     INTEGER NOT NULL DEFAULT 1,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reminders_is_active ON reminders(is_active);
`

// Open creates or opens the SQLite database at path, enabling WAL
// journaling and a busy timeout the way bronivik_jr's database layer
// does, then ensures the schema exists. path == ":memory:" is accepted
// for tests.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: create database directory: %w", err)
			}
		}
	}

	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type row struct {
	id            int64
	title         string
	description   string
	date          string
	location      sql.NullString
	contactsJSON  string
	alertsJSON    string
	isRecurring   bool
	recurrence    sql.NullString
	startDate     sql.NullString
	endDate       sql.NullString
	lastAlertTime sql.NullString
	isActive      bool
	createdAt     string
	updatedAt     string
}

func scanRow(scanner interface {
	Scan(dest ...any) error
}) (row, error) {
	var r row
	var isRecurring, isActive int
	err := scanner.Scan(
		&r.id, &r.title, &r.description, &r.date, &r.location,
		&r.contactsJSON, &r.alertsJSON, &isRecurring, &r.recurrence,
		&r.startDate, &r.endDate, &r.lastAlertTime, &isActive,
		&r.createdAt, &r.updatedAt,
	)
	r.isRecurring = isRecurring != 0
	r.isActive = isActive != 0
	return r, err
}

const selectCols = `id, title, description, date, location, contacts_json, alerts_json,
	is_recurring, recurrence, start_date, end_date, last_alert_time, is_active,
	created_at, updated_at`

func parseInstant(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func formatInstant(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func toDomain(r row) (reminder.Reminder, error) {
	date, err := parseInstant(r.date)
	if err != nil {
		return reminder.Reminder{}, fmt.Errorf("store: parse date: %w", err)
	}

	var contacts []reminder.Contact
	if err := json.Unmarshal([]byte(r.contactsJSON), &contacts); err != nil {
		return reminder.Reminder{}, fmt.Errorf("store: decode contacts: %w", err)
	}

	var rawAlerts []struct {
		ID       int64 `json:"id"`
		OffsetMs int64 `json:"offsetMs"`
	}
	if err := json.Unmarshal([]byte(r.alertsJSON), &rawAlerts); err != nil {
		return reminder.Reminder{}, fmt.Errorf("store: decode alerts: %w", err)
	}
	alerts := make([]reminder.Alert, 0, len(rawAlerts))
	for _, a := range rawAlerts {
		alerts = append(alerts, reminder.NewAlert(a.ID, a.OffsetMs))
	}

	out := reminder.Reminder{
		ID:          r.id,
		Title:       r.title,
		Description: r.description,
		Date:        date,
		Contacts:    contacts,
		Alerts:      alerts,
		IsRecurring: r.isRecurring,
		IsActive:    r.isActive,
	}
	if r.location.Valid {
		v := r.location.String
		out.Location = &v
	}
	if r.recurrence.Valid {
		v := r.recurrence.String
		out.Recurrence = &v
	}
	if r.startDate.Valid {
		v, err := parseInstant(r.startDate.String)
		if err != nil {
			return reminder.Reminder{}, fmt.Errorf("store: parse start_date: %w", err)
		}
		out.StartDate = &v
	}
	if r.endDate.Valid {
		v, err := parseInstant(r.endDate.String)
		if err != nil {
			return reminder.Reminder{}, fmt.Errorf("store: parse end_date: %w", err)
		}
		out.EndDate = &v
	}
	if r.lastAlertTime.Valid {
		v, err := parseInstant(r.lastAlertTime.String)
		if err != nil {
			return reminder.Reminder{}, fmt.Errorf("store: parse last_alert_time: %w", err)
		}
		out.LastAlertTime = &v
	}
	if r.createdAt != "" {
		if v, err := parseInstant(r.createdAt); err == nil {
			out.CreatedAt = v
		}
	}
	if r.updatedAt != "" {
		if v, err := parseInstant(r.updatedAt); err == nil {
			out.UpdatedAt = v
		}
	}
	return out, nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]reminder.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []reminder.Reminder
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrUnavailable, err)
		}
		d, err := toDomain(r)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (s *SQLiteStore) FindAll(ctx context.Context) ([]reminder.Reminder, error) {
	return s.query(ctx, "SELECT "+selectCols+" FROM reminders ORDER BY id")
}

func (s *SQLiteStore) FindActive(ctx context.Context) ([]reminder.Reminder, error) {
	return s.query(ctx, "SELECT "+selectCols+" FROM reminders WHERE is_active = 1 ORDER BY id")
}

func (s *SQLiteStore) FindByID(ctx context.Context, id int64) (*reminder.Reminder, error) {
	result, err := s.query(ctx, "SELECT "+selectCols+" FROM reminders WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return &result[0], nil
}

func marshalContacts(contacts []reminder.Contact) (string, error) {
	if contacts == nil {
		contacts = []reminder.Contact{}
	}
	b, err := json.Marshal(contacts)
	return string(b), err
}

func marshalAlerts(alerts []reminder.Alert) (string, error) {
	if alerts == nil {
		alerts = []reminder.Alert{}
	}
	type wire struct {
		ID       int64 `json:"id"`
		OffsetMs int64 `json:"offsetMs"`
	}
	out := make([]wire, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, wire{ID: a.ID, OffsetMs: a.OffsetMs})
	}
	b, err := json.Marshal(out)
	return string(b), err
}

func nullableInstant(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatInstant(*t), Valid: true}
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func (s *SQLiteStore) Create(ctx context.Context, in Input) (int64, error) {
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

	contactsJSON, err := marshalContacts(r.Contacts)
	if err != nil {
		return 0, fmt.Errorf("store: encode contacts: %w", err)
	}
	alertsJSON, err := marshalAlerts(r.Alerts)
	if err != nil {
		return 0, fmt.Errorf("store: encode alerts: %w", err)
	}

	now := formatInstant(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (title, description, date, location, contacts_json, alerts_json,
			is_recurring, recurrence, start_date, end_date, last_alert_time, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, 1, ?, ?)`,
		r.Title, r.Description, formatInstant(r.Date), nullableString(r.Location),
		contactsJSON, alertsJSON, boolToInt(r.IsRecurring), nullableString(r.Recurrence),
		nullableInstant(r.StartDate), nullableInstant(r.EndDate), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: insert: %v", ErrUnavailable, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: last insert id: %v", ErrUnavailable, err)
	}
	return id, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteStore) Update(ctx context.Context, id int64, patch Patch) (bool, error) {
	existing, err := s.FindByID(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	applyPatch(existing, patch)
	if err := existing.Validate(); err != nil {
		return false, err
	}

	contactsJSON, err := marshalContacts(existing.Contacts)
	if err != nil {
		return false, fmt.Errorf("store: encode contacts: %w", err)
	}
	alertsJSON, err := marshalAlerts(existing.Alerts)
	if err != nil {
		return false, fmt.Errorf("store: encode alerts: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET title=?, description=?, date=?, location=?, contacts_json=?, alerts_json=?,
			is_recurring=?, recurrence=?, start_date=?, end_date=?, updated_at=?
		WHERE id = ?`,
		existing.Title, existing.Description, formatInstant(existing.Date), nullableString(existing.Location),
		contactsJSON, alertsJSON, boolToInt(existing.IsRecurring), nullableString(existing.Recurrence),
		nullableInstant(existing.StartDate), nullableInstant(existing.EndDate),
		formatInstant(time.Now()), id,
	)
	if err != nil {
		return false, fmt.Errorf("%w: update: %v", ErrUnavailable, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected: %v", ErrUnavailable, err)
	}
	return affected > 0, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.db.ExecContext(ctx, "DELETE FROM reminders WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("%w: delete: %v", ErrUnavailable, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected: %v", ErrUnavailable, err)
	}
	return affected > 0, nil
}

func (s *SQLiteStore) DeleteBulk(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := "DELETE FROM reminders WHERE id IN (?" + repeatPlaceholder(len(ids)-1) + ")"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: delete bulk: %v", ErrUnavailable, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %v", ErrUnavailable, err)
	}
	return int(affected), nil
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}

// Deactivate sets is_active=false. Idempotent: deactivating a reminder
// that is already inactive, or that no longer exists, is a no-op.
func (s *SQLiteStore) Deactivate(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "UPDATE reminders SET is_active = 0, updated_at = ? WHERE id = ?",
		formatInstant(time.Now()), id)
	if err != nil {
		return fmt.Errorf("%w: deactivate: %v", ErrUnavailable, err)
	}
	return nil
}

// SetLastAlertTime overwrites last_alert_time unconditionally. Each
// call generates a random token that appears only in the error text
// when the update fails; it is not returned and has no effect on
// stored state.
func (s *SQLiteStore) SetLastAlertTime(ctx context.Context, id int64, instant time.Time) error {
	token := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "UPDATE reminders SET last_alert_time = ?, updated_at = ? WHERE id = ?",
		formatInstant(instant), formatInstant(time.Now()), id)
	if err != nil {
		return fmt.Errorf("%w: set last alert time (token=%s): %v", ErrUnavailable, token, err)
	}
	return nil
}
