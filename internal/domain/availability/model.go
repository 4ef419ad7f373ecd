package availability

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultSlotDurationMinutes = 30
	MinSlotDurationMinutes     = 15
	MaxSlotDurationMinutes     = 480

	maxDocumentNumberLen = 50
	maxReasonLen         = 255
)

// DoctorIdentity is the composite key identifying a practitioner.
type DoctorIdentity struct {
	DocumentTypeID int    `db:"doctor_document_type_id" json:"doctor_document_type_id"`
	DocumentNumber string `db:"doctor_document_number" json:"doctor_document_number"`
}

// Validate reports whether the identity can be used as a query key.
func (d DoctorIdentity) Validate() error {
	if d.DocumentTypeID <= 0 {
		return fmt.Errorf("%w: doctor_document_type_id must be positive", ErrInvalidDoctor)
	}
	n := strings.TrimSpace(d.DocumentNumber)
	if n == "" {
		return fmt.Errorf("%w: doctor_document_number is required", ErrInvalidDoctor)
	}
	if len(n) > maxDocumentNumberLen {
		return fmt.Errorf("%w: doctor_document_number exceeds %d characters", ErrInvalidDoctor, maxDocumentNumberLen)
	}
	return nil
}

func (d DoctorIdentity) String() string {
	return fmt.Sprintf("%d:%s", d.DocumentTypeID, d.DocumentNumber)
}

// Window maps to the doctor_availability table: one doctor's working hours
// for one weekday. A doctor may have several windows on the same day.
type Window struct {
	DoctorIdentity

	ID                  uuid.UUID              `db:"id" json:"id"`
	TenantID            uuid.UUID              `db:"tenant_id" json:"tenant_id"`
	DayOfWeek           int                    `db:"day_of_week" json:"day_of_week"`
	StartTime           TimeOfDay              `db:"start_time" json:"start_time"`
	EndTime             TimeOfDay              `db:"end_time" json:"end_time"`
	SlotDurationMinutes int                    `db:"appointment_duration_minutes" json:"appointment_duration_minutes"`
	Active              bool                   `db:"is_active" json:"is_active"`
	CustomFields        map[string]interface{} `db:"custom_fields" json:"custom_fields"`
	CreatedAt           time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time              `db:"updated_at" json:"updated_at"`
}

// SlotDuration returns the configured slot length.
func (w *Window) SlotDuration() time.Duration {
	return time.Duration(w.SlotDurationMinutes) * time.Minute
}

// Contains reports whether [start, end) falls inside the window by
// time-of-day. Both instants must be on the same UTC date.
func (w *Window) Contains(start, end time.Time) bool {
	start, end = start.UTC(), end.UTC()
	if !sameDate(start, end) {
		return false
	}
	return w.StartTime <= ClockOf(start) && ClockOf(end) <= w.EndTime
}

// BlockedTime maps to the doctor_blocked_time table: an ad-hoc UTC range in
// which the doctor is unavailable regardless of weekly hours.
type BlockedTime struct {
	DoctorIdentity

	ID            uuid.UUID              `db:"id" json:"id"`
	TenantID      uuid.UUID              `db:"tenant_id" json:"tenant_id"`
	StartDatetime time.Time              `db:"start_datetime" json:"start_datetime"`
	EndDatetime   time.Time              `db:"end_datetime" json:"end_datetime"`
	Reason        *string                `db:"reason" json:"reason,omitempty"`
	Active        bool                   `db:"is_active" json:"is_active"`
	CustomFields  map[string]interface{} `db:"custom_fields" json:"custom_fields"`
	CreatedAt     time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time              `db:"updated_at" json:"updated_at"`
}

// BookedAppointment is the read-only view of a committed, occupying
// appointment used to exclude slots.
type BookedAppointment struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Doctor   DoctorIdentity
	StartUTC time.Time
	EndUTC   time.Time
	State    string
}

// CandidateSlot is a derived, never persisted, fixed-length slot.
type CandidateSlot struct {
	StartDatetime time.Time      `json:"start_datetime"`
	EndDatetime   time.Time      `json:"end_datetime"`
	Doctor        DoctorIdentity `json:"-"`
	Available     bool           `json:"available"`
}

// Weekday converts t's UTC weekday to the Monday=0 convention.
func Weekday(t time.Time) int {
	return (int(t.UTC().Weekday()) + 6) % 7
}

// DayBounds returns [00:00, next 00:00) of t's UTC date.
func DayBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// ParseDateTime accepts RFC 3339 timestamps and ISO 8601 timestamps without
// an offset, which are taken as UTC. The result is always in UTC.
func ParseDateTime(s string) (time.Time, error) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, invalid("invalid datetime %q, use ISO 8601 (e.g. 2024-01-15T10:00:00)", s)
}

// ParseDate parses YYYY-MM-DD as a UTC date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, invalid("invalid date %q, use YYYY-MM-DD (e.g. 2024-01-15)", s)
	}
	return t, nil
}
