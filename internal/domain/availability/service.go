package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrMissingTenant  = fmt.Errorf("%w: tenant is required", ErrInvalidRequest)
	ErrInvalidDoctor  = fmt.Errorf("%w: invalid doctor identity", ErrInvalidRequest)
	ErrNotFound       = errors.New("not found")
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

type Service struct {
	windows      WindowRepository
	blocked      BlockedTimeRepository
	appointments AppointmentReader
	log          zerolog.Logger
}

func NewService(w WindowRepository, b BlockedTimeRepository, a AppointmentReader, logger zerolog.Logger) *Service {
	return &Service{windows: w, blocked: b, appointments: a, log: logger.With().Str("component", "availability").Logger()}
}

func requireScope(tenantID uuid.UUID, doctor DoctorIdentity) error {
	if tenantID == uuid.Nil {
		return ErrMissingTenant
	}
	return doctor.Validate()
}

// -- Queries --

// ListSlots returns every candidate slot for the doctor on the UTC date of
// date, each flagged with whether it is free of blocked time and bookings.
// A day without configured hours yields an empty slice.
func (s *Service) ListSlots(ctx context.Context, tenantID uuid.UUID, doctor DoctorIdentity, date time.Time) ([]CandidateSlot, error) {
	if err := requireScope(tenantID, doctor); err != nil {
		return nil, err
	}

	windows, err := s.windows.ListActive(ctx, tenantID, doctor, Weekday(date))
	if err != nil {
		return nil, fmt.Errorf("list availability windows: %w", err)
	}
	if len(windows) == 0 {
		return []CandidateSlot{}, nil
	}

	slots := GenerateSlots(windows, date)
	if len(slots) == 0 {
		return slots, nil
	}

	from, to := DayBounds(date)
	blocked, err := s.blocked.ListActive(ctx, tenantID, doctor, from, to)
	if err != nil {
		return nil, fmt.Errorf("list blocked time: %w", err)
	}
	booked, err := s.appointments.ListOccupying(ctx, tenantID, doctor, from, to, uuid.Nil)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	for i := range slots {
		sl := &slots[i]
		sl.Available = !OverlapsBlocked(sl.StartDatetime, sl.EndDatetime, blocked) &&
			!OverlapsBooked(sl.StartDatetime, sl.EndDatetime, booked)
	}
	return slots, nil
}

// IsTimeAvailable reports whether [start, end) fits inside one of the
// doctor's active windows for that weekday and overlaps no blocked time or
// occupying appointment. A range with start >= end, or one that crosses a
// UTC date boundary, is never available.
func (s *Service) IsTimeAvailable(ctx context.Context, tenantID uuid.UUID, doctor DoctorIdentity, start, end time.Time) (bool, error) {
	return s.isAvailable(ctx, tenantID, doctor, start, end, uuid.Nil)
}

// IsRescheduleAvailable is IsTimeAvailable ignoring the appointment being moved.
func (s *Service) IsRescheduleAvailable(ctx context.Context, tenantID uuid.UUID, doctor DoctorIdentity, start, end time.Time, appointmentID uuid.UUID) (bool, error) {
	return s.isAvailable(ctx, tenantID, doctor, start, end, appointmentID)
}

func (s *Service) isAvailable(ctx context.Context, tenantID uuid.UUID, doctor DoctorIdentity, start, end time.Time, excludeID uuid.UUID) (bool, error) {
	if err := requireScope(tenantID, doctor); err != nil {
		return false, err
	}
	start, end = start.UTC(), end.UTC()
	if !start.Before(end) {
		return false, nil
	}

	windows, err := s.windows.ListActive(ctx, tenantID, doctor, Weekday(start))
	if err != nil {
		return false, fmt.Errorf("list availability windows: %w", err)
	}
	contained := false
	for _, w := range windows {
		if w.Contains(start, end) {
			contained = true
			break
		}
	}
	if !contained {
		return false, nil
	}

	blocked, err := s.blocked.ListActive(ctx, tenantID, doctor, start, end)
	if err != nil {
		return false, fmt.Errorf("list blocked time: %w", err)
	}
	if OverlapsBlocked(start, end, blocked) {
		return false, nil
	}

	booked, err := s.appointments.ListOccupying(ctx, tenantID, doctor, start, end, excludeID)
	if err != nil {
		return false, fmt.Errorf("list appointments: %w", err)
	}
	return !OverlapsBooked(start, end, booked), nil
}

// -- Weekly windows --

// WindowPatch carries the fields of a partial window update.
type WindowPatch struct {
	Doctor              *DoctorIdentity
	DayOfWeek           *int
	StartTime           *TimeOfDay
	EndTime             *TimeOfDay
	SlotDurationMinutes *int
	Active              *bool
	CustomFields        map[string]interface{}
}

func validateWindow(w *Window) error {
	if err := w.DoctorIdentity.Validate(); err != nil {
		return err
	}
	if w.DayOfWeek < 0 || w.DayOfWeek > 6 {
		return invalid("day_of_week must be between 0 (Monday) and 6 (Sunday)")
	}
	if !w.StartTime.Valid() || !w.EndTime.Valid() {
		return invalid("start_time and end_time must be within one day")
	}
	if w.StartTime >= w.EndTime {
		return invalid("start_time must be before end_time")
	}
	if w.SlotDurationMinutes < MinSlotDurationMinutes || w.SlotDurationMinutes > MaxSlotDurationMinutes {
		return invalid("appointment_duration_minutes must be between %d and %d", MinSlotDurationMinutes, MaxSlotDurationMinutes)
	}
	return nil
}

func (s *Service) CreateWindow(ctx context.Context, tenantID uuid.UUID, w *Window) error {
	if tenantID == uuid.Nil {
		return ErrMissingTenant
	}
	w.TenantID = tenantID
	w.DoctorIdentity.DocumentNumber = strings.TrimSpace(w.DoctorIdentity.DocumentNumber)
	if w.SlotDurationMinutes == 0 {
		w.SlotDurationMinutes = DefaultSlotDurationMinutes
	}
	w.Active = true
	if err := validateWindow(w); err != nil {
		return err
	}
	if err := s.windows.Create(ctx, w); err != nil {
		return fmt.Errorf("create availability window: %w", err)
	}
	s.log.Info().Str("tenant_id", tenantID.String()).Str("doctor", w.DoctorIdentity.String()).
		Int("day_of_week", w.DayOfWeek).Str("window_id", w.ID.String()).
		Msg("availability window created")
	return nil
}

func (s *Service) GetWindow(ctx context.Context, tenantID, id uuid.UUID) (*Window, error) {
	if tenantID == uuid.Nil {
		return nil, ErrMissingTenant
	}
	return s.windows.GetByID(ctx, tenantID, id)
}

func (s *Service) UpdateWindow(ctx context.Context, tenantID, id uuid.UUID, p WindowPatch) (*Window, error) {
	w, err := s.GetWindow(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if p.Doctor != nil {
		w.DoctorIdentity = *p.Doctor
		w.DoctorIdentity.DocumentNumber = strings.TrimSpace(w.DoctorIdentity.DocumentNumber)
	}
	if p.DayOfWeek != nil {
		w.DayOfWeek = *p.DayOfWeek
	}
	if p.StartTime != nil {
		w.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		w.EndTime = *p.EndTime
	}
	if p.SlotDurationMinutes != nil {
		w.SlotDurationMinutes = *p.SlotDurationMinutes
	}
	if p.Active != nil {
		w.Active = *p.Active
	}
	if p.CustomFields != nil {
		w.CustomFields = p.CustomFields
	}
	if err := validateWindow(w); err != nil {
		return nil, err
	}
	if err := s.windows.Update(ctx, w); err != nil {
		return nil, fmt.Errorf("update availability window: %w", err)
	}
	return w, nil
}

// DeactivateWindow soft-deletes a window; it stops producing slots.
func (s *Service) DeactivateWindow(ctx context.Context, tenantID, id uuid.UUID) error {
	if tenantID == uuid.Nil {
		return ErrMissingTenant
	}
	if err := s.windows.Deactivate(ctx, tenantID, id); err != nil {
		return err
	}
	s.log.Info().Str("tenant_id", tenantID.String()).Str("window_id", id.String()).Msg("availability window deactivated")
	return nil
}

func (s *Service) ListActiveWindows(ctx context.Context, tenantID uuid.UUID, doctor DoctorIdentity, dayOfWeek int) ([]*Window, error) {
	if err := requireScope(tenantID, doctor); err != nil {
		return nil, err
	}
	if dayOfWeek < 0 || dayOfWeek > 6 {
		return nil, invalid("day_of_week must be between 0 (Monday) and 6 (Sunday)")
	}
	return s.windows.ListActive(ctx, tenantID, doctor, dayOfWeek)
}

func (s *Service) ListWindows(ctx context.Context, tenantID uuid.UUID, doctor DoctorIdentity, includeInactive bool) ([]*Window, error) {
	if err := requireScope(tenantID, doctor); err != nil {
		return nil, err
	}
	return s.windows.ListByDoctor(ctx, tenantID, doctor, includeInactive)
}

// -- Blocked time --

type BlockedTimePatch struct {
	StartDatetime *time.Time
	EndDatetime   *time.Time
	Reason        *string
	Active        *bool
	CustomFields  map[string]interface{}
}

func validateBlockedTime(b *BlockedTime) error {
	if err := b.DoctorIdentity.Validate(); err != nil {
		return err
	}
	if b.StartDatetime.IsZero() || b.EndDatetime.IsZero() {
		return invalid("start_datetime and end_datetime are required")
	}
	if !b.StartDatetime.Before(b.EndDatetime) {
		return invalid("start_datetime must be before end_datetime")
	}
	if b.Reason != nil && len(*b.Reason) > maxReasonLen {
		return invalid("reason exceeds %d characters", maxReasonLen)
	}
	return nil
}

func (s *Service) CreateBlockedTime(ctx context.Context, tenantID uuid.UUID, b *BlockedTime) error {
	if tenantID == uuid.Nil {
		return ErrMissingTenant
	}
	b.TenantID = tenantID
	b.DoctorIdentity.DocumentNumber = strings.TrimSpace(b.DoctorIdentity.DocumentNumber)
	b.StartDatetime = b.StartDatetime.UTC()
	b.EndDatetime = b.EndDatetime.UTC()
	b.Active = true
	if err := validateBlockedTime(b); err != nil {
		return err
	}
	if err := s.blocked.Create(ctx, b); err != nil {
		return fmt.Errorf("create blocked time: %w", err)
	}
	s.log.Info().Str("tenant_id", tenantID.String()).Str("doctor", b.DoctorIdentity.String()).
		Time("start", b.StartDatetime).Time("end", b.EndDatetime).
		Msg("blocked time created")
	return nil
}

func (s *Service) GetBlockedTime(ctx context.Context, tenantID, id uuid.UUID) (*BlockedTime, error) {
	if tenantID == uuid.Nil {
		return nil, ErrMissingTenant
	}
	return s.blocked.GetByID(ctx, tenantID, id)
}

func (s *Service) UpdateBlockedTime(ctx context.Context, tenantID, id uuid.UUID, p BlockedTimePatch) (*BlockedTime, error) {
	b, err := s.GetBlockedTime(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if p.StartDatetime != nil {
		b.StartDatetime = p.StartDatetime.UTC()
	}
	if p.EndDatetime != nil {
		b.EndDatetime = p.EndDatetime.UTC()
	}
	if p.Reason != nil {
		b.Reason = p.Reason
	}
	if p.Active != nil {
		b.Active = *p.Active
	}
	if p.CustomFields != nil {
		b.CustomFields = p.CustomFields
	}
	if err := validateBlockedTime(b); err != nil {
		return nil, err
	}
	if err := s.blocked.Update(ctx, b); err != nil {
		return nil, fmt.Errorf("update blocked time: %w", err)
	}
	return b, nil
}

func (s *Service) DeactivateBlockedTime(ctx context.Context, tenantID, id uuid.UUID) error {
	if tenantID == uuid.Nil {
		return ErrMissingTenant
	}
	if err := s.blocked.Deactivate(ctx, tenantID, id); err != nil {
		return err
	}
	s.log.Info().Str("tenant_id", tenantID.String()).Str("blocked_time_id", id.String()).Msg("blocked time deactivated")
	return nil
}

// ListBlockedTime returns active blocked intervals intersecting [from, to).
// A zero bound leaves that side open.
func (s *Service) ListBlockedTime(ctx context.Context, tenantID uuid.UUID, doctor DoctorIdentity, from, to time.Time) ([]*BlockedTime, error) {
	if err := requireScope(tenantID, doctor); err != nil {
		return nil, err
	}
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	if to.IsZero() {
		to = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	if !from.Before(to) {
		return nil, invalid("start_date must be before end_date")
	}
	return s.blocked.ListActive(ctx, tenantID, doctor, from.UTC(), to.UTC())
}
