package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medappt/medappt/internal/domain/availability"
	"github.com/medappt/medappt/internal/platform/auth"
	"github.com/medappt/medappt/internal/platform/lock"
)

const (
	maxDocumentNumberLen = 50
	maxShortFieldLen     = 50
	maxLabelLen          = 100
)

var (
	ErrInvalidRequest = availability.ErrInvalidRequest
	ErrNotFound       = availability.ErrNotFound
	// ErrConflict reports that the doctor's time was taken by another booking.
	ErrConflict = errors.New("slot no longer available")
	// ErrTimeUnavailable reports a requested range that is not bookable:
	// outside the doctor's hours, blocked, or already taken.
	ErrTimeUnavailable = fmt.Errorf("%w: requested time is not available", ErrConflict)
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// AvailabilityChecker decides whether a doctor can take a time range.
type AvailabilityChecker interface {
	IsTimeAvailable(ctx context.Context, tenantID uuid.UUID, doctor availability.DoctorIdentity, start, end time.Time) (bool, error)
	IsRescheduleAvailable(ctx context.Context, tenantID uuid.UUID, doctor availability.DoctorIdentity, start, end time.Time, appointmentID uuid.UUID) (bool, error)
}

// Transactor runs fn in a transaction bound to the ctx it receives.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	repo   Repository
	avail  AvailabilityChecker
	locker lock.Locker
	tx     Transactor
	log    zerolog.Logger
}

func NewService(repo Repository, avail AvailabilityChecker, locker lock.Locker, tx Transactor, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		avail:  avail,
		locker: locker,
		tx:     tx,
		log:    logger.With().Str("component", "appointment").Logger(),
	}
}

func doctorLockKey(tenantID uuid.UUID, doctor availability.DoctorIdentity) string {
	return fmt.Sprintf("doctor:%s:%d:%s", tenantID, doctor.DocumentTypeID, doctor.DocumentNumber)
}

// withDoctorLock runs fn while holding the doctor's booking lock.
func (s *Service) withDoctorLock(ctx context.Context, tenantID uuid.UUID, doctor availability.DoctorIdentity, fn func() error) error {
	release, err := s.locker.Acquire(ctx, doctorLockKey(tenantID, doctor))
	if err != nil {
		return fmt.Errorf("acquire booking lock: %w", err)
	}
	defer release()
	return fn()
}

func optionalLen(name string, v *string, limit int) error {
	if v != nil && len(*v) > limit {
		return invalid("%s exceeds %d characters", name, limit)
	}
	return nil
}

func validate(a *Appointment) error {
	if err := a.DoctorIdentity.Validate(); err != nil {
		return err
	}
	if a.PatientDocumentTypeID <= 0 {
		return invalid("patient_document_type_id must be positive")
	}
	if a.PatientDocumentNumber == "" || len(a.PatientDocumentNumber) > maxDocumentNumberLen {
		return invalid("patient_document_number must be 1 to %d characters", maxDocumentNumberLen)
	}
	if a.StartUTC.IsZero() || a.EndUTC.IsZero() {
		return invalid("start_utc and end_utc are required")
	}
	if !a.StartUTC.Before(a.EndUTC) {
		return invalid("start_utc must be before end_utc")
	}
	if !validModalities[a.Modality] {
		return invalid("unknown modality %q", a.Modality)
	}
	if !validStates[a.State] {
		return invalid("unknown state %q", a.State)
	}
	if err := optionalLen("notification_state", a.NotificationState, maxShortFieldLen); err != nil {
		return err
	}
	if err := optionalLen("appointment_type", a.AppointmentType, maxLabelLen); err != nil {
		return err
	}
	return optionalLen("clinic_id", a.ClinicID, maxLabelLen)
}

func normalize(a *Appointment) {
	a.DoctorIdentity.DocumentNumber = strings.TrimSpace(a.DoctorIdentity.DocumentNumber)
	a.PatientDocumentNumber = strings.TrimSpace(a.PatientDocumentNumber)
	a.StartUTC = a.StartUTC.UTC()
	a.EndUTC = a.EndUTC.UTC()
}

// Book stores a new appointment. Occupying appointments are accepted only
// when the doctor can take the range; the availability check and the insert
// run under the doctor's lock so two bookings for the same time cannot both
// succeed.
func (s *Service) Book(ctx context.Context, tenantID uuid.UUID, a *Appointment) error {
	if tenantID == uuid.Nil {
		return availability.ErrMissingTenant
	}
	a.TenantID = tenantID
	if a.State == "" {
		a.State = StateScheduled
	}
	normalize(a)
	if err := validate(a); err != nil {
		return err
	}

	err := s.withDoctorLock(ctx, tenantID, a.DoctorIdentity, func() error {
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			if Occupying(a.State) {
				ok, err := s.avail.IsTimeAvailable(ctx, tenantID, a.DoctorIdentity, a.StartUTC, a.EndUTC)
				if err != nil {
					return err
				}
				if !ok {
					return ErrTimeUnavailable
				}
			}
			return s.repo.Create(ctx, a)
		})
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			s.log.Warn().Str("tenant_id", tenantID.String()).Str("doctor", a.DoctorIdentity.String()).
				Time("start", a.StartUTC).Time("end", a.EndUTC).Msg("booking rejected")
		}
		return err
	}
	s.log.Info().Str("tenant_id", tenantID.String()).Str("doctor", a.DoctorIdentity.String()).
		Str("appointment_id", a.ID.String()).Time("start", a.StartUTC).
		Str("booked_by", auth.UserIDFromContext(ctx)).
		Msg("appointment booked")
	return nil
}

func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (*Appointment, error) {
	if tenantID == uuid.Nil {
		return nil, availability.ErrMissingTenant
	}
	return s.repo.GetByID(ctx, tenantID, id)
}

func (s *Service) Search(ctx context.Context, tenantID uuid.UUID, p SearchParams, limit, offset int) ([]*Appointment, int, error) {
	if tenantID == uuid.Nil {
		return nil, 0, availability.ErrMissingTenant
	}
	if p.Modality != "" && !validModalities[p.Modality] {
		return nil, 0, invalid("unknown modality %q", p.Modality)
	}
	if p.State != "" && !validStates[p.State] {
		return nil, 0, invalid("unknown state %q", p.State)
	}
	if !p.From.IsZero() && !p.To.IsZero() && p.To.Before(p.From) {
		return nil, 0, invalid("start_date must not be after end_date")
	}
	return s.repo.Search(ctx, tenantID, p, limit, offset)
}

// Patch carries the fields of a partial appointment update.
type Patch struct {
	StartUTC              *time.Time
	EndUTC                *time.Time
	PatientDocumentTypeID *int
	PatientDocumentNumber *string
	Doctor                *availability.DoctorIdentity
	Modality              *string
	State                 *string
	NotificationState     *string
	AppointmentType       *string
	ClinicID              *string
	Comment               *string
	CustomFields          map[string]interface{}
}

func (p Patch) apply(a *Appointment) {
	if p.StartUTC != nil {
		a.StartUTC = *p.StartUTC
	}
	if p.EndUTC != nil {
		a.EndUTC = *p.EndUTC
	}
	if p.PatientDocumentTypeID != nil {
		a.PatientDocumentTypeID = *p.PatientDocumentTypeID
	}
	if p.PatientDocumentNumber != nil {
		a.PatientDocumentNumber = *p.PatientDocumentNumber
	}
	if p.Doctor != nil {
		a.DoctorIdentity = *p.Doctor
	}
	if p.Modality != nil {
		a.Modality = *p.Modality
	}
	if p.State != nil {
		a.State = *p.State
	}
	if p.NotificationState != nil {
		a.NotificationState = p.NotificationState
	}
	if p.AppointmentType != nil {
		a.AppointmentType = p.AppointmentType
	}
	if p.ClinicID != nil {
		a.ClinicID = p.ClinicID
	}
	if p.Comment != nil {
		a.Comment = p.Comment
	}
	if p.CustomFields != nil {
		a.CustomFields = p.CustomFields
	}
	normalize(a)
}

// needsCheck reports whether moving from before to after takes doctor time
// that was not already held.
func needsCheck(before, after *Appointment) bool {
	if !Occupying(after.State) {
		return false
	}
	return !Occupying(before.State) ||
		before.DoctorIdentity != after.DoctorIdentity ||
		!before.StartUTC.Equal(after.StartUTC) ||
		!before.EndUTC.Equal(after.EndUTC)
}

// Update applies p. A change that takes new doctor time is re-checked
// against availability, ignoring the appointment's own current booking.
func (s *Service) Update(ctx context.Context, tenantID, id uuid.UUID, p Patch) (*Appointment, error) {
	current, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	doctor := current.DoctorIdentity
	if p.Doctor != nil {
		doctor = *p.Doctor
		doctor.DocumentNumber = strings.TrimSpace(doctor.DocumentNumber)
	}

	var updated *Appointment
	err = s.withDoctorLock(ctx, tenantID, doctor, func() error {
		return s.tx.WithTx(ctx, func(ctx context.Context) error {
			before, err := s.repo.GetForUpdate(ctx, tenantID, id)
			if err != nil {
				return err
			}
			after := *before
			p.apply(&after)
			if after.DoctorIdentity != doctor {
				// Reassigned to another doctor while waiting for the lock.
				return ErrConflict
			}
			if err := validate(&after); err != nil {
				return err
			}
			if needsCheck(before, &after) {
				ok, err := s.avail.IsRescheduleAvailable(ctx, tenantID, after.DoctorIdentity, after.StartUTC, after.EndUTC, id)
				if err != nil {
					return err
				}
				if !ok {
					return ErrTimeUnavailable
				}
			}
			if err := s.repo.Update(ctx, &after); err != nil {
				return err
			}
			updated = &after
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("tenant_id", tenantID.String()).Str("appointment_id", id.String()).
		Str("state", updated.State).Msg("appointment updated")
	return updated, nil
}

// Cancel moves the appointment to CANCELLED, releasing the doctor's time.
// Cancelling an already cancelled appointment returns it unchanged.
func (s *Service) Cancel(ctx context.Context, tenantID, id uuid.UUID) (*Appointment, error) {
	if tenantID == uuid.Nil {
		return nil, availability.ErrMissingTenant
	}
	var a *Appointment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.repo.GetForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		switch a.State {
		case StateCancelled:
			return nil
		case StateCompleted:
			return invalid("completed appointment cannot be cancelled")
		}
		a.State = StateCancelled
		return s.repo.Update(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("tenant_id", tenantID.String()).Str("appointment_id", id.String()).Msg("appointment cancelled")
	return a, nil
}

func (s *Service) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	if tenantID == uuid.Nil {
		return availability.ErrMissingTenant
	}
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.log.Info().Str("tenant_id", tenantID.String()).Str("appointment_id", id.String()).Msg("appointment deleted")
	return nil
}
