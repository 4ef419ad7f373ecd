package availability

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Every repository method takes the tenant explicitly and never returns rows
// belonging to another tenant.

type WindowRepository interface {
	Create(ctx context.Context, w *Window) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Window, error)
	Update(ctx context.Context, w *Window) error
	Deactivate(ctx context.Context, tenantID, id uuid.UUID) error
	// ListActive returns the active windows for one weekday (Monday=0).
	ListActive(ctx context.Context, tenantID uuid.UUID, doctor DoctorIdentity, dayOfWeek int) ([]*Window, error)
	// ListByDoctor returns all windows for the doctor, active first.
	ListByDoctor(ctx context.Context, tenantID uuid.UUID, doctor DoctorIdentity, includeInactive bool) ([]*Window, error)
}

type BlockedTimeRepository interface {
	Create(ctx context.Context, b *BlockedTime) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*BlockedTime, error)
	Update(ctx context.Context, b *BlockedTime) error
	Deactivate(ctx context.Context, tenantID, id uuid.UUID) error
	// ListActive returns active intervals intersecting [from, to).
	ListActive(ctx context.Context, tenantID uuid.UUID, doctor DoctorIdentity, from, to time.Time) ([]*BlockedTime, error)
}

// AppointmentReader exposes the occupying appointments owned by the
// appointment domain.
type AppointmentReader interface {
	// ListOccupying returns appointments in an occupying state intersecting
	// [from, to), skipping excludeID when it is not uuid.Nil.
	ListOccupying(ctx context.Context, tenantID uuid.UUID, doctor DoctorIdentity, from, to time.Time, excludeID uuid.UUID) ([]*BookedAppointment, error)
}
