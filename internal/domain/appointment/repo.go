package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medappt/medappt/internal/domain/availability"
)

// SearchParams filters Search. Zero values are ignored.
type SearchParams struct {
	From                  time.Time // start_utc >= From
	To                    time.Time // end_utc <= To
	Modality              string
	State                 string
	PatientDocumentNumber string
	DoctorDocumentNumber  string
}

type Repository interface {
	// Create fails with ErrConflict when the row would overlap another
	// occupying appointment of the same doctor.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Appointment, error)
	// GetForUpdate is GetByID holding a row lock until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	// Search returns one page ordered by start_utc descending and the total
	// number of matches.
	Search(ctx context.Context, tenantID uuid.UUID, p SearchParams, limit, offset int) ([]*Appointment, int, error)

	availability.AppointmentReader
}
