package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/medappt/medappt/internal/domain/availability"
)

const (
	StateScheduled   = "SCHEDULED"
	StateConfirmed   = "CONFIRMED"
	StateInProgress  = "IN_PROGRESS"
	StateCompleted   = "COMPLETED"
	StateCancelled   = "CANCELLED"
	StateNoShow      = "NO_SHOW"
	StateRescheduled = "RESCHEDULED"
)

const (
	ModalityInPerson = "IN_PERSON"
	ModalityVirtual  = "VIRTUAL"
	ModalityHome     = "HOME"
)

var validStates = map[string]bool{
	StateScheduled: true, StateConfirmed: true, StateInProgress: true,
	StateCompleted: true, StateCancelled: true, StateNoShow: true,
	StateRescheduled: true,
}

var validModalities = map[string]bool{
	ModalityInPerson: true, ModalityVirtual: true, ModalityHome: true,
}

// releasedStates no longer hold the doctor's time.
var releasedStates = map[string]bool{
	StateCancelled:   true,
	StateRescheduled: true,
}

// Occupying reports whether an appointment in state blocks the doctor's time.
func Occupying(state string) bool {
	return !releasedStates[state]
}

// Appointment maps to the appointment table.
type Appointment struct {
	availability.DoctorIdentity

	ID                    uuid.UUID              `db:"id" json:"id"`
	TenantID              uuid.UUID              `db:"tenant_id" json:"tenant_id"`
	StartUTC              time.Time              `db:"start_utc" json:"start_utc"`
	EndUTC                time.Time              `db:"end_utc" json:"end_utc"`
	PatientDocumentTypeID int                    `db:"patient_document_type_id" json:"patient_document_type_id"`
	PatientDocumentNumber string                 `db:"patient_document_number" json:"patient_document_number"`
	Modality              string                 `db:"modality" json:"modality"`
	State                 string                 `db:"state" json:"state"`
	NotificationState     *string                `db:"notification_state" json:"notification_state,omitempty"`
	AppointmentType       *string                `db:"appointment_type" json:"appointment_type,omitempty"`
	ClinicID              *string                `db:"clinic_id" json:"clinic_id,omitempty"`
	Comment               *string                `db:"comment" json:"comment,omitempty"`
	CustomFields          map[string]interface{} `db:"custom_fields" json:"custom_fields"`
	CreatedAt             time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time              `db:"updated_at" json:"updated_at"`
}

// Booked returns the read-only view used by availability checks.
func (a *Appointment) Booked() *availability.BookedAppointment {
	return &availability.BookedAppointment{
		ID:       a.ID,
		TenantID: a.TenantID,
		Doctor:   a.DoctorIdentity,
		StartUTC: a.StartUTC,
		EndUTC:   a.EndUTC,
		State:    a.State,
	}
}
