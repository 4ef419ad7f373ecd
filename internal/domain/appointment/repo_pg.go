package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medappt/medappt/internal/domain/availability"
	"github.com/medappt/medappt/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &appointmentRepoPG{pool: pool} }

const apptCols = `id, tenant_id, start_utc, end_utc, patient_document_type_id, patient_document_number,
	doctor_document_type_id, doctor_document_number, modality, state, notification_state,
	appointment_type, clinic_id, comment, custom_fields, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.TenantID, &a.StartUTC, &a.EndUTC,
		&a.PatientDocumentTypeID, &a.PatientDocumentNumber,
		&a.DoctorIdentity.DocumentTypeID, &a.DoctorIdentity.DocumentNumber,
		&a.Modality, &a.State, &a.NotificationState,
		&a.AppointmentType, &a.ClinicID, &a.Comment, &a.CustomFields,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.StartUTC = a.StartUTC.UTC()
	a.EndUTC = a.EndUTC.UTC()
	return &a, nil
}

// writeErr maps constraint failures onto domain errors.
func writeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNoRows(err):
		return fmt.Errorf("appointment: %w", ErrNotFound)
	case db.IsExclusionViolation(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case db.IsCheckViolation(err):
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return err
}

func fields(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.CustomFields = fields(a.CustomFields)
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointment (id, tenant_id, start_utc, end_utc, patient_document_type_id,
			patient_document_number, doctor_document_type_id, doctor_document_number, modality,
			state, notification_state, appointment_type, clinic_id, comment, custom_fields)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING created_at, updated_at`,
		a.ID, a.TenantID, a.StartUTC, a.EndUTC, a.PatientDocumentTypeID,
		a.PatientDocumentNumber, a.DoctorIdentity.DocumentTypeID, a.DoctorIdentity.DocumentNumber, a.Modality,
		a.State, a.NotificationState, a.AppointmentType, a.ClinicID, a.Comment, a.CustomFields,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return writeErr(err)
}

func (r *appointmentRepoPG) get(ctx context.Context, tenantID, id uuid.UUID, suffix string) (*Appointment, error) {
	a, err := scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE tenant_id = $1 AND id = $2`+suffix, tenantID, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, fmt.Errorf("appointment: %w", ErrNotFound)
		}
		return nil, err
	}
	return a, nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Appointment, error) {
	return r.get(ctx, tenantID, id, "")
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Appointment, error) {
	return r.get(ctx, tenantID, id, " FOR UPDATE")
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	a.CustomFields = fields(a.CustomFields)
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointment SET start_utc=$3, end_utc=$4, patient_document_type_id=$5,
			patient_document_number=$6, doctor_document_type_id=$7, doctor_document_number=$8,
			modality=$9, state=$10, notification_state=$11, appointment_type=$12, clinic_id=$13,
			comment=$14, custom_fields=$15, updated_at=NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING updated_at`,
		a.TenantID, a.ID, a.StartUTC, a.EndUTC, a.PatientDocumentTypeID,
		a.PatientDocumentNumber, a.DoctorIdentity.DocumentTypeID, a.DoctorIdentity.DocumentNumber,
		a.Modality, a.State, a.NotificationState, a.AppointmentType, a.ClinicID,
		a.Comment, a.CustomFields,
	).Scan(&a.UpdatedAt)
	return writeErr(err)
}

func (r *appointmentRepoPG) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM appointment WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointment: %w", ErrNotFound)
	}
	return nil
}

func (r *appointmentRepoPG) Search(ctx context.Context, tenantID uuid.UUID, p SearchParams, limit, offset int) ([]*Appointment, int, error) {
	where := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !p.From.IsZero() {
		add("start_utc >= $%d", p.From.UTC())
	}
	if !p.To.IsZero() {
		add("end_utc <= $%d", p.To.UTC())
	}
	if p.Modality != "" {
		add("modality = $%d", p.Modality)
	}
	if p.State != "" {
		add("state = $%d", p.State)
	}
	if p.PatientDocumentNumber != "" {
		add("patient_document_number = $%d", p.PatientDocumentNumber)
	}
	if p.DoctorDocumentNumber != "" {
		add("doctor_document_number = $%d", p.DoctorDocumentNumber)
	}
	cond := strings.Join(where, " AND ")

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM appointment WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+apptCols+` FROM appointment WHERE %s ORDER BY start_utc DESC LIMIT $%d OFFSET $%d`,
		cond, len(args)+1, len(args)+2)
	rows, err := conn.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *appointmentRepoPG) ListOccupying(ctx context.Context, tenantID uuid.UUID, doctor availability.DoctorIdentity, from, to time.Time, excludeID uuid.UUID) ([]*availability.BookedAppointment, error) {
	var exclude interface{}
	if excludeID != uuid.Nil {
		exclude = excludeID
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+apptCols+` FROM appointment
		WHERE tenant_id = $1 AND doctor_document_type_id = $2 AND doctor_document_number = $3
			AND start_utc < $5 AND end_utc > $4
			AND state NOT IN ('`+StateCancelled+`', '`+StateRescheduled+`')
			AND ($6::uuid IS NULL OR id <> $6::uuid)
		ORDER BY start_utc`,
		tenantID, doctor.DocumentTypeID, doctor.DocumentNumber, from.UTC(), to.UTC(), exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*availability.BookedAppointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a.Booked())
	}
	return items, rows.Err()
}
