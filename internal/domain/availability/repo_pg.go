package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medappt/medappt/internal/platform/db"
)

func notFound(err error, what string) error {
	if db.IsNoRows(err) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

func fields(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

// =========== Window Repository ===========

type windowRepoPG struct{ pool *pgxpool.Pool }

func NewWindowRepoPG(pool *pgxpool.Pool) WindowRepository { return &windowRepoPG{pool: pool} }

const windowCols = `id, tenant_id, doctor_document_type_id, doctor_document_number,
	day_of_week, start_time, end_time, appointment_duration_minutes, is_active,
	custom_fields, created_at, updated_at`

func scanWindow(row pgx.Row) (*Window, error) {
	var w Window
	var start, end pgtype.Time
	err := row.Scan(&w.ID, &w.TenantID, &w.DoctorIdentity.DocumentTypeID, &w.DoctorIdentity.DocumentNumber,
		&w.DayOfWeek, &start, &end, &w.SlotDurationMinutes, &w.Active,
		&w.CustomFields, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.StartTime = timeOfDayFromPG(start)
	w.EndTime = timeOfDayFromPG(end)
	return &w, nil
}

func collectWindows(rows pgx.Rows) ([]*Window, error) {
	defer rows.Close()
	var items []*Window
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

func (r *windowRepoPG) Create(ctx context.Context, w *Window) error {
	w.ID = uuid.New()
	w.CustomFields = fields(w.CustomFields)
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO doctor_availability (id, tenant_id, doctor_document_type_id, doctor_document_number,
			day_of_week, start_time, end_time, appointment_duration_minutes, is_active, custom_fields)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		w.ID, w.TenantID, w.DoctorIdentity.DocumentTypeID, w.DoctorIdentity.DocumentNumber,
		w.DayOfWeek, w.StartTime.PG(), w.EndTime.PG(), w.SlotDurationMinutes, w.Active, w.CustomFields,
	).Scan(&w.CreatedAt, &w.UpdatedAt)
}

func (r *windowRepoPG) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Window, error) {
	w, err := scanWindow(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+windowCols+` FROM doctor_availability WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return nil, notFound(err, "availability window")
	}
	return w, nil
}

func (r *windowRepoPG) Update(ctx context.Context, w *Window) error {
	w.CustomFields = fields(w.CustomFields)
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE doctor_availability SET doctor_document_type_id=$3, doctor_document_number=$4,
			day_of_week=$5, start_time=$6, end_time=$7, appointment_duration_minutes=$8,
			is_active=$9, custom_fields=$10, updated_at=NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING updated_at`,
		w.TenantID, w.ID, w.DoctorIdentity.DocumentTypeID, w.DoctorIdentity.DocumentNumber,
		w.DayOfWeek, w.StartTime.PG(), w.EndTime.PG(), w.SlotDurationMinutes, w.Active, w.CustomFields,
	).Scan(&w.UpdatedAt)
	return notFound(err, "availability window")
}

func (r *windowRepoPG) Deactivate(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE doctor_availability SET is_active = false, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("availability window: %w", ErrNotFound)
	}
	return nil
}

func (r *windowRepoPG) ListActive(ctx context.Context, tenantID uuid.UUID, doctor DoctorIdentity, dayOfWeek int) ([]*Window, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+windowCols+` FROM doctor_availability
		WHERE tenant_id = $1 AND doctor_document_type_id = $2 AND doctor_document_number = $3
			AND day_of_week = $4 AND is_active
		ORDER BY start_time`,
		tenantID, doctor.DocumentTypeID, doctor.DocumentNumber, dayOfWeek)
	if err != nil {
		return nil, err
	}
	return collectWindows(rows)
}

func (r *windowRepoPG) ListByDoctor(ctx context.Context, tenantID uuid.UUID, doctor DoctorIdentity, includeInactive bool) ([]*Window, error) {
	query := `SELECT ` + windowCols + ` FROM doctor_availability
		WHERE tenant_id = $1 AND doctor_document_type_id = $2 AND doctor_document_number = $3`
	if !includeInactive {
		query += ` AND is_active`
	}
	query += ` ORDER BY is_active DESC, day_of_week, start_time`

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, tenantID, doctor.DocumentTypeID, doctor.DocumentNumber)
	if err != nil {
		return nil, err
	}
	return collectWindows(rows)
}

// =========== Blocked Time Repository ===========

type blockedTimeRepoPG struct{ pool *pgxpool.Pool }

func NewBlockedTimeRepoPG(pool *pgxpool.Pool) BlockedTimeRepository {
	return &blockedTimeRepoPG{pool: pool}
}

const blockedCols = `id, tenant_id, doctor_document_type_id, doctor_document_number,
	start_datetime, end_datetime, reason, is_active, custom_fields, created_at, updated_at`

func scanBlockedTime(row pgx.Row) (*BlockedTime, error) {
	var b BlockedTime
	err := row.Scan(&b.ID, &b.TenantID, &b.DoctorIdentity.DocumentTypeID, &b.DoctorIdentity.DocumentNumber,
		&b.StartDatetime, &b.EndDatetime, &b.Reason, &b.Active, &b.CustomFields,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.StartDatetime = b.StartDatetime.UTC()
	b.EndDatetime = b.EndDatetime.UTC()
	return &b, nil
}

func (r *blockedTimeRepoPG) Create(ctx context.Context, b *BlockedTime) error {
	b.ID = uuid.New()
	b.CustomFields = fields(b.CustomFields)
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO doctor_blocked_time (id, tenant_id, doctor_document_type_id, doctor_document_number,
			start_datetime, end_datetime, reason, is_active, custom_fields)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		b.ID, b.TenantID, b.DoctorIdentity.DocumentTypeID, b.DoctorIdentity.DocumentNumber,
		b.StartDatetime, b.EndDatetime, b.Reason, b.Active, b.CustomFields,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
}

func (r *blockedTimeRepoPG) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*BlockedTime, error) {
	b, err := scanBlockedTime(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+blockedCols+` FROM doctor_blocked_time WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return nil, notFound(err, "blocked time")
	}
	return b, nil
}

func (r *blockedTimeRepoPG) Update(ctx context.Context, b *BlockedTime) error {
	b.CustomFields = fields(b.CustomFields)
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE doctor_blocked_time SET doctor_document_type_id=$3, doctor_document_number=$4,
			start_datetime=$5, end_datetime=$6, reason=$7, is_active=$8, custom_fields=$9,
			updated_at=NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING updated_at`,
		b.TenantID, b.ID, b.DoctorIdentity.DocumentTypeID, b.DoctorIdentity.DocumentNumber,
		b.StartDatetime, b.EndDatetime, b.Reason, b.Active, b.CustomFields,
	).Scan(&b.UpdatedAt)
	return notFound(err, "blocked time")
}

func (r *blockedTimeRepoPG) Deactivate(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE doctor_blocked_time SET is_active = false, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("blocked time: %w", ErrNotFound)
	}
	return nil
}

func (r *blockedTimeRepoPG) ListActive(ctx context.Context, tenantID uuid.UUID, doctor DoctorIdentity, from, to time.Time) ([]*BlockedTime, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+blockedCols+` FROM doctor_blocked_time
		WHERE tenant_id = $1 AND doctor_document_type_id = $2 AND doctor_document_number = $3
			AND is_active AND start_datetime < $5 AND end_datetime > $4
		ORDER BY start_datetime`,
		tenantID, doctor.DocumentTypeID, doctor.DocumentNumber, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*BlockedTime
	for rows.Next() {
		b, err := scanBlockedTime(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}
