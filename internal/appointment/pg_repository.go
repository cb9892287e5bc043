package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/hackgods/therapy-clinic-scheduling/internal/apperr"
	"github.com/hackgods/therapy-clinic-scheduling/internal/db"
)

const overlapConstraint = "appointments_no_overlap"

const appointmentColumns = `id, patient_id, therapist_id, service_id, start_time, duration_minutes,
	price::text, status, notes, created_at, updated_at`

type PgRepository struct {
	conn db.DBTX
}

func NewPgRepository(conn db.DBTX) *PgRepository {
	return &PgRepository{conn: conn}
}

// Helpers

func scanService(row pgx.Row) (*TherapyService, error) {
	var s TherapyService
	var price string

	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Description,
		&price,
		&s.DurationMinutes,
		&s.IsActive,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}

	if s.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse service price %q: %w", price, err)
	}
	return &s, nil
}

func scanTherapist(row pgx.Row) (*Therapist, error) {
	var t Therapist

	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.FullName,
		&t.Specialization,
		&t.LicenseNumber,
		&t.IsAvailable,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTherapistNotFound
		}
		return nil, err
	}

	return &t, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.DateOfBirth,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var price, status string
	var updatedAt *time.Time

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.TherapistID,
		&a.ServiceID,
		&a.StartTime,
		&a.DurationMinutes,
		&price,
		&status,
		&a.Notes,
		&a.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if err := fillAppointment(&a, price, status); err != nil {
		return nil, err
	}
	a.UpdatedAt = updatedAt
	return &a, nil
}

func scanAppointmentDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	var price, status string
	var updatedAt *time.Time
	var payID *uuid.UUID
	var payAmount, payStatus, payTxn *string

	err := row.Scan(
		&d.ID,
		&d.PatientID,
		&d.TherapistID,
		&d.ServiceID,
		&d.StartTime,
		&d.DurationMinutes,
		&price,
		&status,
		&d.Notes,
		&d.CreatedAt,
		&updatedAt,
		&d.ServiceName,
		&d.TherapistName,
		&d.PatientUserID,
		&payID,
		&payAmount,
		&payStatus,
		&payTxn,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if err := fillAppointment(&d.Appointment, price, status); err != nil {
		return nil, err
	}
	d.UpdatedAt = updatedAt

	if payID != nil {
		summary := &PaymentSummary{ID: *payID}
		if payAmount != nil {
			if summary.Amount, err = decimal.NewFromString(*payAmount); err != nil {
				return nil, fmt.Errorf("parse payment amount %q: %w", *payAmount, err)
			}
		}
		if payStatus != nil {
			summary.Status = *payStatus
		}
		if payTxn != nil {
			summary.TransactionID = *payTxn
		}
		d.Payment = summary
	}

	return &d, nil
}

func fillAppointment(a *Appointment, price, status string) error {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return fmt.Errorf("parse appointment price %q: %w", price, err)
	}
	a.Price = p

	st, ok := ParseStatus(status)
	if !ok {
		return fmt.Errorf("unknown appointment status %q", status)
	}
	a.Status = st
	return nil
}

// mapWriteErr turns constraint violations raised at commit into domain errors.
func mapWriteErr(op string, err error) error {
	if db.IsExclusionViolation(err, overlapConstraint) {
		return ErrSlotUnavailable.Wrap(err)
	}
	return apperr.Persistence(op, err)
}

// Catalog

func (r *PgRepository) GetService(ctx context.Context, id uuid.UUID) (*TherapyService, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT id, name, description, price::text, duration_minutes, is_active, created_at
		FROM services
		WHERE id = $1
	`, id)
	s, err := scanService(row)
	if err != nil {
		return nil, apperr.Persistence("load service", err)
	}
	return s, nil
}

func (r *PgRepository) CreateService(ctx context.Context, svc TherapyService) (*TherapyService, error) {
	if svc.ID == uuid.Nil {
		svc.ID = uuid.New()
	}

	row := r.conn.QueryRow(ctx, `
		INSERT INTO services (id, name, description, price, duration_minutes, is_active, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, now())
		RETURNING id, name, description, price::text, duration_minutes, is_active, created_at
	`, svc.ID, svc.Name, svc.Description, svc.Price.StringFixed(2), svc.DurationMinutes, svc.IsActive)
	s, err := scanService(row)
	if err != nil {
		return nil, apperr.Persistence("create service", err)
	}
	return s, nil
}

func (r *PgRepository) GetTherapist(ctx context.Context, id uuid.UUID) (*Therapist, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT id, user_id, full_name, specialization, license_number, is_available, created_at
		FROM therapists
		WHERE id = $1
	`, id)
	t, err := scanTherapist(row)
	if err != nil {
		return nil, apperr.Persistence("load therapist", err)
	}
	return t, nil
}

func (r *PgRepository) CreateTherapist(ctx context.Context, th Therapist) (*Therapist, error) {
	if th.ID == uuid.Nil {
		th.ID = uuid.New()
	}

	row := r.conn.QueryRow(ctx, `
		INSERT INTO therapists (id, user_id, full_name, specialization, license_number, is_available, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id, user_id, full_name, specialization, license_number, is_available, created_at
	`, th.ID, th.UserID, th.FullName, th.Specialization, th.LicenseNumber, th.IsAvailable)
	t, err := scanTherapist(row)
	if err != nil {
		return nil, apperr.Persistence("create therapist", err)
	}
	return t, nil
}

// Patients

func (r *PgRepository) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT id, user_id, date_of_birth, created_at
		FROM patients
		WHERE id = $1
	`, id)
	p, err := scanPatient(row)
	if err != nil {
		return nil, apperr.Persistence("load patient", err)
	}
	return p, nil
}

func (r *PgRepository) UpsertPatientByUserID(ctx context.Context, userID string, dateOfBirth time.Time) (*Patient, error) {
	// the no-op update makes RETURNING yield the existing row on conflict
	row := r.conn.QueryRow(ctx, `
		INSERT INTO patients (id, user_id, date_of_birth, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id, user_id, date_of_birth, created_at
	`, uuid.New(), userID, dateOfBirth)
	p, err := scanPatient(row)
	if err != nil {
		return nil, apperr.Persistence("upsert patient", err)
	}
	return p, nil
}

// Conflict checks

func (r *PgRepository) HasOverlap(ctx context.Context, therapistID uuid.UUID, iv Interval, excludeID *uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE therapist_id = $1
			  AND status <> 'cancelled'
			  AND start_time < $3
			  AND end_time > $2
			  AND ($4::uuid IS NULL OR id <> $4)
		)
	`, therapistID, iv.Start, iv.End, excludeID).Scan(&exists)
	if err != nil {
		return false, apperr.Persistence("check overlap", err)
	}
	return exists, nil
}

func (r *PgRepository) ListBlockingIntervals(ctx context.Context, therapistID uuid.UUID, window Interval) ([]Interval, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT start_time, end_time
		FROM appointments
		WHERE therapist_id = $1
		  AND status <> 'cancelled'
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, therapistID, window.Start, window.End)
	if err != nil {
		return nil, apperr.Persistence("list blocking intervals", err)
	}
	defer rows.Close()

	var result []Interval
	for rows.Next() {
		var iv Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, apperr.Persistence("scan blocking interval", err)
		}
		result = append(result, iv)
	}

	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list blocking intervals", err)
	}

	return result, nil
}

// Appointments

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	a, err := scanAppointment(row)
	if err != nil {
		return nil, apperr.Persistence("load appointment", err)
	}
	return a, nil
}

func (r *PgRepository) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.conn.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, therapist_id, service_id, start_time, end_time,
			duration_minutes, price, status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10, $11)
		RETURNING `+appointmentColumns,
		a.ID, a.PatientID, a.TherapistID, a.ServiceID, a.StartTime, a.End(),
		a.DurationMinutes, a.Price.StringFixed(2), string(a.Status), a.Notes, a.CreatedAt)
	created, err := scanAppointment(row)
	if err != nil {
		return nil, mapWriteErr("insert appointment", err)
	}
	return created, nil
}

func (r *PgRepository) UpdateSchedule(ctx context.Context, a Appointment) (*Appointment, error) {
	row := r.conn.QueryRow(ctx, `
		UPDATE appointments
		SET start_time = $2,
		    end_time = $3,
		    notes = $4,
		    updated_at = $5
		WHERE id = $1
		  AND status IN ('pending', 'confirmed')
		RETURNING `+appointmentColumns,
		a.ID, a.StartTime, a.End(), a.Notes, a.UpdatedAt)
	updated, err := scanAppointment(row)
	if err != nil {
		return nil, mapWriteErr("update appointment schedule", err)
	}
	return updated, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) (*Appointment, error) {
	row := r.conn.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = $4
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, string(to), string(from), at)
	updated, err := scanAppointment(row)
	if err != nil {
		return nil, mapWriteErr("update appointment status", err)
	}
	return updated, nil
}

const detailQuery = `
	SELECT a.id, a.patient_id, a.therapist_id, a.service_id, a.start_time, a.duration_minutes,
	       a.price::text, a.status, a.notes, a.created_at, a.updated_at,
	       s.name, t.full_name, p.user_id,
	       pay.id, pay.amount::text, pay.status, pay.transaction_id
	FROM appointments a
	JOIN services s ON s.id = a.service_id
	JOIN therapists t ON t.id = a.therapist_id
	JOIN patients p ON p.id = a.patient_id
	LEFT JOIN LATERAL (
		SELECT id, amount, status, transaction_id
		FROM payments
		WHERE appointment_id = a.id
		ORDER BY payment_date DESC
		LIMIT 1
	) pay ON TRUE`

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.conn.QueryRow(ctx, detailQuery+`
	WHERE a.id = $1`, id)
	d, err := scanAppointmentDetail(row)
	if err != nil {
		return nil, apperr.Persistence("load appointment detail", err)
	}
	return d, nil
}

// ListAppointmentDetails orders patient and admin listings newest first and
// therapist listings oldest first.
func (r *PgRepository) ListAppointmentDetails(ctx context.Context, filter ListFilter) ([]AppointmentDetail, error) {
	var (
		where []string
		args  []any
		order = "DESC"
	)

	if filter.PatientID != nil {
		args = append(args, *filter.PatientID)
		where = append(where, fmt.Sprintf("a.patient_id = $%d", len(args)))
	}
	if filter.TherapistID != nil {
		args = append(args, *filter.TherapistID)
		where = append(where, fmt.Sprintf("a.therapist_id = $%d", len(args)))
		if filter.PatientID == nil {
			order = "ASC"
		}
	}

	var sb strings.Builder
	sb.WriteString(detailQuery)
	if len(where) > 0 {
		sb.WriteString("\n\tWHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	args = append(args, filter.Limit, filter.Offset)
	fmt.Fprintf(&sb, "\n\tORDER BY a.start_time %s, a.id\n\tLIMIT $%d OFFSET $%d", order, len(args)-1, len(args))

	rows, err := r.conn.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, apperr.Persistence("list appointments", err)
	}
	defer rows.Close()

	result := make([]AppointmentDetail, 0)
	for rows.Next() {
		d, err := scanAppointmentDetail(rows)
		if err != nil {
			return nil, apperr.Persistence("scan appointment", err)
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list appointments", err)
	}

	return result, nil
}

// Event logging

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
