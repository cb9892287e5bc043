package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/hackgods/therapy-clinic-scheduling/internal/apperr"
	"github.com/hackgods/therapy-clinic-scheduling/internal/db"
)

const completedConstraint = "payments_one_completed"

const paymentColumns = `id, appointment_id, amount::text, method, status, transaction_id, payment_date, notes`

type PgRepository struct {
	conn db.DBTX
}

func NewPgRepository(conn db.DBTX) *PgRepository {
	return &PgRepository{conn: conn}
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var amount, status string

	err := row.Scan(
		&p.ID,
		&p.AppointmentID,
		&amount,
		&p.Method,
		&status,
		&p.TransactionID,
		&p.PaymentDate,
		&p.Notes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse payment amount %q: %w", amount, err)
	}
	st, ok := ParseStatus(status)
	if !ok {
		return nil, fmt.Errorf("unknown payment status %q", status)
	}
	p.Status = st
	return &p, nil
}

func (r *PgRepository) Insert(ctx context.Context, p Payment) (*Payment, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	row := r.conn.QueryRow(ctx, `
		INSERT INTO payments (id, appointment_id, amount, method, status, transaction_id, payment_date, notes)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8)
		RETURNING `+paymentColumns,
		p.ID, p.AppointmentID, p.Amount.StringFixed(2), p.Method, string(p.Status), p.TransactionID, p.PaymentDate, p.Notes)
	saved, err := scanPayment(row)
	if err != nil {
		if db.IsUniqueViolation(err, completedConstraint) {
			return nil, ErrAlreadyPaid.Wrap(err)
		}
		return nil, apperr.Persistence("insert payment", err)
	}
	return saved, nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Payment, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE id = $1
	`, id)
	p, err := scanPayment(row)
	if err != nil {
		return nil, apperr.Persistence("load payment", err)
	}
	return p, nil
}

func (r *PgRepository) GetCompletedForAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE appointment_id = $1
		  AND status = 'completed'
	`, appointmentID)
	p, err := scanPayment(row)
	if err != nil {
		return nil, apperr.Persistence("load completed payment", err)
	}
	return p, nil
}

func (r *PgRepository) List(ctx context.Context, filter ListFilter) ([]Payment, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if filter.AppointmentID != nil {
		rows, err = r.conn.Query(ctx, `
			SELECT `+paymentColumns+`
			FROM payments
			WHERE appointment_id = $1
			ORDER BY payment_date DESC, id
			LIMIT $2 OFFSET $3
		`, *filter.AppointmentID, filter.Limit, filter.Offset)
	} else {
		rows, err = r.conn.Query(ctx, `
			SELECT `+paymentColumns+`
			FROM payments
			ORDER BY payment_date DESC, id
			LIMIT $1 OFFSET $2
		`, filter.Limit, filter.Offset)
	}
	if err != nil {
		return nil, apperr.Persistence("list payments", err)
	}
	defer rows.Close()

	result := make([]Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, apperr.Persistence("scan payment", err)
		}
		result = append(result, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list payments", err)
	}

	return result, nil
}

func (r *PgRepository) MarkRefunded(ctx context.Context, id uuid.UUID, note string) (*Payment, error) {
	row := r.conn.QueryRow(ctx, `
		UPDATE payments
		SET status = 'refunded',
		    notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END
		WHERE id = $1
		  AND status = 'completed'
		RETURNING `+paymentColumns,
		id, note)
	p, err := scanPayment(row)
	if err != nil {
		return nil, apperr.Persistence("refund payment", err)
	}
	return p, nil
}
