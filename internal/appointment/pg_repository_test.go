package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/therapy-clinic-scheduling/internal/apperr"
)

var appointmentCols = []string{
	"id", "patient_id", "therapist_id", "service_id", "start_time", "duration_minutes",
	"price", "status", "notes", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PgRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPgRepository(mock)
}

func sampleAppointment() Appointment {
	return Appointment{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		TherapistID:     uuid.New(),
		ServiceID:       uuid.New(),
		StartTime:       time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
		Price:           decimal.RequireFromString("80"),
		Status:          StatusPending,
		Notes:           "first visit",
		CreatedAt:       time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func appointmentRow(a Appointment) *pgxmock.Rows {
	return pgxmock.NewRows(appointmentCols).AddRow(
		a.ID, a.PatientID, a.TherapistID, a.ServiceID, a.StartTime, a.DurationMinutes,
		a.Price.StringFixed(2), string(a.Status), a.Notes, a.CreatedAt, nil,
	)
}

func TestPgInsertAppointment(t *testing.T) {
	mock, repo := newMockRepo(t)
	a := sampleAppointment()

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(a.ID, a.PatientID, a.TherapistID, a.ServiceID, a.StartTime, a.End(),
			a.DurationMinutes, "80.00", "pending", a.Notes, a.CreatedAt).
		WillReturnRows(appointmentRow(a))

	got, err := repo.InsertAppointment(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, StatusPending, got.Status)
	assert.True(t, got.Price.Equal(a.Price))
	assert.Nil(t, got.UpdatedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgInsertAppointmentExclusionViolation(t *testing.T) {
	mock, repo := newMockRepo(t)
	a := sampleAppointment()

	mock.ExpectQuery("INSERT INTO appointments").
		WillReturnError(&pgconn.PgError{Code: "23P01", ConstraintName: overlapConstraint})

	_, err := repo.InsertAppointment(context.Background(), a)
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgInsertAppointmentOtherFailure(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery("INSERT INTO appointments").
		WillReturnError(&pgconn.PgError{Code: "08006"})

	_, err := repo.InsertAppointment(context.Background(), sampleAppointment())
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgHasOverlap(t *testing.T) {
	mock, repo := newMockRepo(t)
	therapistID := uuid.New()
	iv := NewInterval(time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC), 60)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(therapistID, iv.Start, iv.End, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	overlap, err := repo.HasOverlap(context.Background(), therapistID, iv, nil)
	require.NoError(t, err)
	assert.True(t, overlap)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgListBlockingIntervals(t *testing.T) {
	mock, repo := newMockRepo(t)
	therapistID := uuid.New()
	window := Interval{
		Start: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 10, 18, 30, 0, 0, time.UTC),
	}
	first := NewInterval(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), 60)
	second := NewInterval(time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC), 30)

	mock.ExpectQuery("SELECT start_time, end_time").
		WithArgs(therapistID, window.Start, window.End).
		WillReturnRows(pgxmock.NewRows([]string{"start_time", "end_time"}).
			AddRow(first.Start, first.End).
			AddRow(second.Start, second.End))

	got, err := repo.ListBlockingIntervals(context.Background(), therapistID, window)
	require.NoError(t, err)
	assert.Equal(t, []Interval{first, second}, got)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetAppointmentNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery("FROM appointments").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetAppointment(context.Background(), id)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateAppointmentStatusRace(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()
	now := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, "cancelled", "pending", now).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.UpdateAppointmentStatus(context.Background(), id, StatusPending, StatusCancelled, now)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpsertPatient(t *testing.T) {
	mock, repo := newMockRepo(t)
	patientID := uuid.New()
	dob := time.Date(1995, 3, 1, 0, 0, 0, 0, time.UTC)
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO patients").
		WithArgs(pgxmock.AnyArg(), "user-1", dob).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "date_of_birth", "created_at"}).
			AddRow(patientID, "user-1", dob, created))

	p, err := repo.UpsertPatientByUserID(context.Background(), "user-1", dob)
	require.NoError(t, err)
	assert.Equal(t, patientID, p.ID)
	assert.Equal(t, "user-1", p.UserID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetServiceParsesPrice(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery("FROM services").WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "description", "price", "duration_minutes", "is_active", "created_at"}).
			AddRow(id, "Massage", "", "65.50", 45, true, time.Now()))

	svc, err := repo.GetService(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, svc.Price.Equal(decimal.RequireFromString("65.5")))
	assert.Equal(t, 45, svc.DurationMinutes)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgListByTherapistOrdersAscending(t *testing.T) {
	mock, repo := newMockRepo(t)
	a := sampleAppointment()
	payID := uuid.New()
	amount, status, txn := "80.00", "completed", "TXN-ABCD1234"

	cols := append(append([]string{}, appointmentCols...),
		"service_name", "therapist_name", "patient_user_id",
		"payment_id", "payment_amount", "payment_status", "payment_transaction_id")

	mock.ExpectQuery(`WHERE a\.therapist_id = \$1\s+ORDER BY a\.start_time ASC, a\.id\s+LIMIT \$2 OFFSET \$3`).
		WithArgs(a.TherapistID, 50, 0).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			a.ID, a.PatientID, a.TherapistID, a.ServiceID, a.StartTime, a.DurationMinutes,
			"80.00", "confirmed", a.Notes, a.CreatedAt, nil,
			"Physiotherapy", "Dana Reyes", "user-1",
			&payID, &amount, &status, &txn,
		))

	got, err := repo.ListAppointmentDetails(context.Background(), ListFilter{TherapistID: &a.TherapistID, Limit: 50})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, StatusConfirmed, got[0].Status)
	assert.Equal(t, "Dana Reyes", got[0].TherapistName)
	require.NotNil(t, got[0].Payment)
	assert.Equal(t, payID, got[0].Payment.ID)
	assert.Equal(t, "completed", got[0].Payment.Status)
	assert.True(t, got[0].Payment.Amount.Equal(decimal.RequireFromString("80")))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgListAllOrdersDescending(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery(`ORDER BY a\.start_time DESC, a\.id\s+LIMIT \$1 OFFSET \$2`).
		WithArgs(10, 20).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	got, err := repo.ListAppointmentDetails(context.Background(), ListFilter{Limit: 10, Offset: 20})
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, mock.ExpectationsWereMet())
}
