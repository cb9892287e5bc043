package payment

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-clinic-scheduling/internal/appointment"
)

// Repository persists payment records. Insert must reject a second
// completed payment for one appointment with ErrAlreadyPaid.
type Repository interface {
	Insert(ctx context.Context, p Payment) (*Payment, error)
	Get(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetCompletedForAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error)
	List(ctx context.Context, filter ListFilter) ([]Payment, error)

	// MarkRefunded moves a completed payment to refunded. It reports
	// ErrPaymentNotFound when the payment is missing or not completed.
	MarkRefunded(ctx context.Context, id uuid.UUID, note string) (*Payment, error)
}

// AppointmentLookup is the slice of the appointment store the recorder reads.
type AppointmentLookup interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}
