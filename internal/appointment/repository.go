package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all store interactions needed by the service.
// Implementations must reject an insert or update that would make two
// blocking appointments of one therapist overlap, reporting ErrSlotUnavailable.
type Repository interface {
	GetService(ctx context.Context, id uuid.UUID) (*TherapyService, error)
	GetTherapist(ctx context.Context, id uuid.UUID) (*Therapist, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)

	// UpsertPatientByUserID returns the patient linked to userID, creating it
	// with dateOfBirth when missing. Concurrent calls yield one record.
	UpsertPatientByUserID(ctx context.Context, userID string, dateOfBirth time.Time) (*Patient, error)

	// For conflict checks
	HasOverlap(ctx context.Context, therapistID uuid.UUID, iv Interval, excludeID *uuid.UUID) (bool, error)
	ListBlockingIntervals(ctx context.Context, therapistID uuid.UUID, window Interval) ([]Interval, error)

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateSchedule(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) (*Appointment, error)

	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointmentDetails(ctx context.Context, filter ListFilter) ([]AppointmentDetail, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

// CatalogWriter seeds services and therapists.
type CatalogWriter interface {
	CreateService(ctx context.Context, svc TherapyService) (*TherapyService, error)
	CreateTherapist(ctx context.Context, th Therapist) (*Therapist, error)
}
