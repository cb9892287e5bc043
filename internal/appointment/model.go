package appointment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TherapyService is a bookable catalog entry. Services are deactivated, never deleted.
type TherapyService struct {
	ID              uuid.UUID
	Name            string
	Description     string
	Price           decimal.Decimal
	DurationMinutes int
	IsActive        bool
	CreatedAt       time.Time
}

type Therapist struct {
	ID             uuid.UUID
	UserID         string
	FullName       string
	Specialization string
	LicenseNumber  string
	IsAvailable    bool
	CreatedAt      time.Time
}

type Patient struct {
	ID          uuid.UUID
	UserID      string
	DateOfBirth time.Time
	CreatedAt   time.Time
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	TherapistID     uuid.UUID
	ServiceID       uuid.UUID
	StartTime       time.Time
	DurationMinutes int
	Price           decimal.Decimal
	Status          Status
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       *time.Time
}

// End is the exclusive end of the booked interval.
func (a Appointment) End() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

func (a Appointment) Interval() Interval {
	return NewInterval(a.StartTime, a.DurationMinutes)
}

// PaymentSummary is the latest payment linked to an appointment, as shown in listings.
type PaymentSummary struct {
	ID            uuid.UUID
	Amount        decimal.Decimal
	Status        string
	TransactionID string
}

type AppointmentDetail struct {
	Appointment
	ServiceName   string
	TherapistName string
	PatientUserID string
	Payment       *PaymentSummary
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// BookingRequest identifies the patient either directly or through the
// caller's user id, in which case the patient record is created on demand.
type BookingRequest struct {
	UserID      string
	PatientID   uuid.UUID
	TherapistID uuid.UUID
	ServiceID   uuid.UUID
	StartTime   time.Time
	Notes       string
}

// ListFilter scopes appointment listings. With neither id set every
// appointment is returned.
type ListFilter struct {
	PatientID   *uuid.UUID
	TherapistID *uuid.UUID
	Limit       int
	Offset      int
}
