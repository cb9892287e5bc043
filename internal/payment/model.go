package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusPending, StatusCompleted, StatusFailed, StatusRefunded:
		return s, true
	}
	return "", false
}

type Payment struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Amount        decimal.Decimal
	Method        string
	Status        Status
	TransactionID string
	PaymentDate   time.Time
	Notes         string
}

// PaymentRequest asks to charge an appointment. A zero Amount charges the
// price captured when the appointment was booked.
type PaymentRequest struct {
	AppointmentID uuid.UUID
	Amount        decimal.Decimal
	Method        string
	Notes         string
}

type ListFilter struct {
	AppointmentID *uuid.UUID
	Limit         int
	Offset        int
}
