package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/therapy-clinic-scheduling/internal/appointment"
	"github.com/hackgods/therapy-clinic-scheduling/internal/payment"
)

type CreateAppointmentRequest struct {
	TherapistID string    `json:"therapist_id"`
	ServiceID   string    `json:"service_id"`
	PatientID   string    `json:"patient_id,omitempty"`
	StartTime   time.Time `json:"start_time"`
	Notes       string    `json:"notes"`
}

type UpdateScheduleRequest struct {
	StartTime *time.Time `json:"start_time"`
	Notes     string     `json:"notes"`
}

type ProcessPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
	Notes  string          `json:"notes"`
}

type PaymentSummaryResponse struct {
	ID            uuid.UUID `json:"id"`
	Amount        string    `json:"amount"`
	Status        string    `json:"status"`
	TransactionID string    `json:"transaction_id,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID               `json:"id"`
	PatientID       uuid.UUID               `json:"patient_id"`
	TherapistID     uuid.UUID               `json:"therapist_id"`
	ServiceID       uuid.UUID               `json:"service_id"`
	StartTime       time.Time               `json:"start_time"`
	EndTime         time.Time               `json:"end_time"`
	DurationMinutes int                     `json:"duration_minutes"`
	Price           string                  `json:"price"`
	Status          string                  `json:"status"`
	Notes           string                  `json:"notes,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       *time.Time              `json:"updated_at,omitempty"`
	ServiceName     string                  `json:"service_name,omitempty"`
	TherapistName   string                  `json:"therapist_name,omitempty"`
	PatientUserID   string                  `json:"patient_user_id,omitempty"`
	Payment         *PaymentSummaryResponse `json:"payment,omitempty"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

type SlotsResponse struct {
	TherapistID     uuid.UUID   `json:"therapist_id"`
	Date            string      `json:"date"`
	DurationMinutes int         `json:"duration_minutes"`
	Slots           []time.Time `json:"slots"`
}

type PatientResponse struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"user_id"`
	DateOfBirth string    `json:"date_of_birth"`
	CreatedAt   time.Time `json:"created_at"`
}

type PaymentResponse struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Amount        string    `json:"amount"`
	Method        string    `json:"method"`
	Status        string    `json:"status"`
	TransactionID string    `json:"transaction_id,omitempty"`
	PaymentDate   time.Time `json:"payment_date"`
	Notes         string    `json:"notes,omitempty"`
}

type PaymentListResponse struct {
	Payments []PaymentResponse `json:"payments"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// DeclinedPaymentResponse carries the failed record next to the error.
type DeclinedPaymentResponse struct {
	ErrorResponse
	Payment PaymentResponse `json:"payment"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		TherapistID:     a.TherapistID,
		ServiceID:       a.ServiceID,
		StartTime:       a.StartTime,
		EndTime:         a.End(),
		DurationMinutes: a.DurationMinutes,
		Price:           a.Price.StringFixed(2),
		Status:          string(a.Status),
		Notes:           a.Notes,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toAppointmentDetailResponse(d appointment.AppointmentDetail) AppointmentResponse {
	resp := toAppointmentResponse(d.Appointment)
	resp.ServiceName = d.ServiceName
	resp.TherapistName = d.TherapistName
	resp.PatientUserID = d.PatientUserID
	if d.Payment != nil {
		resp.Payment = &PaymentSummaryResponse{
			ID:            d.Payment.ID,
			Amount:        d.Payment.Amount.StringFixed(2),
			Status:        d.Payment.Status,
			TransactionID: d.Payment.TransactionID,
		}
	}
	return resp
}

func toPaymentResponse(p payment.Payment) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID,
		AppointmentID: p.AppointmentID,
		Amount:        p.Amount.StringFixed(2),
		Method:        p.Method,
		Status:        string(p.Status),
		TransactionID: p.TransactionID,
		PaymentDate:   p.PaymentDate,
		Notes:         p.Notes,
	}
}
