package payment

import "github.com/hackgods/therapy-clinic-scheduling/internal/apperr"

const maxMethodLength = 50

var (
	ErrPaymentNotFound = apperr.New(apperr.KindNotFound, "payment_not_found", "payment not found")

	ErrAlreadyPaid          = apperr.New(apperr.KindConflict, "appointment_already_paid", "appointment already has a completed payment")
	ErrAppointmentCancelled = apperr.New(apperr.KindConflict, "appointment_cancelled", "cancelled appointments cannot be paid")
	ErrNotRefundable        = apperr.New(apperr.KindConflict, "payment_not_refundable", "only completed payments can be refunded")
	ErrPaymentInProgress    = apperr.New(apperr.KindConflict, "payment_in_progress", "another payment for this appointment is being processed, please retry")

	ErrInvalidAmount    = apperr.New(apperr.KindValidation, "invalid_amount", "amount must be greater than zero")
	ErrMethodRequired   = apperr.New(apperr.KindValidation, "payment_method_required", "payment method is required")
	ErrMethodTooLong    = apperr.New(apperr.KindValidation, "payment_method_too_long", "payment method cannot exceed 50 characters")
	ErrAppointmentIDNil = apperr.New(apperr.KindValidation, "appointment_required", "appointment id is required")

	ErrPaymentDeclined    = apperr.New(apperr.KindGatewayDeclined, "payment_declined", "payment was declined")
	ErrGatewayUnavailable = apperr.New(apperr.KindGatewayDeclined, "gateway_unavailable", "payment gateway could not be reached")
)
