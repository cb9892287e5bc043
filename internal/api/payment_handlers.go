package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-clinic-scheduling/internal/apperr"
	"github.com/hackgods/therapy-clinic-scheduling/internal/payment"
)

func processPaymentHandler(svc PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, ok := pathUUID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		var req ProcessPaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		p, err := svc.ProcessPayment(r.Context(), payment.PaymentRequest{
			AppointmentID: appointmentID,
			Amount:        req.Amount,
			Method:        req.Method,
			Notes:         req.Notes,
		})
		if err != nil {
			var ae *apperr.Error
			if p != nil && errors.As(err, &ae) {
				writeJSON(w, statusForKind(ae.Kind), DeclinedPaymentResponse{
					ErrorResponse: ErrorResponse{Error: ae.Code, Details: ae.Message},
					Payment:       toPaymentResponse(*p),
				})
				return
			}
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toPaymentResponse(*p))
	}
}

func listPaymentsHandler(svc PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset, ok := pageParams(w, r)
		if !ok {
			return
		}

		filter := payment.ListFilter{Limit: limit, Offset: offset}
		if raw := r.URL.Query().Get("appointment_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment_id must be a valid UUID")
				return
			}
			filter.AppointmentID = &id
		}

		payments, err := svc.ListPayments(r.Context(), filter)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := PaymentListResponse{
			Payments: make([]PaymentResponse, 0, len(payments)),
			Limit:    limit,
			Offset:   offset,
		}
		for _, p := range payments {
			resp.Payments = append(resp.Payments, toPaymentResponse(p))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func getPaymentHandler(svc PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "invalid_payment_id")
		if !ok {
			return
		}

		p, err := svc.GetPayment(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toPaymentResponse(*p))
	}
}

func refundPaymentHandler(svc PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "invalid_payment_id")
		if !ok {
			return
		}

		p, err := svc.RefundPayment(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toPaymentResponse(*p))
	}
}
