package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/therapy-clinic-scheduling/internal/appointment"
)

const userIDHeader = "X-User-ID"

func listOpenSlotsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		therapistID, ok := pathUUID(w, r, "invalid_therapist_id")
		if !ok {
			return
		}

		q := r.URL.Query()
		rawDate := q.Get("date")
		date, err := time.ParseInLocation("2006-01-02", rawDate, svc.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be formatted as YYYY-MM-DD")
			return
		}

		var duration int
		switch {
		case q.Get("duration") != "":
			duration, err = strconv.Atoi(q.Get("duration"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be a number of minutes")
				return
			}
		case q.Get("service_id") != "":
			serviceID, err := uuid.Parse(q.Get("service_id"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
				return
			}
			svcInfo, err := svc.GetService(r.Context(), serviceID)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			duration = svcInfo.DurationMinutes
		default:
			writeError(w, http.StatusBadRequest, "missing_duration", "duration or service_id is required")
			return
		}

		slots, err := svc.ListOpenSlots(r.Context(), therapistID, date, duration)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, SlotsResponse{
			TherapistID:     therapistID,
			Date:            rawDate,
			DurationMinutes: duration,
			Slots:           slots,
		})
	}
}

func resolvePatientHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}

		p, err := svc.ResolveOrCreatePatient(r.Context(), userID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, PatientResponse{
			ID:          p.ID,
			UserID:      p.UserID,
			DateOfBirth: p.DateOfBirth.Format("2006-01-02"),
			CreatedAt:   p.CreatedAt,
		})
	}
}

func createAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		therapistID, err := uuid.Parse(req.TherapistID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_therapist_id", "therapist_id must be a valid UUID")
			return
		}

		serviceID, err := uuid.Parse(req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}

		booking := appointment.BookingRequest{
			UserID:      strings.TrimSpace(r.Header.Get(userIDHeader)),
			TherapistID: therapistID,
			ServiceID:   serviceID,
			StartTime:   req.StartTime,
			Notes:       req.Notes,
		}

		if req.PatientID != "" {
			patientID, err := uuid.Parse(req.PatientID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			booking.PatientID = patientID
		}

		appt, err := svc.CreateAppointment(r.Context(), booking)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func listAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, offset, ok := pageParams(w, r)
		if !ok {
			return
		}

		var (
			list []appointment.AppointmentDetail
			err  error
		)

		switch {
		case q.Get("mine") == "true":
			userID, ok := requireUser(w, r)
			if !ok {
				return
			}
			list, err = svc.ListAppointmentsForUser(r.Context(), userID, limit, offset)
		case q.Get("patient_id") != "":
			patientID, parseErr := uuid.Parse(q.Get("patient_id"))
			if parseErr != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			list, err = svc.ListAppointmentsByPatient(r.Context(), patientID, limit, offset)
		case q.Get("therapist_id") != "":
			therapistID, parseErr := uuid.Parse(q.Get("therapist_id"))
			if parseErr != nil {
				writeError(w, http.StatusBadRequest, "invalid_therapist_id", "therapist_id must be a valid UUID")
				return
			}
			list, err = svc.ListAppointmentsByTherapist(r.Context(), therapistID, limit, offset)
		default:
			list, err = svc.ListAllAppointments(r.Context(), limit, offset)
		}
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := AppointmentListResponse{
			Appointments: make([]AppointmentResponse, 0, len(list)),
			Limit:        limit,
			Offset:       offset,
		}
		for _, d := range list {
			resp.Appointments = append(resp.Appointments, toAppointmentDetailResponse(d))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		detail, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentDetailResponse(*detail))
	}
}

func updateScheduleHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		var req UpdateScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		changes := &appointment.Appointment{ID: id, Notes: req.Notes}
		if req.StartTime != nil {
			changes.StartTime = *req.StartTime
		}

		appt, err := svc.UpdateAppointment(r.Context(), changes)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func transitionHandler(apply func(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := apply(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(userIDHeader))
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing_user_id", "X-User-ID header is required")
		return "", false
	}
	return userID, true
}

func pageParams(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	q := r.URL.Query()
	limit, offset := 0, 0

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return 0, 0, false
		}
		limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = n
	}

	// mirror the service defaults so the response reports what was applied
	if limit == 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return limit, offset, true
}
