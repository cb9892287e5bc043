package appointment

import "github.com/hackgods/therapy-clinic-scheduling/internal/apperr"

const maxNotesLength = 500

var (
	ErrAppointmentNotFound = apperr.New(apperr.KindNotFound, "appointment_not_found", "appointment not found")
	ErrPatientNotFound     = apperr.New(apperr.KindNotFound, "patient_not_found", "patient not found")
	ErrTherapistNotFound   = apperr.New(apperr.KindNotFound, "therapist_not_found", "therapist not found")
	ErrServiceNotFound     = apperr.New(apperr.KindNotFound, "service_not_found", "service not found")

	ErrSlotUnavailable   = apperr.New(apperr.KindConflict, "slot_unavailable", "therapist already has an appointment overlapping the requested time")
	ErrTherapistBusy     = apperr.New(apperr.KindConflict, "therapist_busy", "another booking for this therapist is in progress, please retry")
	ErrInvalidTransition = apperr.New(apperr.KindConflict, "invalid_status_transition", "appointment cannot move to the requested status")
	ErrNotReschedulable  = apperr.New(apperr.KindConflict, "appointment_not_reschedulable", "cancelled or completed appointments cannot be changed")

	ErrInvalidDuration      = apperr.New(apperr.KindValidation, "invalid_duration", "duration must be a positive number of minutes")
	ErrStartTimeRequired    = apperr.New(apperr.KindValidation, "start_time_required", "start time is required")
	ErrPatientRequired      = apperr.New(apperr.KindValidation, "patient_required", "a patient id or user id is required")
	ErrNotesTooLong         = apperr.New(apperr.KindValidation, "notes_too_long", "notes cannot exceed 500 characters")
	ErrServiceInactive      = apperr.New(apperr.KindValidation, "service_inactive", "service is not currently offered")
	ErrTherapistUnavailable = apperr.New(apperr.KindValidation, "therapist_unavailable", "therapist is not accepting bookings")
)
