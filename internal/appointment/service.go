package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/therapy-clinic-scheduling/internal/apperr"
	"github.com/hackgods/therapy-clinic-scheduling/internal/clock"
	"github.com/hackgods/therapy-clinic-scheduling/internal/observability/metrics"
	redisclient "github.com/hackgods/therapy-clinic-scheduling/internal/redis"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

var tracer = otel.Tracer("clinic.internal.appointment")

var transitionEvents = map[Status]string{
	StatusConfirmed: EventAppointmentConfirmed,
	StatusCompleted: EventAppointmentCompleted,
	StatusCancelled: EventAppointmentCancelled,
}

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	clock   clock.Clock
	grid    SlotGrid
	logger  zerolog.Logger
	metrics *metrics.SchedulingMetrics
}

func NewService(repo Repository, locker redisclient.Locker, clk clock.Clock, grid SlotGrid, logger zerolog.Logger, m *metrics.SchedulingMetrics) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		repo:    repo,
		locker:  locker,
		clock:   clk,
		grid:    grid,
		logger:  logger.With().Str("component", "appointment").Logger(),
		metrics: m,
	}
}

// IsSlotAvailable reports whether the therapist has no blocking appointment
// overlapping [start, start+duration). excludeID is ignored when checking, so
// an appointment can be tested against its own new time.
func (s *Service) IsSlotAvailable(ctx context.Context, therapistID uuid.UUID, start time.Time, durationMinutes int, excludeID *uuid.UUID) (bool, error) {
	if durationMinutes <= 0 {
		return false, ErrInvalidDuration
	}

	overlap, err := s.repo.HasOverlap(ctx, therapistID, NewInterval(start, durationMinutes), excludeID)
	if err != nil {
		return false, apperr.Persistence("check slot availability", err)
	}
	return !overlap, nil
}

// Location is the clinic clock that calendar dates are read in.
func (s *Service) Location() *time.Location {
	return s.grid.Loc()
}

// ListOpenSlots returns the grid start times of date that could host an
// appointment of durationMinutes. Candidates running past closing are kept.
func (s *Service) ListOpenSlots(ctx context.Context, therapistID uuid.UUID, date time.Time, durationMinutes int) ([]time.Time, error) {
	ctx, span := tracer.Start(ctx, "appointment.ListOpenSlots")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.therapist_id", therapistID.String()),
		attribute.Int("clinic.duration_minutes", durationMinutes),
	)

	if durationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}

	candidates := s.grid.Candidates(date)
	if len(candidates) == 0 {
		return []time.Time{}, nil
	}

	busy, err := s.repo.ListBlockingIntervals(ctx, therapistID, s.grid.dayWindow(candidates, durationMinutes))
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Persistence("list open slots", err)
	}

	open := make([]time.Time, 0, len(candidates))
	for _, c := range candidates {
		if !overlapsAny(NewInterval(c, durationMinutes), busy) {
			open = append(open, c)
		}
	}

	s.metrics.ObserveOpenSlotQuery()
	span.SetAttributes(attribute.Int("clinic.open_slots", len(open)))
	return open, nil
}

// CreateAppointment books a pending appointment. Duration and price are
// copied from the service so later catalog edits do not move the booking.
func (s *Service) CreateAppointment(ctx context.Context, req BookingRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.CreateAppointment")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.therapist_id", req.TherapistID.String()),
		attribute.String("clinic.service_id", req.ServiceID.String()),
	)

	created, err := s.createAppointment(ctx, req)
	s.metrics.ObserveBooking("create", outcomeOf(err))
	if err != nil {
		span.RecordError(err)
		s.logger.Info().Err(err).
			Str("therapist_id", req.TherapistID.String()).
			Time("start_time", req.StartTime).
			Str("code", apperr.CodeOf(err)).
			Msg("booking rejected")
		return nil, err
	}

	span.SetAttributes(attribute.String("clinic.appointment_id", created.ID.String()))
	return created, nil
}

func (s *Service) createAppointment(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if req.StartTime.IsZero() {
		return nil, ErrStartTimeRequired
	}
	if err := validateNotes(req.Notes); err != nil {
		return nil, err
	}

	patient, err := s.resolvePatient(ctx, req)
	if err != nil {
		return nil, err
	}

	svc, err := s.repo.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, apperr.Persistence("load service", err)
	}
	if !svc.IsActive {
		return nil, ErrServiceInactive
	}
	if svc.DurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}

	therapist, err := s.repo.GetTherapist(ctx, req.TherapistID)
	if err != nil {
		return nil, apperr.Persistence("load therapist", err)
	}
	if !therapist.IsAvailable {
		return nil, ErrTherapistUnavailable
	}

	appt := Appointment{
		ID:              uuid.New(),
		PatientID:       patient.ID,
		TherapistID:     therapist.ID,
		ServiceID:       svc.ID,
		StartTime:       req.StartTime,
		DurationMinutes: svc.DurationMinutes,
		Price:           svc.Price,
		Status:          StatusPending,
		Notes:           req.Notes,
		CreatedAt:       s.clock.Now(),
	}

	var created *Appointment

	err = s.withTherapistLock(ctx, "create", therapist.ID, func(lockCtx context.Context) error {
		// Inside the critical section re-check the therapist's calendar
		overlap, err := s.repo.HasOverlap(lockCtx, appt.TherapistID, appt.Interval(), nil)
		if err != nil {
			return apperr.Persistence("check slot availability", err)
		}
		if overlap {
			return ErrSlotUnavailable
		}

		inserted, err := s.repo.InsertAppointment(lockCtx, appt)
		if err != nil {
			return err
		}
		created = inserted

		s.logEvent(lockCtx, inserted.ID, EventAppointmentCreated, map[string]any{
			"patient_id":   inserted.PatientID.String(),
			"therapist_id": inserted.TherapistID.String(),
			"service_id":   inserted.ServiceID.String(),
			"start_time":   inserted.StartTime,
			"end_time":     inserted.End(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (s *Service) resolvePatient(ctx context.Context, req BookingRequest) (*Patient, error) {
	if req.PatientID != uuid.Nil {
		p, err := s.repo.GetPatient(ctx, req.PatientID)
		if err != nil {
			return nil, apperr.Persistence("load patient", err)
		}
		return p, nil
	}
	return s.ResolveOrCreatePatient(ctx, req.UserID)
}

// UpdateAppointment moves an appointment to changes.StartTime (zero keeps the
// current start) and replaces its notes. Duration, therapist and service are
// fixed at booking.
func (s *Service) UpdateAppointment(ctx context.Context, changes *Appointment) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.UpdateAppointment")
	defer span.End()

	if changes == nil {
		return nil, ErrAppointmentNotFound
	}
	span.SetAttributes(attribute.String("clinic.appointment_id", changes.ID.String()))

	updated, err := s.updateAppointment(ctx, *changes)
	s.metrics.ObserveBooking("reschedule", outcomeOf(err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return updated, nil
}

func (s *Service) updateAppointment(ctx context.Context, changes Appointment) (*Appointment, error) {
	if err := validateNotes(changes.Notes); err != nil {
		return nil, err
	}

	current, err := s.repo.GetAppointment(ctx, changes.ID)
	if err != nil {
		return nil, apperr.Persistence("load appointment", err)
	}

	var updated *Appointment

	err = s.withTherapistLock(ctx, "reschedule", current.TherapistID, func(lockCtx context.Context) error {
		// reload so a concurrent cancel or completion is observed
		current, err := s.repo.GetAppointment(lockCtx, changes.ID)
		if err != nil {
			return apperr.Persistence("load appointment", err)
		}
		if current.Status.IsTerminal() {
			return ErrNotReschedulable
		}

		next := *current
		if !changes.StartTime.IsZero() {
			next.StartTime = changes.StartTime
		}
		next.Notes = changes.Notes
		now := s.clock.Now()
		next.UpdatedAt = &now

		overlap, err := s.repo.HasOverlap(lockCtx, next.TherapistID, next.Interval(), &next.ID)
		if err != nil {
			return apperr.Persistence("check slot availability", err)
		}
		if overlap {
			return ErrSlotUnavailable
		}

		saved, err := s.repo.UpdateSchedule(lockCtx, next)
		if err != nil {
			return err
		}
		updated = saved

		if !saved.StartTime.Equal(current.StartTime) {
			s.logEvent(lockCtx, saved.ID, EventAppointmentRescheduled, map[string]any{
				"previous_start_time": current.StartTime,
				"start_time":          saved.StartTime,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// CancelAppointment frees the appointment's interval. Cancelling an already
// cancelled appointment succeeds without touching it.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCancelled)
}

func (s *Service) ConfirmAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusConfirmed)
}

func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCompleted)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.Transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.appointment_id", id.String()),
		attribute.String("clinic.status_to", string(to)),
	)

	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Persistence("load appointment", err)
	}

	if appt.Status == to && to == StatusCancelled {
		return appt, nil
	}
	if !appt.Status.CanTransitionTo(to) {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, appt.Status, to, s.clock.Now())
	if errors.Is(err, ErrAppointmentNotFound) {
		// status moved underneath us
		latest, getErr := s.repo.GetAppointment(ctx, id)
		if getErr != nil {
			return nil, apperr.Persistence("load appointment", getErr)
		}
		if latest.Status == to && to == StatusCancelled {
			return latest, nil
		}
		return nil, ErrInvalidTransition
	}
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Persistence("update appointment status", err)
	}

	s.metrics.ObserveTransition(string(to))
	s.logEvent(ctx, updated.ID, transitionEvents[to], map[string]any{
		"from": string(appt.Status),
		"to":   string(to),
	})

	return updated, nil
}

// GetAppointment retrieves a fully hydrated appointment by ID
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("get appointment", err)
	}
	return detail, nil
}

func (s *Service) GetService(ctx context.Context, id uuid.UUID) (*TherapyService, error) {
	svc, err := s.repo.GetService(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("get service", err)
	}
	return svc, nil
}

// ListAppointmentsByPatient lists a patient's appointments, newest first.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	return s.list(ctx, ListFilter{PatientID: &patientID, Limit: limit, Offset: offset})
}

// ListAppointmentsByTherapist lists a therapist's appointments, oldest first.
func (s *Service) ListAppointmentsByTherapist(ctx context.Context, therapistID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	return s.list(ctx, ListFilter{TherapistID: &therapistID, Limit: limit, Offset: offset})
}

func (s *Service) ListAllAppointments(ctx context.Context, limit, offset int) ([]AppointmentDetail, error) {
	return s.list(ctx, ListFilter{Limit: limit, Offset: offset})
}

// ListAppointmentsForUser lists the appointments of the patient linked to userID.
func (s *Service) ListAppointmentsForUser(ctx context.Context, userID string, limit, offset int) ([]AppointmentDetail, error) {
	patient, err := s.ResolveOrCreatePatient(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.ListAppointmentsByPatient(ctx, patient.ID, limit, offset)
}

func (s *Service) list(ctx context.Context, filter ListFilter) ([]AppointmentDetail, error) {
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)

	appointments, err := s.repo.ListAppointmentDetails(ctx, filter)
	if err != nil {
		return nil, apperr.Persistence("list appointments", err)
	}
	return appointments, nil
}

// ResolveOrCreatePatient returns the patient linked to userID, creating it
// with a placeholder date of birth 30 years back when none exists.
func (s *Service) ResolveOrCreatePatient(ctx context.Context, userID string) (*Patient, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrPatientRequired
	}

	y, m, d := s.clock.Now().AddDate(-30, 0, 0).Date()
	dob := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	p, err := s.repo.UpsertPatientByUserID(ctx, userID, dob)
	if err != nil {
		return nil, apperr.Persistence("resolve patient", err)
	}
	return p, nil
}

func (s *Service) withTherapistLock(ctx context.Context, op string, therapistID uuid.UUID, fn func(ctx context.Context) error) error {
	var held time.Time

	err := s.locker.WithLock(ctx, therapistID, func(lockCtx context.Context) error {
		held = time.Now()
		defer func() {
			s.metrics.ObserveLockHeld(op, time.Since(held).Seconds())
		}()
		return fn(lockCtx)
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		return ErrTherapistBusy.Wrap(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return apperr.Persistence("therapist lock", err)
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.clock.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}

func validateNotes(notes string) error {
	if utf8.RuneCountInString(notes) > maxNotesLength {
		return ErrNotesTooLong
	}
	return nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	switch {
	case errors.Is(err, ErrSlotUnavailable):
		return "conflict"
	case errors.Is(err, ErrTherapistBusy):
		return "busy"
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindNotFound, apperr.KindConflict:
		return "rejected"
	default:
		return "error"
	}
}
