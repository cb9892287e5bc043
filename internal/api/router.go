package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-clinic-scheduling/internal/appointment"
	"github.com/hackgods/therapy-clinic-scheduling/internal/payment"
)

type AppointmentService interface {
	Location() *time.Location
	GetService(ctx context.Context, id uuid.UUID) (*appointment.TherapyService, error)
	ListOpenSlots(ctx context.Context, therapistID uuid.UUID, date time.Time, durationMinutes int) ([]time.Time, error)
	CreateAppointment(ctx context.Context, req appointment.BookingRequest) (*appointment.Appointment, error)
	UpdateAppointment(ctx context.Context, changes *appointment.Appointment) (*appointment.Appointment, error)
	CancelAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ConfirmAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	CompleteAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.AppointmentDetail, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]appointment.AppointmentDetail, error)
	ListAppointmentsByTherapist(ctx context.Context, therapistID uuid.UUID, limit, offset int) ([]appointment.AppointmentDetail, error)
	ListAppointmentsForUser(ctx context.Context, userID string, limit, offset int) ([]appointment.AppointmentDetail, error)
	ListAllAppointments(ctx context.Context, limit, offset int) ([]appointment.AppointmentDetail, error)
	ResolveOrCreatePatient(ctx context.Context, userID string) (*appointment.Patient, error)
}

type PaymentService interface {
	ProcessPayment(ctx context.Context, req payment.PaymentRequest) (*payment.Payment, error)
	RefundPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error)
	ListPayments(ctx context.Context, filter payment.ListFilter) ([]payment.Payment, error)
}

type RouterConfig struct {
	Appointments AppointmentService
	Payments     PaymentService
	Postgres     Pinger
	Redis        *redis.Client
	Gatherer     prometheus.Gatherer
	Logger       zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Scheduling endpoints
	r.Get("/therapists/{id}/slots", listOpenSlotsHandler(cfg.Appointments))
	r.Post("/patients/resolve", resolvePatientHandler(cfg.Appointments))

	r.Post("/appointments", createAppointmentHandler(cfg.Appointments))
	r.Get("/appointments", listAppointmentsHandler(cfg.Appointments))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))
	r.Put("/appointments/{id}/schedule", updateScheduleHandler(cfg.Appointments))
	r.Post("/appointments/{id}/cancel", transitionHandler(cfg.Appointments.CancelAppointment))
	r.Post("/appointments/{id}/confirm", transitionHandler(cfg.Appointments.ConfirmAppointment))
	r.Post("/appointments/{id}/complete", transitionHandler(cfg.Appointments.CompleteAppointment))

	// Payment endpoints
	r.Post("/appointments/{id}/payments", processPaymentHandler(cfg.Payments))
	r.Get("/payments", listPaymentsHandler(cfg.Payments))
	r.Get("/payments/{id}", getPaymentHandler(cfg.Payments))
	r.Post("/payments/{id}/refund", refundPaymentHandler(cfg.Payments))

	return r
}
