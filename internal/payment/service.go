package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/therapy-clinic-scheduling/internal/apperr"
	"github.com/hackgods/therapy-clinic-scheduling/internal/appointment"
	"github.com/hackgods/therapy-clinic-scheduling/internal/clock"
	"github.com/hackgods/therapy-clinic-scheduling/internal/observability/metrics"
	redisclient "github.com/hackgods/therapy-clinic-scheduling/internal/redis"
)

const (
	failureNote      = "Payment processing failed. Please try again."
	duplicateNote    = "Duplicate charge: appointment was already paid. Transaction %s requires reversal."
	refundNoteLayout = "2006-01-02 15:04"

	defaultListLimit = 50
	maxListLimit     = 200
)

var tracer = otel.Tracer("clinic.internal.payment")

type Service struct {
	repo         Repository
	appointments AppointmentLookup
	gateway      Gateway
	locker       redisclient.Locker
	clock        clock.Clock
	currency     string
	logger       zerolog.Logger
	metrics      *metrics.SchedulingMetrics
}

// NewService wires the recorder. locker is keyed by appointment id and
// serialises the already-paid check, the gateway call and the insert.
func NewService(repo Repository, appointments AppointmentLookup, gateway Gateway, locker redisclient.Locker, clk clock.Clock, currency string, logger zerolog.Logger, m *metrics.SchedulingMetrics) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	if currency == "" {
		currency = "USD"
	}
	return &Service{
		repo:         repo,
		appointments: appointments,
		gateway:      gateway,
		locker:       locker,
		clock:        clk,
		currency:     currency,
		logger:       logger.With().Str("component", "payment").Logger(),
		metrics:      m,
	}
}

// ProcessPayment charges an appointment through the gateway and records the
// outcome. The record is persisted as completed or failed, never pending.
// On a decline or an unreachable gateway the failed record is returned
// together with ErrPaymentDeclined or ErrGatewayUnavailable.
func (s *Service) ProcessPayment(ctx context.Context, req PaymentRequest) (*Payment, error) {
	ctx, span := tracer.Start(ctx, "payment.ProcessPayment")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.appointment_id", req.AppointmentID.String()))

	p, err := s.processPayment(ctx, req)
	if err != nil {
		span.RecordError(err)
	}
	if p != nil {
		span.SetAttributes(
			attribute.String("clinic.payment_id", p.ID.String()),
			attribute.String("clinic.payment_status", string(p.Status)),
		)
	}
	return p, err
}

func (s *Service) processPayment(ctx context.Context, req PaymentRequest) (*Payment, error) {
	if req.AppointmentID == uuid.Nil {
		return nil, ErrAppointmentIDNil
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		return nil, ErrMethodRequired
	}
	if utf8.RuneCountInString(method) > maxMethodLength {
		return nil, ErrMethodTooLong
	}

	appt, err := s.appointments.GetAppointment(ctx, req.AppointmentID)
	if err != nil {
		return nil, apperr.Persistence("load appointment", err)
	}
	if appt.Status == appointment.StatusCancelled {
		return nil, ErrAppointmentCancelled
	}

	amount := req.Amount
	if amount.IsZero() {
		amount = appt.Price
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	amount = amount.Round(2)

	var (
		saved   *Payment
		outcome error
	)
	err = s.locker.WithLock(ctx, appt.ID, func(lockCtx context.Context) error {
		saved, outcome = s.charge(lockCtx, appt, amount, method, strings.TrimSpace(req.Notes))
		return nil
	})
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		return nil, ErrPaymentInProgress.Wrap(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	case err != nil:
		return nil, apperr.Persistence("lock appointment payment", err)
	}
	return saved, outcome
}

// charge runs under the appointment lock. Every gateway call it makes ends
// in exactly one persisted record.
func (s *Service) charge(ctx context.Context, appt *appointment.Appointment, amount decimal.Decimal, method, notes string) (*Payment, error) {
	if _, err := s.repo.GetCompletedForAppointment(ctx, appt.ID); err == nil {
		return nil, ErrAlreadyPaid
	} else if !errors.Is(err, ErrPaymentNotFound) {
		return nil, apperr.Persistence("check existing payment", err)
	}

	p := Payment{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		Amount:        amount,
		Method:        method,
		PaymentDate:   s.clock.Now(),
		Notes:         notes,
	}

	auth, gwErr := s.gateway.Authorize(ctx, AuthorizationRequest{
		PaymentID:      p.ID,
		AppointmentID:  appt.ID,
		Amount:         amount,
		Currency:       s.currency,
		Method:         method,
		IdempotencyKey: p.ID.String(),
	})

	var outcome error
	switch {
	case gwErr != nil:
		p.Status = StatusFailed
		p.Notes = failureNote
		outcome = ErrGatewayUnavailable.Wrap(gwErr)
		s.logger.Warn().Err(gwErr).Str("payment_id", p.ID.String()).Msg("payment gateway unavailable")
	case !auth.Approved:
		p.Status = StatusFailed
		p.Notes = failureNote
		if auth.Reason != "" {
			p.Notes += " Reason: " + auth.Reason
		}
		outcome = ErrPaymentDeclined
	default:
		p.Status = StatusCompleted
		p.TransactionID = auth.TransactionID
		if p.TransactionID == "" {
			p.TransactionID = newTransactionID()
		}
	}

	// persist even if the caller went away after authorization
	persistCtx := context.WithoutCancel(ctx)
	saved, err := s.repo.Insert(persistCtx, p)
	if errors.Is(err, ErrAlreadyPaid) {
		// another completed payment won the store's unique index; keep the
		// approved charge on record so it can be reversed
		p.Status = StatusFailed
		p.Notes = fmt.Sprintf(duplicateNote, p.TransactionID)
		outcome = ErrAlreadyPaid
		s.logger.Warn().
			Str("payment_id", p.ID.String()).
			Str("appointment_id", appt.ID.String()).
			Str("transaction_id", p.TransactionID).
			Msg("duplicate charge approved")
		saved, err = s.repo.Insert(persistCtx, p)
	}
	if err != nil {
		s.logger.Error().Err(err).
			Str("payment_id", p.ID.String()).
			Str("status", string(p.Status)).
			Str("transaction_id", p.TransactionID).
			Msg("failed to record payment")
		return nil, apperr.Persistence("record payment", err)
	}

	s.metrics.ObservePayment(string(saved.Status))
	s.logger.Info().
		Str("payment_id", saved.ID.String()).
		Str("appointment_id", saved.AppointmentID.String()).
		Str("status", string(saved.Status)).
		Str("amount", saved.Amount.StringFixed(2)).
		Msg("payment recorded")

	return saved, outcome
}

// RefundPayment marks a completed payment refunded. No gateway call is made.
func (s *Service) RefundPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	ctx, span := tracer.Start(ctx, "payment.RefundPayment")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.payment_id", id.String()))

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Persistence("load payment", err)
	}
	if current.Status != StatusCompleted {
		return nil, ErrNotRefundable
	}

	note := "Refunded on " + s.clock.Now().UTC().Format(refundNoteLayout)
	refunded, err := s.repo.MarkRefunded(ctx, id, note)
	if errors.Is(err, ErrPaymentNotFound) {
		// refunded concurrently
		return nil, ErrNotRefundable
	}
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Persistence("refund payment", err)
	}

	s.metrics.ObservePayment(string(refunded.Status))
	return refunded, nil
}

func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("get payment", err)
	}
	return p, nil
}

// GetPaymentForAppointment returns the completed payment of an appointment.
func (s *Service) GetPaymentForAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	p, err := s.repo.GetCompletedForAppointment(ctx, appointmentID)
	if err != nil {
		return nil, apperr.Persistence("get appointment payment", err)
	}
	return p, nil
}

// ListPayments lists payments newest first, optionally for one appointment.
func (s *Service) ListPayments(ctx context.Context, filter ListFilter) ([]Payment, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	payments, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, apperr.Persistence("list payments", err)
	}
	return payments, nil
}
