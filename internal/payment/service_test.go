package payment

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/therapy-clinic-scheduling/internal/apperr"
	"github.com/hackgods/therapy-clinic-scheduling/internal/appointment"
	"github.com/hackgods/therapy-clinic-scheduling/internal/clock"
	redisclient "github.com/hackgods/therapy-clinic-scheduling/internal/redis"
)

type stubGateway struct {
	auth  Authorization
	err   error
	calls []AuthorizationRequest
}

func (g *stubGateway) Authorize(_ context.Context, req AuthorizationRequest) (Authorization, error) {
	g.calls = append(g.calls, req)
	return g.auth, g.err
}

type recorderFixture struct {
	svc          *Service
	repo         *MemoryRepository
	appointments *appointment.MemoryRepository
	gateway      *stubGateway
	clk          *clock.Fixed
	appt         *appointment.Appointment
}

func newRecorderFixture(t *testing.T) recorderFixture {
	t.Helper()
	ctx := context.Background()

	appointments := appointment.NewMemoryRepository()
	appt, err := appointments.InsertAppointment(ctx, appointment.Appointment{
		PatientID:       uuid.New(),
		TherapistID:     uuid.New(),
		ServiceID:       uuid.New(),
		StartTime:       time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
		Price:           decimal.RequireFromString("80.00"),
		Status:          appointment.StatusConfirmed,
	})
	require.NoError(t, err)

	repo := NewMemoryRepository()
	appointments.UsePaymentSummaries(repo)
	gw := &stubGateway{auth: Authorization{Approved: true}}
	clk := clock.NewFixed(time.Date(2025, 3, 10, 11, 5, 0, 0, time.UTC))

	svc := NewService(repo, appointments, gw, redisclient.NewLocalLocker(5*time.Second), clk, "EUR", zerolog.Nop(), nil)
	return recorderFixture{svc: svc, repo: repo, appointments: appointments, gateway: gw, clk: clk, appt: appt}
}

func (f recorderFixture) pay(t *testing.T) (*Payment, error) {
	t.Helper()
	return f.svc.ProcessPayment(context.Background(), PaymentRequest{AppointmentID: f.appt.ID, Method: "card"})
}

var txnPattern = regexp.MustCompile(`^TXN-[0-9A-F]{8}$`)

func TestProcessPaymentApproved(t *testing.T) {
	f := newRecorderFixture(t)

	p, err := f.pay(t)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, p.Status)
	assert.Regexp(t, txnPattern, p.TransactionID)
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("80")), "defaults to the captured price")
	assert.Equal(t, f.clk.Now(), p.PaymentDate)

	require.Len(t, f.gateway.calls, 1)
	call := f.gateway.calls[0]
	assert.Equal(t, p.ID, call.PaymentID)
	assert.Equal(t, p.ID.String(), call.IdempotencyKey)
	assert.Equal(t, "EUR", call.Currency)

	detail, err := f.appointments.GetAppointmentDetail(context.Background(), f.appt.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Payment)
	assert.Equal(t, p.ID, detail.Payment.ID)
}

func TestProcessPaymentUsesGatewayTransactionID(t *testing.T) {
	f := newRecorderFixture(t)
	f.gateway.auth = Authorization{Approved: true, TransactionID: "pi_123"}

	p, err := f.svc.ProcessPayment(context.Background(), PaymentRequest{
		AppointmentID: f.appt.ID,
		Amount:        decimal.RequireFromString("50.555"),
		Method:        " cash ",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", p.TransactionID)
	assert.Equal(t, "cash", p.Method)
	assert.Equal(t, "50.56", p.Amount.StringFixed(2))
}

func TestProcessPaymentDeclinedIsPersisted(t *testing.T) {
	f := newRecorderFixture(t)
	f.gateway.auth = Authorization{Approved: false, Reason: "insufficient funds"}

	p, err := f.pay(t)
	assert.ErrorIs(t, err, ErrPaymentDeclined)
	assert.Equal(t, apperr.KindGatewayDeclined, apperr.KindOf(err))
	require.NotNil(t, p)
	assert.Equal(t, StatusFailed, p.Status)
	assert.Empty(t, p.TransactionID)
	assert.True(t, strings.HasPrefix(p.Notes, failureNote))
	assert.Contains(t, p.Notes, "insufficient funds")

	stored, err := f.repo.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)

	_, err = f.pay(t)
	assert.ErrorIs(t, err, ErrPaymentDeclined, "a failed attempt does not block a retry")
}

func TestProcessPaymentGatewayErrorIsPersistedAsFailed(t *testing.T) {
	f := newRecorderFixture(t)
	f.gateway.err = errors.New("dial tcp: connection refused")

	p, err := f.pay(t)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	require.NotNil(t, p)
	assert.Equal(t, StatusFailed, p.Status)
	assert.Equal(t, failureNote, p.Notes)
}

func TestProcessPaymentNeverPending(t *testing.T) {
	outcomes := []struct {
		auth Authorization
		err  error
	}{
		{auth: Authorization{Approved: true}},
		{auth: Authorization{Approved: false}},
		{err: errors.New("timeout")},
	}

	for _, o := range outcomes {
		f := newRecorderFixture(t)
		f.gateway.auth, f.gateway.err = o.auth, o.err

		p, _ := f.pay(t)
		require.NotNil(t, p)
		assert.NotEqual(t, StatusPending, p.Status)
		assert.Equal(t, p.Status == StatusCompleted, p.TransactionID != "")
	}
}

func TestProcessPaymentRejectsSecondCompletedPayment(t *testing.T) {
	f := newRecorderFixture(t)

	_, err := f.pay(t)
	require.NoError(t, err)

	_, err = f.pay(t)
	assert.ErrorIs(t, err, ErrAlreadyPaid)
	assert.Len(t, f.gateway.calls, 1, "gateway is not charged twice")
}

func TestProcessPaymentValidation(t *testing.T) {
	f := newRecorderFixture(t)
	ctx := context.Background()

	cancelled, err := f.appointments.InsertAppointment(ctx, appointment.Appointment{
		TherapistID:     uuid.New(),
		StartTime:       time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
		Price:           decimal.NewFromInt(40),
		Status:          appointment.StatusCancelled,
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  PaymentRequest
		want error
	}{
		{"missing appointment id", PaymentRequest{Method: "card"}, ErrAppointmentIDNil},
		{"missing method", PaymentRequest{AppointmentID: f.appt.ID, Method: "  "}, ErrMethodRequired},
		{"method too long", PaymentRequest{AppointmentID: f.appt.ID, Method: strings.Repeat("m", 51)}, ErrMethodTooLong},
		{"negative amount", PaymentRequest{AppointmentID: f.appt.ID, Method: "card", Amount: decimal.NewFromInt(-5)}, ErrInvalidAmount},
		{"unknown appointment", PaymentRequest{AppointmentID: uuid.New(), Method: "card"}, appointment.ErrAppointmentNotFound},
		{"cancelled appointment", PaymentRequest{AppointmentID: cancelled.ID, Method: "card"}, ErrAppointmentCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ProcessPayment(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.gateway.calls)
}

func TestRefundPayment(t *testing.T) {
	f := newRecorderFixture(t)
	ctx := context.Background()

	completed, err := f.pay(t)
	require.NoError(t, err)

	f.clk.Set(time.Date(2025, 3, 12, 16, 45, 30, 0, time.UTC))
	refunded, err := f.svc.RefundPayment(ctx, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, refunded.Status)
	assert.Equal(t, "Refunded on 2025-03-12 16:45", refunded.Notes)
	assert.Equal(t, completed.TransactionID, refunded.TransactionID)

	_, err = f.svc.RefundPayment(ctx, completed.ID)
	assert.ErrorIs(t, err, ErrNotRefundable, "refunded is not completed")

	_, err = f.svc.RefundPayment(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	f.gateway.auth = Authorization{Approved: false}
	failed, err := f.pay(t)
	require.ErrorIs(t, err, ErrPaymentDeclined)
	_, err = f.svc.RefundPayment(ctx, failed.ID)
	assert.ErrorIs(t, err, ErrNotRefundable)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestRefundAppendsToExistingNotes(t *testing.T) {
	f := newRecorderFixture(t)

	p, err := f.svc.ProcessPayment(context.Background(), PaymentRequest{AppointmentID: f.appt.ID, Method: "card", Notes: "front desk"})
	require.NoError(t, err)

	refunded, err := f.svc.RefundPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "front desk\nRefunded on 2025-03-10 11:05", refunded.Notes)
}

func TestListPayments(t *testing.T) {
	f := newRecorderFixture(t)
	ctx := context.Background()

	f.gateway.auth = Authorization{Approved: false}
	first, _ := f.pay(t)
	f.clk.Advance(time.Minute)
	f.gateway.auth = Authorization{Approved: true}
	second, err := f.pay(t)
	require.NoError(t, err)

	all, err := f.svc.ListPayments(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, first.ID, all[1].ID)

	forAppt, err := f.svc.GetPaymentForAppointment(ctx, f.appt.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, forAppt.ID)

	other := uuid.New()
	none, err := f.svc.ListPayments(ctx, ListFilter{AppointmentID: &other})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetPaymentForAppointment(t *testing.T) {
	f := newRecorderFixture(t)

	_, err := f.svc.GetPaymentForAppointment(context.Background(), f.appt.ID)
	assert.ErrorIs(t, err, ErrPaymentNotFound)

	p, err := f.pay(t)
	require.NoError(t, err)

	got, err := f.svc.GetPaymentForAppointment(context.Background(), f.appt.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = f.svc.GetPayment(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

type passThroughLocker struct{}

func (passThroughLocker) WithLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type busyLocker struct{}

func (busyLocker) WithLock(context.Context, uuid.UUID, func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

// rendezvousGateway holds each approval until `parties` calls have arrived,
// or until the timeout passes, then approves all of them.
type rendezvousGateway struct {
	mu      sync.Mutex
	calls   int
	parties int
	arrived chan struct{}
	timeout time.Duration
}

func newRendezvousGateway(parties int, timeout time.Duration) *rendezvousGateway {
	return &rendezvousGateway{parties: parties, arrived: make(chan struct{}), timeout: timeout}
}

func (g *rendezvousGateway) Authorize(_ context.Context, _ AuthorizationRequest) (Authorization, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	if n == g.parties {
		close(g.arrived)
	}
	g.mu.Unlock()

	select {
	case <-g.arrived:
	case <-time.After(g.timeout):
	}
	return Authorization{Approved: true, TransactionID: fmt.Sprintf("pi_%d", n)}, nil
}

func (g *rendezvousGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (f recorderFixture) withService(gw Gateway, locker redisclient.Locker) recorderFixture {
	f.svc = NewService(f.repo, f.appointments, gw, locker, f.clk, "EUR", zerolog.Nop(), nil)
	return f
}

type payResult struct {
	p   *Payment
	err error
}

func payConcurrently(t *testing.T, f recorderFixture, n int) []payResult {
	t.Helper()
	results := make([]payResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := f.svc.ProcessPayment(context.Background(), PaymentRequest{AppointmentID: f.appt.ID, Method: "card"})
			results[i] = payResult{p: p, err: err}
		}(i)
	}
	wg.Wait()
	return results
}

func TestConcurrentPaymentsChargeOnce(t *testing.T) {
	// with the appointment lock only the first caller reaches the gateway
	gw := newRendezvousGateway(2, 20*time.Millisecond)
	f := newRecorderFixture(t).withService(gw, redisclient.NewLocalLocker(5*time.Second))

	results := payConcurrently(t, f, 6)

	var paid int
	for _, r := range results {
		if r.err == nil {
			paid++
			assert.Equal(t, StatusCompleted, r.p.Status)
			continue
		}
		assert.ErrorIs(t, r.err, ErrAlreadyPaid)
	}
	assert.Equal(t, 1, paid)
	assert.Equal(t, 1, gw.callCount())

	records, err := f.repo.List(context.Background(), ListFilter{AppointmentID: &f.appt.ID, Limit: 50})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, StatusCompleted, records[0].Status)
}

func TestDuplicateApprovalIsRecorded(t *testing.T) {
	// without serialisation both charges are approved; the loser must still
	// leave a record carrying its transaction id
	gw := newRendezvousGateway(2, 2*time.Second)
	f := newRecorderFixture(t).withService(gw, passThroughLocker{})

	results := payConcurrently(t, f, 2)
	require.Equal(t, 2, gw.callCount())

	var completed, duplicate *Payment
	for _, r := range results {
		require.NotNil(t, r.p, "every approved charge is returned with its record")
		if r.err == nil {
			completed = r.p
			continue
		}
		assert.ErrorIs(t, r.err, ErrAlreadyPaid)
		duplicate = r.p
	}
	require.NotNil(t, completed)
	require.NotNil(t, duplicate)

	assert.Equal(t, StatusCompleted, completed.Status)
	assert.Equal(t, StatusFailed, duplicate.Status)
	assert.NotEmpty(t, duplicate.TransactionID)
	assert.Contains(t, duplicate.Notes, duplicate.TransactionID)
	assert.NotEqual(t, completed.TransactionID, duplicate.TransactionID)

	records, err := f.repo.List(context.Background(), ListFilter{AppointmentID: &f.appt.ID, Limit: 50})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestPaymentLockBusy(t *testing.T) {
	f := newRecorderFixture(t)
	f = f.withService(f.gateway, busyLocker{})

	p, err := f.pay(t)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrPaymentInProgress)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Empty(t, f.gateway.calls)
}
