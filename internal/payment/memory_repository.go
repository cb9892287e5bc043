package payment

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-clinic-scheduling/internal/appointment"
)

// MemoryRepository keeps payments in process and enforces one completed
// payment per appointment at insert.
type MemoryRepository struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]Payment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{payments: make(map[uuid.UUID]Payment)}
}

func (r *MemoryRepository) Insert(_ context.Context, p Payment) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == StatusCompleted {
		for _, existing := range r.payments {
			if existing.AppointmentID == p.AppointmentID && existing.Status == StatusCompleted {
				return nil, ErrAlreadyPaid
			}
		}
	}
	r.payments[p.ID] = p
	return &p, nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetCompletedForAppointment(_ context.Context, appointmentID uuid.UUID) (*Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.payments {
		if p.AppointmentID == appointmentID && p.Status == StatusCompleted {
			return &p, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (r *MemoryRepository) List(_ context.Context, filter ListFilter) ([]Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Payment, 0, len(r.payments))
	for _, p := range r.payments {
		if filter.AppointmentID != nil && p.AppointmentID != *filter.AppointmentID {
			continue
		}
		out = append(out, p)
	}
	sortNewestFirst(out)

	if filter.Offset >= len(out) {
		return []Payment{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) MarkRefunded(_ context.Context, id uuid.UUID, note string) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok || p.Status != StatusCompleted {
		return nil, ErrPaymentNotFound
	}
	p.Status = StatusRefunded
	if p.Notes == "" {
		p.Notes = note
	} else {
		p.Notes += "\n" + note
	}
	r.payments[id] = p
	return &p, nil
}

// LatestPaymentSummary feeds appointment listings served from memory.
func (r *MemoryRepository) LatestPaymentSummary(appointmentID uuid.UUID) *appointment.PaymentSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []Payment
	for _, p := range r.payments {
		if p.AppointmentID == appointmentID {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return nil
	}
	sortNewestFirst(matched)

	latest := matched[0]
	return &appointment.PaymentSummary{
		ID:            latest.ID,
		Amount:        latest.Amount,
		Status:        string(latest.Status),
		TransactionID: latest.TransactionID,
	}
}

func sortNewestFirst(ps []Payment) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].PaymentDate.Equal(ps[j].PaymentDate) {
			return ps[i].PaymentDate.After(ps[j].PaymentDate)
		}
		return ps[i].ID.String() < ps[j].ID.String()
	})
}
