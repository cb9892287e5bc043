package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaymentSummarySource supplies the latest payment of an appointment to
// listings served from memory.
type PaymentSummarySource interface {
	LatestPaymentSummary(appointmentID uuid.UUID) *PaymentSummary
}

// MemoryRepository keeps everything in process. The overlap invariant is
// enforced under the same mutex as the write, mirroring the exclusion
// constraint of the Postgres schema.
type MemoryRepository struct {
	mu           sync.RWMutex
	services     map[uuid.UUID]TherapyService
	therapists   map[uuid.UUID]Therapist
	patients     map[uuid.UUID]Patient
	patientsByID map[string]uuid.UUID
	appointments map[uuid.UUID]Appointment
	events       []EventLog
	payments     PaymentSummarySource
	nextEventID  int64
	now          func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		services:     make(map[uuid.UUID]TherapyService),
		therapists:   make(map[uuid.UUID]Therapist),
		patients:     make(map[uuid.UUID]Patient),
		patientsByID: make(map[string]uuid.UUID),
		appointments: make(map[uuid.UUID]Appointment),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) UsePaymentSummaries(src PaymentSummarySource) {
	r.mu.Lock()
	r.payments = src
	r.mu.Unlock()
}

func (r *MemoryRepository) CreateService(_ context.Context, svc TherapyService) (*TherapyService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if svc.ID == uuid.Nil {
		svc.ID = uuid.New()
	}
	if svc.CreatedAt.IsZero() {
		svc.CreatedAt = r.now()
	}
	r.services[svc.ID] = svc
	return &svc, nil
}

func (r *MemoryRepository) CreateTherapist(_ context.Context, th Therapist) (*Therapist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if th.ID == uuid.Nil {
		th.ID = uuid.New()
	}
	if th.CreatedAt.IsZero() {
		th.CreatedAt = r.now()
	}
	r.therapists[th.ID] = th
	return &th, nil
}

func (r *MemoryRepository) GetService(_ context.Context, id uuid.UUID) (*TherapyService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return &s, nil
}

func (r *MemoryRepository) GetTherapist(_ context.Context, id uuid.UUID) (*Therapist, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.therapists[id]
	if !ok {
		return nil, ErrTherapistNotFound
	}
	return &t, nil
}

func (r *MemoryRepository) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) UpsertPatientByUserID(_ context.Context, userID string, dateOfBirth time.Time) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.patientsByID[userID]; ok {
		p := r.patients[id]
		return &p, nil
	}

	p := Patient{
		ID:          uuid.New(),
		UserID:      userID,
		DateOfBirth: dateOfBirth,
		CreatedAt:   r.now(),
	}
	r.patients[p.ID] = p
	r.patientsByID[userID] = p.ID
	return &p, nil
}

func (r *MemoryRepository) HasOverlap(_ context.Context, therapistID uuid.UUID, iv Interval, excludeID *uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.overlapLocked(therapistID, iv, excludeID), nil
}

func (r *MemoryRepository) overlapLocked(therapistID uuid.UUID, iv Interval, excludeID *uuid.UUID) bool {
	for _, a := range r.appointments {
		if a.TherapistID != therapistID || !a.Status.Blocks() {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if a.Interval().Overlaps(iv) {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) ListBlockingIntervals(_ context.Context, therapistID uuid.UUID, window Interval) ([]Interval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Interval
	for _, a := range r.appointments {
		if a.TherapistID != therapistID || !a.Status.Blocks() {
			continue
		}
		if iv := a.Interval(); iv.Overlaps(window) {
			result = append(result, iv)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Start.Before(result[j].Start) })
	return result, nil
}

func (r *MemoryRepository) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) InsertAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status.Blocks() && r.overlapLocked(a.TherapistID, a.Interval(), nil) {
		return nil, ErrSlotUnavailable
	}
	r.appointments[a.ID] = a
	return &a, nil
}

func (r *MemoryRepository) UpdateSchedule(_ context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.appointments[a.ID]
	if !ok || current.Status.IsTerminal() {
		return nil, ErrAppointmentNotFound
	}
	if r.overlapLocked(current.TherapistID, NewInterval(a.StartTime, current.DurationMinutes), &a.ID) {
		return nil, ErrSlotUnavailable
	}

	current.StartTime = a.StartTime
	current.Notes = a.Notes
	current.UpdatedAt = a.UpdatedAt
	r.appointments[a.ID] = current
	return &current, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to Status, at time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = &at
	r.appointments[id] = a
	return &a, nil
}

func (r *MemoryRepository) GetAppointmentDetail(_ context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	d := r.detailLocked(a)
	return &d, nil
}

func (r *MemoryRepository) ListAppointmentDetails(_ context.Context, filter ListFilter) ([]AppointmentDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]Appointment, 0)
	for _, a := range r.appointments {
		if filter.PatientID != nil && a.PatientID != *filter.PatientID {
			continue
		}
		if filter.TherapistID != nil && a.TherapistID != *filter.TherapistID {
			continue
		}
		matched = append(matched, a)
	}

	ascending := filter.TherapistID != nil && filter.PatientID == nil
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.StartTime.Equal(b.StartTime) {
			if ascending {
				return a.StartTime.Before(b.StartTime)
			}
			return a.StartTime.After(b.StartTime)
		}
		return a.ID.String() < b.ID.String()
	})

	if filter.Offset >= len(matched) {
		return []AppointmentDetail{}, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}

	result := make([]AppointmentDetail, 0, len(matched))
	for _, a := range matched {
		result = append(result, r.detailLocked(a))
	}
	return result, nil
}

func (r *MemoryRepository) detailLocked(a Appointment) AppointmentDetail {
	d := AppointmentDetail{Appointment: a}
	if s, ok := r.services[a.ServiceID]; ok {
		d.ServiceName = s.Name
	}
	if t, ok := r.therapists[a.TherapistID]; ok {
		d.TherapistName = t.FullName
	}
	if p, ok := r.patients[a.PatientID]; ok {
		d.PatientUserID = p.UserID
	}
	if r.payments != nil {
		d.Payment = r.payments.LatestPaymentSummary(a.ID)
	}
	return d
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextEventID++
	ev.ID = r.nextEventID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the audit log, oldest first.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}
