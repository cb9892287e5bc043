// Package seed fills a store with a demo clinic catalog: a fixed service
// menu, fake therapists and fake patients.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"

	"github.com/hackgods/therapy-clinic-scheduling/internal/appointment"
)

type Store interface {
	appointment.CatalogWriter
	UpsertPatientByUserID(ctx context.Context, userID string, dateOfBirth time.Time) (*appointment.Patient, error)
}

type Options struct {
	Therapists int
	Patients   int
	Seed       uint64
}

type Result struct {
	Services   []appointment.TherapyService
	Therapists []appointment.Therapist
	Patients   []appointment.Patient
}

type serviceTemplate struct {
	name        string
	description string
	price       string
	minutes     int
}

var menu = []serviceTemplate{
	{"Physiotherapy", "Assessment and manual therapy for musculoskeletal pain", "80.00", 60},
	{"Sports Massage", "Deep tissue massage for recovery", "65.00", 45},
	{"Occupational Therapy", "Daily living and workplace skills", "90.00", 60},
	{"Speech Therapy", "Speech and language sessions", "75.00", 45},
	{"Cognitive Behavioural Therapy", "Talk therapy session", "110.00", 50},
	{"Hydrotherapy", "Pool based rehabilitation", "70.00", 30},
	{"Initial Consultation", "First visit and treatment plan", "55.00", 30},
}

var specializations = []string{
	"Musculoskeletal",
	"Neurological Rehabilitation",
	"Paediatrics",
	"Sports Injury",
	"Mental Health",
	"Geriatrics",
}

// Populate writes the service menu, opts.Therapists therapists and
// opts.Patients patients. Output is deterministic for a given opts.Seed.
func Populate(ctx context.Context, store Store, opts Options) (*Result, error) {
	faker := gofakeit.New(opts.Seed)
	res := &Result{}

	for _, tmpl := range menu {
		svc, err := store.CreateService(ctx, appointment.TherapyService{
			Name:            tmpl.name,
			Description:     tmpl.description,
			Price:           decimal.RequireFromString(tmpl.price),
			DurationMinutes: tmpl.minutes,
			IsActive:        true,
		})
		if err != nil {
			return nil, fmt.Errorf("create service %q: %w", tmpl.name, err)
		}
		res.Services = append(res.Services, *svc)
	}

	for i := 0; i < opts.Therapists; i++ {
		th, err := store.CreateTherapist(ctx, appointment.Therapist{
			UserID:         "staff|" + faker.UUID(),
			FullName:       faker.Name(),
			Specialization: specializations[faker.Number(0, len(specializations)-1)],
			LicenseNumber:  faker.Numerify("LIC-######"),
			IsAvailable:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("create therapist: %w", err)
		}
		res.Therapists = append(res.Therapists, *th)
	}

	oldest := time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC)
	youngest := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < opts.Patients; i++ {
		y, m, d := faker.DateRange(oldest, youngest).Date()
		p, err := store.UpsertPatientByUserID(ctx, "user|"+faker.UUID(), time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
		if err != nil {
			return nil, fmt.Errorf("create patient: %w", err)
		}
		res.Patients = append(res.Patients, *p)
	}

	return res, nil
}
