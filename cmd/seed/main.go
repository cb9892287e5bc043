package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/hackgods/therapy-clinic-scheduling/internal/appointment"
	"github.com/hackgods/therapy-clinic-scheduling/internal/db"
	"github.com/hackgods/therapy-clinic-scheduling/internal/logging"
	"github.com/hackgods/therapy-clinic-scheduling/internal/seed"
)

func main() {
	logger := logging.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	opts := seed.Options{
		Therapists: getInt("SEED_THERAPISTS", 20),
		Patients:   getInt("SEED_PATIENTS", 500),
		Seed:       uint64(time.Now().UnixNano()),
	}
	logger.Info().Int("therapists", opts.Therapists).Int("patients", opts.Patients).Msg("seeding catalog")

	res, err := seed.Populate(context.Background(), appointment.NewPgRepository(pool), opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed catalog")
	}

	logger.Info().
		Int("services", len(res.Services)).
		Int("therapists", len(res.Therapists)).
		Int("patients", len(res.Patients)).
		Msg("seed complete")
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
