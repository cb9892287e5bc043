package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-clinic-scheduling/internal/api"
	"github.com/hackgods/therapy-clinic-scheduling/internal/appointment"
	"github.com/hackgods/therapy-clinic-scheduling/internal/clock"
	"github.com/hackgods/therapy-clinic-scheduling/internal/config"
	"github.com/hackgods/therapy-clinic-scheduling/internal/db"
	"github.com/hackgods/therapy-clinic-scheduling/internal/logging"
	"github.com/hackgods/therapy-clinic-scheduling/internal/observability/metrics"
	"github.com/hackgods/therapy-clinic-scheduling/internal/payment"
	redisclient "github.com/hackgods/therapy-clinic-scheduling/internal/redis"
	"github.com/hackgods/therapy-clinic-scheduling/internal/seed"
)

var version = "dev"

type stores struct {
	appointments appointment.Repository
	payments     payment.Repository
	pinger       api.Pinger
	close        func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("prod", "info").Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel)
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("store", cfg.StoreBackend).
		Str("lock", cfg.LockBackend).
		Str("gateway", cfg.PaymentGateway).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewSchedulingMetrics(reg)

	st, err := openStores(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store setup error")
	}
	defer st.close()

	var rdb *redis.Client
	var locker, paymentLocker redisclient.Locker
	switch cfg.LockBackend {
	case "redis":
		rdb, err = redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()
		locker = redisclient.NewRedisTherapistLocker(rdb, cfg.LockTTL, cfg.LockWait)
		paymentLocker = redisclient.NewRedisAppointmentLocker(rdb, cfg.LockTTL, cfg.LockWait)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
	default:
		locker = redisclient.NewLocalLocker(cfg.LockWait)
		paymentLocker = redisclient.NewLocalLocker(cfg.LockWait)
	}

	var gateway payment.Gateway
	switch cfg.PaymentGateway {
	case "http":
		gateway = payment.NewHTTPGateway(cfg.PaymentGatewayURL, cfg.PaymentGatewayKey)
	default:
		gateway = payment.NewSimulatedGateway(cfg.PaymentApprovalRate, rand.NewSource(time.Now().UnixNano()))
	}

	grid := appointment.SlotGrid{
		Open:     cfg.BusinessOpen,
		Close:    cfg.BusinessClose,
		Step:     cfg.SlotStep,
		Location: cfg.Location(),
	}

	clk := clock.System{}
	appointments := appointment.NewService(st.appointments, locker, clk, grid, logger, m)
	payments := payment.NewService(st.payments, st.appointments, gateway, paymentLocker, clk, cfg.PaymentCurrency, logger, m)

	routerCfg := api.RouterConfig{
		Appointments: appointments,
		Payments:     payments,
		Postgres:     st.pinger,
		Redis:        rdb,
		Gatherer:     reg,
		Logger:       logger,
		Env:          cfg.Env,
		Version:      version,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(routerCfg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func openStores(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*stores, error) {
	if cfg.StoreBackend == "memory" {
		apptRepo := appointment.NewMemoryRepository()
		payRepo := payment.NewMemoryRepository()
		apptRepo.UsePaymentSummaries(payRepo)

		res, err := seed.Populate(ctx, apptRepo, seed.Options{Therapists: 5, Seed: uint64(time.Now().UnixNano())})
		if err != nil {
			return nil, err
		}
		for _, th := range res.Therapists {
			logger.Info().Str("therapist_id", th.ID.String()).Str("name", th.FullName).Msg("demo therapist")
		}
		for _, svc := range res.Services {
			logger.Info().Str("service_id", svc.ID.String()).Str("name", svc.Name).Int("minutes", svc.DurationMinutes).Msg("demo service")
		}

		// pinger stays a nil interface so readiness reports postgres as disabled
		return &stores{appointments: apptRepo, payments: payRepo, close: func() {}}, nil
	}

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("connected to Postgres")

	return &stores{
		appointments: appointment.NewPgRepository(pool),
		payments:     payment.NewPgRepository(pool),
		pinger:       pool,
		close:        pool.Close,
	}, nil
}
