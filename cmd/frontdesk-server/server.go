package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinic/frontdesk/internal/config"
	"github.com/clinic/frontdesk/internal/domain/calendar"
	"github.com/clinic/frontdesk/internal/domain/patient"
	"github.com/clinic/frontdesk/internal/domain/scheduling"
	"github.com/clinic/frontdesk/internal/platform/auth"
	"github.com/clinic/frontdesk/internal/platform/db"
	"github.com/clinic/frontdesk/internal/platform/localstore"
	"github.com/clinic/frontdesk/internal/platform/metrics"
	"github.com/clinic/frontdesk/internal/platform/middleware"
)

const connectTimeout = 5 * time.Second

// app holds the wired server and the resources it must release.
type app struct {
	echo    *echo.Echo
	pool    *pgxpool.Pool
	rdb     *redis.Client
	backend string
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

type stores struct {
	slots    scheduling.SlotStore
	patients patient.PatientStore
}

// openStores prefers Postgres when configured and reachable and falls back
// to the local document store otherwise.
func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (stores, *pgxpool.Pool, error) {
	if cfg.UsePostgres() {
		cctx, cancel := context.WithTimeout(ctx, connectTimeout)
		pool, err := db.NewPool(cctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
		cancel()
		if err == nil {
			logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")
			return stores{slots: scheduling.NewSlotStorePG(pool), patients: patient.NewPatientStorePG(pool)}, pool, nil
		}
		logger.Warn().Err(err).Str("dir", cfg.LocalStoreDir).Msg("database unreachable, using local store")
	} else {
		logger.Warn().Str("dir", cfg.LocalStoreDir).Msg("DATABASE_URL not set, using local store")
	}

	docs, err := localstore.Open(cfg.LocalStoreDir, logger)
	if err != nil {
		return stores{}, nil, err
	}
	return stores{slots: scheduling.NewSlotStoreLocal(docs), patients: patient.NewPatientStoreLocal(docs)}, nil, nil
}

func openRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid REDIS_URL, count cache disabled")
		return nil
	}
	rdb := redis.NewClient(opts)
	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(cctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable, count cache disabled")
		_ = rdb.Close()
		return nil
	}
	logger.Info().Msg("connected to redis")
	return rdb
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	gc, err := cfg.GridConfig()
	if err != nil {
		return nil, err
	}
	grid, err := scheduling.NewGrid(gc)
	if err != nil {
		return nil, err
	}
	cal, err := calendar.Load(cfg.HolidaysFile)
	if err != nil {
		return nil, err
	}

	st, pool, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &app{pool: pool, backend: "local"}
	if pool != nil {
		a.backend = "postgres"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ledgerMetrics := metrics.NewLedger(reg)

	ledger := scheduling.NewLedger(st.slots, grid, cal, logger).WithMetrics(ledgerMetrics)
	var view scheduling.OccupancyView = scheduling.StoreOccupancy{Store: st.slots}
	if a.rdb = openRedis(ctx, cfg, logger); a.rdb != nil {
		cache := scheduling.NewRedisCountCache(view, a.rdb, cfg.CacheTTL, logger).WithMetrics(ledgerMetrics)
		ledger.WithCache(cache)
		view = cache
	}
	avail := scheduling.NewAvailability(view, grid, cal)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.NewHTTP(reg).Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Auth middleware
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		logger.Warn().Msg("development auth is active: every request is granted the admin role")
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			SigningKey: []byte(cfg.JWTSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "backend": a.backend})
	})
	var pinger db.Pinger
	if pool != nil {
		pinger = pool
	}
	e.GET("/health/db", db.HealthHandler(pinger))
	e.GET("/metrics", metrics.Handler(reg))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           middleware.DefaultRateLimitConfig().IdleTTL,
	}))

	scheduling.NewHandler(ledger, avail, cal).RegisterRoutes(apiV1)
	patient.NewHandler(patient.NewService(st.patients, logger)).RegisterRoutes(apiV1)

	a.echo = e
	return a, nil
}

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("backend", a.backend).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = a.echo.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = a.echo.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(sctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
