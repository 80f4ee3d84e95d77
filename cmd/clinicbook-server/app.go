package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/clinicbook/clinicbook/internal/config"
	"github.com/clinicbook/clinicbook/internal/domain/appointment"
	"github.com/clinicbook/clinicbook/internal/domain/availability"
	"github.com/clinicbook/clinicbook/internal/domain/booking"
	"github.com/clinicbook/clinicbook/internal/domain/doctor"
	"github.com/clinicbook/clinicbook/internal/domain/reservation"
	"github.com/clinicbook/clinicbook/internal/platform/apperr"
	"github.com/clinicbook/clinicbook/internal/platform/auth"
	"github.com/clinicbook/clinicbook/internal/platform/db"
	"github.com/clinicbook/clinicbook/internal/platform/middleware"
	"github.com/clinicbook/clinicbook/internal/seed"
)

// sessionCleanupGrace keeps expired sessions around long enough for the
// next request to report Expired instead of InvalidStep.
const sessionCleanupGrace = time.Minute

// app is the wired server: echo routes plus the background loops that keep
// holds and sessions from outliving their TTLs.
type app struct {
	cfg         *config.Config
	logger      zerolog.Logger
	echo        *echo.Echo
	doctors     *doctor.Service
	coordinator *reservation.Coordinator
	memSessions *booking.MemorySessionStore
	pool        *pgxpool.Pool
	redis       *redis.Client
}

// backends are the storage implementations chosen by STORE_BACKEND.
type backends struct {
	slots     availability.Store
	registrar doctor.Registrar
	doctors   doctor.Repository
	holds     reservation.HoldRepository
	appts     appointment.Repository
	tx        db.Transactor
}

func memoryBackends() backends {
	store := availability.NewMemoryStore()
	return backends{
		slots:     store,
		registrar: store,
		doctors:   doctor.NewMemoryRepo(),
		holds:     reservation.NewMemoryHoldRepo(),
		appts:     appointment.NewMemoryRepo(),
		tx:        db.NopTransactor{},
	}
}

func postgresBackends(pool *pgxpool.Pool) backends {
	store := availability.NewPGStore(pool)
	return backends{
		slots:     store,
		registrar: store,
		doctors:   doctor.NewRepoPG(pool),
		holds:     reservation.NewHoldRepoPG(pool),
		appts:     appointment.NewRepoPG(pool),
		tx:        db.NewTransactor(pool),
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var b backends
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.pool = pool
		logger.Info().Msg("connected to database")
		b = postgresBackends(pool)
	default:
		b = memoryBackends()
	}

	var sessions booking.SessionStore
	var locker booking.UserLocker
	switch cfg.SessionBackend {
	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		a.redis = redis.NewClient(opts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Msg("connected to redis")
		sessions = booking.NewRedisSessionStore(a.redis, 0)
		// Instances sharing redis sessions must also share the per-user lock.
		locker = booking.NewRedisLocker(a.redis, cfg.RequestTimeout)
	default:
		a.memSessions = booking.NewMemorySessionStore()
		sessions = a.memSessions
	}

	var cache *doctor.CachedDirectory
	if cfg.DirectoryCacheSize > 0 {
		cache = doctor.NewCachedDirectory(b.doctors, cfg.DirectoryCacheSize, cfg.DirectoryCacheTTL)
	}
	a.doctors = doctor.NewService(b.doctors, cache, b.registrar)

	a.coordinator = reservation.NewCoordinator(b.slots, b.holds, b.tx, cfg.HoldTTL,
		reservation.WithLogger(logger.With().Str("component", "reservation").Logger()))
	ledger := appointment.NewLedger(b.appts, b.slots, b.tx,
		logger.With().Str("component", "appointment").Logger())
	bookingSvc := booking.NewService(sessions, a.doctors.Directory(), b.slots, a.coordinator, ledger,
		booking.WithSessionTTL(cfg.SessionTTL),
		booking.WithUserLocker(locker),
		booking.WithLogger(logger.With().Str("component", "booking").Logger()))

	if cfg.SeedFile != "" {
		if err := a.seed(ctx, b.slots); err != nil {
			a.close()
			return nil, err
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.ErrorHandler
	a.echo = e

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.TLSEnabled))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	if cfg.ResolvedAuthMode() == "development" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.JWTSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	a.registerHealth()

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1 := e.Group("/api/v1", middleware.RateLimit(rateLimitCfg))

	doctor.NewHandler(a.doctors).RegisterRoutes(apiV1)

	bookingGroup := apiV1.Group("/booking", auth.RequireRole(auth.RolePatient))
	booking.NewHandler(bookingSvc).RegisterRoutes(bookingGroup)

	doctorGroup := apiV1.Group("/doctor", auth.RequireRole(auth.RoleDoctor))
	availability.NewHandler(b.slots).RegisterRoutes(doctorGroup)
	appointment.NewHandler(ledger).RegisterRoutes(doctorGroup)

	return a, nil
}

func (a *app) seed(ctx context.Context, slots availability.Store) error {
	f, err := seed.Load(a.cfg.SeedFile)
	if err != nil {
		return err
	}
	ds, err := seed.Apply(ctx, a.doctors, slots, f)
	if err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}
	a.logger.Info().Str("file", a.cfg.SeedFile).Int("doctors", len(ds)).Msg("seed loaded")
	return nil
}

func (a *app) registerHealth() {
	a.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	if a.pool != nil {
		a.echo.GET("/health/db", db.PoolHealthHandler(a.pool))
	}
	if a.redis != nil {
		client := a.redis
		a.echo.GET("/health/redis", db.HealthHandler(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}, nil))
	}
}

// start launches the hold sweeper and, for in-memory sessions, the session
// cleanup loop. Both stop with ctx.
func (a *app) start(ctx context.Context) {
	go a.coordinator.Run(ctx, a.cfg.HoldSweepInterval)
	if a.memSessions != nil {
		a.memSessions.StartCleanup(ctx, a.cfg.HoldSweepInterval, sessionCleanupGrace)
	}
}

func (a *app) close() {
	if a.coordinator != nil {
		a.coordinator.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close redis")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
