package main

import (
	"context"
	crypto_rand "crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/mindmate/mindmate/internal/config"
	"github.com/mindmate/mindmate/internal/domain/appointment"
	"github.com/mindmate/mindmate/internal/domain/identity"
	"github.com/mindmate/mindmate/internal/domain/messaging"
	"github.com/mindmate/mindmate/internal/platform/apierror"
	"github.com/mindmate/mindmate/internal/platform/auth"
	"github.com/mindmate/mindmate/internal/platform/db"
	"github.com/mindmate/mindmate/internal/platform/middleware"
	"github.com/mindmate/mindmate/internal/platform/notification"
	"github.com/mindmate/mindmate/internal/platform/phi"
	"github.com/mindmate/mindmate/internal/platform/scheduler"
	"github.com/mindmate/mindmate/internal/platform/validation"
	"github.com/mindmate/mindmate/internal/platform/websocket"
)

const (
	requestBodyLimit = "1M"
	requestTimeout   = 30 * time.Second
	shutdownTimeout  = 10 * time.Second

	jobReminders      = "appointment-reminders"
	jobExpireRequests = "expire-stale-requests"
	expireSchedule    = "@every 15m"
)

// app holds the wired server and everything that needs closing with it.
type app struct {
	logger     zerolog.Logger
	pool       *pgxpool.Pool
	echo       *echo.Echo
	hub        *websocket.Hub
	dispatcher *notification.Dispatcher
	jobs       *scheduler.Runner
	closers    []func()
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start")
	}
	a.jobs.Start()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.echo.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	a.close(shutdownCtx)
	logger.Info().Msg("server stopped")
	return nil
}

// buildApp connects to the database and wires every service, handler and
// background job. It does not start listening.
func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("connected to database")
	a := &app{logger: logger, pool: pool}

	jwtKey, generated, err := resolveJWTKey(cfg.JWTSecret)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	if generated {
		logger.Warn().Msg("JWT_SECRET not set; using a random key, sessions will not survive a restart")
	}
	tokens := auth.NewTokenIssuer(jwtKey, cfg.JWTTTL)

	revocations, closeRevocations, err := newRevocationStore(ctx, cfg.RedisURL)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.closers = append(a.closers, closeRevocations)

	cipher, err := phi.NewFieldCipherFromHex(cfg.PHIEncryptionKey)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("phi cipher: %w", err)
	}
	if cipher == nil {
		logger.Warn().Msg("PHI_ENCRYPTION_KEY not set; medical history is stored unencrypted")
	}

	a.dispatcher = newDispatcher(cfg, logger)
	a.hub = websocket.NewHub(logger)
	tx := db.NewTxManager(pool)

	identitySvc := identity.NewService(
		identity.NewUserRepo(pool),
		identity.NewPatientRepo(pool, cipher),
		identity.NewDoctorRepo(pool),
		tx, tokens, revocations,
	)
	apptRepo := appointment.NewRepo(pool)
	identitySvc.SetCareRelation(apptRepo)
	apptSvc := appointment.NewService(apptRepo, identitySvc, tx, a.dispatcher, a.hub, logger)
	msgSvc := messaging.NewService(messaging.NewRepo(pool), identitySvc, apptSvc, a.dispatcher, a.hub, logger)

	a.jobs = scheduler.New(logger)
	if err := registerJobs(a.jobs, apptSvc, cfg, logger); err != nil {
		a.close(ctx)
		return nil, err
	}

	e := newEcho(cfg, logger)
	e.GET("/health", db.HealthHandler(pool, func() db.PoolStats { return db.GetPoolStats(pool) }))

	rateLimit := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           middleware.DefaultRateLimitConfig().IdleTTL,
	}
	if rateLimit.RequestsPerSecond <= 0 {
		rateLimit = middleware.DefaultRateLimitConfig()
	}

	api := e.Group("/api",
		middleware.RateLimit(rateLimit),
		auth.JWTMiddleware(auth.JWTConfig{
			Tokens:      tokens,
			Revocations: revocations,
			Skipper:     auth.AuthSkipper,
		}),
		middleware.Audit(logger),
	)

	identity.NewHandler(identitySvc, identity.CookieConfig{Secure: cfg.IsProduction()}).RegisterRoutes(api)
	appointment.NewHandler(apptSvc).RegisterRoutes(api)
	messaging.NewHandler(msgSvc).RegisterRoutes(api)
	websocket.NewHandler(a.hub, cfg.CORSOrigins).RegisterRoutes(api)

	a.echo = e
	return a, nil
}

// close stops background work and releases connections, newest first.
func (a *app) close(ctx context.Context) {
	if a.jobs != nil {
		if err := a.jobs.Stop(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("scheduler did not stop in time")
		}
	}
	if a.hub != nil {
		a.hub.CloseAll()
	}
	if a.dispatcher != nil {
		a.dispatcher.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// newEcho builds the echo instance with the global middleware chain and the
// JSON error envelope. Routes are added by the caller.
func newEcho(cfg *config.Config, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apierror.Handler(logger, cfg.IsDev())
	e.Validator = validation.New()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.Sanitize(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
		ExposeHeaders:    []string{"X-Total-Count", "Link", middleware.RequestIDHeader},
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimit(requestBodyLimit))
	e.Use(middleware.RequestTimeout(requestTimeout))
	return e
}

// resolveJWTKey returns the configured signing secret, or a random 32-byte
// key when none is set. The second return value is true for a random key.
func resolveJWTKey(secret string) ([]byte, bool, error) {
	if secret != "" {
		return []byte(secret), false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random JWT key: %w", err)
	}
	return key, true, nil
}

// newRevocationStore shares revocations through Redis when redisURL is set
// and keeps them in memory otherwise.
func newRevocationStore(ctx context.Context, redisURL string) (auth.RevocationStore, func(), error) {
	if redisURL == "" {
		store := auth.NewMemoryRevocationStore()
		return store, store.Close, nil
	}
	client, err := auth.NewRedisClient(ctx, redisURL)
	if err != nil {
		return nil, nil, err
	}
	return auth.NewRedisRevocationStore(client), func() { _ = client.Close() }, nil
}

func newDispatcher(cfg *config.Config, logger zerolog.Logger) *notification.Dispatcher {
	var email notification.EmailSender
	if cfg.SMTPEnabled() {
		email = notification.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
	}
	var push notification.PushSender
	if cfg.ExpoPushEnabled {
		push = notification.NewExpoSender()
	}
	return notification.NewDispatcher(logger, notification.NewTemplateEngine(), email, push)
}

// appointmentJobs is the scheduled work the appointment service exposes.
type appointmentJobs interface {
	SendReminders(ctx context.Context, lead time.Duration) (int, error)
	ExpireStale(ctx context.Context) (int, error)
}

func registerJobs(r *scheduler.Runner, appts appointmentJobs, cfg *config.Config, logger zerolog.Logger) error {
	err := r.Add(cfg.ReminderSchedule, jobReminders, func(ctx context.Context) error {
		n, err := appts.SendReminders(ctx, cfg.ReminderLead)
		if n > 0 {
			logger.Info().Int("sent", n).Msg("appointment reminders sent")
		}
		return err
	})
	if err != nil {
		return err
	}

	return r.Add(expireSchedule, jobExpireRequests, func(ctx context.Context) error {
		n, err := appts.ExpireStale(ctx)
		if n > 0 {
			logger.Info().Int("expired", n).Msg("stale appointment requests cancelled")
		}
		return err
	})
}
