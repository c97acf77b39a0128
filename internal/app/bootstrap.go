package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gym-auth/internal/auth"
	"gym-auth/internal/config"
	"gym-auth/internal/db"
	"gym-auth/internal/maintenance"
	"gym-auth/internal/observability"
)

type Options struct {
	LoadDotEnv bool
	// StartSweeper runs the recurring revocation sweep in-process. Serverless
	// deployments leave it off and call the sweep endpoint instead.
	StartSweeper bool
}

type Runtime struct {
	Handler http.Handler
	Config  *config.Config
	Logger  *observability.Logger
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	cfg, err := config.Load(options.LoadDotEnv)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := observability.NewLogger(cfg.LogLevel)

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(30 * time.Minute)
	database.SetConnMaxIdleTime(10 * time.Minute)

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := auth.NewRepository(database)
	registry := auth.NewRevocationRegistry()
	authority := auth.NewAuthority(auth.NewCodec(cfg.JWTSecret), registry).
		WithTTL(cfg.AccessTTL(), cfg.RefreshTTL())
	guard := auth.NewLoginGuard().WithPolicy(cfg.LoginMaxAttempts, cfg.LockDuration())
	service := auth.NewService(repo, authority, guard)

	if err := service.BootstrapFromEnv(context.Background(), cfg.AdminUsername, cfg.AdminPassword); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	sweeper := maintenance.NewSweeper(registry, logger, cfg.SweepInterval())
	if options.StartSweeper {
		sweeper.Start()
	}

	handler := NewHandler(Components{
		Logger:        logger,
		Authenticator: auth.NewAuthenticator(authority, repo, logger),
		AuthHandler:   auth.NewHandler(service, logger),
		LoginLimiter:  auth.NewLoginRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow()),
		SweepHandler:  maintenance.NewSweepHandler(registry, logger, cfg.CronSecret),
		Health:        repo,
	})

	logger.Info("runtime_built", map[string]any{
		"env":             cfg.AppEnv,
		"access_ttl":      cfg.AccessTTL().String(),
		"refresh_ttl":     cfg.RefreshTTL().String(),
		"sweep_interval":  cfg.SweepInterval().String(),
		"sweeper_running": options.StartSweeper,
		"config":          cfg.String(),
	})

	return &Runtime{
		Handler: handler,
		Config:  cfg,
		Logger:  logger,
		Close: func() error {
			sweeper.Stop()
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

// Pinger reports database reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Components are the collaborators NewHandler routes to.
type Components struct {
	Logger        *observability.Logger
	Authenticator *auth.Authenticator
	AuthHandler   *auth.Handler
	LoginLimiter  *auth.LoginRateLimiter
	SweepHandler  *maintenance.SweepHandler
	Health        Pinger
}

// NewHandler builds the route table and the middleware chain. Authentication
// runs before routing, so every route sees the bound identity.
func NewHandler(c Components) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /auth/login", c.LoginLimiter.Middleware(http.HandlerFunc(c.AuthHandler.Login)))
	mux.HandleFunc("POST /auth/refresh", c.AuthHandler.Refresh)
	mux.HandleFunc("POST /auth/logout", c.AuthHandler.Logout)
	mux.Handle("GET /auth/me", auth.RequireIdentity(http.HandlerFunc(c.AuthHandler.Me)))
	mux.HandleFunc("GET /internal/maintenance/sweep", c.SweepHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/sweep", c.SweepHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(c.Health))

	var handler http.Handler = c.Authenticator.Middleware(mux)
	handler = observability.RequestLoggingMiddleware(c.Logger, handler)
	handler = observability.RecoverMiddleware(c.Logger, handler)
	return observability.RequestIDMiddleware(handler)
}

func healthHandler(pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := pinger.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
