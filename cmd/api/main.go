// Package main is the entrypoint for the BookNest API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/booknest/booknest/internal/auth"
	"github.com/booknest/booknest/internal/cache"
	"github.com/booknest/booknest/internal/config"
	"github.com/booknest/booknest/internal/handler"
	"github.com/booknest/booknest/internal/lending"
	"github.com/booknest/booknest/internal/metrics"
	"github.com/booknest/booknest/internal/middleware"
	"github.com/booknest/booknest/internal/reconcile"
	"github.com/booknest/booknest/internal/repository"
	"github.com/booknest/booknest/internal/server"
	"github.com/booknest/booknest/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := repository.New(ctx, cfg.DatabaseURL, repository.Options{MaxConns: cfg.DatabaseMaxConn})
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return errors.New("database unavailable")
	}
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		repo.Close()
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		return errors.New("redis unavailable")
	}
	logger.Info("connected to Redis")

	recorder := metrics.NewInMemory()

	verifier := &auth.Dispatcher{
		APIKeys: auth.NewAPIKeyVerifier(repo, cacheClient, recorder, logger),
	}
	if cfg.JWTEnabled() {
		tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
		if err != nil {
			repo.Close()
			_ = cacheClient.Close()
			return err
		}
		verifier.Tokens = tokens
	}

	coord := lending.New(repo, repo, lending.Config{
		LoanLimit: cfg.LoanLimit,
		Drift:     reconcile.NewPublisher(cacheClient.Client(), logger, recorder),
		Metrics:   recorder,
		Logger:    logger,
	})

	worker := reconcile.NewWorker(
		cacheClient.Client(),
		coord,
		cacheClient,
		logger,
		reconcile.NewConsumerID(),
		recorder,
		reconcile.Options{
			BatchSize:    cfg.ReconcilerBatchSize,
			BlockTimeout: cfg.ReconcilerBlock,
			MaxAttempts:  cfg.ReconcilerMaxRetry,
		},
	)
	if err := worker.EnsureGroup(ctx); err != nil {
		logger.Warn("failed to ensure drift consumer group", "error", err)
	}

	catalog := service.NewCatalogService(repo, recorder)
	keys := service.NewKeyService(repo, cacheClient, keyEnv(cfg), logger)

	router := server.NewRouter(server.Handlers{
		Root:    handler.New(),
		Health:  handler.NewHealthHandler(repo, cacheClient),
		Metrics: handler.NewMetricsHandler(recorder),
		Books:   handler.NewBookHandler(catalog, coord, logger),
		Loans:   handler.NewLoanHandler(coord, logger),
		APIKeys: handler.NewAPIKeyHandler(keys, logger),
		Admin:   handler.NewAdminHandler(worker, logger),
	}, server.RouterConfig{
		Logger: logger,
		Auth: middleware.AuthConfig{
			Logger:   logger,
			Verifier: verifier,
		},
		RateLimit: middleware.RateLimitConfig{
			Logger:            logger,
			Limiter:           cacheClient,
			CredentialEnabled: cfg.RateLimitAPIEnabled,
			IPEnabled:         cfg.RateLimitIPRPS > 0,
			IPRPS:             cfg.RateLimitIPRPS,
			IPBurst:           cfg.RateLimitIPBurst,
		},
		CORS:        corsConfig(cfg),
		Security:    middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()},
		MaxBodySize: cfg.MaxRequestBodySize,
	})

	srv := server.New(router, server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Hooks run in reverse: the worker stops before its stores close.
	srv.OnShutdown("database", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(context.Context) error {
		return cacheClient.Close()
	})

	if cfg.ReconcilerEnabled {
		srv.OnShutdown("reconciler", worker.Shutdown)
		go func() {
			if err := worker.Run(ctx); err != nil {
				logger.Error("reconciler exited", "error", err)
			}
		}()
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"loan_limit", cfg.LoanLimit,
		"jwt_enabled", cfg.JWTEnabled(),
		"reconciler_enabled", cfg.ReconcilerEnabled,
	)

	return srv.Run(ctx)
}

// keyEnv picks the API key prefix: bn_live_ in production, bn_test_ elsewhere.
func keyEnv(cfg *config.Config) string {
	if cfg.IsProduction() {
		return auth.EnvLive
	}
	return auth.EnvTest
}

func corsConfig(cfg *config.Config) middleware.CORSConfig {
	c := middleware.DefaultCORSConfig()
	c.AllowedOrigins = cfg.GetCORSAllowedOrigins()
	return c
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With("service", "booknest")
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		if username := parsed.User.Username(); username != "" {
			parsed.User = url.User(username)
		} else {
			parsed.User = url.User("redacted")
		}
	}

	return parsed.String()
}

// sanitizeError strips connection secrets that drivers echo back in errors.
func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
