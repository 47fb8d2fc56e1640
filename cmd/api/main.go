// Package main is the entrypoint for the keydesk API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/keydesk/keydesk/internal/advisory"
	"github.com/keydesk/keydesk/internal/auth"
	"github.com/keydesk/keydesk/internal/cache"
	"github.com/keydesk/keydesk/internal/config"
	"github.com/keydesk/keydesk/internal/directory"
	"github.com/keydesk/keydesk/internal/events"
	"github.com/keydesk/keydesk/internal/handler"
	"github.com/keydesk/keydesk/internal/logging"
	"github.com/keydesk/keydesk/internal/metrics"
	"github.com/keydesk/keydesk/internal/middleware"
	"github.com/keydesk/keydesk/internal/model"
	"github.com/keydesk/keydesk/internal/repository"
	"github.com/keydesk/keydesk/internal/server"
	"github.com/keydesk/keydesk/internal/service"
	"github.com/keydesk/keydesk/internal/webhook"
)

const version = "0.1.0"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(cfg, os.Stdout)
	if err != nil {
		slog.Error("failed to initialize logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}

	srv := server.New(setupRouter(a), server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)
	for _, c := range a.closers {
		srv.OnShutdown(c.name, c.fn)
	}
	srv.OnShutdown("catalog watcher", func(context.Context) error {
		cancel()
		return nil
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"storage", cfg.StorageDriver,
		"advisory", a.advisor.Provider(),
		"timezone", cfg.AppTimezone,
	)

	err = srv.Run()
	_ = logCloser.Close()
	if err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

type namedCloser struct {
	name string
	fn   server.ShutdownFunc
}

// app holds the wired components served by the router.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	keys    *service.KeyService
	catalog *directory.YAMLCatalog
	advisor *advisory.Service
	health  *handler.HealthHandler
	limiter middleware.IPRateLimiter
	rec     metrics.Recorder
	metrics http.Handler
	closers []namedCloser
}

// newApp connects storage, cache and catalog and builds the services.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	store, err := openStore(ctx, cfg, logger, a)
	if err != nil {
		return nil, err
	}

	var (
		cacheClient *cache.Cache
		idempotency service.IdempotencyStore
		verifyCache service.VerifyCache
		adviceCache advisory.AdviceCache
		cacheHealth handler.HealthChecker
	)
	if cfg.RedisURL != "" {
		cacheClient, err = cache.New(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis (%s): %s", redactURL(cfg.RedisURL), sanitizeError(err, cfg.RedisURL))
		}
		logger.Info("connected to Redis", slog.String("redis_url", redactURL(cfg.RedisURL)))
		a.closers = append(a.closers, namedCloser{"redis", func(context.Context) error { return cacheClient.Close() }})

		idempotency = cacheClient
		verifyCache = cacheClient
		adviceCache = cacheClient
		cacheHealth = cacheClient
		a.limiter = cacheClient
	} else {
		logger.Warn("REDIS_URL not set; idempotency is per-process and verification is not rate limited")
	}

	catalog, err := directory.Load(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}
	a.catalog = catalog
	if cfg.CatalogFile != "" && cfg.CatalogWatch {
		watcher, err := directory.NewWatcher(catalog, logger)
		if err != nil {
			return nil, err
		}
		if err := watcher.Start(ctx); err != nil {
			return nil, err
		}
	}

	switch cfg.MetricsBackend {
	case config.MetricsMemory:
		rec := metrics.NewInMemory()
		a.rec = rec
		a.metrics = http.HandlerFunc(handler.NewMetricsHandler(rec).Metrics)
	default:
		rec := metrics.NewPrometheus("keydesk")
		a.rec = rec
		a.metrics = rec.HTTPHandler()
	}

	provider, err := advisory.NewProvider(cfg.Advisory, &http.Client{Timeout: cfg.Advisory.Timeout})
	if err != nil {
		return nil, err
	}
	a.advisor = advisory.NewService(provider, adviceCache, a.rec, logger, cfg.Advisory.Timeout)

	var publisher service.EventPublisher
	if cfg.Webhook.Enabled() {
		p, err := a.startEvents(ctx, cacheClient)
		if err != nil {
			return nil, err
		}
		publisher = p
	}

	gen, err := auth.NewGenerator(cfg.KeyPrefixTag)
	if err != nil {
		return nil, err
	}

	a.keys = service.NewKeyService(service.KeyServiceDeps{
		Store:       store,
		Catalog:     catalog,
		Generator:   gen,
		Location:    loc,
		Metrics:     a.rec,
		Idempotency: idempotency,
		VerifyCache: verifyCache,
		Events:      publisher,
		Logger:      logger,
	})

	a.health = handler.NewHealthHandler(store, cacheHealth, handler.HealthCheckFunc(func(ctx context.Context) error {
		_, err := catalog.ListSpaces(ctx)
		return err
	}))
	return a, nil
}

// startEvents runs the notification worker and returns the publisher
// the key service emits to. Config validation guarantees Redis is set.
func (a *app) startEvents(ctx context.Context, c *cache.Cache) (*events.Publisher, error) {
	cfg := a.cfg.Webhook
	if err := webhook.ValidateTargetURL(cfg.URL, cfg.AllowInsecure); err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_URL: %w", err)
	}

	notifier := webhook.NewNotifier(webhook.Config{
		URL:         cfg.URL,
		Secret:      cfg.Secret,
		MaxAttempts: cfg.MaxAttempts,
	}, webhook.NewHTTPClient(cfg.Timeout), a.logger, a.rec)

	worker := events.NewWorker(c.Client(), notifier, a.logger, events.NewConsumerID(), a.rec)
	go func() {
		if err := worker.Run(ctx); err != nil {
			a.logger.Error("event worker stopped", "error", err)
		}
	}()
	a.closers = append(a.closers, namedCloser{"event worker", worker.Shutdown})

	a.logger.Info("key lifecycle webhooks enabled", slog.String("target_host", webhook.ExtractHost(cfg.URL)))
	return events.NewPublisher(c.Client(), a.logger, a.rec), nil
}

// openStore returns the key store selected by STORAGE_DRIVER.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, a *app) (repository.KeyStore, error) {
	if cfg.StorageDriver != config.StoragePostgres {
		logger.Warn("using in-memory key storage; keys are lost on restart")
		return repository.NewMemoryStore(), nil
	}

	if err := repository.Migrate(cfg.DatabaseURL, logger); err != nil {
		return nil, fmt.Errorf("failed to migrate database (%s): %s", redactURL(cfg.DatabaseURL), sanitizeError(err, cfg.DatabaseURL))
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database (%s): %s", redactURL(cfg.DatabaseURL), sanitizeError(err, cfg.DatabaseURL))
	}
	logger.Info("connected to database", slog.String("database_url", redactURL(cfg.DatabaseURL)))
	a.closers = append(a.closers, namedCloser{"postgres", func(context.Context) error {
		repo.Close()
		return nil
	}})
	return repo, nil
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(a *app) *chi.Mux {
	cfg, logger := a.cfg, a.logger

	h := handler.New(version)
	spaces := handler.NewSpaceHandler(a.catalog, logger)
	keys := handler.NewKeyHandler(a.keys, a.catalog, logger)
	advice := handler.NewAdviceHandler(a.advisor, a.catalog, cfg.AppEnv, logger)
	verify := handler.NewVerifyHandler()

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))
	if origins := cfg.GetCORSAllowedOrigins(); len(origins) > 0 {
		r.Use(middleware.CORS(middleware.NewCORSConfig(origins)))
	}
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	r.Get("/healthz", a.health.Healthz)
	r.Get("/readyz", a.health.Readyz)
	r.Method(http.MethodGet, "/metrics", a.metrics)
	r.Get("/", h.Hello)

	r.Route("/api/v1", func(r chi.Router) {
		// Key management acts on behalf of the gateway-supplied principal.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Principal(middleware.PrincipalConfig{
				Logger:      logger,
				DefaultID:   cfg.DefaultPrincipalID,
				DefaultName: cfg.DefaultPrincipalName,
			}))

			r.Get("/spaces", spaces.List)
			r.Route("/spaces/{spaceID}", func(r chi.Router) {
				r.Use(middleware.ValidatePathIDs("spaceID"))

				r.Get("/", spaces.Get)
				r.Get("/applications", spaces.ListApplications)
				r.Post("/advice", advice.Advise)

				r.Get("/keys", keys.List)
				r.With(middleware.RequireIdempotencyKeyFormat).Post("/keys", keys.Create)
				r.Route("/keys/{keyID}", func(r chi.Router) {
					r.Use(middleware.ValidatePathIDs("keyID"))
					r.Get("/", keys.Get)
					r.Patch("/", keys.Update)
					r.Post("/revoke", keys.Revoke)
				})
			})
		})

		// Key verification authenticates with the key itself.
		r.Route("/keys/verify", func(r chi.Router) {
			r.Use(middleware.RateLimitIP(middleware.RateLimitConfig{
				Logger:  logger,
				Limiter: a.limiter,
				Metrics: a.rec,
				Enabled: cfg.RateLimitVerifyEnabled,
				RPS:     cfg.RateLimitVerifyRPS,
				Burst:   cfg.RateLimitVerifyBurst,
			}))
			r.Use(middleware.APIKeyAuth(middleware.AuthConfig{
				Logger:      logger,
				Verifier:    a.keys,
				MinDuration: middleware.DefaultMinAuthDuration,
			}))

			r.Post("/", verify.Verify)
			for _, scope := range model.ValidScopes {
				r.With(middleware.RequireScope(scope)).Post("/"+string(scope), verify.Verify)
			}
		})
	})

	return r
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
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

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
