package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kulsmauinformatics/sumatin/internal/apiclient"
	"github.com/kulsmauinformatics/sumatin/internal/authz"
	"github.com/kulsmauinformatics/sumatin/internal/config"
	"github.com/kulsmauinformatics/sumatin/internal/event"
	handler "github.com/kulsmauinformatics/sumatin/internal/handler/http"
	portalmw "github.com/kulsmauinformatics/sumatin/internal/middleware"
	"github.com/kulsmauinformatics/sumatin/internal/session"
	"github.com/kulsmauinformatics/sumatin/internal/tokenstore"
	redisstore "github.com/kulsmauinformatics/sumatin/internal/tokenstore/redis"
	"github.com/kulsmauinformatics/sumatin/pkg/database"
	"github.com/kulsmauinformatics/sumatin/pkg/health"
	"github.com/kulsmauinformatics/sumatin/pkg/httpclient"
	pkgkafka "github.com/kulsmauinformatics/sumatin/pkg/kafka"
	"github.com/kulsmauinformatics/sumatin/pkg/middleware"
	"github.com/kulsmauinformatics/sumatin/pkg/tracing"
)

const sessionCleanupInterval = 10 * time.Minute

// App wires together all dependencies and runs the portal.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	sessions       *session.Manager
	limiter        *portalmw.RateLimiter
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "portal",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		Insecure:       true,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{cfg: cfg, logger: logger, tracerShutdown: tracerShutdown}
	healthHandler := health.NewHandler()

	// Token persistence.
	var provider tokenstore.Provider
	switch cfg.TokenStore {
	case config.TokenStoreRedis:
		redisCfg := database.DefaultRedisConfig()
		redisCfg.Host = cfg.RedisHost
		redisCfg.Port = cfg.RedisPort
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB

		client, err := database.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("connect to redis: %w", err), a.shutdownTracer())
		}
		logger.Info("connected to Redis", slog.String("addr", redisCfg.Addr()))
		a.redis = client
		provider = redisstore.NewProvider(client, cfg.SessionTTL())
		healthHandler.RegisterCritical("redis", database.RedisChecker(client))
	default:
		provider = tokenstore.NewMemoryProvider()
		logger.Warn("using in-memory token store; sessions will not survive a restart")
	}

	// Session events.
	var events session.EventPublisher = event.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		events = event.NewProducer(a.producer, logger)
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Backend transport with circuit breaker.
	baseClient := httpclient.New(httpclient.Config{
		Timeout:         cfg.APITimeout,
		MaxConnsPerHost: 100,
	})
	cbCfg := httpclient.CircuitBreakerConfig{
		Name:         "sumatin-api",
		MaxRequests:  cfg.CBMaxRequests,
		Interval:     time.Duration(cfg.CBInterval) * time.Second,
		Timeout:      time.Duration(cfg.CBTimeout) * time.Second,
		FailureRatio: cfg.CBFailureRatio,
		MinRequests:  cfg.CBMinRequests,
	}
	cbClient := httpclient.NewCircuitBreakerClient(baseClient, cbCfg, logger)
	logger.Info("circuit breaker initialized",
		slog.String("name", cbCfg.Name),
		slog.Uint64("max_requests", uint64(cbCfg.MaxRequests)),
		slog.Int("timeout_seconds", cfg.CBTimeout),
		slog.Uint64("min_requests", uint64(cbCfg.MinRequests)),
	)
	exec := apiclient.NewExecutor(cfg.APIBaseURL, cbClient)

	// The readiness probe talks to the backend without a session.
	probe := apiclient.NewAPI(apiclient.NewClient(tokenstore.NewMemory(), exec, logger))
	healthHandler.RegisterNonCritical("sumatin-api", probe.Auth.Health)

	a.sessions = session.NewManager(session.ManagerConfig{
		Provider:        provider,
		Executor:        exec,
		Events:          events,
		Logger:          logger,
		IdleTTL:         cfg.SessionTTL(),
		CleanupInterval: sessionCleanupInterval,
	})

	// Load has already validated the list.
	trusted, _ := cfg.TrustedProxyPrefixes()
	a.limiter = portalmw.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, trusted, logger)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	corsCfg.Environment = cfg.Environment

	router := handler.NewRouter(handler.RouterConfig{
		Health: healthHandler,
		Sessions: portalmw.Sessions(portalmw.SessionConfig{
			Codec:  portalmw.NewCookieCodec(cfg.SessionCookieSecret, cfg.SessionTTL()),
			Source: a.sessions,
			Secure: cfg.SessionCookieSecure,
			Logger: logger,
		}),
		Gate:           authz.NewGate(cfg.SessionReadyWait, logger),
		RateLimit:      a.limiter.Handler,
		CORS:           corsCfg,
		RequestTimeout: cfg.APITimeout + 15*time.Second,
		Logger:         logger,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.APITimeout + 20*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Handler exposes the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Session manager and rate limiter (stop background loops)
// 3. Tracer (flush pending spans from drained requests)
// 4. Kafka producer
// 5. Redis client
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Stop session eviction and limiter cleanup.
	a.sessions.Close()
	a.limiter.Close()

	// 3. Flush pending spans.
	if err := a.shutdownTracer(); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 4. Close Kafka producer.
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 5. Close Redis.
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) shutdownTracer() error {
	if a.tracerShutdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return a.tracerShutdown(ctx)
}
