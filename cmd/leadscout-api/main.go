// Package main is the entry point for the leadscout-api server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/jmylchreest/leadscout-api/internal/auth"
	"github.com/jmylchreest/leadscout-api/internal/config"
	"github.com/jmylchreest/leadscout-api/internal/database"
	"github.com/jmylchreest/leadscout-api/internal/http/handlers"
	"github.com/jmylchreest/leadscout-api/internal/http/mw"
	"github.com/jmylchreest/leadscout-api/internal/http/routes"
	"github.com/jmylchreest/leadscout-api/internal/logging"
	"github.com/jmylchreest/leadscout-api/internal/repository"
	"github.com/jmylchreest/leadscout-api/internal/service"
	"github.com/jmylchreest/leadscout-api/internal/shutdown"
	"github.com/jmylchreest/leadscout-api/internal/version"
	"github.com/jmylchreest/leadscout-api/internal/worker"
)

func main() {
	startedAt := time.Now().UTC()
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting leadscout-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL, database.Options{
		TursoURL:       cfg.TursoURL,
		TursoAuthToken: cfg.TursoAuthToken,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.Migrate(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	repos := repository.NewRepositories(db)
	metrics := service.NewMetrics()

	// Runs outlive the request that created them, so tasks get their own context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := worker.New(worker.Config{
		Concurrency: cfg.WorkerConcurrency,
		QueueSize:   cfg.WorkerQueueSize,
	}, logger)
	pool.OnTaskDone = metrics.TaskDone
	pool.Start(ctx)

	services, err := service.NewServices(cfg, repos, pool, metrics, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	// Runs left processing by a previous process have no task behind them.
	if ids, err := services.Runs.RecoverStale(ctx, startedAt); err != nil {
		logger.Warn("failed to recover stale discovery runs", "error", err)
	} else if len(ids) > 0 {
		logger.Info("marked stale discovery runs failed", "count", len(ids))
	}
	if ids, err := services.Sellers.RecoverStale(ctx, startedAt); err != nil {
		logger.Warn("failed to recover stale seller runs", "error", err)
	} else if len(ids) > 0 {
		logger.Info("marked stale seller runs failed", "count", len(ids))
	}

	verifier := auth.NewVerifier(cfg.JWTSecret, "")

	idle := shutdown.NewIdleMonitor(shutdown.Config{
		Timeout:      cfg.IdleTimeout,
		ExcludePaths: []string{"/healthz", "/readyz", "/metrics"},
		Busy:         pool.Busy,
		Logger:       logger,
	})
	idle.Start()

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(idle.Middleware)

	var logFiltersLoader *mw.LogFiltersLoader
	if services.Storage.IsEnabled() {
		client, err := service.NewS3Client(ctx, cfg)
		if err != nil {
			logger.Warn("log filters disabled", "error", err)
		} else {
			logFiltersLoader = mw.NewLogFiltersLoader(config.NewS3Loader(config.S3LoaderConfig{
				Client: client,
				Bucket: cfg.StorageBucket,
				Key:    cfg.LogFiltersKey,
				Logger: logger,
			}), logger)
			logFiltersLoader.Start(ctx)
			logger.Info("S3 log filters enabled", "bucket", cfg.StorageBucket, "key", cfg.LogFiltersKey)
		}
	}

	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(mw.APIVersion())

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-API-Version", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Request size limit (1MB)
	router.Use(middleware.RequestSize(1 * 1024 * 1024))

	// Unauthenticated fallback; authenticated callers get role limits below.
	router.Use(httprate.LimitByIP(100, time.Minute))
	router.Use(middleware.Throttle(100))

	router.Use(mw.OptionalAuth(verifier))
	router.Use(mw.RateLimitByUser(mw.DefaultRateLimitConfig()))

	api := humachi.New(router, routes.NewHumaConfig(cfg.BaseURL))
	api.UseMiddleware(mw.HumaAuth(api, verifier))

	readyz := handlers.NewReadyzHandler(func(ctx context.Context) error {
		return database.Ping(ctx, db)
	})
	routes.Register(api, &routes.Handlers{
		HealthCheck:   handlers.HealthCheck,
		Livez:         handlers.Livez,
		Readyz:        readyz.Readyz,
		DiscoveryRuns: handlers.NewDiscoveryRunHandler(services.Runs),
		SellerRuns:    handlers.NewSellerRunHandler(services.Sellers),
	})

	router.With(mw.Auth(verifier), mw.RequireRole(auth.RoleAdmin)).
		Handle("/metrics", handlers.MetricsHandler(metrics.Registry))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		select {
		case sig := <-sigChan:
			logger.Info("shutting down server", "signal", sig.String())
		case <-idle.Done():
			logger.Info("shutting down idle server")
		}
		idle.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}

		if logFiltersLoader != nil {
			logFiltersLoader.Stop()
		}

		// Let running tasks finish. After the grace period their context is
		// cancelled and the runs are recovered as stale on the next start.
		drained := make(chan struct{})
		go func() {
			pool.Stop()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(cfg.WorkerShutdownGracePeriod):
			logger.Warn("worker grace period elapsed, cancelling running tasks", "grace_period", cfg.WorkerShutdownGracePeriod)
			cancel()
			<-drained
		}
	}()

	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	// ListenAndServe returns as soon as Shutdown starts; wait for the drain.
	<-stopped
	logger.Info("server stopped")
}
