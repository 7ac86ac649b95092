package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DukeRupert/postpilot/internal"
	"github.com/DukeRupert/postpilot/internal/handler"
	"github.com/DukeRupert/postpilot/internal/jobs"
	"github.com/DukeRupert/postpilot/internal/metrics"
	"github.com/DukeRupert/postpilot/internal/middleware"
	"github.com/DukeRupert/postpilot/internal/repository"
	"github.com/DukeRupert/postpilot/internal/service"
	"github.com/DukeRupert/postpilot/internal/usage"
	"github.com/DukeRupert/postpilot/internal/worker"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	// Initialize repository
	repo := repository.New(db)

	// Usage counters
	store, closeStore, err := usage.New(ctx, usage.Options{
		Backend:  cfg.UsageStore,
		Queries:  repo,
		RedisURL: cfg.RedisURL,
	})
	if err != nil {
		return fmt.Errorf("usage store initialization failed: %w", err)
	}
	defer closeStore()
	logger.Info("Usage store ready", "backend", store.Backend())

	snapshots, err := internal.NewStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	generator, err := internal.NewGenerator(cfg, logger)
	if err != nil {
		return fmt.Errorf("AI provider initialization failed: %w", err)
	}
	logger.Info("AI provider ready", "provider", cfg.AIProvider)

	billingService := internal.NewBilling(cfg)
	if billingService == nil {
		logger.Warn("Stripe is not configured; billing endpoints will return 501")
	}

	// Initialize services
	userService := service.NewUserService(repo, logger)
	subscriptionService := service.NewSubscriptionService(db, repo, logger)
	quotaService := service.NewQuotaService(store, logger)
	gate := service.NewGate(quotaService, logger)
	contentService := service.NewContentService(generator, logger)

	// Initialize middleware
	isSecure := cfg.Env != "development"
	authMw := middleware.NewAuthMiddleware(userService, logger).WithAdminEmails(cfg.AdminEmails)
	entitlementMw := middleware.NewEntitlementMiddleware(gate, logger)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	metricsAuthMw := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)

	apiLimiter := middleware.NewRateLimiter(cfg.APIRateLimit, cfg.APIRateWindow, logger)
	defer apiLimiter.Stop()
	rateLimitMw := middleware.NewRateLimitMiddleware(apiLimiter, logger)

	// Initialize handlers
	contentHandler := handler.NewContentHandler(contentService, logger)
	planHandler := handler.NewPlanHandler(quotaService, logger)
	billingHandler := handler.NewBillingHandler(billingService, userService, cfg.BaseURL, logger)
	webhookHandler := handler.NewWebhookHandler(billingService, subscriptionService, logger)
	adminHandler := handler.NewAdminHandler(userService, quotaService, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			logger.Error("Health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics
	if cfg.MetricsUsername == "" && cfg.MetricsPassword == "" {
		logger.Warn("/metrics is not protected; set METRICS_USERNAME and METRICS_PASSWORD")
	}
	mux.Handle("GET /metrics", metricsAuthMw.Handler(promhttp.Handler()))

	// Create middleware stacks for protected routes
	requireUser := middleware.Stack(authMw.WithUser, authMw.RequireUser)
	requireAdmin := middleware.Stack(authMw.WithUser, authMw.RequireAdmin)

	// Metered generation: authenticate, rate limit, validate, then charge quota
	contentHandler.RegisterRoutes(mux, entitlementMw.RequirePathFeature,
		authMw.WithUser,
		authMw.RequireUser,
		rateLimitMw.Limit,
	)

	planHandler.RegisterRoutes(mux, requireUser)
	billingHandler.RegisterRoutes(mux, requireUser)
	webhookHandler.RegisterRoutes(mux)
	adminHandler.RegisterRoutes(mux, requireAdmin)

	// Everything else is a JSON 404
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		handler.NotFoundResponse(w, r, logger)
	})

	root := middleware.Stack(loggingMw.Handler, metrics.Middleware, securityMw.Handler)(mux)

	// ==========================================================================
	// Background work
	// ==========================================================================

	g, gctx := errgroup.WithContext(ctx)

	if cfg.WorkerEnabled {
		w, err := worker.New(db, repo, cfg.WorkerConfig(), logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		w.Register(jobs.NewExportUsageHandler(repo, snapshots, store.Backend(), logger))
		w.Register(jobs.NewPurgeExpiredTokensHandler(userService, logger))

		scheduler, err := worker.NewScheduler(repo, cfg.SchedulerConfig(), logger)
		if err != nil {
			return fmt.Errorf("scheduler initialization failed: %w", err)
		}

		g.Go(func() error { return w.Run(gctx) })
		g.Go(func() error { return scheduler.Run(gctx) })
	} else {
		logger.Info("Background worker disabled")
	}

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received, initiating graceful shutdown...")

		// Create shutdown context with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
