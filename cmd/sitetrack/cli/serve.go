package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/sitetrack/internal/app"
	"github.com/odyssey-erp/sitetrack/internal/messaging"
	"github.com/odyssey-erp/sitetrack/internal/observability"
	"github.com/odyssey-erp/sitetrack/internal/platform/cache"
	"github.com/odyssey-erp/sitetrack/internal/platform/db"
	"github.com/odyssey-erp/sitetrack/internal/procurement"
	"github.com/odyssey-erp/sitetrack/internal/rbac"
	"github.com/odyssey-erp/sitetrack/internal/shared"
	"github.com/odyssey-erp/sitetrack/jobs"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if app.InTestMode() {
				slog.Default().Info("test mode detected, skipping runtime startup")
				return nil
			}
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	_, shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.TracingEnabled,
		Exporter:    cfg.TraceExporter,
		ServiceName: "sitetrack",
		Environment: cfg.AppEnv,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown", slog.Any("error", err))
		}
	}()

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, ApplicationName: "sitetrack-api"})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	publisher, err := messaging.NewPublisher(messaging.Config{
		Enabled:      cfg.EventsEnabled,
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaTopic,
		WriteTimeout: cfg.KafkaTimeout,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("publisher close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	queue := asynq.NewClient(redisOpts)
	defer queue.Close()
	inspector := asynq.NewInspector(redisOpts)
	defer inspector.Close()

	rbacService, err := newRBACService(cfg, pool)
	if err != nil {
		return err
	}
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	procurementService := procurement.NewService(procurement.NewRepository(pool), procurement.ServiceConfig{
		Authorizer:  rbacService,
		CSRF:        csrfManager,
		Locker:      shared.NewRedisLocker(redisClient),
		LockTTL:     cfg.OrderLockTTL,
		Budget:      jobs.NewBudgetClient(queue),
		Assets:      jobs.NewAssetClient(queue),
		Audit:       shared.NewAuditLogger(pool),
		Approvals:   shared.NewApprovalRecorder(pool, logger),
		Idempotency: shared.NewIdempotencyStore(pool),
		Events:      publisher,
		Metrics:     metrics,
		Logger:      logger,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		ProcurementHandler: procurement.NewHandler(logger, procurementService, rbacMiddleware),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
		Ready:              readinessChecks(pool, redisClient),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: cfg.AppReadTimeout,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newRBACService prefers a static policy file; otherwise grants live in Postgres.
func newRBACService(cfg *app.Config, pool *pgxpool.Pool) (*rbac.Service, error) {
	if cfg.RBACPolicyFile != "" {
		policy, err := rbac.LoadPolicyFile(cfg.RBACPolicyFile)
		if err != nil {
			return nil, err
		}
		return rbac.NewService(policy), nil
	}
	return rbac.NewService(rbac.NewStore(pool)), nil
}

func readinessChecks(pool *pgxpool.Pool, client *redis.Client) map[string]app.HealthCheck {
	return map[string]app.HealthCheck{
		"postgres": func(r *http.Request) error { return pool.Ping(r.Context()) },
		"redis":    func(r *http.Request) error { return client.Ping(r.Context()).Err() },
	}
}
