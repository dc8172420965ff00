package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/stockflow/cmd/stockflow/cli"
	"github.com/odyssey-erp/stockflow/internal/analytics"
	analytichttp "github.com/odyssey-erp/stockflow/internal/analytics/http"
	"github.com/odyssey-erp/stockflow/internal/app"
	"github.com/odyssey-erp/stockflow/internal/audit"
	audithttp "github.com/odyssey-erp/stockflow/internal/audit/http"
	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/masterdata"
	"github.com/odyssey-erp/stockflow/internal/observability"
	"github.com/odyssey-erp/stockflow/internal/platform/cache"
	"github.com/odyssey-erp/stockflow/internal/platform/db"
	"github.com/odyssey-erp/stockflow/internal/platform/migrate"
	"github.com/odyssey-erp/stockflow/internal/shared"
	"github.com/odyssey-erp/stockflow/jobs"
)

const usage = `usage: stockflow [command]

commands:
  serve                     run the HTTP API (default)
  migrate up|down           apply or roll back schema migrations
  verify-ledger [--json]    replay movement chains against cell quantities
  jobs trigger <task>       enqueue an inventory job by task type
  jobs queues               print queue statistics
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	command, args := "serve", []string(nil)
	if len(os.Args) > 1 {
		command, args = os.Args[1], os.Args[2:]
	}

	var code int
	switch command {
	case "serve":
		code = serve(ctx, stop, cfg, logger)
	case "migrate":
		code = runMigrate(cfg, logger, args)
	case "verify-ledger":
		code = runVerify(ctx, cfg, logger, args)
	case "jobs":
		code = runJobs(ctx, cfg, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprint(os.Stderr, usage)
		code = 2
	}
	stop()
	os.Exit(code)
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) int {
	if cfg.MigrateOnStart {
		if err := migrate.Up(cfg.PGDSN, logger); err != nil {
			logger.Error("migrate database", slog.Any("error", err))
			return 1
		}
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	master := masterdata.NewModule(pool, logger)

	analyticsCache := analytics.NewCache(redisClient, cfg.AnalyticsCacheTTL)
	analyticsService := analytics.NewService(analytics.NewRepository(pool), analyticsCache, analytics.Config{
		LowStockDefault: cfg.InventoryLowStockDefault,
		Logger:          logger,
	})

	inventoryRepo := inventory.NewRepository(pool)
	engine := inventory.NewEngine(inventoryRepo, auditLogger, inventory.EngineConfig{
		MaxRetries:      cfg.InventoryMaxRetries,
		RetryBackoff:    cfg.InventoryRetryBackoff,
		LowStockDefault: cfg.InventoryLowStockDefault,
		Logger:          logger,
		Metrics:         metrics.Inventory(),
	}, inventory.IntegrationHandlers{
		analytics.NewCacheInvalidator(analyticsCache),
		jobs.NewLowStockNotifier(jobClient),
	})
	workflow := inventory.NewWorkflow(engine)
	accessor := inventory.NewAccessor(inventoryRepo, cfg.InventoryLowStockDefault)
	inventoryHandler := inventory.NewHandler(logger, engine, workflow, accessor, master.Permissions, cfg.RateLimitPerMinute)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		InventoryHandler:  inventoryHandler,
		MasterDataHandler: master.Handler,
		AnalyticsHandler:  analytichttp.NewHandler(logger, analyticsService, cfg.RateLimitPerMinute),
		AuditHandler:      audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(pool)), cfg.RateLimitPerMinute),
		JobHandler:        jobs.NewHandler(inspector, jobClient, logger),
		Metrics:           metrics,
		Readiness: map[string]app.Pinger{
			"postgres": pool,
			"redis":    redisPinger(redisClient),
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return 1
	}
	return 0
}

func redisPinger(client *redis.Client) app.Pinger {
	return app.PingFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

func runMigrate(cfg *app.Config, logger *slog.Logger, args []string) int {
	direction := "up"
	if len(args) > 0 {
		direction = args[0]
	}
	var err error
	switch direction {
	case "up":
		err = migrate.Up(cfg.PGDSN, logger)
	case "down":
		err = migrate.Down(cfg.PGDSN, logger)
	default:
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	if err != nil {
		logger.Error("migrate "+direction, slog.Any("error", err))
		return 1
	}
	return 0
}

func runVerify(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("verify-ledger", flag.ContinueOnError)
	jsonOutput := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	accessor := inventory.NewAccessor(inventory.NewRepository(pool), cfg.InventoryLowStockDefault)
	return cli.VerifyCommand(ctx, accessor, cli.VerifyOptions{JSONOutput: *jsonOutput})
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	c := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() { _ = c.Close() }()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprint(os.Stderr, usage)
			return 2
		}
		info, err := c.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	case "queues":
		stats, err := c.InspectQueues(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs queues: %v\n", err)
			return 1
		}
		for _, s := range stats {
			fmt.Printf("%-8s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
		}
		scheduled, err := c.ListScheduled(ctx, 10)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs queues: %v\n", err)
			return 1
		}
		for _, t := range scheduled {
			fmt.Printf("scheduled %s at %s\n", t.Type, t.NextProcessAt.Format(time.RFC3339))
		}
	default:
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	return 0
}
