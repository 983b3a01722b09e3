package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/punchamoorthee/feeledger/internal/api"
	"github.com/punchamoorthee/feeledger/internal/config"
	"github.com/punchamoorthee/feeledger/internal/directory"
	"github.com/punchamoorthee/feeledger/internal/jobs"
	"github.com/punchamoorthee/feeledger/internal/service"
	"github.com/punchamoorthee/feeledger/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := config.NewLogger(cfg)

	// Initialize Layers
	ledgerStore, payers, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer cleanup()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	payers = directory.NewCachedDirectory(payers, redisClient, cfg.DirectoryCacheTTL, logger)

	queue := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer queue.Close()

	metrics := jobs.NewMetrics(nil)
	billing := service.NewBillingService(ledgerStore, payers, jobs.NewTaskNotifier(queue), logger)
	rollover := service.NewRollover(ledgerStore, logger, cfg.SweepConcurrency).WithObserver(metrics)
	handler := api.NewHandler(billing, rollover, logger)

	router := api.NewRouter(api.RouterConfig{
		Handler:    handler,
		Auth:       api.NewAuthenticator(cfg.JWTSecret),
		Production: cfg.IsProduction(),
		RateLimit:  cfg.RateLimit,
		RateWindow: cfg.RateLimitWindow,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", slog.Any("error", err))
		}
	}()

	logger.Info("server starting", slog.String("addr", srv.Addr), slog.String("store", cfg.StoreDriver))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server", slog.Any("error", err))
		os.Exit(1)
	}
}

// openStore returns the ledger store and payer directory for the configured
// driver. The memory driver's directory comes from MEMORY_PAYERS.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.LedgerStore, directory.Directory, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("using in-memory ledger store; data is lost on restart")
		payers, err := directory.ParseStatic(cfg.MemoryPayers)
		if err != nil {
			return nil, nil, nil, err
		}
		return store.NewMemoryStore(), payers, func() {}, nil
	}
	pg, err := store.NewPostgresStore(ctx, cfg.DBSource)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := store.Migrate(ctx, pg.Pool); err != nil {
		pg.Close()
		return nil, nil, nil, err
	}
	return pg, directory.NewPostgresDirectory(pg.Pool), pg.Close, nil
}
