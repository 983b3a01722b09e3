package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/punchamoorthee/feeledger/internal/config"
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

	if cfg.StoreDriver != config.DriverPostgres {
		logger.Error("worker requires the postgres store driver", slog.String("store", cfg.StoreDriver))
		os.Exit(1)
	}
	pg, err := store.NewPostgresStore(ctx, cfg.DBSource)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pg.Close()
	if err := store.Migrate(ctx, pg.Pool); err != nil {
		logger.Error("migrate", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := jobs.NewMetrics(nil)
	rollover := service.NewRollover(pg, logger, cfg.SweepConcurrency).WithObserver(metrics)
	sweepJob := jobs.NewSweepJob(rollover, logger, metrics)
	notifyJob := jobs.NewNotifyJob(logger, metrics)

	sweepTask, err := jobs.NewRolloverSweepTask("cron")
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRolloverSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskNotify, Handler: notifyJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SweepCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3), asynq.Queue(jobs.QueueDefault)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", slog.String("sweep_cron", cfg.SweepCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
