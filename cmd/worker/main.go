package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"learner-records-api/internal/config"
	"learner-records-api/internal/enrollments"
	"learner-records-api/internal/jobs"
	"learner-records-api/internal/queue"
	"learner-records-api/internal/resultstore"
	"learner-records-api/internal/roles"
	"learner-records-api/internal/store"
	"learner-records-api/internal/telemetry"
	"learner-records-api/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	if err := st.RunMigrations(ctx); err != nil {
		logger.Error("migrations", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	results, err := newResultStore(ctx, cfg)
	if err != nil {
		logger.Error("init result store", "error", err)
		os.Exit(1)
	}

	jobQueue := queue.New(redisClient, cfg.VisibilityTimeout)
	jobSvc := jobs.NewService(st, jobQueue, results, roles.NewResolver(st), cfg.MaxAttempts, logger)
	lms := enrollments.NewClient(cfg.LMSBaseURL, cfg.BackendTimeout)

	processor := worker.NewProcessor(jobQueue, st, jobSvc,
		cfg.WorkerPollInterval, cfg.BackoffInitial, cfg.BackoffMax, logger)
	worker.NewEnrollmentHandlers(lms).Register(processor)

	reaper := worker.NewReaper(st, jobSvc, jobQueue, cfg.JobMaxRuntime, cfg.ReaperInterval, logger)
	go func() {
		if err := reaper.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("reaper stopped", "error", err)
		}
	}()

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	logger.Info("worker started",
		"visibility", cfg.VisibilityTimeout, "max_attempts", cfg.MaxAttempts, "job_max_runtime", cfg.JobMaxRuntime)
	if err := processor.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", "error", err)
	}
}

func newResultStore(ctx context.Context, cfg config.Config) (resultstore.Store, error) {
	if cfg.ResultS3Bucket != "" {
		return resultstore.NewS3Store(ctx, cfg)
	}
	return resultstore.NewLocalStore(cfg.ResultLocalDir, cfg.ResultLocalBaseURL, cfg.ResultPathPrefix), nil
}
