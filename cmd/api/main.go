package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"learner-records-api/internal/api"
	"learner-records-api/internal/catalog"
	"learner-records-api/internal/config"
	"learner-records-api/internal/enrollments"
	"learner-records-api/internal/jobs"
	"learner-records-api/internal/queue"
	"learner-records-api/internal/ratelimit"
	"learner-records-api/internal/resultstore"
	"learner-records-api/internal/roles"
	"learner-records-api/internal/store"
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

	resolver := roles.NewResolver(st)
	jobQueue := queue.New(redisClient, cfg.VisibilityTimeout)
	jobSvc := jobs.NewService(st, jobQueue, results, resolver, cfg.MaxAttempts, logger)
	lms := enrollments.NewClient(cfg.LMSBaseURL, cfg.BackendTimeout)
	discovery := catalog.NewClient(cfg.DiscoveryBaseURL, cfg.BackendTimeout, redisClient, cfg.DiscoveryCacheTTL)
	locks := queue.NewWriteLock(redisClient, cfg.WriteLockTTL)
	limiter := ratelimit.NewTokenBucket(redisClient, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	server := api.New(cfg, st, resolver, jobSvc, lms, discovery, locks, limiter, logger)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	logger.Info("api listening", "port", cfg.HTTPPort)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}

func newResultStore(ctx context.Context, cfg config.Config) (resultstore.Store, error) {
	if cfg.ResultS3Bucket != "" {
		return resultstore.NewS3Store(ctx, cfg)
	}
	return resultstore.NewLocalStore(cfg.ResultLocalDir, cfg.ResultLocalBaseURL, cfg.ResultPathPrefix), nil
}
