// Command worker runs queue-draining workers without the HTTP front door,
// for deployments that scale execution capacity separately. Metrics are
// exposed on a dedicated port.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/syla-platform/execution-service/internal/adapter/observability"
	"github.com/syla-platform/execution-service/internal/adapter/sandbox/docker"
	redisstore "github.com/syla-platform/execution-service/internal/adapter/store/redis"
	"github.com/syla-platform/execution-service/internal/app"
	"github.com/syla-platform/execution-service/internal/config"
	"github.com/syla-platform/execution-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: ":9090", Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redisstore.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("redis client init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(func() error { return redisstore.Ping(ctx, rdb) }, backoff.WithContext(bo, ctx)); err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}

	sandbox, err := docker.New()
	if err != nil {
		slog.Error("docker client init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = sandbox.Close() }()

	profiles, err := cfg.LoadProfiles()
	if err != nil {
		slog.Error("language profiles load failed", slog.Any("error", err))
		os.Exit(1)
	}

	store := redisstore.NewJobStore(rdb)
	queue := redisstore.NewQueue(rdb)

	slog.Info("starting workers", slog.String("env", cfg.AppEnv), slog.Int("count", cfg.Workers))

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.New(store, queue, sandbox, profiles).Run(ctx)
		}()
	}

	sweeper := app.NewStuckJobSweeper(store, queue, cfg.SweeperGrace, cfg.SweeperInterval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")
	wg.Wait()
}
