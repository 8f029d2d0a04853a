// Command server starts the execution service front door: the HTTP surface,
// the in-process worker pool, and the stuck-job sweeper.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/syla-platform/execution-service/internal/adapter/httpserver"
	"github.com/syla-platform/execution-service/internal/adapter/observability"
	"github.com/syla-platform/execution-service/internal/adapter/sandbox/docker"
	redisstore "github.com/syla-platform/execution-service/internal/adapter/store/redis"
	"github.com/syla-platform/execution-service/internal/app"
	"github.com/syla-platform/execution-service/internal/config"
	"github.com/syla-platform/execution-service/internal/usecase"
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

	rdb, err := connectRedis(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

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

	submitSvc := usecase.NewSubmitService(store, queue, cfg.MaxCodeBytes)
	lookupSvc := usecase.NewLookupService(store, queue)

	redisCheck, dockerCheck := app.BuildReadinessChecks(
		app.PingFunc(func(ctx context.Context) error { return redisstore.Ping(ctx, rdb) }),
		sandbox,
	)

	// Background tasks: workers and the sweeper stop via context cancellation.
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.New(store, queue, sandbox, profiles).Run(ctx)
		}()
	}
	slog.Info("workers started", slog.Int("count", cfg.Workers))

	sweeper := app.NewStuckJobSweeper(store, queue, cfg.SweeperGrace, cfg.SweeperInterval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	srv := httpserver.NewServer(cfg, submitSvc, lookupSvc, redisCheck, dockerCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
			stop()
			wg.Wait()
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
	stop()
	wg.Wait()
}

// connectRedis retries the initial ping with exponential backoff so the
// service survives a store that is still coming up.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	rdb, err := redisstore.NewClient(url)
	if err != nil {
		return nil, err
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	err = backoff.Retry(func() error {
		return redisstore.Ping(ctx, rdb)
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
