package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/syla-platform/execution-service/internal/domain"
)

// StuckJobSweeper repairs records that lost their worker: running records
// older than the hard timeout cap plus a grace period are failed, and pending
// records older than the same cutoff are re-enqueued (a pop or the original
// enqueue was lost). Duplicate delivery is safe: workers skip non-pending
// records.
type StuckJobSweeper struct {
	store    domain.JobStore
	queue    domain.Queue
	grace    time.Duration
	interval time.Duration
}

// NewStuckJobSweeper constructs a sweeper. Non-positive durations fall back
// to 2m grace and 1m interval.
func NewStuckJobSweeper(store domain.JobStore, queue domain.Queue, grace, interval time.Duration) *StuckJobSweeper {
	if store == nil {
		return nil
	}
	if grace <= 0 {
		grace = 2 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StuckJobSweeper{store: store, queue: queue, grace: grace, interval: interval}
}

// Run sweeps immediately and then on every tick until the context is done.
func (s *StuckJobSweeper) Run(ctx context.Context) {
	if s == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("stuck job sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *StuckJobSweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("app.sweeper")
	ctx, span := tracer.Start(ctx, "StuckJobSweeper.sweepOnce")
	defer span.End()

	maxAge := time.Duration(domain.MaxTimeoutSeconds)*time.Second + s.grace
	cutoff := time.Now().UTC().Add(-maxAge)

	jobs, err := s.store.List(ctx)
	if err != nil {
		span.RecordError(err)
		slog.Error("sweep failed to list jobs", slog.Any("error", err))
		return
	}

	failed, requeued := 0, 0
	for _, j := range jobs {
		switch j.Status {
		case domain.JobRunning:
			if j.StartedAt == nil || j.StartedAt.After(cutoff) {
				continue
			}
			if !j.Status.CanTransition(domain.JobFailed) {
				continue
			}
			now := time.Now().UTC()
			j.Status = domain.JobFailed
			j.CompletedAt = &now
			j.Result = &domain.JobResult{
				ExitCode: -1,
				Stderr:   "Execution error: worker lost; job exceeded the maximum processing age",
			}
			if err := s.store.Put(ctx, j); err != nil {
				slog.Error("sweep failed to update job", slog.String("job_id", j.ID), slog.Any("error", err))
				continue
			}
			failed++
		case domain.JobPending:
			if s.queue == nil || j.CreatedAt.After(cutoff) {
				continue
			}
			if err := s.queue.Push(ctx, j.ID); err != nil {
				slog.Error("sweep failed to re-enqueue job", slog.String("job_id", j.ID), slog.Any("error", err))
				continue
			}
			requeued++
		}
	}
	span.SetAttributes(
		attribute.Int("jobs.checked", len(jobs)),
		attribute.Int("jobs.failed", failed),
		attribute.Int("jobs.requeued", requeued),
	)
	if failed > 0 || requeued > 0 {
		slog.Info("sweep completed",
			slog.Int("checked", len(jobs)),
			slog.Int("failed", failed),
			slog.Int("requeued", requeued))
	}
}
