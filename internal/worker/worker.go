// Package worker drains the execution queue and drives each job through its
// state machine: pop, claim, launch the sandbox, persist the terminal state.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/syla-platform/execution-service/internal/adapter/observability"
	"github.com/syla-platform/execution-service/internal/domain"
)

const (
	idleSleep       = 100 * time.Millisecond
	storeErrorSleep = time.Second
	sandboxWorkDir  = "/workspace"
)

// Worker is one queue-draining task. Workers are symmetric: any worker may
// claim any id, and several may run per process and across processes.
type Worker struct {
	Store    domain.JobStore
	Queue    domain.Queue
	Sandbox  domain.Sandbox
	Profiles domain.ProfileTable
}

// New constructs a Worker. A nil profile table falls back to the defaults.
func New(store domain.JobStore, queue domain.Queue, sandbox domain.Sandbox, profiles domain.ProfileTable) *Worker {
	if profiles == nil {
		profiles = domain.DefaultProfiles()
	}
	return &Worker{Store: store, Queue: queue, Sandbox: sandbox, Profiles: profiles}
}

// Run loops until the context is cancelled. Store errors and an empty queue
// back off (1s and 100ms respectively); job failures never crash the loop.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("starting execution worker")
	for {
		if ctx.Err() != nil {
			slog.Info("execution worker stopping")
			return
		}
		id, ok, err := w.Queue.Pop(ctx)
		if err != nil {
			slog.Error("queue pop failed", slog.Any("error", err))
			if !sleepCtx(ctx, storeErrorSleep) {
				return
			}
			continue
		}
		if !ok {
			if n, lerr := w.Queue.Len(ctx); lerr == nil {
				observability.SetQueueDepth(n)
			}
			if !sleepCtx(ctx, idleSleep) {
				return
			}
			continue
		}
		if _, perr := uuid.Parse(id); perr != nil {
			slog.Error("invalid job id on queue", slog.String("id", id), slog.Any("error", perr))
			continue
		}
		if err := w.processJob(ctx, id); err != nil {
			slog.Error("job processing failed", slog.String("job_id", id), slog.Any("error", err))
		}
	}
}

// processJob drives one job from pending to a terminal state.
func (w *Worker) processJob(ctx context.Context, id string) error {
	tracer := otel.Tracer("worker")
	ctx, span := tracer.Start(ctx, "worker.processJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))

	job, err := w.Store.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		slog.Warn("queued id has no record", slog.String("job_id", id))
		return nil
	}
	if err != nil {
		return err
	}
	// Idempotent skip: cancelled before pickup, or a duplicate delivery.
	if job.Status != domain.JobPending {
		slog.Info("skipping non-pending job", slog.String("job_id", id), slog.String("status", string(job.Status)))
		return nil
	}

	started := time.Now().UTC()
	job.Status = domain.JobRunning
	job.StartedAt = &started
	if err := w.Store.Put(ctx, job); err != nil {
		return err
	}
	observability.StartExecution()
	span.SetAttributes(attribute.String("job.language", job.Request.Language))
	slog.Info("processing job", slog.String("job_id", id), slog.String("language", job.Request.Language))

	profile := w.Profiles.For(job.Request.Language)
	result, runErr := w.launch(ctx, job, profile)

	switch {
	case runErr != nil:
		job.Status = domain.JobFailed
		job.Result = &domain.JobResult{ExitCode: -1, Stderr: fmt.Sprintf("Execution error: %v", runErr)}
	case result.TimedOut:
		job.Status = domain.JobTimeout
		job.Result = &domain.JobResult{ExitCode: result.ExitCode, Stdout: result.Stdout, Stderr: result.Stderr, DurationMS: result.DurationMS}
	case result.ExitCode == 0:
		job.Status = domain.JobCompleted
		job.Result = &domain.JobResult{ExitCode: result.ExitCode, Stdout: result.Stdout, Stderr: result.Stderr, DurationMS: result.DurationMS}
	default:
		job.Status = domain.JobFailed
		job.Result = &domain.JobResult{ExitCode: result.ExitCode, Stdout: result.Stdout, Stderr: result.Stderr, DurationMS: result.DurationMS}
	}
	completed := time.Now().UTC()
	job.CompletedAt = &completed
	dur := time.Duration(job.Result.DurationMS) * time.Millisecond

	// Terminal states are sticky: re-read before the terminal write and keep
	// whatever terminal state (a cancel, or another writer) got there first.
	current, err := w.Store.Get(ctx, id)
	if err == nil && current.Status.Terminal() {
		slog.Info("terminal write suppressed",
			slog.String("job_id", id),
			slog.String("current", string(current.Status)),
			slog.String("computed", string(job.Status)))
		observability.CompleteExecution(string(current.Status), job.Request.Language, dur)
		return nil
	}

	if err := w.Store.Put(ctx, job); err != nil {
		observability.CompleteExecution("lost", job.Request.Language, dur)
		return err
	}
	observability.CompleteExecution(string(job.Status), job.Request.Language, dur)
	span.SetAttributes(attribute.String("job.status", string(job.Status)))
	slog.Info("job finished", slog.String("job_id", id), slog.String("status", string(job.Status)))
	return nil
}

// launch writes the code into a fresh temp dir, builds the container spec,
// and runs the sandbox. The temp dir is removed on every path.
func (w *Worker) launch(ctx context.Context, job domain.Job, profile domain.LanguageProfile) (domain.ExecResult, error) {
	dir, err := os.MkdirTemp("", "execution-*")
	if err != nil {
		return domain.ExecResult{}, fmt.Errorf("create code dir: %w", err)
	}
	defer func() {
		if rerr := os.RemoveAll(dir); rerr != nil {
			slog.Warn("code dir cleanup failed", slog.String("dir", dir), slog.Any("error", rerr))
		}
	}()
	if err := os.WriteFile(filepath.Join(dir, profile.SourceFilename), []byte(job.Request.Code), 0o644); err != nil {
		return domain.ExecResult{}, fmt.Errorf("write code: %w", err)
	}

	return w.Sandbox.Run(ctx, "execution-"+job.ID, buildSpec(job.Request, profile), dir)
}

// buildSpec combines the language profile with the request's resources,
// environment, and timeout. User args are appended after the profile argv.
func buildSpec(req domain.ExecutionRequest, profile domain.LanguageProfile) domain.ContainerSpec {
	argv := make([]string, 0, len(profile.Argv)+len(req.Args))
	argv = append(argv, profile.Argv...)
	argv = append(argv, req.Args...)

	res := req.EffectiveResources()
	return domain.ContainerSpec{
		Image:            profile.Image,
		Argv:             argv,
		Env:              req.Environment,
		WorkingDir:       sandboxWorkDir,
		MemoryLimitBytes: res.MemoryMiB * 1024 * 1024,
		CPULimitCores:    res.CPUCores,
		TimeoutSeconds:   req.EffectiveTimeout(),
		NetworkEnabled:   res.NetworkEnabled,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
