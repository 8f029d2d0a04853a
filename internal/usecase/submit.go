// Package usecase contains application business logic services.
package usecase

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/syla-platform/execution-service/internal/domain"
)

// SubmitService validates submissions, allocates identifiers, writes the
// initial record, and enqueues the id. It never waits for completion.
type SubmitService struct {
	Store        domain.JobStore
	Queue        domain.Queue
	MaxCodeBytes int64
}

// NewSubmitService constructs a SubmitService with its dependencies.
func NewSubmitService(store domain.JobStore, queue domain.Queue, maxCodeBytes int64) SubmitService {
	if maxCodeBytes <= 0 {
		maxCodeBytes = domain.DefaultMaxCodeBytes
	}
	return SubmitService{Store: store, Queue: queue, MaxCodeBytes: maxCodeBytes}
}

// Submit validates the request, persists a pending record, and pushes the id
// onto the queue. The record write must succeed before the enqueue; if the
// enqueue then fails the record stays pending and the error is returned.
func (s SubmitService) Submit(ctx domain.Context, owner, workspace string, req domain.ExecutionRequest) (domain.Job, error) {
	if err := s.validate(req); err != nil {
		return domain.Job{}, err
	}

	job := domain.Job{
		ID:        uuid.NewString(),
		Owner:     owner,
		Workspace: workspace,
		Request:   req,
		Status:    domain.JobPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Store.Put(ctx, job); err != nil {
		return domain.Job{}, err
	}
	if err := s.Queue.Push(ctx, job.ID); err != nil {
		// The pending record is now an orphan; pending -> failed is not a
		// legal edge, so it is left for the sweeper.
		return domain.Job{}, fmt.Errorf("enqueue %s: %w", job.ID, err)
	}
	return job, nil
}

func (s SubmitService) validate(req domain.ExecutionRequest) error {
	if req.Language == "" {
		return fmt.Errorf("%w: language required", domain.ErrInvalidArgument)
	}
	if req.Code == "" {
		return fmt.Errorf("%w: code required", domain.ErrInvalidArgument)
	}
	if int64(len(req.Code)) > s.MaxCodeBytes {
		return fmt.Errorf("%w: code exceeds %d bytes", domain.ErrInvalidArgument, s.MaxCodeBytes)
	}
	if req.TimeoutSeconds != 0 && (req.TimeoutSeconds < 1 || req.TimeoutSeconds > domain.MaxTimeoutSeconds) {
		return fmt.Errorf("%w: timeout_seconds must be in [1, %d]", domain.ErrInvalidArgument, domain.MaxTimeoutSeconds)
	}
	return nil
}

// WaitTerminal polls the store until the job reaches a terminal state or the
// context expires, and returns the last record seen. Used by the synchronous
// submission option; the poll interval is 50ms.
func (s SubmitService) WaitTerminal(ctx domain.Context, id string) (domain.Job, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	var last domain.Job
	for {
		job, err := s.Store.Get(ctx, id)
		if err != nil {
			return domain.Job{}, err
		}
		last = job
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return last, nil
		case <-ticker.C:
		}
	}
}
