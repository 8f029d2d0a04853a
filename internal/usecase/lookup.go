package usecase

import (
	"math"
	"time"

	"github.com/syla-platform/execution-service/internal/domain"
)

// LookupService reads records by id, marks non-terminal records cancelled,
// and filters/paginates the keyspace for listings.
type LookupService struct {
	Store domain.JobStore
	Queue domain.Queue
}

// NewLookupService constructs a LookupService with its dependencies.
func NewLookupService(store domain.JobStore, queue domain.Queue) LookupService {
	return LookupService{Store: store, Queue: queue}
}

// Get returns the record for id.
func (s LookupService) Get(ctx domain.Context, id string) (domain.Job, error) {
	return s.Store.Get(ctx, id)
}

// QueueDepth reports the number of queued ids.
func (s LookupService) QueueDepth(ctx domain.Context) (int64, error) {
	return s.Queue.Len(ctx)
}

// Cancel marks a non-terminal record cancelled. A record that is already
// terminal is left untouched and reported with cancelled=false; terminal
// states are sticky (first writer wins). No attempt is made to kill a
// running container: the worker's re-read suppresses its terminal write.
func (s LookupService) Cancel(ctx domain.Context, id string) (domain.Job, bool, error) {
	job, err := s.Store.Get(ctx, id)
	if err != nil {
		return domain.Job{}, false, err
	}
	if job.Status.Terminal() {
		return job, false, nil
	}
	now := time.Now().UTC()
	job.Status = domain.JobCancelled
	job.CompletedAt = &now
	if err := s.Store.Put(ctx, job); err != nil {
		return domain.Job{}, false, err
	}
	return job, true, nil
}

// ListFilter narrows listings; empty fields match everything.
type ListFilter struct {
	Owner     string
	Workspace string
	Status    domain.JobStatus
}

// Page is the requested window. Size is clamped to [10, 100] and Number
// to >= 1.
type Page struct {
	Size   int
	Number int
}

// PageResult describes the returned window.
type PageResult struct {
	Total      int `json:"total"`
	Size       int `json:"size"`
	Number     int `json:"number"`
	TotalPages int `json:"total_pages"`
}

// List filters and paginates the job keyspace in memory, newest first.
func (s LookupService) List(ctx domain.Context, f ListFilter, p Page) ([]domain.Job, PageResult, error) {
	size := p.Size
	if size < 10 {
		size = 10
	}
	if size > 100 {
		size = 100
	}
	number := p.Number
	if number < 1 {
		number = 1
	}

	all, err := s.Store.List(ctx)
	if err != nil {
		return nil, PageResult{}, err
	}
	filtered := all[:0:0]
	for _, j := range all {
		if f.Owner != "" && j.Owner != f.Owner {
			continue
		}
		if f.Workspace != "" && j.Workspace != f.Workspace {
			continue
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		filtered = append(filtered, j)
	}

	total := len(filtered)
	start := (number - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	res := PageResult{
		Total:      total,
		Size:       size,
		Number:     number,
		TotalPages: int(math.Ceil(float64(total) / float64(size))),
	}
	return filtered[start:end], res, nil
}
