package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/syla-platform/execution-service/internal/domain"
)

const jobKeyPrefix = "job:"

// JobStore persists job records as JSON under job:<id>.
type JobStore struct {
	rdb *redis.Client
}

// NewJobStore constructs a JobStore over a shared redis client.
func NewJobStore(rdb *redis.Client) *JobStore {
	return &JobStore{rdb: rdb}
}

func jobKey(id string) string { return jobKeyPrefix + id }

// Put serializes and writes the record, overwriting any previous value.
func (s *JobStore) Put(ctx context.Context, j domain.Job) error {
	b, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("%w: encode job %s: %v", domain.ErrSerialization, j.ID, err)
	}
	if err := s.rdb.Set(ctx, jobKey(j.ID), b, 0).Err(); err != nil {
		return fmt.Errorf("%w: put job %s: %v", domain.ErrStore, j.ID, err)
	}
	return nil
}

// Get reads and decodes a record by id.
func (s *JobStore) Get(ctx context.Context, id string) (domain.Job, error) {
	b, err := s.rdb.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Job{}, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.Job{}, fmt.Errorf("%w: get job %s: %v", domain.ErrStore, id, err)
	}
	var j domain.Job
	if err := json.Unmarshal(b, &j); err != nil {
		return domain.Job{}, fmt.Errorf("%w: decode job %s: %v", domain.ErrSerialization, id, err)
	}
	return j, nil
}

// List scans the job keyspace and returns all records, newest first. Listing
// is not performance-critical; filtering and pagination happen in memory.
func (s *JobStore) List(ctx context.Context) ([]domain.Job, error) {
	var jobs []domain.Job
	iter := s.rdb.Scan(ctx, 0, jobKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		b, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: list: %v", domain.ErrStore, err)
		}
		var j domain.Job
		if err := json.Unmarshal(b, &j); err != nil {
			return nil, fmt.Errorf("%w: list decode %s: %v", domain.ErrSerialization, iter.Val(), err)
		}
		jobs = append(jobs, j)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan: %v", domain.ErrStore, err)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.After(jobs[k].CreatedAt) })
	return jobs, nil
}
