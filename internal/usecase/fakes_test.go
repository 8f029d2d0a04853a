package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/syla-platform/execution-service/internal/domain"
)

// memStore is an in-memory JobStore for tests.
type memStore struct {
	mu     sync.Mutex
	jobs   map[string]domain.Job
	putErr error
	getErr error
}

func newMemStore() *memStore { return &memStore{jobs: map[string]domain.Job{}} }

func (m *memStore) Put(_ context.Context, j domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.jobs[j.ID] = j
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return domain.Job{}, m.getErr
	}
	j, ok := m.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	return j, nil
}

func (m *memStore) List(_ context.Context) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

// memQueue is an in-memory FIFO Queue for tests.
type memQueue struct {
	mu      sync.Mutex
	ids     []string
	pushErr error
}

func newMemQueue() *memQueue { return &memQueue{} }

func (m *memQueue) Push(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pushErr != nil {
		return m.pushErr
	}
	m.ids = append(m.ids, id)
	return nil
}

func (m *memQueue) Pop(_ context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ids) == 0 {
		return "", false, nil
	}
	id := m.ids[0]
	m.ids = m.ids[1:]
	return id, true, nil
}

func (m *memQueue) Len(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.ids)), nil
}
