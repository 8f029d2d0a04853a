package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/syla-platform/execution-service/internal/adapter/observability"
	"github.com/syla-platform/execution-service/internal/domain"
)

// QueueKey is the single pending-job list shared by every front door and
// worker. LPUSH at the head with RPOP at the tail gives FIFO order.
const QueueKey = "syla:execution:queue"

// Queue is the FIFO of pending job ids on a redis list.
type Queue struct {
	rdb *redis.Client
}

// NewQueue constructs a Queue over a shared redis client.
func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// Push adds a job id at the queue head.
func (q *Queue) Push(ctx context.Context, id string) error {
	if err := q.rdb.LPush(ctx, QueueKey, id).Err(); err != nil {
		return fmt.Errorf("%w: push %s: %v", domain.ErrStore, id, err)
	}
	observability.EnqueueExecution()
	return nil
}

// Pop removes and returns the id at the queue head. ok is false when the
// queue is empty; Pop never blocks.
func (q *Queue) Pop(ctx context.Context) (string, bool, error) {
	id, err := q.rdb.RPop(ctx, QueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: pop: %v", domain.ErrStore, err)
	}
	return id, true, nil
}

// Len returns the number of queued ids.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, QueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: llen: %v", domain.ErrStore, err)
	}
	return n, nil
}
