package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Memory is a channel-backed queue for unit tests and Redis-less
// deployments. Retry and dead-list semantics mirror the Redis queue.
type Memory struct {
	mu      sync.Mutex
	queues  map[string]chan Job
	dead    map[string][]Job
	logger  *slog.Logger
	backoff func(attempts int) time.Duration
}

func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{
		queues:  make(map[string]chan Job),
		dead:    make(map[string][]Job),
		logger:  logger,
		backoff: Backoff,
	}
}

func (q *Memory) channel(queueName string) chan Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.queues[queueName]
	if !ok {
		ch = make(chan Job, 1024)
		q.queues[queueName] = ch
	}
	return ch
}

func (q *Memory) Enqueue(_ context.Context, job Job) error {
	q.channel(job.Queue) <- job
	return nil
}

// Dead returns the jobs that exhausted their attempts on the named queue.
func (q *Memory) Dead(queueName string) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, len(q.dead[queueName]))
	copy(out, q.dead[queueName])
	return out
}

// Consume dispatches jobs from the named queue until the context is
// cancelled.
func (q *Memory) Consume(ctx context.Context, queueName string, handler Handler) error {
	ch := q.channel(queueName)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-ch:
			q.dispatch(ctx, job, handler)
		}
	}
}

func (q *Memory) dispatch(ctx context.Context, job Job, handler Handler) {
	job.Attempts++
	err := handler(ctx, job)
	if err == nil {
		return
	}

	if job.Attempts >= job.MaxAttempts {
		q.logger.Error("job exhausted attempts",
			"queue", job.Queue, "job_id", job.ID, "attempts", job.Attempts, "error", err)
		q.mu.Lock()
		q.dead[job.Queue] = append(q.dead[job.Queue], job)
		q.mu.Unlock()
		return
	}

	delay := q.backoff(job.Attempts)
	q.logger.Warn("job failed, scheduling retry",
		"queue", job.Queue, "job_id", job.ID, "attempts", job.Attempts, "delay", delay, "error", err)
	retry := job
	time.AfterFunc(delay, func() {
		select {
		case q.channel(retry.Queue) <- retry:
		case <-ctx.Done():
		}
	})
}
