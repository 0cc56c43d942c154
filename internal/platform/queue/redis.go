package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// deadListCap bounds how many exhausted jobs each queue retains for
// inspection.
const deadListCap = 1000

// Redis is a list-backed queue with a sorted-set of delayed jobs and a
// capped dead list per queue:
//
//	queue:<name>          ready jobs, consumed with BRPOP
//	queue:<name>:delayed  jobs scheduled for redelivery, scored by ready time
//	queue:<name>:dead     jobs that exhausted their attempts
type Redis struct {
	client redis.Cmdable
	logger *slog.Logger
}

func NewRedis(client redis.Cmdable, logger *slog.Logger) *Redis {
	return &Redis{client: client, logger: logger}
}

func readyKey(queueName string) string   { return "queue:" + queueName }
func delayedKey(queueName string) string { return "queue:" + queueName + ":delayed" }
func deadKey(queueName string) string    { return "queue:" + queueName + ":dead" }

func (q *Redis) Enqueue(ctx context.Context, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, readyKey(job.Queue), raw).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", job.Queue, err)
	}
	return nil
}

func (q *Redis) enqueueDelayed(ctx context.Context, job Job, readyAt time.Time) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	member := redis.Z{Score: float64(readyAt.UnixMilli()), Member: raw}
	if err := q.client.ZAdd(ctx, delayedKey(job.Queue), member).Err(); err != nil {
		return fmt.Errorf("schedule %s: %w", job.Queue, err)
	}
	return nil
}

// promoteDue moves delayed jobs whose ready time has passed back onto the
// ready list.
func (q *Redis) promoteDue(ctx context.Context, queueName string, now time.Time) error {
	due, err := q.client.ZRangeByScore(ctx, delayedKey(queueName), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return fmt.Errorf("promote %s: %w", queueName, err)
	}
	for _, raw := range due {
		if err := q.client.LPush(ctx, readyKey(queueName), raw).Err(); err != nil {
			return fmt.Errorf("promote %s: %w", queueName, err)
		}
		if err := q.client.ZRem(ctx, delayedKey(queueName), raw).Err(); err != nil {
			return fmt.Errorf("promote %s: %w", queueName, err)
		}
	}
	return nil
}

func (q *Redis) bury(ctx context.Context, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	pipe := q.client.Pipeline()
	pipe.LPush(ctx, deadKey(job.Queue), raw)
	pipe.LTrim(ctx, deadKey(job.Queue), 0, deadListCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bury %s: %w", job.Queue, err)
	}
	return nil
}

// Consume blocks on the named queue and dispatches each job to handler until
// the context is cancelled. Failed jobs are redelivered with exponential
// backoff and buried once their attempts are exhausted.
func (q *Redis) Consume(ctx context.Context, queueName string, handler Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := q.promoteDue(ctx, queueName, time.Now()); err != nil {
			q.logger.Error("promote delayed jobs", "queue", queueName, "error", err)
		}

		result, err := q.client.BRPop(ctx, time.Second, readyKey(queueName)).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.logger.Error("pop job", "queue", queueName, "error", err)
			continue
		}

		// BRPop returns [key, value].
		var job Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			q.logger.Error("decode job", "queue", queueName, "error", err)
			continue
		}

		q.dispatch(ctx, job, handler)
	}
}

func (q *Redis) dispatch(ctx context.Context, job Job, handler Handler) {
	job.Attempts++
	err := handler(ctx, job)
	if err == nil {
		return
	}

	if job.Attempts >= job.MaxAttempts {
		q.logger.Error("job exhausted attempts",
			"queue", job.Queue, "job_id", job.ID, "attempts", job.Attempts, "error", err)
		if buryErr := q.bury(ctx, job); buryErr != nil {
			q.logger.Error("bury job", "queue", job.Queue, "job_id", job.ID, "error", buryErr)
		}
		return
	}

	delay := Backoff(job.Attempts)
	q.logger.Warn("job failed, scheduling retry",
		"queue", job.Queue, "job_id", job.ID, "attempts", job.Attempts, "delay", delay, "error", err)
	if schedErr := q.enqueueDelayed(ctx, job, time.Now().Add(delay)); schedErr != nil {
		q.logger.Error("schedule retry", "queue", job.Queue, "job_id", job.ID, "error", schedErr)
	}
}
