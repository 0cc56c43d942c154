//go:build integration

package queue_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crediflow/internal/platform/queue"
	"crediflow/pkg/testutil/containers"
)

func TestRedisQueue(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	logger := slog.New(slog.DiscardHandler)

	t.Run("delivers jobs in order", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		q := queue.NewRedis(rc.Client, logger)

		for i := 0; i < 3; i++ {
			job, err := queue.NewJob(queue.Notification, map[string]int{"seq": i}, time.Now())
			require.NoError(t, err)
			require.NoError(t, q.Enqueue(ctx, job))
		}

		got := make(chan int, 3)
		consumeCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			_ = q.Consume(consumeCtx, queue.Notification, func(_ context.Context, job queue.Job) error {
				var payload map[string]int
				if err := json.Unmarshal(job.Payload, &payload); err != nil {
					return err
				}
				got <- payload["seq"]
				return nil
			})
		}()

		for want := 0; want < 3; want++ {
			select {
			case seq := <-got:
				assert.Equal(t, want, seq)
			case <-time.After(5 * time.Second):
				t.Fatalf("timed out waiting for job %d", want)
			}
		}
	})

	t.Run("failing jobs are redelivered then buried", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		q := queue.NewRedis(rc.Client, logger)

		job, err := queue.NewJob(queue.RiskEvaluation, map[string]string{"id": "doomed"}, time.Now())
		require.NoError(t, err)
		require.NoError(t, q.Enqueue(ctx, job))

		var attempts atomic.Int32
		consumeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		go func() {
			_ = q.Consume(consumeCtx, queue.RiskEvaluation, func(_ context.Context, _ queue.Job) error {
				attempts.Add(1)
				return assert.AnError
			})
		}()

		require.Eventually(t, func() bool {
			return attempts.Load() == int32(queue.DefaultMaxAttempts)
		}, 15*time.Second, 100*time.Millisecond)

		require.Eventually(t, func() bool {
			n, err := rc.Client.LLen(ctx, "queue:"+queue.RiskEvaluation+":dead").Result()
			return err == nil && n == 1
		}, 5*time.Second, 100*time.Millisecond)
	})

	t.Run("succeeding retry is not buried", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		q := queue.NewRedis(rc.Client, logger)

		job, err := queue.NewJob(queue.RiskEvaluation, map[string]string{"id": "flaky"}, time.Now())
		require.NoError(t, err)
		require.NoError(t, q.Enqueue(ctx, job))

		var attempts atomic.Int32
		done := make(chan struct{})
		consumeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		go func() {
			_ = q.Consume(consumeCtx, queue.RiskEvaluation, func(_ context.Context, _ queue.Job) error {
				if attempts.Add(1) == 1 {
					return assert.AnError
				}
				close(done)
				return nil
			})
		}()

		select {
		case <-done:
		case <-time.After(15 * time.Second):
			t.Fatal("timed out waiting for redelivery")
		}

		n, err := rc.Client.LLen(ctx, "queue:"+queue.RiskEvaluation+":dead").Result()
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
