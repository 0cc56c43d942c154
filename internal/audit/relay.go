package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	relayInterval  = time.Second
	relayBatchSize = 100
)

// Relay drains the outbox into a Kafka topic. Rows are only marked published
// after the broker acknowledges the batch, so a crash between produce and
// mark can at worst duplicate events; consumers dedupe on the event id.
type Relay struct {
	outbox OutboxStore
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewRelay connects to the brokers and ensures the topic exists.
func NewRelay(ctx context.Context, brokers []string, topic string, outbox OutboxStore, logger *slog.Logger) (*Relay, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, 1, 1, nil, topic)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		client.Close()
		return nil, fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}

	return &Relay{outbox: outbox, client: client, topic: topic, logger: logger}, nil
}

// Run publishes pending outbox rows until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(relayInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.publishPending(ctx); err != nil {
				r.logger.Error("publish outbox batch", "error", err)
			}
		}
	}
}

func (r *Relay) publishPending(ctx context.Context) error {
	entries, err := r.outbox.FetchUnpublished(ctx, relayBatchSize)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	records := make([]*kgo.Record, 0, len(entries))
	ids := make([]uuid.UUID, 0, len(entries))
	for _, entry := range entries {
		records = append(records, &kgo.Record{
			Topic: r.topic,
			Key:   []byte(entry.AggregateID),
			Value: entry.Payload,
			Headers: []kgo.RecordHeader{
				{Key: "event_type", Value: []byte(entry.EventType)},
				{Key: "aggregate_type", Value: []byte(entry.AggregateType)},
			},
		})
		ids = append(ids, entry.ID)
	}

	if err := r.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce audit batch: %w", err)
	}
	return r.outbox.MarkPublished(ctx, ids)
}

// Close flushes and releases the Kafka client.
func (r *Relay) Close() {
	r.client.Close()
}
