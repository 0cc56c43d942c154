package broadcast

import (
	"context"
	"sync"
)

// Memory fans events out in-process. Used in tests and Redis-less
// deployments, where a single instance serves all websocket clients.
type Memory struct {
	mu   sync.Mutex
	subs []chan Message
}

func NewMemory() *Memory {
	return &Memory{}
}

func (b *Memory) Publish(_ context.Context, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			// Drop rather than block a slow subscriber.
		}
	}
	return nil
}

func (b *Memory) Subscribe(ctx context.Context) (<-chan Message, error) {
	ch := make(chan Message, 64)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		for i, sub := range b.subs {
			if sub == ch {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
