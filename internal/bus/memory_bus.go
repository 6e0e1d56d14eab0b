package bus

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBus is an in-process MessageBus used by tests and single-binary
// deployments that run the Orchestrator and Map Worker in the same process.
// Subscribe must be called before Publish for a given topic to observe
// messages live; MemoryBus does not implement the durable-backlog replay
// RedisBus provides, since there is no cross-process restart to recover from.
type MemoryBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string][]func(ctx context.Context, payload []byte) error
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]func(ctx context.Context, payload []byte) error)}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	handlers := append([]func(ctx context.Context, payload []byte) error(nil), b.subs[topic]...)
	b.mu.Unlock()

	for _, h := range handlers {
		_ = h(ctx, payload)
	}

	return fmt.Sprintf("%s:%d", topic, id), nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic string, handler func(ctx context.Context, payload []byte) error) error {
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], handler)
	b.mu.Unlock()

	<-ctx.Done()
	return nil
}

func (b *MemoryBus) Close() error { return nil }

var _ MessageBus = (*MemoryBus)(nil)
