package eventbus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is anything that can be published on the bus.
type Event interface {
	Name() string
}

// Listener handles one event.
type Listener func(ctx context.Context, event Event) error

// Bus is a minimal in-process event bus. Listeners run asynchronously and
// outside the publisher's transaction: a failing listener is logged, never
// propagated back to the workflow that triggered it.
type Bus struct {
	listeners map[string][]Listener
	mu        sync.RWMutex
	logger    *zap.Logger
	timeout   time.Duration
}

func New(logger *zap.Logger, listenerTimeout time.Duration) *Bus {
	if listenerTimeout <= 0 {
		listenerTimeout = time.Minute
	}
	return &Bus{
		listeners: make(map[string][]Listener),
		logger:    logger,
		timeout:   listenerTimeout,
	}
}

func (b *Bus) Subscribe(eventName string, listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[eventName] = append(b.listeners[eventName], listener)
}

// Publish fans the event out to all subscribers. Fire-and-forget: each
// listener gets its own bounded context so a stuck collaborator cannot
// leak goroutines.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	eventName := event.Name()
	for _, listener := range b.listeners[eventName] {
		go func(l Listener) {
			lctx, cancel := context.WithTimeout(context.Background(), b.timeout)
			defer cancel()

			if err := l(lctx, event); err != nil {
				b.logger.Error("event listener failed",
					zap.String("event", eventName),
					zap.Error(err),
				)
			}
		}(listener)
	}
}
