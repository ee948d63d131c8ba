package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrBusClosed is returned when publishing to a closed LocalBus
var ErrBusClosed = errors.New("event bus closed")

// LocalBus is an in-process Sink for running without Kafka. Messages are
// delivered to a single consumer in publish order.
type LocalBus struct {
	mu     sync.RWMutex
	ch     chan kafka.Message
	closed  bool
	backoff time.Duration
	logger  *zap.Logger
}

// NewLocalBus creates a bus holding up to size undelivered messages
func NewLocalBus(size int) *LocalBus {
	if size <= 0 {
		size = 256
	}
	return &LocalBus{ch: make(chan kafka.Message, size), backoff: time.Second, logger: util.GetLogger()}
}

// PublishEvent enqueues the event, blocking while the buffer is full
func (b *LocalBus) PublishEvent(ctx context.Context, key string, event interface{}) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	select {
	case b.ch <- kafka.Message{Key: []byte(key), Value: value, Time: time.Now()}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartConsuming delivers messages to handler until ctx is cancelled or the
// bus is closed and drained. Failed messages are retried like Consumer does.
func (b *LocalBus) StartConsuming(ctx context.Context, handler MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-b.ch:
			if !ok {
				return nil
			}
			if err := deliver(ctx, handler, msg, b.backoff, b.logger); err != nil {
				return err
			}
		}
	}
}

// Close stops accepting events. Buffered events are still delivered.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
	return nil
}
