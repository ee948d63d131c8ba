package broker

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const maxRetryBackoff = 30 * time.Second

// ErrMalformedMessage marks a message no retry can handle. Consumers commit
// and skip it.
var ErrMalformedMessage = errors.New("malformed message")

// deliver calls handler until it succeeds or reports a malformed message.
// The only error returned is ctx's, when it ends while retrying.
func deliver(ctx context.Context, handler MessageHandler, msg kafka.Message, backoff time.Duration, logger *zap.Logger) error {
	delay := backoff
	if delay <= 0 {
		delay = time.Second
	}
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrMalformedMessage) {
			logger.Error("Dropping malformed message",
				zap.String("key", string(msg.Key)),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			return nil
		}

		logger.Error("Error handling message, retrying",
			zap.String("key", string(msg.Key)),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxRetryBackoff {
			delay = maxRetryBackoff
		}
	}
}
