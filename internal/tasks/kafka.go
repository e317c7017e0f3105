package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// Publisher is the producing half of a message broker.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// KafkaScheduler queues tasks on a Kafka topic keyed by document key. The
// producer hashes keys to partitions, so one key's tasks stay in order and
// survive a restart.
type KafkaScheduler struct {
	publisher Publisher
	timeout   time.Duration
	logger    *slog.Logger
}

func NewKafkaScheduler(publisher Publisher, timeout time.Duration) *KafkaScheduler {
	return &KafkaScheduler{
		publisher: publisher,
		timeout:   timeout,
		logger:    slog.Default().With("component", "kafka-scheduler"),
	}
}

// Schedule publishes t, giving up once the publish timeout passes. The
// writer's retries against an unreachable broker would otherwise hold the
// caller's key lock indefinitely.
func (s *KafkaScheduler) Schedule(ctx context.Context, t Task) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.publisher.Publish(ctx, kafka.Event{Key: t.Key, Value: t}); err != nil {
		if ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
			err = errors.Join(ctx.Err(), err)
		}
		return fmt.Errorf("scheduling %s task for %s: %w", t.Op, t.Key, err)
	}
	s.logger.Debug("index task published", "op", t.Op, "key", t.Key)
	return nil
}

// HandleMessage adapts a task Handler into a Kafka MessageHandler. Malformed
// messages and failed tasks are logged and then committed, matching the
// in-process runner's drop-on-failure policy.
func HandleMessage(handler Handler) kafka.MessageHandler {
	logger := slog.Default().With("component", "task-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		t, err := kafka.DecodeJSON[Task](value)
		if err != nil {
			logger.Error("failed to decode index task",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if err := safeRun(ctx, handler, t); err != nil {
			logTaskFailure(logger, t, err)
		}
		return nil
	}
}
