package kafka

import (
	"context"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 200 * time.Millisecond
)

// Handler must return nil only when processing succeeded and the offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r        *kafka.Reader
	workers  int
	attempts int
	backoff  time.Duration
	log      *zap.Logger
}

func NewConsumer(brokers []string, group string, topics []string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{r: r, workers: workers, attempts: defaultAttempts, backoff: defaultBackoff, log: log}
}

// Start fetches until ctx is done. Every partition is owned by exactly one worker,
// so its offsets are handled and committed in order.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make([]chan kafka.Message, c.workers)
	for i := range jobs {
		jobs[i] = make(chan kafka.Message, 256)
		defer close(jobs[i])
	}

	for i := 0; i < c.workers; i++ {
		go func(in <-chan kafka.Message) {
			for m := range in {
				if !c.handle(ctx, h, m) {
					// shutting down; the uncommitted offset is redelivered
					continue
				}
				if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
					c.log.Warn("commit failed", zap.String("topic", m.Topic),
						zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
				}
			}
		}(jobs[i])
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs[route(m, c.workers)] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// handle runs h with backoff between attempts. It reports whether the offset may be
// committed: true on success or once attempts run out, false if ctx ended first.
func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) bool {
	attempts := c.attempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = h(ctx, m); err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.log.Warn("consumer handler error", zap.String("topic", m.Topic),
			zap.Int64("offset", m.Offset), zap.Int("attempt", i), zap.Error(err))
		if i == attempts {
			break
		}
		select {
		case <-time.After(c.backoff * time.Duration(i)):
		case <-ctx.Done():
			return false
		}
	}
	c.log.Error("message skipped after retries", zap.String("topic", m.Topic),
		zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
	return true
}

func route(m kafka.Message, workers int) int {
	if workers <= 1 {
		return 0
	}
	f := fnv.New32a()
	_, _ = f.Write([]byte(m.Topic))
	_, _ = f.Write([]byte(strconv.Itoa(m.Partition)))
	return int(f.Sum32() % uint32(workers))
}
