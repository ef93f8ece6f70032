package broker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cuongbtq/jobengine/internal/job"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	entryKeyPrefix  = "jobs:entry:"
	queueKeyPrefix  = "jobs:queue:"
	failedKeyPrefix = "jobs:failed:"
	delayedKey      = "jobs:delayed"

	// popTimeout bounds each blocking pop so consume loops notice context
	// cancellation.
	popTimeout = 2 * time.Second
)

// Config holds broker queue configuration
type Config struct {
	// Queues in delivery priority order, e.g. high, medium, low.
	Queues []string
	// MaxRetries is the number of redeliveries after the first failure.
	MaxRetries int
	// RetryIntervals is the backoff schedule per failed attempt. The last
	// interval repeats when attempts outnumber intervals.
	RetryIntervals []time.Duration
	// FailedTTL keeps dead entries around for the failure registry.
	FailedTTL time.Duration
	// PollInterval drives the delayed-entry mover.
	PollInterval time.Duration
}

// Broker is a Redis-backed at-least-once work queue. Entries are hashes
// addressable by id, so an entry can be fetched, resubmitted under its
// original id, and tracked in a per-queue failure registry. Retry/backoff
// lives here: a failed delivery parks the id in a delayed set and a mover
// promotes it back onto its queue when the backoff interval elapses.
type Broker struct {
	rdb    *redis.Client
	cfg    *Config
	logger *slog.Logger
}

// New creates a broker on top of the shared Redis client.
func New(rdb *redis.Client, cfg *Config, logger *slog.Logger) *Broker {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if len(cfg.RetryIntervals) == 0 {
		cfg.RetryIntervals = []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}
	}
	if cfg.FailedTTL <= 0 {
		cfg.FailedTTL = 7 * 24 * time.Hour
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}

	return &Broker{
		rdb:    rdb,
		cfg:    cfg,
		logger: logger,
	}
}

func entryKey(id string) string    { return entryKeyPrefix + id }
func queueKey(name string) string  { return queueKeyPrefix + name }
func failedKey(name string) string { return failedKeyPrefix + name }

// Submit enqueues body under queue and returns the entry id. An empty id
// mints a fresh one; recovery passes the original id so the durable record
// and the broker entry stay joined.
func (b *Broker) Submit(ctx context.Context, queue, id string, body []byte, timeout time.Duration) (string, error) {
	if queue == "" {
		return "", fmt.Errorf("queue name is required")
	}
	if id == "" {
		id = uuid.New().String()
	}

	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, entryKey(id), map[string]interface{}{
		"queue":       queue,
		"body":        string(body),
		"attempt":     0,
		"timeout_ms":  timeout.Milliseconds(),
		"enqueued_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	pipe.Persist(ctx, entryKey(id))
	pipe.LPush(ctx, queueKey(queue), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to submit entry %s: %w", id, err)
	}

	b.logger.Debug("Entry submitted",
		slog.String("job_id", id),
		slog.String("queue", queue),
	)

	return id, nil
}

// Exists reports whether the broker currently holds an entry for id.
func (b *Broker) Exists(ctx context.Context, id string) (bool, error) {
	n, err := b.rdb.Exists(ctx, entryKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check entry %s: %w", id, err)
	}
	return n > 0, nil
}

// Consume starts delivering entries from the configured queues in priority
// order. The returned channel closes when ctx is canceled. It also starts
// the delayed-entry mover that implements the retry backoff.
func (b *Broker) Consume(ctx context.Context) (<-chan job.Delivery, error) {
	if len(b.cfg.Queues) == 0 {
		return nil, fmt.Errorf("no queues configured")
	}

	keys := make([]string, len(b.cfg.Queues))
	for i, q := range b.cfg.Queues {
		keys[i] = queueKey(q)
	}

	deliveries := make(chan job.Delivery)

	go b.moveDelayedLoop(ctx)
	go func() {
		defer close(deliveries)

		for {
			if ctx.Err() != nil {
				return
			}

			// BRPOP scans keys left to right, so the first queue wins
			// when several have entries.
			popped, err := b.rdb.BRPop(ctx, popTimeout, keys...).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				b.logger.Error("Failed to pop from queues",
					slog.Any("error", err),
				)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}
			if len(popped) < 2 || popped[1] == "" {
				continue
			}

			id := popped[1]
			delivery, ok := b.loadDelivery(ctx, id)
			if !ok {
				continue
			}

			select {
			case deliveries <- delivery:
			case <-ctx.Done():
				// Put the entry back on its own queue so another consumer
				// picks it up. The consume ctx is already canceled here, so
				// the compensating push must not inherit it.
				requeueCtx := context.WithoutCancel(ctx)
				if err := b.rdb.RPush(requeueCtx, queueKey(delivery.Queue), id).Err(); err != nil {
					b.logger.Error("Failed to requeue entry on shutdown",
						slog.String("job_id", id),
						slog.String("queue", delivery.Queue),
						slog.Any("error", err),
					)
				}
				return
			}
		}
	}()

	return deliveries, nil
}

// loadDelivery reads the entry hash for a popped id. A missing hash means
// the entry was removed out-of-band; the id is dropped.
func (b *Broker) loadDelivery(ctx context.Context, id string) (job.Delivery, bool) {
	fields, err := b.rdb.HGetAll(ctx, entryKey(id)).Result()
	if err != nil {
		b.logger.Error("Failed to load entry",
			slog.String("job_id", id),
			slog.Any("error", err),
		)
		return job.Delivery{}, false
	}
	if len(fields) == 0 {
		b.logger.Warn("Popped id has no entry, dropping",
			slog.String("job_id", id),
		)
		return job.Delivery{}, false
	}

	attempt, _ := strconv.Atoi(fields["attempt"])
	timeoutMs, _ := strconv.ParseInt(fields["timeout_ms"], 10, 64)

	return job.Delivery{
		ID:      id,
		Queue:   fields["queue"],
		Body:    []byte(fields["body"]),
		Attempt: attempt,
		Timeout: time.Duration(timeoutMs) * time.Millisecond,
	}, true
}

// Ack acknowledges a successful delivery and drops the entry.
func (b *Broker) Ack(ctx context.Context, id string) error {
	if err := b.rdb.Del(ctx, entryKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to ack entry %s: %w", id, err)
	}
	return nil
}

// Nack records a failed delivery. While attempts remain the id is parked in
// the delayed set at now plus the backoff interval; once exhausted it moves
// to the queue's failure registry and the entry is kept on a TTL for the
// requeue tooling.
func (b *Broker) Nack(ctx context.Context, id string) error {
	attempt, err := b.rdb.HIncrBy(ctx, entryKey(id), "attempt", 1).Result()
	if err != nil {
		return fmt.Errorf("failed to count attempt for entry %s: %w", id, err)
	}

	if int(attempt) <= b.cfg.MaxRetries {
		delay := b.retryInterval(int(attempt))
		score := float64(time.Now().Add(delay).UnixMilli())
		if err := b.rdb.ZAdd(ctx, delayedKey, redis.Z{Score: score, Member: id}).Err(); err != nil {
			return fmt.Errorf("failed to delay entry %s: %w", id, err)
		}

		b.logger.Info("Entry scheduled for retry",
			slog.String("job_id", id),
			slog.Int64("attempt", attempt),
			slog.Duration("delay", delay),
		)
		return nil
	}

	queue, err := b.rdb.HGet(ctx, entryKey(id), "queue").Result()
	if err != nil {
		return fmt.Errorf("failed to read queue for entry %s: %w", id, err)
	}

	pipe := b.rdb.TxPipeline()
	pipe.SAdd(ctx, failedKey(queue), id)
	pipe.Expire(ctx, entryKey(id), b.cfg.FailedTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to move entry %s to failure registry: %w", id, err)
	}

	b.logger.Warn("Entry exhausted retries, moved to failure registry",
		slog.String("job_id", id),
		slog.String("queue", queue),
		slog.Int64("attempts", attempt),
	)
	return nil
}

// RemoveFailed removes id from the failure registry of queue and drops the
// stale entry.
func (b *Broker) RemoveFailed(ctx context.Context, queue, id string) error {
	pipe := b.rdb.TxPipeline()
	pipe.SRem(ctx, failedKey(queue), id)
	pipe.Del(ctx, entryKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove entry %s from failure registry: %w", id, err)
	}
	return nil
}

// ListFailed returns the ids currently in the failure registry of queue.
func (b *Broker) ListFailed(ctx context.Context, queue string) ([]string, error) {
	ids, err := b.rdb.SMembers(ctx, failedKey(queue)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list failure registry of %s: %w", queue, err)
	}
	return ids, nil
}

// retryInterval returns the backoff for the given failed attempt (1-based).
func (b *Broker) retryInterval(attempt int) time.Duration {
	idx := attempt - 1
	if idx >= len(b.cfg.RetryIntervals) {
		idx = len(b.cfg.RetryIntervals) - 1
	}
	return b.cfg.RetryIntervals[idx]
}

// moveDelayedLoop promotes delayed ids back onto their queues once their
// backoff interval has elapsed.
func (b *Broker) moveDelayedLoop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.moveDelayed(ctx); err != nil && ctx.Err() == nil {
				b.logger.Error("Failed to move delayed entries",
					slog.Any("error", err),
				)
			}
		}
	}
}

func (b *Broker) moveDelayed(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	ids, err := b.rdb.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: 100,
	}).Result()
	if err != nil {
		return err
	}

	for _, id := range ids {
		// ZRem is the claim: only the mover that removes the id requeues
		// it, so concurrent workers never double-promote.
		removed, err := b.rdb.ZRem(ctx, delayedKey, id).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}

		queue, err := b.rdb.HGet(ctx, entryKey(id), "queue").Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return err
		}

		if err := b.rdb.LPush(ctx, queueKey(queue), id).Err(); err != nil {
			return err
		}

		b.logger.Info("Delayed entry requeued",
			slog.String("job_id", id),
			slog.String("queue", queue),
		)
	}

	return nil
}
