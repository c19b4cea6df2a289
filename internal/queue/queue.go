// Package queue implements the durable priority work queue on Redis. All
// queue state lives in Redis so workers may run in separate processes; the
// atomic ZPOPMIN claim guarantees each unit is owned by exactly one worker
// per attempt.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jobpulse/harvester/internal/model"
)

const (
	// DefaultConcurrency is the worker pool size per registered consumer.
	DefaultConcurrency = 10
	// DefaultRatePerSec caps dispatches across the whole pool.
	DefaultRatePerSec = 10
	// DefaultMaxAttempts is the ceiling after which a unit moves to the dead set.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the first backoff delay, doubled per attempt.
	DefaultBaseDelay = 5 * time.Second

	// priorityStride separates priority classes in the waiting zset score so
	// the sequence number orders FIFO within a class without ever crossing
	// into the next class.
	priorityStride = float64(1 << 40)
)

// Options tunes a Queue. Zero values take the defaults above.
type Options struct {
	Name        string
	Concurrency int
	RatePerSec  int
	MaxAttempts int
	BaseDelay   time.Duration
}

// Stats is a point-in-time snapshot of queue state.
type Stats struct {
	Waiting   int64
	Active    int64
	Completed int64
	Failed    int64
	Delayed   int64
	Dead      int64
}

// Processor handles one claimed work unit. A returned error counts the
// attempt as failed; retryability decides whether the unit backs off
// or goes to the dead set.
type Processor func(ctx context.Context, unit *model.WorkUnit) error

// Queue is a durable priority queue over Redis sorted sets. Units wait in a
// zset scored by (priority, enqueue sequence); failed units sit in a delayed
// zset scored by their ready time until the promoter moves them back.
type Queue struct {
	rdb    *redis.Client
	opts   Options
	logger *slog.Logger

	workers *workerPool
}

// New creates a queue on rdb. The connection is verified so that an
// unreachable backend fails the run up front rather than mid-flight.
func New(ctx context.Context, rdb *redis.Client, opts Options, logger *slog.Logger) (*Queue, error) {
	if opts.Name == "" {
		opts.Name = "harvest"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = DefaultRatePerSec
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("queue backend unreachable: %w", err)
	}

	return &Queue{rdb: rdb, opts: opts, logger: logger}, nil
}

func (q *Queue) key(suffix string) string {
	return q.opts.Name + ":" + suffix
}

// Enqueue adds one unit to the waiting set.
func (q *Queue) Enqueue(ctx context.Context, unit model.WorkUnit) error {
	return q.EnqueueBulk(ctx, []model.WorkUnit{unit})
}

// EnqueueBulk adds units to the waiting set in one round trip, preserving
// priority order and FIFO order within each priority class.
func (q *Queue) EnqueueBulk(ctx context.Context, units []model.WorkUnit) error {
	if len(units) == 0 {
		return nil
	}

	members := make([]redis.Z, 0, len(units))
	for _, unit := range units {
		seq, err := q.rdb.Incr(ctx, q.key("seq")).Result()
		if err != nil {
			return fmt.Errorf("enqueue: next sequence: %w", err)
		}
		payload, err := json.Marshal(unit)
		if err != nil {
			return fmt.Errorf("enqueue %s: %w", unit.ID, err)
		}
		members = append(members, redis.Z{
			Score:  float64(unit.Priority)*priorityStride + float64(seq),
			Member: string(payload),
		})
	}

	if err := q.rdb.ZAdd(ctx, q.key("waiting"), members...).Err(); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// claim atomically pops the lowest-scored waiting unit and marks it active
// in the same breath, so Drain never observes a popped unit that is not yet
// counted. Returns nil when the waiting set is empty; the caller owns the
// active decrement for any claimed unit.
func (q *Queue) claim(ctx context.Context) (*model.WorkUnit, error) {
	popped, err := q.rdb.ZPopMin(ctx, q.key("waiting"), 1).Result()
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	if len(popped) == 0 {
		return nil, nil
	}
	q.rdb.Incr(ctx, q.key("active"))

	payload, _ := popped[0].Member.(string)
	var unit model.WorkUnit
	if err := json.Unmarshal([]byte(payload), &unit); err != nil {
		q.rdb.Decr(ctx, q.key("active"))
		return nil, fmt.Errorf("claim: corrupt payload: %w", err)
	}
	return &unit, nil
}

// retryLater schedules a failed unit's next attempt with exponential
// backoff: baseDelay * 2^attempt from now.
func (q *Queue) retryLater(ctx context.Context, unit *model.WorkUnit) error {
	delay := q.opts.BaseDelay << uint(unit.Attempt)
	unit.Attempt++

	payload, err := json.Marshal(unit)
	if err != nil {
		return fmt.Errorf("retry %s: %w", unit.ID, err)
	}

	readyAt := time.Now().Add(delay)
	err = q.rdb.ZAdd(ctx, q.key("delayed"), redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: string(payload),
	}).Err()
	if err != nil {
		return fmt.Errorf("retry %s: %w", unit.ID, err)
	}

	q.logger.Info("unit scheduled for retry",
		"unit", unit.ID,
		"company", unit.CompanyName,
		"attempt", unit.Attempt,
		"delay", delay,
	)
	return nil
}

// bury moves a unit to the dead set; it will not be retried automatically.
func (q *Queue) bury(ctx context.Context, unit *model.WorkUnit, cause error) error {
	payload, err := json.Marshal(unit)
	if err != nil {
		return fmt.Errorf("bury %s: %w", unit.ID, err)
	}
	if err := q.rdb.LPush(ctx, q.key("dead"), string(payload)).Err(); err != nil {
		return fmt.Errorf("bury %s: %w", unit.ID, err)
	}

	q.logger.Warn("unit moved to dead set",
		"unit", unit.ID,
		"company", unit.CompanyName,
		"attempts", unit.Attempt+1,
		"error", cause,
	)
	return nil
}

// promoteDue moves delayed units whose ready time has passed back into the
// waiting set. Each member is removed with ZRem first so two promoters
// cannot double-promote the same unit.
func (q *Queue) promoteDue(ctx context.Context) error {
	now := float64(time.Now().UnixMilli())
	members, err := q.rdb.ZRangeByScore(ctx, q.key("delayed"), &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%f", now), Count: 100,
	}).Result()
	if err != nil {
		return fmt.Errorf("promote: %w", err)
	}

	for _, member := range members {
		removed, err := q.rdb.ZRem(ctx, q.key("delayed"), member).Result()
		if err != nil {
			return fmt.Errorf("promote: %w", err)
		}
		if removed == 0 {
			continue // another promoter won this one
		}

		var unit model.WorkUnit
		if err := json.Unmarshal([]byte(member), &unit); err != nil {
			q.logger.Error("dropping corrupt delayed payload", "error", err)
			continue
		}
		if err := q.Enqueue(ctx, unit); err != nil {
			return err
		}
	}
	return nil
}

// ReplayDead re-enqueues every dead unit with a reset attempt counter.
// Manual operation; nothing calls this automatically.
func (q *Queue) ReplayDead(ctx context.Context) (int, error) {
	replayed := 0
	for {
		payload, err := q.rdb.RPop(ctx, q.key("dead")).Result()
		if err == redis.Nil {
			return replayed, nil
		}
		if err != nil {
			return replayed, fmt.Errorf("replay dead: %w", err)
		}

		var unit model.WorkUnit
		if err := json.Unmarshal([]byte(payload), &unit); err != nil {
			q.logger.Error("dropping corrupt dead payload", "error", err)
			continue
		}
		unit.Attempt = 0
		if err := q.Enqueue(ctx, unit); err != nil {
			return replayed, err
		}
		replayed++
	}
}

// Stats returns a snapshot of queue state.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	var err error

	if s.Waiting, err = q.rdb.ZCard(ctx, q.key("waiting")).Result(); err != nil {
		return s, fmt.Errorf("stats: %w", err)
	}
	if s.Delayed, err = q.rdb.ZCard(ctx, q.key("delayed")).Result(); err != nil {
		return s, fmt.Errorf("stats: %w", err)
	}
	if s.Dead, err = q.rdb.LLen(ctx, q.key("dead")).Result(); err != nil {
		return s, fmt.Errorf("stats: %w", err)
	}
	for _, c := range []struct {
		key string
		dst *int64
	}{
		{"active", &s.Active},
		{"completed", &s.Completed},
		{"failed", &s.Failed},
	} {
		v, err := q.rdb.Get(ctx, q.key(c.key)).Int64()
		if err != nil && err != redis.Nil {
			return s, fmt.Errorf("stats: %w", err)
		}
		*c.dst = v
	}
	return s, nil
}

// Reset clears the live queue state so counters reflect a single run. The
// dead set survives: units land there only after exhausting their retries,
// and they stay until an operator calls ReplayDead.
func (q *Queue) Reset(ctx context.Context) error {
	keys := []string{
		q.key("waiting"), q.key("delayed"), q.key("seq"),
		q.key("active"), q.key("completed"), q.key("failed"),
	}
	if err := q.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("reset queue: %w", err)
	}
	return nil
}

// Purge clears everything including the dead set. Tests and explicit
// operator cleanup only; runs use Reset.
func (q *Queue) Purge(ctx context.Context) error {
	if err := q.Reset(ctx); err != nil {
		return err
	}
	if err := q.rdb.Del(ctx, q.key("dead")).Err(); err != nil {
		return fmt.Errorf("purge queue: %w", err)
	}
	return nil
}
