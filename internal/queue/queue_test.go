package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/jobpulse/harvester/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatchGate_SpacesDispatches(t *testing.T) {
	gate := newDispatchGate(100) // 10ms between slots

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := gate.wait(context.Background()); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	elapsed := time.Since(start)

	// First slot is immediate, the next two are spaced 10ms apart.
	if elapsed < 20*time.Millisecond {
		t.Errorf("three dispatches took %v, expected at least 20ms", elapsed)
	}
}

func TestDispatchGate_HonorsCancellation(t *testing.T) {
	gate := newDispatchGate(1) // 1s slots force the second caller to block

	if err := gate.wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := gate.wait(ctx); err == nil {
		t.Error("expected a context error from a cancelled wait")
	}
}

func TestRunProcessor_RecoversPanic(t *testing.T) {
	q := &Queue{logger: discardLogger()}
	unit := &model.WorkUnit{ID: "u1", CompanyName: "acme"}

	err := q.runProcessor(context.Background(), unit, func(context.Context, *model.WorkUnit) error {
		panic("boom")
	})
	if err == nil {
		t.Fatal("expected the panic surfaced as an error")
	}
	if !model.IsRetryable(err) {
		t.Error("expected a panic error to be retryable")
	}
}

// newTestQueue connects to the Redis named by HARVESTER_TEST_REDIS_URL, or
// skips. Each test gets an isolated key namespace and a clean slate.
func newTestQueue(t *testing.T, opts Options) *Queue {
	t.Helper()
	url := os.Getenv("HARVESTER_TEST_REDIS_URL")
	if url == "" {
		t.Skip("HARVESTER_TEST_REDIS_URL not set")
	}

	redisOpts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(redisOpts)
	t.Cleanup(func() { rdb.Close() })

	opts.Name = "test:" + t.Name()
	q, err := New(context.Background(), rdb, opts, discardLogger())
	require.NoError(t, err)
	require.NoError(t, q.Purge(context.Background()))
	t.Cleanup(func() {
		q.Close()
		q.Purge(context.Background())
	})
	return q
}

func testUnit(id string, priority model.Priority) model.WorkUnit {
	return model.WorkUnit{
		ID:          id,
		CompanyName: id,
		CareerURL:   "https://" + id + ".example.com/careers",
		System:      model.SystemGreenhouse,
		Priority:    priority,
	}
}

func TestQueue_PriorityOrdering(t *testing.T) {
	q := newTestQueue(t, Options{Concurrency: 1, RatePerSec: 1000})
	ctx := context.Background()

	// Enqueued out of order; dispatch must be high, normal-a, normal-b, low.
	require.NoError(t, q.EnqueueBulk(ctx, []model.WorkUnit{
		testUnit("low", model.PriorityLow),
		testUnit("normal-a", model.PriorityNormal),
		testUnit("high", model.PriorityHigh),
		testUnit("normal-b", model.PriorityNormal),
	}))

	var mu sync.Mutex
	var order []string
	require.NoError(t, q.RegisterWorker(ctx, func(_ context.Context, unit *model.WorkUnit) error {
		mu.Lock()
		order = append(order, unit.ID)
		mu.Unlock()
		return nil
	}))

	drainCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(drainCtx))
	q.Close()

	require.Equal(t, []string{"high", "normal-a", "normal-b", "low"}, order)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 4, stats.Completed)
	require.EqualValues(t, 0, stats.Failed)
}

func TestQueue_RetryCeilingBuries(t *testing.T) {
	q := newTestQueue(t, Options{
		Concurrency: 1,
		RatePerSec:  1000,
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
	})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testUnit("flaky", model.PriorityNormal)))

	var mu sync.Mutex
	attempts := 0
	require.NoError(t, q.RegisterWorker(ctx, func(context.Context, *model.WorkUnit) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("transient failure")
	}))

	drainCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(drainCtx))
	q.Close()

	mu.Lock()
	got := attempts
	mu.Unlock()
	require.Equal(t, 3, got, "unit should run exactly MaxAttempts times")

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Dead)
	require.EqualValues(t, 3, stats.Failed)
	require.EqualValues(t, 0, stats.Completed)
}

func TestQueue_NonRetryableBuriesImmediately(t *testing.T) {
	q := newTestQueue(t, Options{Concurrency: 1, RatePerSec: 1000, BaseDelay: 10 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testUnit("gone", model.PriorityNormal)))

	var mu sync.Mutex
	attempts := 0
	require.NoError(t, q.RegisterWorker(ctx, func(context.Context, *model.WorkUnit) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return &model.HTTPError{StatusCode: 404}
	}))

	drainCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(drainCtx))
	q.Close()

	mu.Lock()
	got := attempts
	mu.Unlock()
	require.Equal(t, 1, got, "a 404 must not be retried")

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Dead)
}

func TestQueue_ReplayDead(t *testing.T) {
	q := newTestQueue(t, Options{Concurrency: 1, RatePerSec: 1000})
	ctx := context.Background()

	unit := testUnit("buried", model.PriorityNormal)
	unit.Attempt = 2
	require.NoError(t, q.bury(ctx, &unit, errors.New("gave up")))

	replayed, err := q.ReplayDead(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, replayed)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, stats.Dead)
	require.EqualValues(t, 1, stats.Waiting)

	claimed, err := q.claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, "buried", claimed.ID)
	require.Equal(t, 0, claimed.Attempt, "replay resets the attempt counter")
}

func TestQueue_InFlightUnitCountsAsActive(t *testing.T) {
	q := newTestQueue(t, Options{Concurrency: 1, RatePerSec: 1000})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testUnit("slow", model.PriorityNormal)))

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, q.RegisterWorker(ctx, func(context.Context, *model.WorkUnit) error {
		close(started)
		<-release
		return nil
	}))

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never claimed the unit")
	}

	// The unit left the waiting set but must already be counted active, so a
	// drain in progress cannot conclude the queue is settled.
	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, stats.Waiting)
	require.EqualValues(t, 1, stats.Active)

	close(release)
	drainCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(drainCtx))
	q.Close()

	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, stats.Active)
	require.EqualValues(t, 1, stats.Completed)
}

func TestReset_PreservesDeadSet(t *testing.T) {
	q := newTestQueue(t, Options{})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testUnit("pending", model.PriorityNormal)))
	buried := testUnit("buried", model.PriorityNormal)
	buried.Attempt = 2
	require.NoError(t, q.bury(ctx, &buried, errors.New("gave up")))

	require.NoError(t, q.Reset(ctx))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, stats.Waiting)
	require.EqualValues(t, 1, stats.Dead, "dead units must survive a reset for manual replay")

	replayed, err := q.ReplayDead(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, replayed)

	require.NoError(t, q.Purge(ctx))
	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, stats.Dead)
}

func TestQueue_StatsEmpty(t *testing.T) {
	q := newTestQueue(t, Options{})

	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, Stats{}, stats)
}
