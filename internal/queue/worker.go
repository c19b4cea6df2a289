package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jobpulse/harvester/internal/model"
)

const (
	idlePollInterval = 250 * time.Millisecond
	promoteInterval  = 500 * time.Millisecond
)

// dispatchGate enforces a minimum interval between dispatches, shared by
// every worker on the queue.
type dispatchGate struct {
	mu       sync.Mutex
	next     time.Time
	interval time.Duration
}

func newDispatchGate(ratePerSec int) *dispatchGate {
	return &dispatchGate{interval: time.Second / time.Duration(ratePerSec)}
}

// wait blocks until this caller's dispatch slot arrives or ctx is done.
func (g *dispatchGate) wait(ctx context.Context) error {
	g.mu.Lock()
	now := time.Now()
	slot := g.next
	if slot.Before(now) {
		slot = now
	}
	g.next = slot.Add(g.interval)
	g.mu.Unlock()

	delay := time.Until(slot)
	if delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

type workerPool struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RegisterWorker starts the bounded worker pool and the delayed-unit
// promoter. Workers run until ctx is cancelled or Close is called. Only one
// consumer may be registered per Queue instance.
func (q *Queue) RegisterWorker(ctx context.Context, process Processor) error {
	if q.workers != nil {
		return fmt.Errorf("worker already registered on queue %s", q.opts.Name)
	}

	ctx, cancel := context.WithCancel(ctx)
	pool := &workerPool{cancel: cancel}
	q.workers = pool

	gate := newDispatchGate(q.opts.RatePerSec)

	pool.wg.Add(1)
	go func() {
		defer pool.wg.Done()
		q.promoteLoop(ctx)
	}()

	for i := 0; i < q.opts.Concurrency; i++ {
		pool.wg.Add(1)
		go func(id int) {
			defer pool.wg.Done()
			q.workLoop(ctx, id, gate, process)
		}(i)
	}

	q.logger.Info("worker pool started",
		"queue", q.opts.Name,
		"concurrency", q.opts.Concurrency,
		"rate_per_sec", q.opts.RatePerSec,
	)
	return nil
}

// Close stops the worker pool and waits for in-flight units to finish.
func (q *Queue) Close() {
	if q.workers == nil {
		return
	}
	q.workers.cancel()
	q.workers.wg.Wait()
	q.workers = nil
}

func (q *Queue) workLoop(ctx context.Context, id int, gate *dispatchGate, process Processor) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := gate.wait(ctx); err != nil {
			return
		}

		unit, err := q.claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.logger.Error("claim failed", "worker", id, "error", err)
			continue
		}
		if unit == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(idlePollInterval):
			}
			continue
		}

		q.runUnit(ctx, id, unit, process)
	}
}

// runUnit executes the processor for one claimed unit and settles the
// outcome: complete, retry with backoff, or bury after the attempt ceiling.
// claim already counted the unit active; this releases it.
func (q *Queue) runUnit(ctx context.Context, id int, unit *model.WorkUnit, process Processor) {
	defer q.rdb.Decr(ctx, q.key("active"))

	err := q.runProcessor(ctx, unit, process)
	if err == nil {
		q.rdb.Incr(ctx, q.key("completed"))
		q.logger.Debug("unit completed", "worker", id, "unit", unit.ID, "company", unit.CompanyName)
		return
	}

	q.rdb.Incr(ctx, q.key("failed"))

	if unit.Attempt+1 >= q.opts.MaxAttempts || !model.IsRetryable(err) {
		if buryErr := q.bury(ctx, unit, err); buryErr != nil {
			q.logger.Error("bury failed", "unit", unit.ID, "error", buryErr)
		}
		return
	}

	if retryErr := q.retryLater(ctx, unit); retryErr != nil {
		q.logger.Error("retry scheduling failed", "unit", unit.ID, "error", retryErr)
	}
}

// runProcessor isolates processor panics so a single bad source cannot take
// down the pool.
func (q *Queue) runProcessor(ctx context.Context, unit *model.WorkUnit, process Processor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return process(ctx, unit)
}

func (q *Queue) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.promoteDue(ctx); err != nil && ctx.Err() == nil {
				q.logger.Error("promoting delayed units failed", "error", err)
			}
		}
	}
}

// Drain blocks until no units are waiting, delayed, or active, or until ctx
// is done. Used by one-shot runs to wait for the seeded units to settle.
func (q *Queue) Drain(ctx context.Context) error {
	for {
		stats, err := q.Stats(ctx)
		if err != nil {
			return err
		}
		if stats.Waiting == 0 && stats.Delayed == 0 && stats.Active == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(idlePollInterval):
		}
	}
}
