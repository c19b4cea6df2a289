// Package orchestrate wires the catalog, classifier, strategies, extractor,
// queue, and ingestor into full harvest runs. All dependencies are injected
// through the constructor; there is no process-wide state, so parallel test
// runs are safe.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jobpulse/harvester/internal/ai"
	"github.com/jobpulse/harvester/internal/catalog"
	"github.com/jobpulse/harvester/internal/classify"
	"github.com/jobpulse/harvester/internal/ingest"
	"github.com/jobpulse/harvester/internal/model"
	"github.com/jobpulse/harvester/internal/queue"
	"github.com/jobpulse/harvester/internal/strategy"
)

// ErrCooldownActive is returned when a run is requested inside the minimum
// cooldown window of the previous run.
var ErrCooldownActive = errors.New("harvest run refused: cooldown active")

// retagThreshold: classifier results at or above this confidence update the
// catalog entry.
const retagThreshold = 0.5

// RunConfig controls one harvest run.
type RunConfig struct {
	MaxCompanies int  // cap on companies seeded, 0 = all
	Force        bool // bypass the cooldown window
}

// RunSummary is the structured result every run returns instead of throwing
// past the orchestration boundary. Completed and Failed count companies,
// not attempts: a company that exhausts its retries fails once, and
// CompanyErrors holds its last error.
type RunSummary struct {
	Queued        int
	Completed     int
	Failed        int
	JobsFound     int
	Inserted      int
	Duplicates    int
	CompanyErrors map[string]string
}

// Orchestrator owns the harvest pipeline for one deployment.
type Orchestrator struct {
	catalog    *catalog.Catalog
	classifier *classify.Classifier
	strategies *strategy.Registry
	extractor  *ai.Extractor
	ingestor   *ingest.Ingestor
	queue      *queue.Queue
	rdb        *redis.Client
	cooldown   time.Duration
	logger     *slog.Logger
}

// New wires an orchestrator. The caller owns the lifecycle of every
// dependency; Close on the queue stops the worker pool.
func New(
	cat *catalog.Catalog,
	classifier *classify.Classifier,
	strategies *strategy.Registry,
	extractor *ai.Extractor,
	ingestor *ingest.Ingestor,
	q *queue.Queue,
	rdb *redis.Client,
	cooldown time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		catalog:    cat,
		classifier: classifier,
		strategies: strategies,
		extractor:  extractor,
		ingestor:   ingestor,
		queue:      q,
		rdb:        rdb,
		cooldown:   cooldown,
		logger:     logger,
	}
}

// Run seeds one work unit per catalog company, processes them through the
// worker pool, and blocks until the queue drains. Refuses to start inside
// the cooldown window unless cfg.Force is set.
func (o *Orchestrator) Run(ctx context.Context, cfg RunConfig) (*RunSummary, error) {
	if !cfg.Force {
		ok, err := o.acquireCooldown(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrCooldownActive
		}
	}

	companies, err := o.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	if cfg.MaxCompanies > 0 && len(companies) > cfg.MaxCompanies {
		companies = companies[:cfg.MaxCompanies]
	}

	units := make([]model.WorkUnit, 0, len(companies))
	for _, c := range companies {
		units = append(units, model.WorkUnit{
			ID:          uuid.NewString(),
			CompanyName: c.Name,
			CareerURL:   c.CareerURL,
			System:      c.System,
			SystemID:    c.SystemID,
			Priority:    priorityFor(c),
		})
	}

	summary := &RunSummary{
		Queued:        len(units),
		CompanyErrors: make(map[string]string),
	}
	var mu sync.Mutex

	if err := o.queue.Reset(ctx); err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	if err := o.queue.EnqueueBulk(ctx, units); err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}

	processor := func(ctx context.Context, unit *model.WorkUnit) error {
		found, inserted, duplicates, err := o.processUnit(ctx, unit)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			// Keyed by company so retries overwrite rather than accumulate;
			// Failed is derived from these keys once the queue settles.
			summary.CompanyErrors[unit.CompanyName] = err.Error()
			return err
		}
		delete(summary.CompanyErrors, unit.CompanyName)
		summary.Completed++
		summary.JobsFound += found
		summary.Inserted += inserted
		summary.Duplicates += duplicates
		return nil
	}

	if err := o.queue.RegisterWorker(ctx, processor); err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	defer o.queue.Close()

	if err := o.queue.Drain(ctx); err != nil {
		mu.Lock()
		summary.Failed = len(summary.CompanyErrors)
		mu.Unlock()
		return summary, fmt.Errorf("run: %w", err)
	}

	// Stop the pool before reading the summary so no attempt is still
	// writing. One failed company counts once regardless of retries.
	o.queue.Close()
	summary.Failed = len(summary.CompanyErrors)

	o.logger.Info("harvest run complete",
		"queued", summary.Queued,
		"completed", summary.Completed,
		"failed", summary.Failed,
		"jobs_found", summary.JobsFound,
		"inserted", summary.Inserted,
		"duplicates", summary.Duplicates,
	)
	return summary, nil
}

// processUnit runs the per-unit pipeline: classify when needed, pick a
// strategy, extract, ingest. Zero jobs found is success.
func (o *Orchestrator) processUnit(ctx context.Context, unit *model.WorkUnit) (found, inserted, duplicates int, err error) {
	o.resolveSystem(ctx, unit)

	raw, err := o.fetchRaw(ctx, unit)
	if err != nil {
		return 0, 0, 0, err
	}
	if len(raw) == 0 {
		return 0, 0, 0, nil
	}

	extracted := o.extractor.Extract(ctx, raw)
	if !extracted.Success {
		return 0, 0, 0, fmt.Errorf("extraction failed for %s: %v", unit.CompanyName, extracted.Errors)
	}
	for i := range extracted.Jobs {
		extracted.Jobs[i].Source = unit.System
	}
	if len(extracted.Jobs) == 0 {
		return 0, 0, 0, nil
	}

	result := o.ingestor.Ingest(ctx, extracted.Jobs)
	if len(result.Errors) > 0 {
		o.logger.Warn("ingest reported record errors",
			"company", unit.CompanyName,
			"errors", len(result.Errors),
		)
	}
	return len(extracted.Jobs), result.Inserted, result.Duplicates, nil
}

// resolveSystem classifies unclassified units and re-tags the catalog when
// the classifier is confident. Classification failure is non-fatal: the
// unit proceeds on the HTML/AI path.
func (o *Orchestrator) resolveSystem(ctx context.Context, unit *model.WorkUnit) {
	if unit.System != model.SystemUnknown && unit.System != "" {
		return
	}

	res := o.classifier.Classify(ctx, unit.CareerURL, "")
	if res.System == model.SystemUnknown {
		o.logger.Debug("classification inconclusive",
			"company", unit.CompanyName,
			"evidence", res.Evidence,
		)
		return
	}

	unit.System = res.System
	if res.SystemID != "" {
		unit.SystemID = res.SystemID
	}

	if res.Confidence >= retagThreshold {
		if err := o.catalog.Retag(ctx, unit.CompanyName, res.System, res.SystemID, res.Confidence); err != nil {
			o.logger.Warn("catalog retag failed", "company", unit.CompanyName, "error", err)
		}
	}
}

// fetchRaw applies the strategy ordering rules: the API strategy first when
// the system has one, then one pass of the HTML fallback when the API path
// yielded nothing.
func (o *Orchestrator) fetchRaw(ctx context.Context, unit *model.WorkUnit) ([]model.RawJobData, error) {
	if unit.System.APIAvailable() {
		apiStrategy, ok := o.strategies.For(unit.System)
		if ok {
			raw, err := apiStrategy.Fetch(ctx, *unit)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", apiStrategy.Name(), err)
			}
			if len(raw) > 0 {
				return raw, nil
			}
			o.logger.Debug("api strategy yielded nothing, trying html capture",
				"company", unit.CompanyName,
				"strategy", apiStrategy.Name(),
			)
		}
	}

	fallback := o.strategies.Fallback()
	raw, err := fallback.Fetch(ctx, *unit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fallback.Name(), err)
	}
	return raw, nil
}

// priorityFor maps catalog provenance and confidence onto a dispatch class:
// curated companies first, low-confidence discoveries last.
func priorityFor(c model.DiscoveredCompany) model.Priority {
	switch {
	case c.Provenance == model.ProvenanceCurated:
		return model.PriorityHigh
	case c.Confidence < 0.3:
		return model.PriorityLow
	default:
		return model.PriorityNormal
	}
}

// acquireCooldown takes the run latch: SET NX with the cooldown as TTL.
// Returns false when another run happened inside the window.
func (o *Orchestrator) acquireCooldown(ctx context.Context) (bool, error) {
	if o.cooldown <= 0 {
		return true, nil
	}
	ok, err := o.rdb.SetNX(ctx, "harvester:last_run", time.Now().Format(time.RFC3339), o.cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown check: %w", err)
	}
	return ok, nil
}
