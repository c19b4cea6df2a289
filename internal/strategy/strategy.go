// Package strategy holds the per-listing-system extraction adapters. Each
// strategy pulls raw postings for one work unit; the registry maps listing
// systems to implementations so adding a system is one registration.
package strategy

import (
	"context"
	"strconv"
	"time"

	"github.com/jobpulse/harvester/internal/model"
)

// Strategy pulls raw job data for one work unit. Implementations must not
// treat a non-2xx response as an error: they log and return an empty list so
// the orchestrator can fall through to the next strategy. Transport-level
// failures are returned so the queue can retry the unit.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, unit model.WorkUnit) ([]model.RawJobData, error)
}

// Registry maps listing systems to their strategies.
type Registry struct {
	strategies map[model.ListingSystem]Strategy
	fallback   Strategy
}

// NewRegistry creates an empty registry with fallback as the strategy used
// for systems with no dedicated adapter (the HTML capture path).
func NewRegistry(fallback Strategy) *Registry {
	return &Registry{
		strategies: make(map[model.ListingSystem]Strategy),
		fallback:   fallback,
	}
}

// Register binds a strategy to a listing system.
func (r *Registry) Register(system model.ListingSystem, s Strategy) {
	r.strategies[system] = s
}

// For returns the strategy for the given system and whether it is a
// dedicated API strategy; systems without one get the fallback.
func (r *Registry) For(system model.ListingSystem) (Strategy, bool) {
	if s, ok := r.strategies[system]; ok {
		return s, true
	}
	return r.fallback, false
}

// Fallback returns the HTML capture strategy.
func (r *Registry) Fallback() Strategy {
	return r.fallback
}

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
