package orchestrate

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/jobpulse/harvester/internal/ai"
	"github.com/jobpulse/harvester/internal/catalog"
	"github.com/jobpulse/harvester/internal/classify"
	"github.com/jobpulse/harvester/internal/model"
	"github.com/jobpulse/harvester/internal/queue"
	"github.com/jobpulse/harvester/internal/strategy"
)

func TestPriorityFor(t *testing.T) {
	tests := []struct {
		name    string
		company model.DiscoveredCompany
		want    model.Priority
	}{
		{
			name:    "curated",
			company: model.DiscoveredCompany{Provenance: model.ProvenanceCurated, Confidence: 0.9},
			want:    model.PriorityHigh,
		},
		{
			name:    "curated outranks low confidence",
			company: model.DiscoveredCompany{Provenance: model.ProvenanceCurated, Confidence: 0.1},
			want:    model.PriorityHigh,
		},
		{
			name:    "low confidence discovery",
			company: model.DiscoveredCompany{Provenance: model.ProvenanceDiscovered, Confidence: 0.2},
			want:    model.PriorityLow,
		},
		{
			name:    "confident discovery",
			company: model.DiscoveredCompany{Provenance: model.ProvenanceDiscovered, Confidence: 0.7},
			want:    model.PriorityNormal,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := priorityFor(tc.company); got != tc.want {
				t.Errorf("priorityFor(%+v) = %v, want %v", tc.company, got, tc.want)
			}
		})
	}
}

type noCallProvider struct{ t *testing.T }

func (p noCallProvider) Complete(context.Context, string) (string, error) {
	p.t.Fatal("unexpected model call")
	return "", nil
}

// newTestOrchestrator builds a full pipeline against the Redis named by
// HARVESTER_TEST_REDIS_URL, or skips. Career pages resolve against pageURL;
// no API strategies are registered so everything takes the HTML path.
func newTestOrchestrator(t *testing.T, provider ai.Provider, cooldown time.Duration) (*Orchestrator, *catalog.Catalog, *redis.Client) {
	t.Helper()
	url := os.Getenv("HARVESTER_TEST_REDIS_URL")
	if url == "" {
		t.Skip("HARVESTER_TEST_REDIS_URL not set")
	}

	redisOpts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(redisOpts)
	t.Cleanup(func() {
		rdb.Del(context.Background(), "harvester:last_run")
		rdb.Close()
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	client := &http.Client{Timeout: 5 * time.Second}
	registry := strategy.NewRegistry(strategy.NewHTMLStrategy(client, "harvester-test/1.0", logger))

	q, err := queue.New(context.Background(), rdb, queue.Options{
		Name:        "test:" + t.Name(),
		Concurrency: 2,
		RatePerSec:  1000,
		BaseDelay:   10 * time.Millisecond,
	}, logger)
	require.NoError(t, err)
	require.NoError(t, q.Purge(context.Background()))
	t.Cleanup(func() { q.Purge(context.Background()) })

	o := New(
		cat,
		classify.New(client, "harvester-test/1.0", logger),
		registry,
		ai.NewExtractor(provider, 0, logger),
		nil, // no database; these runs never reach ingestion
		q,
		rdb,
		cooldown,
		logger,
	)
	return o, cat, rdb
}

func TestRun_EmptyCareerPagesSucceed(t *testing.T) {
	o, cat, _ := newTestOrchestrator(t, noCallProvider{t}, 0)
	ctx := context.Background()

	// A career page with no posting content: the HTML capture comes back
	// empty and the unit completes with zero jobs.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	for _, name := range []string{"alpha", "beta"} {
		require.NoError(t, cat.Add(ctx, model.DiscoveredCompany{
			Name:       name,
			CareerURL:  server.URL + "/careers",
			System:     model.SystemCustom,
			Provenance: model.ProvenanceCurated,
			Confidence: 0.9,
		}))
	}

	summary, err := o.Run(ctx, RunConfig{})
	require.NoError(t, err)
	require.Equal(t, 2, summary.Queued)
	require.Equal(t, 2, summary.Completed)
	require.Equal(t, 0, summary.Failed)
	require.Equal(t, 0, summary.JobsFound)
	require.Empty(t, summary.CompanyErrors)
}

func TestRun_CooldownRefusesSecondRun(t *testing.T) {
	o, cat, _ := newTestOrchestrator(t, noCallProvider{t}, time.Hour)
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	require.NoError(t, cat.Add(ctx, model.DiscoveredCompany{
		Name:       "gamma",
		CareerURL:  server.URL,
		System:     model.SystemCustom,
		Provenance: model.ProvenanceCurated,
		Confidence: 0.9,
	}))

	_, err := o.Run(ctx, RunConfig{})
	require.NoError(t, err)

	_, err = o.Run(ctx, RunConfig{})
	require.ErrorIs(t, err, ErrCooldownActive)

	// Force bypasses the window.
	summary, err := o.Run(ctx, RunConfig{Force: true})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Completed)
}

func TestRun_CompanyFailureDoesNotAbortRun(t *testing.T) {
	o, cat, _ := newTestOrchestrator(t, noCallProvider{t}, 0)
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	// An unreachable career page fails at the transport layer and exhausts
	// its retries; the healthy company still completes.
	unreachable := httptest.NewServer(nil)
	unreachableURL := unreachable.URL
	unreachable.Close()

	require.NoError(t, cat.Add(ctx, model.DiscoveredCompany{
		Name:       "healthy",
		CareerURL:  server.URL,
		System:     model.SystemCustom,
		Provenance: model.ProvenanceCurated,
		Confidence: 0.9,
	}))
	require.NoError(t, cat.Add(ctx, model.DiscoveredCompany{
		Name:       "broken",
		CareerURL:  unreachableURL,
		System:     model.SystemCustom,
		Provenance: model.ProvenanceCurated,
		Confidence: 0.9,
	}))

	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	summary, err := o.Run(runCtx, RunConfig{})
	require.NoError(t, err)
	require.Equal(t, 2, summary.Queued)
	require.Equal(t, 1, summary.Completed)
	require.Equal(t, 1, summary.Failed, "a company failing every retry counts once")
	require.Len(t, summary.CompanyErrors, 1)
	require.Contains(t, summary.CompanyErrors, "broken")
}

func TestRun_MaxCompaniesCapsSeeding(t *testing.T) {
	o, cat, _ := newTestOrchestrator(t, noCallProvider{t}, 0)
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	for _, name := range []string{"one", "two", "three"} {
		require.NoError(t, cat.Add(ctx, model.DiscoveredCompany{
			Name:       name,
			CareerURL:  server.URL,
			System:     model.SystemCustom,
			Provenance: model.ProvenanceCurated,
			Confidence: 0.9,
		}))
	}

	summary, err := o.Run(ctx, RunConfig{MaxCompanies: 2})
	require.NoError(t, err)
	require.Equal(t, 2, summary.Queued)
	require.Equal(t, 2, summary.Completed)
}
