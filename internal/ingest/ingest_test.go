package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/jobpulse/harvester/internal/model"
)

func TestTrustScoreFor(t *testing.T) {
	tests := []struct {
		source model.ListingSystem
		want   float64
	}{
		{model.SystemGreenhouse, 0.9},
		{model.SystemLever, 0.9},
		{model.SystemWorkable, 0.8},
		{model.SystemCustom, 0.5},
		{model.SystemUnknown, 0.3},
		{model.ListingSystem("made-up"), 0.3},
	}
	for _, tc := range tests {
		if got := TrustScoreFor(tc.source); got != tc.want {
			t.Errorf("TrustScoreFor(%s) = %v, want %v", tc.source, got, tc.want)
		}
	}
}

// newTestIngestor connects to the database named by
// HARVESTER_TEST_DATABASE_URL, or skips. The job_records table is truncated
// so each test starts clean.
func newTestIngestor(t *testing.T) *Ingestor {
	t.Helper()
	url := os.Getenv("HARVESTER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("HARVESTER_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	ing := New(pool, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, ing.Migrate(ctx))
	_, err = pool.Exec(ctx, `TRUNCATE job_records RESTART IDENTITY`)
	require.NoError(t, err)
	return ing
}

func sampleJob(externalID string) model.ExtractedJobData {
	return model.ExtractedJobData{
		ExternalID:  externalID,
		Title:       "Backend Engineer",
		Company:     "Acme",
		Location:    "Remote",
		RemoteType:  model.RemoteTypeRemote,
		Description: "Build and run services.",
		Skills:      []string{"Go", "PostgreSQL"},
		ApplyURL:    "https://jobs.acme.example.com/" + externalID,
		Source:      model.SystemGreenhouse,
		Confidence:  0.8,
	}
}

func TestIngest_InsertThenDuplicate(t *testing.T) {
	ing := newTestIngestor(t)
	ctx := context.Background()

	first := ing.Ingest(ctx, []model.ExtractedJobData{sampleJob("eng-1")})
	require.Empty(t, first.Errors)
	require.Equal(t, 1, first.Inserted)
	require.Equal(t, 0, first.Duplicates)

	second := ing.Ingest(ctx, []model.ExtractedJobData{sampleJob("eng-1")})
	require.Empty(t, second.Errors)
	require.Equal(t, 0, second.Inserted)
	require.Equal(t, 1, second.Duplicates)

	active, err := ing.CountActive(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, active)
}

func TestIngest_MissingIdentityIsAnError(t *testing.T) {
	ing := newTestIngestor(t)

	job := sampleJob("eng-2")
	job.ExternalID = ""
	result := ing.Ingest(context.Background(), []model.ExtractedJobData{job})
	require.Len(t, result.Errors, 1)
	require.Equal(t, 0, result.Inserted)
}

func TestIngest_MixedBatchContinuesPastFailures(t *testing.T) {
	ing := newTestIngestor(t)

	bad := sampleJob("")
	result := ing.Ingest(context.Background(), []model.ExtractedJobData{
		bad, sampleJob("eng-3"), sampleJob("eng-4"),
	})
	require.Len(t, result.Errors, 1)
	require.Equal(t, 2, result.Inserted)
}

func TestIngest_SameIDDifferentSourceBothInsert(t *testing.T) {
	ing := newTestIngestor(t)
	ctx := context.Background()

	a := sampleJob("shared")
	b := sampleJob("shared")
	b.Source = model.SystemLever

	result := ing.Ingest(ctx, []model.ExtractedJobData{a, b})
	require.Empty(t, result.Errors)
	require.Equal(t, 2, result.Inserted)
}

func TestIngest_ConcurrentSingleInsert(t *testing.T) {
	ing := newTestIngestor(t)
	ctx := context.Background()

	const callers = 8
	results := make([]Result, callers)
	var wg sync.WaitGroup
	for c := 0; c < callers; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			results[c] = ing.Ingest(ctx, []model.ExtractedJobData{sampleJob("contended")})
		}(c)
	}
	wg.Wait()

	inserted, duplicates := 0, 0
	for c, r := range results {
		require.Empty(t, r.Errors, fmt.Sprintf("caller %d", c))
		inserted += r.Inserted
		duplicates += r.Duplicates
	}
	require.Equal(t, 1, inserted, "exactly one caller must observe the insert")
	require.Equal(t, callers-1, duplicates)

	active, err := ing.CountActive(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, active)
}

func TestExpireStale(t *testing.T) {
	ing := newTestIngestor(t)
	ctx := context.Background()

	result := ing.Ingest(ctx, []model.ExtractedJobData{sampleJob("fresh"), sampleJob("stale")})
	require.Equal(t, 2, result.Inserted)

	// Backdate one record past its TTL; the platform-sourced one is exempt
	// even when expired.
	_, err := ing.pool.Exec(ctx,
		`UPDATE job_records SET expires_at = now() - interval '1 day' WHERE external_id = 'stale'`)
	require.NoError(t, err)
	_, err = ing.pool.Exec(ctx,
		`INSERT INTO job_records (external_id, source, title, company, expires_at)
		 VALUES ('own', 'platform', 'Engineer', 'Acme', now() - interval '1 day')`)
	require.NoError(t, err)

	expired, err := ing.ExpireStale(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, expired)

	active, err := ing.CountActive(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, active, "fresh and platform records stay active")

	// Re-discovery reopens the closed record.
	again := ing.Ingest(ctx, []model.ExtractedJobData{sampleJob("stale")})
	require.Equal(t, 1, again.Duplicates)
	active, err = ing.CountActive(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, active)
}

func TestNullableHelpers(t *testing.T) {
	if nullableInt(0) != nil {
		t.Error("nullableInt(0) should be nil")
	}
	if nullableInt(5) == nil {
		t.Error("nullableInt(5) should not be nil")
	}
	if nullableString("") != nil {
		t.Error("nullableString(\"\") should be nil")
	}
}
