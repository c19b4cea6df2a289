// Package ingest is the persistence boundary: it upserts extracted job
// records into Postgres keyed by (external_id, source), serializing
// concurrent ingestions of the same listing through row locks so exactly
// one insert wins.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jobpulse/harvester/internal/model"
)

// recordTTL is how long a record stays live without being re-discovered.
const recordTTL = 60 * 24 * time.Hour

// sourceTrustScores is the static reputation table. API-backed systems are
// precise; scraped or unclassified sources less so.
var sourceTrustScores = map[model.ListingSystem]float64{
	model.SystemGreenhouse:      0.9,
	model.SystemLever:           0.9,
	model.SystemAshby:           0.9,
	model.SystemSmartRecruiters: 0.9,
	model.SystemWorkable:        0.8,
	model.SystemCustom:          0.5,
	model.SystemUnknown:         0.3,
}

// TrustScoreFor returns the static reputation for a source.
func TrustScoreFor(source model.ListingSystem) float64 {
	if score, ok := sourceTrustScores[source]; ok {
		return score
	}
	return sourceTrustScores[model.SystemUnknown]
}

// Result summarizes one Ingest call.
type Result struct {
	Inserted   int
	Duplicates int
	Errors     []string
}

// Ingestor writes job records through a pgx pool.
type Ingestor struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates an ingestor on pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Ingestor {
	return &Ingestor{pool: pool, logger: logger}
}

// Migrate ensures the job_records table and its uniqueness constraint exist.
func (i *Ingestor) Migrate(ctx context.Context) error {
	_, err := i.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS job_records (
			id              BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			external_id     TEXT NOT NULL,
			source          TEXT NOT NULL,
			title           TEXT NOT NULL,
			company         TEXT NOT NULL,
			location        TEXT NOT NULL DEFAULT '',
			remote_type     TEXT NOT NULL DEFAULT 'unknown',
			salary_min      INTEGER,
			salary_max      INTEGER,
			salary_currency TEXT,
			description     TEXT NOT NULL DEFAULT '',
			requirements    TEXT[] NOT NULL DEFAULT '{}',
			skills          TEXT[] NOT NULL DEFAULT '{}',
			benefits        TEXT[] NOT NULL DEFAULT '{}',
			apply_url       TEXT NOT NULL DEFAULT '',
			confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
			trust_score     DOUBLE PRECISION NOT NULL DEFAULT 0,
			status          TEXT NOT NULL DEFAULT 'active',
			expires_at      TIMESTAMPTZ NOT NULL,
			first_seen_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_seen_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (external_id, source)
		)`)
	if err != nil {
		return fmt.Errorf("migrate job_records: %w", err)
	}
	return nil
}

// Ingest upserts each job in its own transaction. A duplicate is not an
// error: it refreshes the existing row's liveness. Per-job failures are
// recorded and do not abort the batch.
func (i *Ingestor) Ingest(ctx context.Context, jobs []model.ExtractedJobData) Result {
	var result Result
	for _, job := range jobs {
		inserted, err := i.ingestOne(ctx, job)
		if err != nil {
			i.logger.Warn("job ingest failed",
				"external_id", job.ExternalID,
				"source", job.Source,
				"error", err,
			)
			result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: %v", job.Source, job.ExternalID, err))
			continue
		}
		if inserted {
			result.Inserted++
		} else {
			result.Duplicates++
		}
	}
	return result
}

// ingestOne runs the locking upsert for a single job. The SKIP LOCKED read
// lets a transaction holding the row finish its refresh without blocking
// us; the conflict-aware insert then guarantees that of any concurrent
// ingestions for the same (external_id, source) exactly one observes an
// insert and the rest observe an update.
func (i *Ingestor) ingestOne(ctx context.Context, job model.ExtractedJobData) (inserted bool, err error) {
	if job.ExternalID == "" || job.Source == "" {
		return false, fmt.Errorf("missing external id or source")
	}

	tx, err := i.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var existingID int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM job_records
		 WHERE external_id = $1 AND source = $2
		 FOR UPDATE SKIP LOCKED`,
		job.ExternalID, string(job.Source),
	).Scan(&existingID)

	switch {
	case err == nil:
		// Known listing: refresh liveness only.
		_, err = tx.Exec(ctx,
			`UPDATE job_records
			 SET status = 'active', last_seen_at = now(), expires_at = $2
			 WHERE id = $1`,
			existingID, time.Now().Add(recordTTL))
		if err != nil {
			return false, fmt.Errorf("refresh: %w", err)
		}
		inserted = false

	case err == pgx.ErrNoRows:
		// Unseen or concurrently-locked listing. The ON CONFLICT clause
		// resolves the race; xmax = 0 distinguishes a genuine insert from a
		// conflict-turned-update.
		err = tx.QueryRow(ctx,
			`INSERT INTO job_records
				(external_id, source, title, company, location, remote_type,
				 salary_min, salary_max, salary_currency, description,
				 requirements, skills, benefits, apply_url, confidence,
				 trust_score, status, expires_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 'active', $17)
			 ON CONFLICT (external_id, source) DO UPDATE
				SET status = 'active', last_seen_at = now(), expires_at = EXCLUDED.expires_at
			 RETURNING (xmax = 0)`,
			job.ExternalID, string(job.Source), job.Title, job.Company,
			job.Location, string(job.RemoteType),
			nullableInt(job.SalaryMin), nullableInt(job.SalaryMax),
			nullableString(job.SalaryCurrency), job.Description,
			job.Requirements, job.Skills, job.Benefits, job.ApplyURL,
			job.Confidence, TrustScoreFor(job.Source),
			time.Now().Add(recordTTL),
		).Scan(&inserted)
		if err != nil {
			return false, fmt.Errorf("insert: %w", err)
		}

	default:
		return false, fmt.Errorf("lookup: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// ExpireStale closes active rows past their expiration. Records sourced
// from the platform itself are exempt; everything scraped or API-fetched
// goes stale when it stops being re-discovered. Rows are closed, never
// deleted.
func (i *Ingestor) ExpireStale(ctx context.Context) (int64, error) {
	tag, err := i.pool.Exec(ctx,
		`UPDATE job_records
		 SET status = 'expired'
		 WHERE status = 'active' AND expires_at < now() AND source <> 'platform'`)
	if err != nil {
		return 0, fmt.Errorf("expire stale records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountActive returns the number of live records, used in run summaries.
func (i *Ingestor) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := i.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM job_records WHERE status = 'active'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active records: %w", err)
	}
	return n, nil
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
