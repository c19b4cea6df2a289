package catalog

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/jobpulse/harvester/internal/model"
)

// Catalog is the SQLite-backed registry of known employers and what we
// believe serves their career pages. Rows are keyed by normalized name and
// are never deleted, only re-tagged as classification improves.
type Catalog struct {
	db *sql.DB
}

// Open opens (or creates) the catalog database at dbPath and ensures the
// companies table exists.
func Open(dbPath string) (*Catalog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening catalog db: %w", err)
	}

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging catalog db: %w", err)
	}

	createTable := `CREATE TABLE IF NOT EXISTS companies (
		normalized_name TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		career_url      TEXT NOT NULL DEFAULT '',
		system          TEXT NOT NULL DEFAULT 'unknown',
		system_id       TEXT NOT NULL DEFAULT '',
		provenance      TEXT NOT NULL DEFAULT 'discovered',
		confidence      REAL NOT NULL DEFAULT 0,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating companies table: %w", err)
	}

	return &Catalog{db: db}, nil
}

// List returns all companies ordered by descending confidence.
func (c *Catalog) List(ctx context.Context) ([]model.DiscoveredCompany, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT normalized_name, name, career_url, system, system_id, provenance, confidence, created_at, updated_at
		 FROM companies ORDER BY confidence DESC, normalized_name`)
	if err != nil {
		return nil, fmt.Errorf("listing companies: %w", err)
	}
	defer rows.Close()

	var companies []model.DiscoveredCompany
	for rows.Next() {
		var dc model.DiscoveredCompany
		var system, provenance string
		if err := rows.Scan(&dc.NormalizedName, &dc.Name, &dc.CareerURL, &system,
			&dc.SystemID, &provenance, &dc.Confidence, &dc.CreatedAt, &dc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning company row: %w", err)
		}
		dc.System = model.ListingSystem(system)
		dc.Provenance = model.Provenance(provenance)
		companies = append(companies, dc)
	}
	return companies, rows.Err()
}

// Get returns the company stored under the normalized form of name, or
// sql.ErrNoRows if absent.
func (c *Catalog) Get(ctx context.Context, name string) (model.DiscoveredCompany, error) {
	var dc model.DiscoveredCompany
	var system, provenance string
	err := c.db.QueryRowContext(ctx,
		`SELECT normalized_name, name, career_url, system, system_id, provenance, confidence, created_at, updated_at
		 FROM companies WHERE normalized_name = ?`, model.NormalizeCompanyName(name)).
		Scan(&dc.NormalizedName, &dc.Name, &dc.CareerURL, &system,
			&dc.SystemID, &provenance, &dc.Confidence, &dc.CreatedAt, &dc.UpdatedAt)
	if err != nil {
		return model.DiscoveredCompany{}, err
	}
	dc.System = model.ListingSystem(system)
	dc.Provenance = model.Provenance(provenance)
	return dc, nil
}

// Add upserts a company by normalized name. A lower-confidence write never
// overwrites a higher-confidence row's classification: in that case only a
// blank career URL is filled in and the row is otherwise left alone.
func (c *Catalog) Add(ctx context.Context, dc model.DiscoveredCompany) error {
	if dc.NormalizedName == "" {
		dc.NormalizedName = model.NormalizeCompanyName(dc.Name)
	}
	if dc.NormalizedName == "" {
		return fmt.Errorf("adding company: empty name")
	}
	if dc.System == "" {
		dc.System = model.SystemUnknown
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO companies (normalized_name, name, career_url, system, system_id, provenance, confidence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(normalized_name) DO UPDATE SET
			name       = CASE WHEN excluded.confidence >= companies.confidence THEN excluded.name ELSE companies.name END,
			career_url = CASE WHEN companies.career_url = '' THEN excluded.career_url
			                  WHEN excluded.confidence >= companies.confidence AND excluded.career_url <> '' THEN excluded.career_url
			                  ELSE companies.career_url END,
			system     = CASE WHEN excluded.confidence >= companies.confidence THEN excluded.system ELSE companies.system END,
			system_id  = CASE WHEN excluded.confidence >= companies.confidence THEN excluded.system_id ELSE companies.system_id END,
			provenance = CASE WHEN excluded.confidence >= companies.confidence THEN excluded.provenance ELSE companies.provenance END,
			confidence = MAX(companies.confidence, excluded.confidence),
			updated_at = CURRENT_TIMESTAMP`,
		dc.NormalizedName, dc.Name, dc.CareerURL, string(dc.System), dc.SystemID,
		string(dc.Provenance), dc.Confidence)
	if err != nil {
		return fmt.Errorf("adding company %s: %w", dc.NormalizedName, err)
	}
	return nil
}

// Retag updates a company's listing-system classification in place. Used by
// the orchestrator when the classifier reaches a more confident answer than
// the stored one.
func (c *Catalog) Retag(ctx context.Context, name string, system model.ListingSystem, systemID string, confidence float64) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE companies
		 SET system = ?, system_id = ?, confidence = ?, provenance = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE normalized_name = ? AND confidence < ?`,
		string(system), systemID, confidence, string(model.ProvenanceReclassified),
		model.NormalizeCompanyName(name), confidence)
	if err != nil {
		return fmt.Errorf("retagging company %s: %w", name, err)
	}
	return nil
}

// Count returns the number of cataloged companies.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM companies").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting companies: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}
