package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jobpulse/harvester/internal/model"
)

const (
	smartRecruitersBaseURL  = "https://api.smartrecruiters.com/v1/companies"
	smartRecruitersPageSize = 100
	smartRecruitersMaxPages = 5
)

// srPosting represents a single posting in the SmartRecruiters API response.
type srPosting struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Location srLocation `json:"location"`
	Company  srCompany  `json:"company"`
	Ref      string     `json:"ref"`
}

type srLocation struct {
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
	Remote  bool   `json:"remote"`
}

type srCompany struct {
	Name string `json:"name"`
}

// srResponse is the top-level SmartRecruiters postings response.
type srResponse struct {
	TotalFound int         `json:"totalFound"`
	Content    []srPosting `json:"content"`
}

// SmartRecruitersStrategy fetches postings from the SmartRecruiters public
// postings API, paging until the reported total is covered.
type SmartRecruitersStrategy struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewSmartRecruitersStrategy creates the SmartRecruiters API strategy.
func NewSmartRecruitersStrategy(client *http.Client, logger *slog.Logger) *SmartRecruitersStrategy {
	return &SmartRecruitersStrategy{
		baseURL: smartRecruitersBaseURL,
		client:  client,
		logger:  logger,
	}
}

func (s *SmartRecruitersStrategy) Name() string { return "smartrecruiters-api" }

// Fetch retrieves postings for the company identifier, paging through the
// API up to a fixed page cap.
func (s *SmartRecruitersStrategy) Fetch(ctx context.Context, unit model.WorkUnit) ([]model.RawJobData, error) {
	if unit.SystemID == "" {
		s.logger.Warn("smartrecruiters strategy skipped, no company identifier", "company", unit.CompanyName)
		return nil, nil
	}

	var raw []model.RawJobData
	for page := 0; page < smartRecruitersMaxPages; page++ {
		batch, total, err := s.fetchPage(ctx, unit, page*smartRecruitersPageSize)
		if err != nil {
			return nil, err
		}
		raw = append(raw, batch...)
		if len(raw) >= total || len(batch) == 0 {
			break
		}
	}
	return raw, nil
}

func (s *SmartRecruitersStrategy) fetchPage(ctx context.Context, unit model.WorkUnit, offset int) ([]model.RawJobData, int, error) {
	url := fmt.Sprintf("%s/%s/postings?limit=%d&offset=%d",
		s.baseURL, unit.SystemID, smartRecruitersPageSize, offset)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("smartrecruiters fetch for %s: %w", unit.SystemID, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("smartrecruiters fetch for %s: %w", unit.SystemID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("smartrecruiters returned non-OK status",
			"company", unit.SystemID,
			"status", resp.StatusCode,
			"retry_after", parseRetryAfter(resp.Header.Get("Retry-After")),
		)
		return nil, 0, nil
	}

	var srResp srResponse
	if err := json.NewDecoder(resp.Body).Decode(&srResp); err != nil {
		return nil, 0, fmt.Errorf("smartrecruiters fetch for %s: %w", unit.SystemID, err)
	}

	batch := make([]model.RawJobData, 0, len(srResp.Content))
	for _, p := range srResp.Content {
		batch = append(batch, model.RawJobData{
			ExternalID: p.ID,
			Title:      p.Name,
			Company:    unit.CompanyName,
			Location:   formatSRLocation(p.Location),
			SourceURL:  fmt.Sprintf("https://jobs.smartrecruiters.com/%s/%s", unit.SystemID, p.ID),
		})
	}
	return batch, srResp.TotalFound, nil
}

func formatSRLocation(loc srLocation) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{loc.City, loc.Region, loc.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	s := strings.Join(parts, ", ")
	if loc.Remote {
		if s == "" {
			return "Remote"
		}
		return s + " (Remote)"
	}
	return s
}
