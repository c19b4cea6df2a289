package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jobpulse/harvester/internal/model"
)

const ashbyBaseURL = "https://api.ashbyhq.com/posting-api/job-board"

// ashbyJob represents a single job in the Ashby job board API response.
type ashbyJob struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Location        string `json:"location"`
	DescriptionHTML string `json:"descriptionHtml"`
	JobURL          string `json:"jobUrl"`
	ApplyURL        string `json:"applyUrl"`
	IsListed        bool   `json:"isListed"`
	IsRemote        bool   `json:"isRemote"`
}

// ashbyResponse is the top-level Ashby job board API response.
type ashbyResponse struct {
	Jobs []ashbyJob `json:"jobs"`
}

// AshbyStrategy fetches postings from the Ashby public job board API.
type AshbyStrategy struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewAshbyStrategy creates the Ashby API strategy.
func NewAshbyStrategy(client *http.Client, logger *slog.Logger) *AshbyStrategy {
	return &AshbyStrategy{
		baseURL: ashbyBaseURL,
		client:  client,
		logger:  logger,
	}
}

func (s *AshbyStrategy) Name() string { return "ashby-api" }

// Fetch retrieves all listed postings from the company's Ashby board and
// maps them into RawJobData. Unlisted postings are skipped.
func (s *AshbyStrategy) Fetch(ctx context.Context, unit model.WorkUnit) ([]model.RawJobData, error) {
	if unit.SystemID == "" {
		s.logger.Warn("ashby strategy skipped, no board name", "company", unit.CompanyName)
		return nil, nil
	}
	url := fmt.Sprintf("%s/%s?includeCompensation=true", s.baseURL, unit.SystemID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ashby fetch for %s: %w", unit.SystemID, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ashby fetch for %s: %w", unit.SystemID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("ashby returned non-OK status",
			"board", unit.SystemID,
			"status", resp.StatusCode,
			"retry_after", parseRetryAfter(resp.Header.Get("Retry-After")),
		)
		return nil, nil
	}

	var ashbyResp ashbyResponse
	if err := json.NewDecoder(resp.Body).Decode(&ashbyResp); err != nil {
		return nil, fmt.Errorf("ashby fetch for %s: %w", unit.SystemID, err)
	}

	raw := make([]model.RawJobData, 0, len(ashbyResp.Jobs))
	for _, aj := range ashbyResp.Jobs {
		if !aj.IsListed {
			continue
		}

		location := aj.Location
		if aj.IsRemote && location == "" {
			location = "Remote"
		}

		externalID := aj.ID
		if externalID == "" {
			externalID = aj.JobURL
		}

		raw = append(raw, model.RawJobData{
			ExternalID:  externalID,
			Title:       aj.Title,
			Company:     unit.CompanyName,
			Location:    location,
			Description: aj.DescriptionHTML,
			SourceURL:   aj.JobURL,
		})
	}
	return raw, nil
}
