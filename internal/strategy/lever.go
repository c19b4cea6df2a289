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

const leverBaseURL = "https://api.lever.co/v0/postings"

// leverCategories represents the categories object in a Lever posting.
type leverCategories struct {
	Team         string   `json:"team"`
	Department   string   `json:"department"`
	Location     string   `json:"location"`
	Commitment   string   `json:"commitment"`
	AllLocations []string `json:"allLocations"`
}

// leverJob represents a single posting in the Lever API response.
type leverJob struct {
	ID               string          `json:"id"`
	Text             string          `json:"text"`
	Description      string          `json:"description"`
	DescriptionPlain string          `json:"descriptionPlain"`
	Categories       leverCategories `json:"categories"`
	WorkplaceType    string          `json:"workplaceType"`
	HostedURL        string          `json:"hostedUrl"`
	ApplyURL         string          `json:"applyUrl"`
}

// LeverStrategy fetches postings from the Lever public postings API.
type LeverStrategy struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewLeverStrategy creates the Lever API strategy.
func NewLeverStrategy(client *http.Client, logger *slog.Logger) *LeverStrategy {
	return &LeverStrategy{
		baseURL: leverBaseURL,
		client:  client,
		logger:  logger,
	}
}

func (s *LeverStrategy) Name() string { return "lever-api" }

// Fetch retrieves all postings for the company's Lever board and maps them
// into RawJobData.
func (s *LeverStrategy) Fetch(ctx context.Context, unit model.WorkUnit) ([]model.RawJobData, error) {
	if unit.SystemID == "" {
		s.logger.Warn("lever strategy skipped, no company slug", "company", unit.CompanyName)
		return nil, nil
	}
	url := fmt.Sprintf("%s/%s?mode=json", s.baseURL, unit.SystemID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("lever fetch for %s: %w", unit.SystemID, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lever fetch for %s: %w", unit.SystemID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("lever returned non-OK status",
			"slug", unit.SystemID,
			"status", resp.StatusCode,
			"retry_after", parseRetryAfter(resp.Header.Get("Retry-After")),
		)
		return nil, nil
	}

	var leverJobs []leverJob
	if err := json.NewDecoder(resp.Body).Decode(&leverJobs); err != nil {
		return nil, fmt.Errorf("lever fetch for %s: %w", unit.SystemID, err)
	}

	raw := make([]model.RawJobData, 0, len(leverJobs))
	for _, lj := range leverJobs {
		// Prefer allLocations when available; single location otherwise.
		location := lj.Categories.Location
		if len(lj.Categories.AllLocations) > 0 {
			location = strings.Join(lj.Categories.AllLocations, ", ")
		}
		if lj.WorkplaceType != "" {
			location = strings.TrimPrefix(location+" ("+lj.WorkplaceType+")", " ")
		}

		description := lj.DescriptionPlain
		if description == "" {
			description = lj.Description
		}

		sourceURL := lj.HostedURL
		if sourceURL == "" {
			sourceURL = lj.ApplyURL
		}

		raw = append(raw, model.RawJobData{
			ExternalID:  lj.ID,
			Title:       lj.Text,
			Company:     unit.CompanyName,
			Location:    location,
			Description: description,
			SourceURL:   sourceURL,
		})
	}
	return raw, nil
}
