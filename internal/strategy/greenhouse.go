package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jobpulse/harvester/internal/model"
)

const greenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"

// greenhouseJob represents a single job in the Greenhouse API response.
type greenhouseJob struct {
	ID          int64              `json:"id"`
	Title       string             `json:"title"`
	Location    greenhouseLocation `json:"location"`
	Content     string             `json:"content"`
	AbsoluteURL string             `json:"absolute_url"`
	UpdatedAt   string             `json:"updated_at"`
}

type greenhouseLocation struct {
	Name string `json:"name"`
}

// greenhouseResponse is the top-level Greenhouse jobs API response.
type greenhouseResponse struct {
	Jobs []greenhouseJob `json:"jobs"`
}

// GreenhouseStrategy fetches postings from the Greenhouse public boards API.
type GreenhouseStrategy struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewGreenhouseStrategy creates the Greenhouse API strategy.
func NewGreenhouseStrategy(client *http.Client, logger *slog.Logger) *GreenhouseStrategy {
	return &GreenhouseStrategy{
		baseURL: greenhouseBaseURL,
		client:  client,
		logger:  logger,
	}
}

func (s *GreenhouseStrategy) Name() string { return "greenhouse-api" }

// Fetch retrieves all postings from the company's Greenhouse board and maps
// them into RawJobData. The content parameter asks the API to inline job
// descriptions so the extraction step has text to work with.
func (s *GreenhouseStrategy) Fetch(ctx context.Context, unit model.WorkUnit) ([]model.RawJobData, error) {
	if unit.SystemID == "" {
		s.logger.Warn("greenhouse strategy skipped, no board token", "company", unit.CompanyName)
		return nil, nil
	}
	url := fmt.Sprintf("%s/%s/jobs?content=true", s.baseURL, unit.SystemID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("greenhouse fetch for %s: %w", unit.SystemID, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("greenhouse fetch for %s: %w", unit.SystemID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("greenhouse returned non-OK status",
			"board", unit.SystemID,
			"status", resp.StatusCode,
			"retry_after", parseRetryAfter(resp.Header.Get("Retry-After")),
		)
		return nil, nil
	}

	var ghResp greenhouseResponse
	if err := json.NewDecoder(resp.Body).Decode(&ghResp); err != nil {
		return nil, fmt.Errorf("greenhouse fetch for %s: %w", unit.SystemID, err)
	}

	raw := make([]model.RawJobData, 0, len(ghResp.Jobs))
	for _, gj := range ghResp.Jobs {
		raw = append(raw, model.RawJobData{
			ExternalID:  fmt.Sprintf("%d", gj.ID),
			Title:       gj.Title,
			Company:     unit.CompanyName,
			Location:    gj.Location.Name,
			Description: gj.Content,
			SourceURL:   gj.AbsoluteURL,
		})
	}
	return raw, nil
}
