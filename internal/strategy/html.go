package strategy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/jobpulse/harvester/internal/model"
)

// maxMarkupBytes caps the raw HTML handed to the AI extraction step so a
// single page cannot blow up prompt size.
const maxMarkupBytes = 50 * 1024

var (
	scriptRegex = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRegex  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
)

// HTMLStrategy is the last-resort capture path: fetch the career page and
// hand the truncated markup to AI extraction. Used for custom sites and for
// systems whose API path yielded nothing.
type HTMLStrategy struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// NewHTMLStrategy creates the generic HTML capture strategy. The client
// should carry the hard fetch timeout.
func NewHTMLStrategy(client *http.Client, userAgent string, logger *slog.Logger) *HTMLStrategy {
	return &HTMLStrategy{
		client:    client,
		userAgent: userAgent,
		logger:    logger,
	}
}

func (s *HTMLStrategy) Name() string { return "html-capture" }

// Fetch downloads the career page and returns a single RawJobData carrying
// the cleaned, truncated markup for the extraction step.
func (s *HTMLStrategy) Fetch(ctx context.Context, unit model.WorkUnit) ([]model.RawJobData, error) {
	if unit.CareerURL == "" {
		s.logger.Warn("html strategy skipped, no career url", "company", unit.CompanyName)
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, unit.CareerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("html fetch for %s: %w", unit.CompanyName, err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("html fetch for %s: %w", unit.CompanyName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("career page returned non-OK status",
			"company", unit.CompanyName,
			"url", unit.CareerURL,
			"status", resp.StatusCode,
		)
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("html fetch for %s: %w", unit.CompanyName, err)
	}

	markup := TrimMarkup(string(body))
	if markup == "" {
		return nil, nil
	}

	return []model.RawJobData{{
		Company:   unit.CompanyName,
		SourceURL: unit.CareerURL,
		Markup:    markup,
	}}, nil
}

// TrimMarkup strips script and style blocks and truncates the result to
// maxMarkupBytes. Pure function.
func TrimMarkup(html string) string {
	cleaned := scriptRegex.ReplaceAllString(html, "")
	cleaned = styleRegex.ReplaceAllString(cleaned, "")
	if len(cleaned) > maxMarkupBytes {
		cleaned = cleaned[:maxMarkupBytes]
	}
	return cleaned
}
