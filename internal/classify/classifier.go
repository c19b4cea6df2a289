// Package classify determines which listing system serves a career page,
// first from the URL shape, then from signature hits in the page body.
package classify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jobpulse/harvester/internal/model"
)

const (
	domainMatchConfidence = 0.95
	customConfidence      = 0.3
	maxBodyBytes          = 1024 * 1024
	signatureDenominator  = 5.0
)

// Result is the classifier's verdict for one career page.
type Result struct {
	System       model.ListingSystem
	SystemID     string
	Confidence   float64
	APIAvailable bool
	Evidence     []string
}

// Classifier resolves career URLs to listing systems.
type Classifier struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// New creates a classifier. The client should carry the hard fetch timeout;
// fetch failures are non-fatal and reported in the Result.
func New(client *http.Client, userAgent string, logger *slog.Logger) *Classifier {
	return &Classifier{
		client:    client,
		userAgent: userAgent,
		logger:    logger,
	}
}

// Classify determines the listing system behind careerURL. If html is empty
// the page is fetched. A fetch failure yields {unknown, confidence 0} with
// the error recorded as evidence; callers treat that as "fall back to AI".
func (c *Classifier) Classify(ctx context.Context, careerURL, html string) Result {
	if system, id, ok := matchDomain(careerURL); ok {
		return Result{
			System:       system,
			SystemID:     id,
			Confidence:   domainMatchConfidence,
			APIAvailable: system.APIAvailable(),
			Evidence:     []string{fmt.Sprintf("domain signature: %s", careerURL)},
		}
	}

	if html == "" {
		fetched, err := c.fetchPage(ctx, careerURL)
		if err != nil {
			c.logger.Warn("classification fetch failed", "url", careerURL, "error", err)
			return Result{
				System:     model.SystemUnknown,
				Confidence: 0,
				Evidence:   []string{fmt.Sprintf("fetch failed: %v", err)},
			}
		}
		html = fetched
	}

	system, hits := scoreSignatures(html)
	if hits > 0 {
		confidence := float64(hits) / signatureDenominator
		if confidence > 1 {
			confidence = 1
		}
		return Result{
			System:       system,
			Confidence:   confidence,
			APIAvailable: system.APIAvailable(),
			Evidence:     []string{fmt.Sprintf("body signatures: %d hits for %s", hits, system)},
		}
	}

	// A page we actually fetched but could not recognize is a custom careers
	// site, not an unknown one.
	return Result{
		System:     model.SystemCustom,
		Confidence: customConfidence,
		Evidence:   []string{"no signatures matched on fetched page"},
	}
}

func (c *Classifier) fetchPage(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("classify fetch %s: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("classify fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &model.HTTPError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("classify fetch %s: unexpected status %d", pageURL, resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("classify fetch %s: %w", pageURL, err)
	}
	return string(body), nil
}
