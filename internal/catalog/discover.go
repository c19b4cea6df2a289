package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/jobpulse/harvester/internal/model"
)

const (
	discoveredConfidence = 0.2
	maxDiscoveryBody     = 512 * 1024
)

var (
	anchorRegex  = regexp.MustCompile(`(?is)<a[^>]*>(.*?)</a>`)
	headingRegex = regexp.MustCompile(`(?is)<h[23][^>]*>(.*?)</h[23]>`)
	tagRegex     = regexp.MustCompile(`<[^>]*>`)
)

// Words that mark an anchor/heading as navigation rather than an employer name.
var nameStopwords = []string{
	"home", "about", "contact", "login", "sign up", "sign in", "privacy",
	"terms", "blog", "next", "previous", "more", "jobs", "careers", "search",
	"read", "cookie", "subscribe", "menu", "faq",
}

// Discoverer grows the catalog from external listing pages (e.g. "top
// startups hiring" roundups) by heuristically extracting employer names.
type Discoverer struct {
	catalog   *Catalog
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// NewDiscoverer creates a discoverer that writes candidates into catalog.
func NewDiscoverer(catalog *Catalog, client *http.Client, userAgent string, logger *slog.Logger) *Discoverer {
	return &Discoverer{
		catalog:   catalog,
		client:    client,
		userAgent: userAgent,
		logger:    logger,
	}
}

// Discover fetches sourceURL, extracts candidate employer names, and adds
// each to the catalog with low confidence and an unknown listing system,
// pending classification. Returns the candidates it added.
func (d *Discoverer) Discover(ctx context.Context, sourceURL string) ([]model.DiscoveredCompany, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", sourceURL, err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.HTTPError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("discover %s: unexpected status %d", sourceURL, resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDiscoveryBody))
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", sourceURL, err)
	}

	names := ExtractCandidateNames(string(body))

	var added []model.DiscoveredCompany
	for _, name := range names {
		dc := model.DiscoveredCompany{
			Name:       name,
			System:     model.SystemUnknown,
			Provenance: model.ProvenanceDiscovered,
			Confidence: discoveredConfidence,
		}
		if err := d.catalog.Add(ctx, dc); err != nil {
			d.logger.Warn("skipping discovered candidate", "name", name, "error", err)
			continue
		}
		added = append(added, dc)
	}

	d.logger.Info("discovery complete",
		"source", sourceURL,
		"candidates", len(names),
		"added", len(added),
	)
	return added, nil
}

// ExtractCandidateNames pulls plausible employer names out of a listing
// page: anchor and h2/h3 text, 2-60 chars, starting with an uppercase letter
// or digit, not matching navigation stopwords. Pure function.
func ExtractCandidateNames(html string) []string {
	seen := make(map[string]bool)
	var names []string

	collect := func(matches [][]string) {
		for _, m := range matches {
			name := cleanCandidate(m[1])
			if name == "" {
				continue
			}
			key := model.NormalizeCompanyName(name)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			names = append(names, name)
		}
	}

	collect(headingRegex.FindAllStringSubmatch(html, -1))
	collect(anchorRegex.FindAllStringSubmatch(html, -1))
	return names
}

func cleanCandidate(fragment string) string {
	text := tagRegex.ReplaceAllString(fragment, "")
	text = strings.Join(strings.Fields(text), " ")

	if len(text) < 2 || len(text) > 60 {
		return ""
	}
	first := rune(text[0])
	if !(first >= 'A' && first <= 'Z') && !(first >= '0' && first <= '9') {
		return ""
	}

	lower := strings.ToLower(text)
	for _, stop := range nameStopwords {
		if lower == stop || strings.HasPrefix(lower, stop+" ") {
			return ""
		}
	}
	// Sentences are not names.
	if strings.Count(text, " ") > 4 || strings.ContainsAny(text, ".!?") {
		return ""
	}
	return text
}
