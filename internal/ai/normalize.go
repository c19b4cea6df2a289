package ai

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/jobpulse/harvester/internal/model"
)

var (
	htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

	// $120,000 - $150,000 / $120k-$150k / $120000 to $150000
	salaryRangeRegex = regexp.MustCompile(`\$\s*([\d,]+(?:\.\d+)?)\s*[kK]?\s*(?:-|–|to)\s*\$?\s*([\d,]+(?:\.\d+)?)\s*[kK]?`)
	kSuffixRegex     = regexp.MustCompile(`\$\s*[\d,]+(?:\.\d+)?\s*[kK]`)

	onsitePhrases = []string{"on-site", "onsite", "on site", "in-office", "in office", "in-person"}
)

// stripHTML converts an HTML or HTML-encoded string to plain text: unescape
// entities, strip tags, collapse whitespace.
func stripHTML(content string) string {
	unescaped := html.UnescapeString(content)
	plain := htmlTagRegex.ReplaceAllString(unescaped, "")
	return strings.Join(strings.Fields(plain), " ")
}

// deriveRemoteType scans the combined location and description text for work
// arrangement keywords. Deterministic; overrides whatever the model said.
// Both remote and hybrid mentioned means hybrid.
func deriveRemoteType(location, description string) model.RemoteType {
	text := strings.ToLower(location + " " + description)

	hasRemote := strings.Contains(text, "remote")
	hasHybrid := strings.Contains(text, "hybrid")

	switch {
	case hasHybrid:
		return model.RemoteTypeHybrid
	case hasRemote:
		return model.RemoteTypeRemote
	}

	for _, phrase := range onsitePhrases {
		if strings.Contains(text, phrase) {
			return model.RemoteTypeOnsite
		}
	}
	return model.RemoteTypeUnknown
}

// parseSalaryRange extracts a "$X - $Y" range from text. The k suffix
// multiplies by 1000. Returns ok=false when no range is present.
func parseSalaryRange(text string) (min, max int, ok bool) {
	m := salaryRangeRegex.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}

	min = parseSalaryNumber(m[1])
	max = parseSalaryNumber(m[2])
	if kSuffixRegex.MatchString(m[0]) {
		if min < 1000 {
			min *= 1000
		}
		if max < 1000 {
			max *= 1000
		}
	}

	if min <= 0 || max < min {
		return 0, 0, false
	}
	return min, max, true
}

func parseSalaryNumber(s string) int {
	s = strings.ReplaceAll(s, ",", "")
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// fallbackExternalID derives a stable identifier for postings whose source
// did not provide one, so dedup still works for HTML-extracted jobs.
func fallbackExternalID(title, company, applyURL string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(title + "|" + company + "|" + applyURL)))
	return hex.EncodeToString(sum[:12])
}
