package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// skillVocabulary is the curated keyword list checked before any model call.
// Keys are canonical skill names; values are lowercase forms matched against
// whole words, so "rust" does not hit inside "trust".
var skillVocabulary = map[string][]string{
	// Languages
	"Go":         {"golang", "go"},
	"Python":     {"python"},
	"JavaScript": {"javascript", "js"},
	"TypeScript": {"typescript"},
	"Java":       {"java"},
	"Rust":       {"rust"},
	"C++":        {"c++"},
	"Ruby":       {"ruby"},
	"SQL":        {"sql"},
	// Frameworks
	"React":   {"react"},
	"Node.js": {"node.js", "nodejs", "node js"},
	"Django":  {"django"},
	"Rails":   {"rails"},
	"Spring":  {"spring boot", "spring framework"},
	// Data stores
	"PostgreSQL":    {"postgresql", "postgres"},
	"MySQL":         {"mysql"},
	"MongoDB":       {"mongodb", "mongo"},
	"Redis":         {"redis"},
	"Elasticsearch": {"elasticsearch"},
	"Kafka":         {"kafka"},
	// Infrastructure
	"Docker":     {"docker"},
	"Kubernetes": {"kubernetes", "k8s"},
	"AWS":        {"aws", "amazon web services"},
	"GCP":        {"gcp", "google cloud"},
	"Azure":      {"azure"},
	"Terraform":  {"terraform"},
	"CI/CD":      {"ci/cd", "continuous integration"},
	"Linux":      {"linux"},
	// Practices
	"Machine Learning": {"machine learning", "ml engineer"},
	"GraphQL":          {"graphql"},
	"REST":             {"rest api", "restful"},
	"gRPC":             {"grpc"},
	"Agile":            {"agile", "scrum"},
}

// keywordEscalationThreshold: fewer keyword hits than this escalates to a
// model call; the common case stays cheap.
const keywordEscalationThreshold = 3

// MatchSkills runs the curated vocabulary against text and returns canonical
// skill names in deterministic order. Pure function.
func MatchSkills(text string) []string {
	lower := strings.ToLower(text)

	var found []string
	for canonical, forms := range skillVocabulary {
		for _, form := range forms {
			if containsWord(lower, form) {
				found = append(found, canonical)
				break
			}
		}
	}
	sortStrings(found)
	return found
}

// containsWord reports whether form occurs in text bounded by non-word
// characters on both sides. Forms may themselves contain punctuation
// ("c++", "node.js", "ci/cd"); only the characters adjacent to the match
// are checked.
func containsWord(text, form string) bool {
	for start := 0; start <= len(text)-len(form); {
		i := strings.Index(text[start:], form)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(form)
		if (i == 0 || !isWordByte(text[i-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		start = i + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// skillsEnvelope is the JSON shape the model returns for skill extraction.
type skillsEnvelope struct {
	Skills []string `json:"skills"`
}

var codeFenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractSkills finds skills in free text. Keyword matching runs first; the
// model is consulted only when the vocabulary found fewer than 3 skills.
func (e *Extractor) ExtractSkills(ctx context.Context, text string) ([]string, error) {
	matched := MatchSkills(text)
	if len(matched) >= keywordEscalationThreshold {
		return matched, nil
	}

	var promptBuf bytes.Buffer
	if err := extractSkillsTemplate.Execute(&promptBuf, struct{ Text string }{Text: text}); err != nil {
		return matched, fmt.Errorf("render skills prompt: %w", err)
	}

	response, err := e.provider.Complete(ctx, promptBuf.String())
	if err != nil {
		// Keyword results still stand when the model is unreachable.
		return matched, fmt.Errorf("llm complete: %w", err)
	}

	if m := codeFenceRegex.FindStringSubmatch(response); m != nil {
		response = m[1]
	}

	var envelope skillsEnvelope
	if err := json.Unmarshal([]byte(response), &envelope); err != nil {
		return matched, fmt.Errorf("parse skills response: %w", err)
	}

	merged := mergeSkills(matched, envelope.Skills)
	return merged, nil
}

// mergeSkills unions keyword and model results, case-insensitively, keeping
// first-seen casing.
func mergeSkills(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	sortStrings(out)
	return out
}
