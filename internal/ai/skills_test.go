package ai

import (
	"context"
	"errors"
	"testing"
)

func TestMatchSkills(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "canonical forms and aliases",
			text: "We use Golang, Postgres and k8s in production.",
			want: []string{"Go", "Kubernetes", "PostgreSQL"},
		},
		{
			name: "case insensitive",
			text: "TERRAFORM and DOCKER experience required",
			want: []string{"Docker", "Terraform"},
		},
		{
			name: "no hits",
			text: "Looking for a friendly barista.",
			want: nil,
		},
		{
			name: "substrings are not hits",
			text: "We build JSON APIs that customers trust.",
			want: nil,
		},
		{
			name: "java does not match javascript",
			text: "Deep JavaScript knowledge required.",
			want: []string{"JavaScript"},
		},
		{
			name: "punctuated forms",
			text: "C++ services with Node.js tooling and CI/CD pipelines.",
			want: []string{"C++", "CI/CD", "JavaScript", "Node.js"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := MatchSkills(tc.text)
			if len(got) != len(tc.want) {
				t.Fatalf("MatchSkills(%q) = %v, want %v", tc.text, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("MatchSkills(%q) = %v, want %v", tc.text, got, tc.want)
				}
			}
		})
	}
}

func TestMatchSkills_Deterministic(t *testing.T) {
	text := "python react redis kafka aws terraform"
	first := MatchSkills(text)
	for i := 0; i < 10; i++ {
		again := MatchSkills(text)
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("order changed between runs: %v vs %v", first, again)
			}
		}
	}
}

func TestExtractSkills_KeywordPathSkipsModel(t *testing.T) {
	provider := &stubProvider{}
	extractor := NewExtractor(provider, 0, discardLogger())

	skills, err := extractor.ExtractSkills(context.Background(),
		"Stack: python, redis, kafka, docker.")
	if err != nil {
		t.Fatalf("ExtractSkills failed: %v", err)
	}
	if provider.calls != 0 {
		t.Errorf("expected no model call with %d keyword hits", len(skills))
	}
	if len(skills) < keywordEscalationThreshold {
		t.Errorf("expected at least %d skills, got %v", keywordEscalationThreshold, skills)
	}
}

func TestExtractSkills_EscalatesAndMerges(t *testing.T) {
	provider := &stubProvider{responses: []string{
		"```json\n{\"skills\": [\"Python\", \"Snowflake\"]}\n```",
	}}
	extractor := NewExtractor(provider, 0, discardLogger())

	skills, err := extractor.ExtractSkills(context.Background(),
		"We need someone comfortable with python and modern data tooling.")
	if err != nil {
		t.Fatalf("ExtractSkills failed: %v", err)
	}
	if provider.calls != 1 {
		t.Fatalf("expected one model call, got %d", provider.calls)
	}

	want := map[string]bool{"Python": false, "Snowflake": false}
	for _, s := range skills {
		if _, ok := want[s]; ok {
			want[s] = true
		}
	}
	for s, seen := range want {
		if !seen {
			t.Errorf("expected %q in merged skills %v", s, skills)
		}
	}
	// Union must not duplicate the keyword hit the model echoed back.
	count := 0
	for _, s := range skills {
		if s == "Python" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected Python exactly once, got %v", skills)
	}
}

func TestExtractSkills_ModelFailureKeepsKeywordResults(t *testing.T) {
	provider := &stubProvider{errs: []error{errors.New("timeout")}}
	extractor := NewExtractor(provider, 0, discardLogger())

	skills, err := extractor.ExtractSkills(context.Background(),
		"Some golang work, mostly maintenance.")
	if err == nil {
		t.Fatal("expected an error when the model is unreachable")
	}
	if len(skills) != 1 || skills[0] != "Go" {
		t.Errorf("expected keyword results to survive, got %v", skills)
	}
}
