package ai

import (
	_ "embed"
	"text/template"
)

//go:embed prompts/extract_jobs.md
var extractJobsPromptRaw string

//go:embed prompts/extract_skills.md
var extractSkillsPromptRaw string

// Parsed once at package init; reused on every call.
var (
	extractJobsTemplate   = template.Must(template.New("extract_jobs").Parse(extractJobsPromptRaw))
	extractSkillsTemplate = template.Must(template.New("extract_skills").Parse(extractSkillsPromptRaw))
)
