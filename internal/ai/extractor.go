package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jobpulse/harvester/internal/model"
)

// DefaultBatchSize bounds how many raw postings go into one model call.
const DefaultBatchSize = 10

// ExtractResult is the outcome of one extraction call: whatever batches
// succeeded, plus one error string per failed batch.
type ExtractResult struct {
	Jobs    []model.ExtractedJobData
	Errors  []string
	Success bool
}

// Extractor turns raw postings into the normalized job schema via batched
// model calls followed by deterministic post-processing.
type Extractor struct {
	provider  Provider
	batchSize int
	logger    *slog.Logger
}

// NewExtractor creates an extractor. batchSize <= 0 uses DefaultBatchSize.
func NewExtractor(provider Provider, batchSize int, logger *slog.Logger) *Extractor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Extractor{
		provider:  provider,
		batchSize: batchSize,
		logger:    logger,
	}
}

// rawExtractedJob is the JSON shape the model returns (matches jobListSchema).
type rawExtractedJob struct {
	ExternalID     string   `json:"external_id"`
	Title          string   `json:"title"`
	Company        string   `json:"company"`
	Location       string   `json:"location"`
	RemoteType     string   `json:"remote_type"`
	SalaryMin      int      `json:"salary_min"`
	SalaryMax      int      `json:"salary_max"`
	SalaryCurrency string   `json:"salary_currency"`
	Description    string   `json:"description"`
	Requirements   []string `json:"requirements"`
	Skills         []string `json:"skills"`
	Benefits       []string `json:"benefits"`
	ApplyURL       string   `json:"apply_url"`
}

// jobListEnvelope tolerates both a bare array and the schema's jobs wrapper.
type jobListEnvelope struct {
	Jobs []rawExtractedJob `json:"jobs"`
}

// Extract processes raw postings in fixed-size batches. A batch failure
// (model call error or malformed response) is recorded as one error string
// and does not abort the remaining batches; Success reports whether at
// least one batch produced jobs or the input was empty.
func (e *Extractor) Extract(ctx context.Context, raw []model.RawJobData) ExtractResult {
	result := ExtractResult{}
	if len(raw) == 0 {
		result.Success = true
		return result
	}

	for start := 0; start < len(raw); start += e.batchSize {
		end := start + e.batchSize
		if end > len(raw) {
			end = len(raw)
		}

		jobs, err := e.extractBatch(ctx, raw[start:end])
		if err != nil {
			e.logger.Warn("extraction batch failed", "batch_start", start, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("batch %d-%d: %v", start, end-1, err))
			continue
		}
		result.Jobs = append(result.Jobs, jobs...)
	}

	result.Success = len(result.Jobs) > 0 || len(result.Errors) == 0
	return result
}

func (e *Extractor) extractBatch(ctx context.Context, batch []model.RawJobData) ([]model.ExtractedJobData, error) {
	postings, err := renderPostings(batch)
	if err != nil {
		return nil, err
	}

	var promptBuf bytes.Buffer
	if err := extractJobsTemplate.Execute(&promptBuf, struct{ Postings string }{Postings: postings}); err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	response, err := e.provider.Complete(ctx, promptBuf.String())
	if err != nil {
		return nil, fmt.Errorf("llm complete: %w", err)
	}

	rawJobs, err := parseJobList(response)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	jobs := make([]model.ExtractedJobData, 0, len(rawJobs))
	for _, rj := range rawJobs {
		job, ok := normalizeJob(rj, batch)
		if !ok {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// renderPostings serializes a batch for the prompt. Markup-bearing captures
// pass their HTML through; API captures pass structured fields.
func renderPostings(batch []model.RawJobData) (string, error) {
	type promptPosting struct {
		ExternalID  string `json:"externalId,omitempty"`
		Title       string `json:"title,omitempty"`
		Company     string `json:"company,omitempty"`
		Location    string `json:"location,omitempty"`
		Description string `json:"description,omitempty"`
		SourceURL   string `json:"sourceUrl,omitempty"`
		Markup      string `json:"markup,omitempty"`
	}

	postings := make([]promptPosting, 0, len(batch))
	for _, r := range batch {
		postings = append(postings, promptPosting(r))
	}

	data, err := json.MarshalIndent(postings, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal postings: %w", err)
	}
	return string(data), nil
}

// parseJobList decodes the model response, tolerating either a bare JSON
// array or an object wrapping it in a "jobs" key.
func parseJobList(response string) ([]rawExtractedJob, error) {
	var envelope jobListEnvelope
	if err := json.Unmarshal([]byte(response), &envelope); err == nil && envelope.Jobs != nil {
		return envelope.Jobs, nil
	}

	var bare []rawExtractedJob
	if err := json.Unmarshal([]byte(response), &bare); err != nil {
		return nil, fmt.Errorf("unmarshal job list: %w", err)
	}
	return bare, nil
}

// normalizeJob applies the deterministic post-model rules: drop records with
// neither title nor company, strip HTML from the description, derive the
// work arrangement from keywords, and let the salary regex override the
// model's numbers when a range is present in the text.
func normalizeJob(rj rawExtractedJob, batch []model.RawJobData) (model.ExtractedJobData, bool) {
	if rj.Title == "" && rj.Company == "" {
		return model.ExtractedJobData{}, false
	}

	description := stripHTML(rj.Description)

	job := model.ExtractedJobData{
		ExternalID:     rj.ExternalID,
		Title:          stripHTML(rj.Title),
		Company:        rj.Company,
		Location:       rj.Location,
		RemoteType:     deriveRemoteType(rj.Location, description),
		SalaryMin:      rj.SalaryMin,
		SalaryMax:      rj.SalaryMax,
		SalaryCurrency: rj.SalaryCurrency,
		Description:    description,
		Requirements:   rj.Requirements,
		Skills:         rj.Skills,
		Benefits:       rj.Benefits,
		ApplyURL:       rj.ApplyURL,
		Confidence:     0.8,
	}

	if min, max, ok := parseSalaryRange(description); ok {
		job.SalaryMin = min
		job.SalaryMax = max
		if job.SalaryCurrency == "" {
			job.SalaryCurrency = "USD"
		}
	}

	if job.ApplyURL == "" {
		job.ApplyURL = sourceURLFor(rj, batch)
	}
	if job.ExternalID == "" {
		job.ExternalID = fallbackExternalID(job.Title, job.Company, job.ApplyURL)
	}
	return job, true
}

// sourceURLFor recovers a source URL from the input batch when the model
// did not echo one: exact external-id match first, else the batch's single
// markup capture.
func sourceURLFor(rj rawExtractedJob, batch []model.RawJobData) string {
	for _, r := range batch {
		if rj.ExternalID != "" && r.ExternalID == rj.ExternalID {
			return r.SourceURL
		}
	}
	if len(batch) == 1 {
		return batch[0].SourceURL
	}
	return ""
}
