package model

import (
	"time"
)

// Priority orders work units for dispatch. Lower numbers dispatch first.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityNormal Priority = 5
	PriorityLow    Priority = 9
)

// WorkUnit is one scheduled scrape attempt for one company. It is the queue
// payload, serialized as JSON, and is consumed exactly once per attempt.
type WorkUnit struct {
	ID          string        `json:"id"`
	CompanyName string        `json:"companyName"`
	CareerURL   string        `json:"careerUrl"`
	System      ListingSystem `json:"system"`
	SystemID    string        `json:"systemId,omitempty"`
	Priority    Priority      `json:"priority"`
	Attempt     int           `json:"attempt"`
}

// RawJobData is an unstructured capture of one posting, alive only between a
// strategy call and the extraction step.
type RawJobData struct {
	ExternalID  string
	Title       string
	Company     string
	Location    string
	Description string
	SourceURL   string
	Markup      string // truncated raw HTML, set only by the HTML strategy
}

// RemoteType is the closed work-arrangement tag derived during extraction.
type RemoteType string

const (
	RemoteTypeRemote  RemoteType = "remote"
	RemoteTypeHybrid  RemoteType = "hybrid"
	RemoteTypeOnsite  RemoteType = "onsite"
	RemoteTypeUnknown RemoteType = "unknown"
)

// ExtractedJobData is the normalized output of the AI extraction pipeline.
// Immutable once produced.
type ExtractedJobData struct {
	ExternalID     string        `json:"externalId"`
	Title          string        `json:"title"`
	Company        string        `json:"company"`
	Location       string        `json:"location"`
	RemoteType     RemoteType    `json:"remoteType"`
	SalaryMin      int           `json:"salaryMin,omitempty"`
	SalaryMax      int           `json:"salaryMax,omitempty"`
	SalaryCurrency string        `json:"salaryCurrency,omitempty"`
	Description    string        `json:"description"`
	Requirements   []string      `json:"requirements,omitempty"`
	Skills         []string      `json:"skills,omitempty"`
	Benefits       []string      `json:"benefits,omitempty"`
	ApplyURL       string        `json:"applyUrl"`
	Source         ListingSystem `json:"source"`
	Confidence     float64       `json:"confidence"`
}

// JobStatus is the liveness state of a persisted record.
type JobStatus string

const (
	JobStatusActive  JobStatus = "active"
	JobStatusExpired JobStatus = "expired"
)

// JobRecord is the durable entity the ingestion layer writes. At most one
// active row exists per (ExternalID, Source) pair.
type JobRecord struct {
	ID         int64
	ExtractedJobData
	TrustScore  float64
	Status      JobStatus
	ExpiresAt   time.Time
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}
