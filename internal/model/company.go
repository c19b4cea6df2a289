package model

import (
	"strings"
	"time"
	"unicode"
)

// ListingSystem identifies the third-party application a company uses to
// publish job postings. Closed set; adding a system means adding a constant
// here and registering a strategy for it.
type ListingSystem string

const (
	SystemGreenhouse      ListingSystem = "greenhouse"
	SystemLever           ListingSystem = "lever"
	SystemAshby           ListingSystem = "ashby"
	SystemSmartRecruiters ListingSystem = "smartrecruiters"
	SystemWorkable        ListingSystem = "workable"
	SystemCustom          ListingSystem = "custom"
	SystemUnknown         ListingSystem = "unknown"
)

// APIAvailable reports whether the system exposes a public read API that a
// dedicated strategy can call without credentials.
func (s ListingSystem) APIAvailable() bool {
	switch s {
	case SystemGreenhouse, SystemLever, SystemAshby, SystemSmartRecruiters:
		return true
	default:
		return false
	}
}

// Provenance records how a company entered the catalog.
type Provenance string

const (
	ProvenanceCurated      Provenance = "curated"
	ProvenanceDiscovered   Provenance = "discovered"
	ProvenanceReclassified Provenance = "reclassified"
)

// DiscoveredCompany is one employer in the catalog: where its career page
// lives and what we currently believe serves it. Rows are never deleted;
// classification may re-tag them over time.
type DiscoveredCompany struct {
	Name           string
	NormalizedName string // unique key
	CareerURL      string
	System         ListingSystem
	SystemID       string // board token / site slug, when the system encodes one
	Provenance     Provenance
	Confidence     float64 // in [0,1]
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NormalizeCompanyName lowercases, strips punctuation, and collapses
// whitespace so "Acme, Inc." and "acme inc" key the same catalog row.
func NormalizeCompanyName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
