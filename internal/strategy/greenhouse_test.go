package strategy

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jobpulse/harvester/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testUnit(system model.ListingSystem, systemID string) model.WorkUnit {
	return model.WorkUnit{
		ID:          "unit-1",
		CompanyName: "Acme Corp",
		CareerURL:   "https://acme.example.com/careers",
		System:      system,
		SystemID:    systemID,
	}
}

func TestGreenhouseFetch_Success(t *testing.T) {
	payload := `{
		"jobs": [
			{
				"id": 12345,
				"title": "Software Engineer",
				"location": {"name": "San Francisco, CA"},
				"content": "&lt;p&gt;Build things.&lt;/p&gt;",
				"absolute_url": "https://boards.greenhouse.io/acme/jobs/12345"
			},
			{
				"id": 67890,
				"title": "Backend Engineer",
				"location": {"name": "Remote, US"},
				"content": "&lt;p&gt;Build servers.&lt;/p&gt;",
				"absolute_url": "https://boards.greenhouse.io/acme/jobs/67890"
			}
		]
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/acme/jobs" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	s := NewGreenhouseStrategy(srv.Client(), discardLogger())
	s.baseURL = srv.URL

	raw, err := s.Fetch(context.Background(), testUnit(model.SystemGreenhouse, "acme"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(raw) != 2 {
		t.Fatalf("expected 2 postings, got %d", len(raw))
	}

	r := raw[0]
	if r.ExternalID != "12345" {
		t.Errorf("ExternalID = %s, want 12345", r.ExternalID)
	}
	if r.Company != "Acme Corp" {
		t.Errorf("Company = %s, want Acme Corp", r.Company)
	}
	if r.Title != "Software Engineer" {
		t.Errorf("Title = %s", r.Title)
	}
	if r.SourceURL != "https://boards.greenhouse.io/acme/jobs/12345" {
		t.Errorf("SourceURL = %s", r.SourceURL)
	}
}

func TestGreenhouseFetch_NonOKReturnsEmpty(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusTooManyRequests, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		s := NewGreenhouseStrategy(srv.Client(), discardLogger())
		s.baseURL = srv.URL

		raw, err := s.Fetch(context.Background(), testUnit(model.SystemGreenhouse, "acme"))
		if err != nil {
			t.Errorf("status %d: expected no error, got %v", status, err)
		}
		if len(raw) != 0 {
			t.Errorf("status %d: expected empty result, got %d", status, len(raw))
		}
		srv.Close()
	}
}

func TestGreenhouseFetch_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not valid json`))
	}))
	defer srv.Close()

	s := NewGreenhouseStrategy(srv.Client(), discardLogger())
	s.baseURL = srv.URL

	if _, err := s.Fetch(context.Background(), testUnit(model.SystemGreenhouse, "acme")); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestGreenhouseFetch_NoBoardToken(t *testing.T) {
	s := NewGreenhouseStrategy(http.DefaultClient, discardLogger())
	raw, err := s.Fetch(context.Background(), testUnit(model.SystemGreenhouse, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw != nil {
		t.Errorf("expected nil result without a board token, got %v", raw)
	}
}
