package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/skillsift/skillsift/internal/model"
)

type fakeSource struct {
	mu      sync.Mutex
	fetched []Query
	fail    map[string]bool // by site
}

func (f *fakeSource) Fetch(_ context.Context, q Query) ([]model.RawPosting, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, q)
	f.mu.Unlock()
	if f.fail[q.Site] {
		return nil, errors.New("site unreachable")
	}
	return []model.RawPosting{{Site: q.Site, ID: q.Site + "-1", Title: "Engineer"}}, nil
}

func TestGatherAggregatesAcrossQueries(t *testing.T) {
	src := &fakeSource{}
	g := New(Config{Source: src, Workers: 4})

	queries := Expand([]string{"indeed", "linkedin", "glassdoor"}, []string{"software engineer"}, []string{"San Francisco, CA"}, 20, 72)
	result, err := g.Gather(context.Background(), queries)
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(result.Postings) != 3 {
		t.Fatalf("expected 3 postings, got %d", len(result.Postings))
	}
	if len(src.fetched) != 3 {
		t.Errorf("expected 3 fetches, got %d", len(src.fetched))
	}
}

func TestGatherIsolatesQueryFailures(t *testing.T) {
	src := &fakeSource{fail: map[string]bool{"linkedin": true}}
	g := New(Config{Source: src, Workers: 2})

	queries := Expand([]string{"indeed", "linkedin", "glassdoor"}, []string{"software engineer"}, []string{"San Francisco, CA"}, 20, 72)
	result, err := g.Gather(context.Background(), queries)
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if result.Failed != 1 {
		t.Errorf("expected 1 failed query, got %d", result.Failed)
	}
	if len(result.Postings) != 2 {
		t.Errorf("expected 2 postings from the surviving queries, got %d", len(result.Postings))
	}
}

func TestExpandCrossProduct(t *testing.T) {
	queries := Expand([]string{"indeed", "google"}, []string{"go developer", "data engineer"}, []string{"NYC", "Austin, TX"}, 10, 24)
	if len(queries) != 8 {
		t.Fatalf("expected 8 queries, got %d", len(queries))
	}
	q := queries[0]
	if q.ResultsWanted != 10 || q.HoursOld != 24 {
		t.Errorf("query limits not propagated: %+v", q)
	}
}

func TestHTTPSourceFetch(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"site":           r.URL.Query().Get("site"),
			"search_term":    r.URL.Query().Get("search_term"),
			"location":       r.URL.Query().Get("location"),
			"results_wanted": r.URL.Query().Get("results_wanted"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"site": "indeed", "id": "1", "title": "Go Engineer", "company": "Acme", "min_amount": 150000},
			{"site": "indeed", "id": "2", "title": "Backend Engineer", "company": null, "description": null}
		]`))
	}))
	defer srv.Close()

	src, err := NewHTTPSource(HTTPSourceConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTPSource failed: %v", err)
	}

	postings, err := src.Fetch(context.Background(), Query{
		Site: "indeed", SearchTerm: "software engineer", Location: "San Francisco, CA",
		ResultsWanted: 20, HoursOld: 72,
	})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(postings) != 2 {
		t.Fatalf("expected 2 postings, got %d", len(postings))
	}
	if postings[0].Company != "Acme" || postings[0].MinAmount != 150000 {
		t.Errorf("fields not decoded: %+v", postings[0])
	}
	if postings[1].Company != "" {
		t.Errorf("null company must decode to empty, got %q", postings[1].Company)
	}

	if gotQuery["site"] != "indeed" || gotQuery["search_term"] != "software engineer" {
		t.Errorf("query params not sent: %v", gotQuery)
	}
	if gotQuery["results_wanted"] != "20" {
		t.Errorf("results_wanted not sent: %v", gotQuery)
	}
}

func TestHTTPSourceSkipsInvalidRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"site": "indeed", "id": "1", "title": "Go Engineer"},
			{"site": "indeed", "title": "missing id"},
			{"site": "", "id": "3", "title": "empty site"}
		]`))
	}))
	defer srv.Close()

	src, err := NewHTTPSource(HTTPSourceConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTPSource failed: %v", err)
	}

	postings, err := src.Fetch(context.Background(), Query{Site: "indeed"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(postings) != 1 {
		t.Fatalf("expected 1 valid posting, got %d", len(postings))
	}
	if postings[0].ID != "1" {
		t.Errorf("wrong posting kept: %+v", postings[0])
	}
}

func TestHTTPSourceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "scraper crashed"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	src, err := NewHTTPSource(HTTPSourceConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTPSource failed: %v", err)
	}

	if _, err := src.Fetch(context.Background(), Query{Site: "indeed"}); err == nil {
		t.Fatal("expected error on 500 response")
	}
}
