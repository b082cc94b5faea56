// Package scrape acquires raw job postings. A Gatherer fans a set of
// queries out to a Source over a bounded worker pool; one query's failure
// never discards the others' results.
package scrape

import (
	"context"
	"log/slog"
	"sync"

	"github.com/skillsift/skillsift/internal/model"
)

// Query is one acquisition request: a site searched for one term in one
// location.
type Query struct {
	Site          string
	SearchTerm    string
	Location      string
	ResultsWanted int
	HoursOld      int
}

// Source produces raw postings for a query.
type Source interface {
	Fetch(ctx context.Context, q Query) ([]model.RawPosting, error)
}

// Gatherer runs queries against a source with bounded concurrency.
type Gatherer struct {
	source  Source
	workers int
	logger  *slog.Logger
}

// Config configures a Gatherer.
type Config struct {
	Source  Source
	Workers int
	Logger  *slog.Logger
}

// New creates a Gatherer.
func New(cfg Config) *Gatherer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Gatherer{
		source:  cfg.Source,
		workers: workers,
		logger:  logger.With("component", "scrape"),
	}
}

// Result reports one gather run.
type Result struct {
	Postings []model.RawPosting
	Failed   int // queries that errored
}

// Gather runs every query and aggregates the successes. All workers pull
// from a single shared channel. Returns an error only when the context is
// cancelled; individual query failures are logged and counted.
func (g *Gatherer) Gather(ctx context.Context, queries []Query) (*Result, error) {
	result := &Result{}
	if len(queries) == 0 {
		return result, nil
	}

	workers := min(g.workers, len(queries))
	work := make(chan Query)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for q := range work {
				postings, err := g.source.Fetch(ctx, q)
				if err != nil {
					g.logger.Error("query failed, continuing",
						"site", q.Site, "search_term", q.SearchTerm,
						"location", q.Location, "error", err)
					mu.Lock()
					result.Failed++
					mu.Unlock()
					continue
				}
				g.logger.Debug("query returned",
					"site", q.Site, "search_term", q.SearchTerm, "postings", len(postings))
				mu.Lock()
				result.Postings = append(result.Postings, postings...)
				mu.Unlock()
			}
		}()
	}

	var ctxErr error
feed:
	for _, q := range queries {
		select {
		case work <- q:
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break feed
		}
	}
	close(work)
	wg.Wait()

	if ctxErr != nil {
		return result, ctxErr
	}
	return result, nil
}

// Expand builds the cross product of sites, search terms, and locations.
func Expand(sites, searchTerms, locations []string, resultsWanted, hoursOld int) []Query {
	var queries []Query
	for _, site := range sites {
		for _, term := range searchTerms {
			for _, loc := range locations {
				queries = append(queries, Query{
					Site:          site,
					SearchTerm:    term,
					Location:      loc,
					ResultsWanted: resultsWanted,
					HoursOld:      hoursOld,
				})
			}
		}
	}
	return queries
}
