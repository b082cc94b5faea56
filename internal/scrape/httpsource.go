package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/skillsift/skillsift/internal/model"
)

// rawPostingSchema gates records before they are decoded. The scraper
// service emits nulls for fields it could not resolve, so optional fields
// admit null.
const rawPostingSchema = `{
  "type": "object",
  "required": ["site", "id", "title"],
  "properties": {
    "site": {"type": "string", "minLength": 1},
    "id": {"type": "string", "minLength": 1},
    "title": {"type": "string", "minLength": 1},
    "company": {"type": ["string", "null"]},
    "description": {"type": ["string", "null"]},
    "location": {"type": ["string", "null"]},
    "job_url": {"type": ["string", "null"]},
    "min_amount": {"type": ["number", "null"]},
    "max_amount": {"type": ["number", "null"]},
    "interval": {"type": ["string", "null"]},
    "date_posted": {"type": ["string", "null"]}
  }
}`

// HTTPSource fetches postings from the scraper service, which answers a
// query with a JSON array of records.
type HTTPSource struct {
	endpoint string
	client   *http.Client
	schema   *jsonschema.Schema
	logger   *slog.Logger
}

// HTTPSourceConfig configures an HTTPSource.
type HTTPSourceConfig struct {
	Endpoint string
	// HTTPClient overrides the default client, used by tests.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewHTTPSource creates an HTTPSource and compiles the record schema.
func NewHTTPSource(cfg HTTPSourceConfig) (*HTTPSource, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("scrape endpoint is required")
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("raw_posting.json", strings.NewReader(rawPostingSchema)); err != nil {
		return nil, fmt.Errorf("failed to load posting schema: %w", err)
	}
	schema, err := compiler.Compile("raw_posting.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile posting schema: %w", err)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPSource{
		endpoint: cfg.Endpoint,
		client:   client,
		schema:   schema,
		logger:   logger.With("component", "scrape"),
	}, nil
}

// Fetch runs one query against the scraper service. Records that fail
// schema validation are logged and skipped rather than failing the query.
func (s *HTTPSource) Fetch(ctx context.Context, q Query) ([]model.RawPosting, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	params := req.URL.Query()
	params.Set("site", q.Site)
	params.Set("search_term", q.SearchTerm)
	params.Set("location", q.Location)
	if q.ResultsWanted > 0 {
		params.Set("results_wanted", strconv.Itoa(q.ResultsWanted))
	}
	if q.HoursOld > 0 {
		params.Set("hours_old", strconv.Itoa(q.HoursOld))
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scraper request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("scraper returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var records []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode scraper response: %w", err)
	}

	postings := make([]model.RawPosting, 0, len(records))
	for _, rec := range records {
		var doc any
		if err := json.Unmarshal(rec, &doc); err != nil {
			s.logger.Warn("skipping unparseable record", "site", q.Site, "error", err)
			continue
		}
		if err := s.schema.Validate(doc); err != nil {
			s.logger.Warn("skipping invalid record", "site", q.Site, "error", err)
			continue
		}
		var p model.RawPosting
		if err := json.Unmarshal(rec, &p); err != nil {
			s.logger.Warn("skipping undecodable record", "site", q.Site, "error", err)
			continue
		}
		postings = append(postings, p)
	}
	return postings, nil
}
