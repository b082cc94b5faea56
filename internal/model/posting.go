// Package model defines the core entities shared across the pipeline:
// job postings, batches, and the correlation-id scheme that ties inference
// results back to their originating posting.
package model

import "time"

// Key is the composite identity of a posting: source site + site-local id.
type Key struct {
	Source string
	ID     string
}

// JobPosting is one scraped posting as stored in the jobs table.
// A posting is written once by assembly and mutated exactly once by
// reconciliation, which fills ExtractedKeywords.
type JobPosting struct {
	Source      string  `dynamodbav:"source" json:"source"`
	ID          string  `dynamodbav:"id" json:"id"`
	Title       string  `dynamodbav:"title" json:"title"`
	Company     string  `dynamodbav:"company,omitempty" json:"company,omitempty"`
	Description string  `dynamodbav:"description,omitempty" json:"description,omitempty"`
	Location    string  `dynamodbav:"location,omitempty" json:"location,omitempty"`
	JobURL      string  `dynamodbav:"job_url,omitempty" json:"job_url,omitempty"`
	MinAmount   float64 `dynamodbav:"min_amount,omitempty" json:"min_amount,omitempty"`
	MaxAmount   float64 `dynamodbav:"max_amount,omitempty" json:"max_amount,omitempty"`
	Interval    string  `dynamodbav:"interval,omitempty" json:"interval,omitempty"`
	DatePosted  string  `dynamodbav:"date_posted,omitempty" json:"date_posted,omitempty"`

	// ExtractedKeywords is nil until reconciliation applies the model output.
	ExtractedKeywords []string `dynamodbav:"extracted_keywords,omitempty" json:"extracted_keywords,omitempty"`

	// GroupID names the batch this posting was assigned to at creation.
	// It is never reassigned.
	GroupID   string    `dynamodbav:"group_id" json:"group_id"`
	CreatedAt time.Time `dynamodbav:"created_at" json:"created_at"`
}

// Key returns the posting's composite key.
func (p *JobPosting) Key() Key {
	return Key{Source: p.Source, ID: p.ID}
}

// RawPosting is a posting as produced by an acquisition source, before
// dedup and group assignment. Field names follow the scraper's JSON output.
type RawPosting struct {
	Site        string  `json:"site"`
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Company     string  `json:"company"`
	Description string  `json:"description"`
	Location    string  `json:"location"`
	JobURL      string  `json:"job_url"`
	MinAmount   float64 `json:"min_amount"`
	MaxAmount   float64 `json:"max_amount"`
	Interval    string  `json:"interval"`
	DatePosted  string  `json:"date_posted"`
}

// Posting converts a raw posting into a JobPosting without group assignment.
func (r *RawPosting) Posting() JobPosting {
	return JobPosting{
		Source:      r.Site,
		ID:          r.ID,
		Title:       r.Title,
		Company:     r.Company,
		Description: r.Description,
		Location:    r.Location,
		JobURL:      r.JobURL,
		MinAmount:   r.MinAmount,
		MaxAmount:   r.MaxAmount,
		Interval:    r.Interval,
		DatePosted:  r.DatePosted,
	}
}
