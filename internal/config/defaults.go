package config

import "time"

// DefaultConfig returns the in-code defaults layered under file and
// environment configuration.
func DefaultConfig() *Config {
	return &Config{
		AWS: AWSConfig{
			Region:       "us-east-1",
			JobsTable:    "skillsift-jobs",
			BatchesTable: "skillsift-batches",
		},
		Mongo: MongoConfig{
			Database:   "jobmarket",
			Collection: "postings",
			SecretName: "mongodb/skillsiftWriter",
		},
		OpenAI: OpenAIConfig{
			APIKey:     "${OPENAI_API_KEY}",
			Model:      "gpt-4o-mini",
			MaxRetries: 3,
		},
		Scrape: ScrapeConfig{
			Sites:         []string{"indeed", "linkedin", "zip_recruiter", "glassdoor", "google"},
			SearchTerms:   []string{"software engineer"},
			Locations:     []string{"San Francisco, CA"},
			ResultsWanted: 20,
			HoursOld:      72,
			Workers:       60,
		},
		Pipeline: PipelineConfig{
			BatchSize:        300,
			ScrapeInterval:   6 * time.Hour,
			DispatchInterval: 15 * time.Minute,
			PollInterval:     time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
