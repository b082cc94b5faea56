// Package config loads pipeline configuration from a YAML file, environment
// variables (SKILLSIFT_ prefix), and in-code defaults, in that precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/spf13/viper"
)

// Config is the full pipeline configuration.
type Config struct {
	AWS      AWSConfig      `mapstructure:"aws"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Log      LogConfig      `mapstructure:"log"`
}

// AWSConfig names the region and the two DynamoDB tables.
type AWSConfig struct {
	Region       string `mapstructure:"region"`
	JobsTable    string `mapstructure:"jobs_table"`
	BatchesTable string `mapstructure:"batches_table"`
}

// MongoConfig locates the document store. If URI is empty, SecretName is
// looked up in Secrets Manager instead.
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
	SecretName string `mapstructure:"secret_name"`
}

// OpenAIConfig configures the inference provider client.
type OpenAIConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"` // optional (tests)
	MaxRetries int    `mapstructure:"max_retries"`
}

// ScrapeConfig configures acquisition fan-out.
type ScrapeConfig struct {
	Endpoint      string   `mapstructure:"endpoint"`
	Sites         []string `mapstructure:"sites"`
	SearchTerms   []string `mapstructure:"search_terms"`
	Locations     []string `mapstructure:"locations"`
	ResultsWanted int      `mapstructure:"results_wanted"`
	HoursOld      int      `mapstructure:"hours_old"`
	Workers       int      `mapstructure:"workers"`
}

// PipelineConfig holds batch sizing and daemon-mode schedules.
type PipelineConfig struct {
	BatchSize        int           `mapstructure:"batch_size"`
	ScrapeInterval   time.Duration `mapstructure:"scrape_interval"`
	DispatchInterval time.Duration `mapstructure:"dispatch_interval"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // JSON log file; empty disables
}

// Load reads configuration from cfgFile (or the default search path when
// empty), layered over environment variables and defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("aws", defaults.AWS)
	v.SetDefault("mongo", defaults.Mongo)
	v.SetDefault("openai", defaults.OpenAI)
	v.SetDefault("scrape", defaults.Scrape)
	v.SetDefault("pipeline", defaults.Pipeline)
	v.SetDefault("log", defaults.Log)

	v.SetEnvPrefix("SKILLSIFT")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.skillsift")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.OpenAI.APIKey = ResolveEnvVars(cfg.OpenAI.APIKey)
	cfg.Mongo.URI = ResolveEnvVars(cfg.Mongo.URI)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks fields every command depends on. Provider and store
// credentials are checked lazily by the commands that need them.
func (c *Config) Validate() error {
	if c.AWS.JobsTable == "" {
		return fmt.Errorf("aws.jobs_table is required")
	}
	if c.AWS.BatchesTable == "" {
		return fmt.Errorf("aws.batches_table is required")
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Scrape.Workers <= 0 {
		return fmt.Errorf("scrape.workers must be positive, got %d", c.Scrape.Workers)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string. Unset variables
// expand to the empty string.
func ResolveEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := envVarPattern.FindStringSubmatch(m)[1]
		return os.Getenv(name)
	})
}
