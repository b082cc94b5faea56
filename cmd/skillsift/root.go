package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/skillsift/skillsift/internal/config"
	"github.com/skillsift/skillsift/internal/docstore"
	"github.com/skillsift/skillsift/internal/logging"
	"github.com/skillsift/skillsift/internal/secrets"
	"github.com/skillsift/skillsift/version"
)

var (
	cfgFile      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "skillsift",
	Short: "Job-market skill extraction pipeline",
	Long: `Skillsift scrapes job postings, extracts technical-skill keywords
with LLM batch inference, and serves the reconciled results from a
document store.

The pipeline includes:
  - Multi-site posting acquisition with schema validation
  - Dedup and batch assembly against DynamoDB
  - Asynchronous keyword extraction via the OpenAI Batch API
  - Exactly-once reconciliation into DynamoDB and MongoDB`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.skillsift/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	rootCmd.AddCommand(versionCmd)
}

// loadRuntime loads configuration and sets up logging. The returned
// cleanup flushes the log file and must be deferred.
func loadRuntime() (*config.Config, *slog.Logger, func() error, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, cleanup := logging.Setup(cfg.Log.File, logging.ParseLevel(cfg.Log.Level))
	return cfg, logger, cleanup, nil
}

// connectDocstore resolves the document-store credentials (from config,
// or Secrets Manager when no URI is configured) and connects.
func connectDocstore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*docstore.Store, func(context.Context) error, error) {
	uri := cfg.Mongo.URI
	database := cfg.Mongo.Database
	collection := cfg.Mongo.Collection

	if uri == "" {
		sc, err := secrets.Connect(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, nil, err
		}
		secret, err := sc.MongoSecret(ctx, cfg.Mongo.SecretName)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve document store credentials: %w", err)
		}
		uri = secret.URI
		if secret.Database != "" {
			database = secret.Database
		}
		if secret.Collection != "" {
			collection = secret.Collection
		}
	}

	return docstore.Connect(ctx, uri, database, collection, logger)
}
