package main

import (
	"github.com/spf13/cobra"

	"github.com/skillsift/skillsift/internal/poller"
	"github.com/skillsift/skillsift/internal/provider"
	"github.com/skillsift/skillsift/internal/store"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll outstanding batches and reconcile finished ones",
	Long: `Check every processing batch against the inference provider.
Finished batches have their keyword results applied to the jobs table,
verified, and synced to the document store before the batch is marked
terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, logger, cleanup, err := loadRuntime()
		if err != nil {
			return err
		}
		defer cleanup()

		st, err := store.Connect(ctx, cfg.AWS.Region, cfg.AWS.JobsTable, cfg.AWS.BatchesTable, logger)
		if err != nil {
			return err
		}
		prov := provider.New(provider.Config{
			APIKey:     cfg.OpenAI.APIKey,
			Model:      cfg.OpenAI.Model,
			MaxRetries: cfg.OpenAI.MaxRetries,
			BaseURL:    cfg.OpenAI.BaseURL,
		})
		docs, disconnect, err := connectDocstore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer disconnect(ctx)

		p := poller.New(poller.Config{Store: st, Provider: prov, Docs: docs, Logger: logger})
		summary, err := p.Run(ctx)
		if err != nil {
			return err
		}
		return writeOutput(summary)
	},
}

func init() {
	rootCmd.AddCommand(pollCmd)
}
