package main

import (
	"github.com/spf13/cobra"

	"github.com/skillsift/skillsift/internal/dispatcher"
	"github.com/skillsift/skillsift/internal/provider"
	"github.com/skillsift/skillsift/internal/store"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Submit pending batches to the inference provider",
	Long: `Submit every batch in init, retry, or cancelled status to the
inference provider. Retry and cancelled batches resubmit their original
input file; only init batches upload a new one.`,
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

		d := dispatcher.New(dispatcher.Config{Store: st, Provider: prov, Logger: logger})
		summary, err := d.Run(ctx)
		if err != nil {
			return err
		}
		return writeOutput(summary)
	},
}

func init() {
	rootCmd.AddCommand(dispatchCmd)
}
