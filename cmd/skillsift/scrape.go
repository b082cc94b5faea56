package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skillsift/skillsift/internal/assembler"
	"github.com/skillsift/skillsift/internal/scrape"
	"github.com/skillsift/skillsift/internal/store"
)

// scrapeSummary combines the acquisition and assembly results of one run.
type scrapeSummary struct {
	Queries       int               `json:"queries" yaml:"queries"`
	FailedQueries int               `json:"failed_queries" yaml:"failed_queries"`
	Scraped       int               `json:"scraped" yaml:"scraped"`
	Assembly      *assembler.Result `json:"assembly" yaml:"assembly"`
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Acquire postings and assemble them into batches",
	Long: `Scrape the configured sites for job postings, then deduplicate the
results and assemble the new postings into inference batches.

Batches are created in init status; use 'skillsift dispatch' to submit
them to the inference provider.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, logger, cleanup, err := loadRuntime()
		if err != nil {
			return err
		}
		defer cleanup()

		source, err := scrape.NewHTTPSource(scrape.HTTPSourceConfig{
			Endpoint: cfg.Scrape.Endpoint,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		gatherer := scrape.New(scrape.Config{
			Source:  source,
			Workers: cfg.Scrape.Workers,
			Logger:  logger,
		})

		queries := scrape.Expand(
			cfg.Scrape.Sites, cfg.Scrape.SearchTerms, cfg.Scrape.Locations,
			cfg.Scrape.ResultsWanted, cfg.Scrape.HoursOld,
		)
		gathered, err := gatherer.Gather(ctx, queries)
		if err != nil {
			return fmt.Errorf("failed to gather postings: %w", err)
		}

		st, err := store.Connect(ctx, cfg.AWS.Region, cfg.AWS.JobsTable, cfg.AWS.BatchesTable, logger)
		if err != nil {
			return err
		}
		asm := assembler.New(assembler.Config{
			Store:     st,
			BatchSize: cfg.Pipeline.BatchSize,
			Logger:    logger,
		})
		result, err := asm.Assemble(ctx, gathered.Postings)
		if err != nil {
			return fmt.Errorf("failed to assemble batches: %w", err)
		}

		return writeOutput(&scrapeSummary{
			Queries:       len(queries),
			FailedQueries: gathered.Failed,
			Scraped:       len(gathered.Postings),
			Assembly:      result,
		})
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
}
