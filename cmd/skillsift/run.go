package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/skillsift/skillsift/internal/assembler"
	"github.com/skillsift/skillsift/internal/dispatcher"
	"github.com/skillsift/skillsift/internal/poller"
	"github.com/skillsift/skillsift/internal/provider"
	"github.com/skillsift/skillsift/internal/scrape"
	"github.com/skillsift/skillsift/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline on a schedule until interrupted",
	Long: `Run scrape, dispatch, and poll on their configured intervals until
the process receives an interrupt. Each stage also runs once at startup.

Intervals are set by pipeline.scrape_interval, pipeline.dispatch_interval,
and pipeline.poll_interval.`,
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

		asm := assembler.New(assembler.Config{
			Store:     st,
			BatchSize: cfg.Pipeline.BatchSize,
			Logger:    logger,
		})
		disp := dispatcher.New(dispatcher.Config{Store: st, Provider: prov, Logger: logger})
		pol := poller.New(poller.Config{Store: st, Provider: prov, Docs: docs, Logger: logger})

		runScrape := func() {
			gathered, err := gatherer.Gather(ctx, queries)
			if err != nil {
				logger.Error("scrape run aborted", "error", err)
				return
			}
			result, err := asm.Assemble(ctx, gathered.Postings)
			if err != nil {
				logger.Error("assembly failed", "error", err)
				return
			}
			logger.Info("scrape run finished",
				"scraped", len(gathered.Postings), "failed_queries", gathered.Failed,
				"new_postings", result.NewPostings, "groups", len(result.Groups))
		}
		runDispatch := func() {
			summary, err := disp.Run(ctx)
			if err != nil {
				logger.Error("dispatch run failed", "error", err)
				return
			}
			logger.Info("dispatch run finished",
				"dispatched", len(summary.Dispatched), "failed", summary.Failed)
		}
		runPoll := func() {
			summary, err := pol.Run(ctx)
			if err != nil {
				logger.Error("poll run failed", "error", err)
				return
			}
			logger.Info("poll run finished",
				"completed", len(summary.Completed), "partial", len(summary.Partial),
				"retried", summary.Retried, "in_flight", summary.InFlight,
				"deferred", summary.Deferred, "errored", summary.Errored,
				"failed", summary.Failed)
		}

		logger.Info("pipeline started",
			"scrape_interval", cfg.Pipeline.ScrapeInterval,
			"dispatch_interval", cfg.Pipeline.DispatchInterval,
			"poll_interval", cfg.Pipeline.PollInterval)

		runScrape()
		runDispatch()
		runPoll()

		scrapeTick := time.NewTicker(cfg.Pipeline.ScrapeInterval)
		defer scrapeTick.Stop()
		dispatchTick := time.NewTicker(cfg.Pipeline.DispatchInterval)
		defer dispatchTick.Stop()
		pollTick := time.NewTicker(cfg.Pipeline.PollInterval)
		defer pollTick.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("pipeline stopping")
				return nil
			case <-scrapeTick.C:
				runScrape()
			case <-dispatchTick.C:
				runDispatch()
			case <-pollTick.C:
				runPoll()
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
