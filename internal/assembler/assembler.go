// Package assembler turns freshly scraped postings into dedup'd, bounded
// batches ready for dispatch. Each group is written and committed
// independently so one group's failure never corrupts its siblings.
package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/skillsift/skillsift/internal/model"
)

// StateStore is the slice of the store the assembler needs.
type StateStore interface {
	ExistingKeys(ctx context.Context, keys []model.Key) (map[model.Key]struct{}, error)
	BulkWriteJobs(ctx context.Context, postings []model.JobPosting) error
	PutBatch(ctx context.Context, b model.Batch) error
}

// Assembler groups new postings into batches.
type Assembler struct {
	store     StateStore
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

// Config configures an Assembler.
type Config struct {
	Store     StateStore
	BatchSize int
	Logger    *slog.Logger
	Now       func() time.Time // test hook
}

// New creates an Assembler.
func New(cfg Config) *Assembler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 300
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Assembler{
		store:     cfg.Store,
		batchSize: batchSize,
		logger:    logger.With("component", "assembler"),
		now:       now,
	}
}

// Result summarizes one assembly run.
type Result struct {
	Received     int      `json:"received" yaml:"received"`
	DupesInRun   int      `json:"dupes_in_run" yaml:"dupes_in_run"`
	DupesInStore int      `json:"dupes_in_store" yaml:"dupes_in_store"`
	Skipped      int      `json:"skipped" yaml:"skipped"`
	NewPostings  int      `json:"new_postings" yaml:"new_postings"`
	Groups       []string `json:"groups" yaml:"groups"`
	FailedGroups int      `json:"failed_groups" yaml:"failed_groups"`
}

// Assemble dedupes raw postings against this run and the durable store,
// partitions the survivors into groups, and commits each group (postings
// plus an init batch) independently.
func (a *Assembler) Assemble(ctx context.Context, raw []model.RawPosting) (*Result, error) {
	res := &Result{Received: len(raw)}

	// First occurrence wins within the run.
	seen := make(map[model.Key]struct{}, len(raw))
	var candidates []model.JobPosting
	for _, r := range raw {
		if r.ID == "" || r.Title == "" || !model.KnownSource(r.Site) {
			res.Skipped++
			a.logger.Warn("skipping malformed posting", "site", r.Site, "id", r.ID)
			continue
		}
		key := model.Key{Source: r.Site, ID: r.ID}
		if _, dup := seen[key]; dup {
			res.DupesInRun++
			continue
		}
		seen[key] = struct{}{}
		candidates = append(candidates, r.Posting())
	}

	if len(candidates) == 0 {
		a.logger.Info("no viable postings to assemble", "received", len(raw))
		return res, nil
	}

	keys := make([]model.Key, len(candidates))
	for i, p := range candidates {
		keys[i] = p.Key()
	}
	existing, err := a.store.ExistingKeys(ctx, keys)
	if err != nil {
		return res, fmt.Errorf("existence check failed: %w", err)
	}

	var fresh []model.JobPosting
	for _, p := range candidates {
		if _, dup := existing[p.Key()]; dup {
			res.DupesInStore++
			continue
		}
		fresh = append(fresh, p)
	}
	res.NewPostings = len(fresh)

	if len(fresh) == 0 {
		a.logger.Info("all postings already ingested", "candidates", len(candidates))
		return res, nil
	}

	for start := 0; start < len(fresh); start += a.batchSize {
		end := min(start+a.batchSize, len(fresh))
		group := fresh[start:end]

		groupID, err := a.commitGroup(ctx, group)
		if err != nil {
			res.FailedGroups++
			a.logger.Error("failed to commit group", "error", err, "postings", len(group))
			continue
		}
		res.Groups = append(res.Groups, groupID)
	}

	a.logger.Info("assembly complete",
		"received", res.Received,
		"new", res.NewPostings,
		"groups", len(res.Groups),
		"failed_groups", res.FailedGroups)
	return res, nil
}

// commitGroup stamps and writes one group's postings, then creates its
// batch in init. Duplicate posting writes are safe, so a re-run after a
// partial failure converges rather than duplicating.
func (a *Assembler) commitGroup(ctx context.Context, group []model.JobPosting) (string, error) {
	groupID := "grp-" + uuid.New().String()
	createdAt := a.now().UTC()

	for i := range group {
		group[i].GroupID = groupID
		group[i].CreatedAt = createdAt
	}

	if err := a.store.BulkWriteJobs(ctx, group); err != nil {
		return "", fmt.Errorf("writing postings for %s: %w", groupID, err)
	}

	batch := model.Batch{
		GroupID:   groupID,
		CreatedAt: createdAt,
		Status:    model.StatusInit,
		TotalJobs: len(group),
	}
	if err := a.store.PutBatch(ctx, batch); err != nil {
		return "", fmt.Errorf("creating batch %s: %w", groupID, err)
	}

	a.logger.Info("group committed", "group_id", groupID, "postings", len(group))
	return groupID, nil
}
