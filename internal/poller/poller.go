// Package poller drives batches out of processing. It is the only
// component that reads provider job state, and the only one that writes a
// terminal status. Reconciliation is idempotent end to end: every write is
// either conditional or safe to repeat, so a crash mid-reconcile leaves
// the batch in processing for the next run to pick up.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/skillsift/skillsift/internal/model"
	"github.com/skillsift/skillsift/internal/provider"
	"github.com/skillsift/skillsift/internal/retrypolicy"
	"github.com/skillsift/skillsift/internal/store"
)

// StateStore is the slice of the store the poller needs.
type StateStore interface {
	GetBatchesByStatus(ctx context.Context, status model.BatchStatus) ([]model.Batch, error)
	GetJobsByGroup(ctx context.Context, groupID string) ([]model.JobPosting, error)
	UpdateJobKeywords(ctx context.Context, key model.Key, keywords []string) error
	UpdateBatchStatus(ctx context.Context, groupID string, createdAt time.Time, from, to model.BatchStatus, extra map[string]any) error
}

// Provider is the slice of the inference client the poller needs.
type Provider interface {
	GetJob(ctx context.Context, jobID string) (*provider.Job, error)
	DownloadResults(ctx context.Context, outputFileID string) ([]provider.Result, error)
}

// DocStore receives reconciled postings once their keywords are verified.
type DocStore interface {
	BulkUpsert(ctx context.Context, postings []model.JobPosting) (int64, error)
}

// Poller polls outstanding provider jobs and reconciles finished ones.
type Poller struct {
	store    StateStore
	provider Provider
	docs     DocStore
	verify   retrypolicy.Policy
	logger   *slog.Logger
}

// Config configures a Poller.
type Config struct {
	Store    StateStore
	Provider Provider
	Docs     DocStore
	// Verify bounds the read-back loop that waits for the eventually
	// consistent group index to reflect the keyword writes.
	Verify retrypolicy.Policy
	Logger *slog.Logger
}

// New creates a Poller.
func New(cfg Config) *Poller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	verify := cfg.Verify
	if verify.Attempts == 0 {
		verify = retrypolicy.New(3, 2*time.Second, time.Second)
	}
	return &Poller{
		store:    cfg.Store,
		provider: cfg.Provider,
		docs:     cfg.Docs,
		verify:   verify,
		logger:   logger.With("component", "poller"),
	}
}

// Summary reports one poll run.
type Summary struct {
	Completed []string `json:"completed" yaml:"completed"`
	Partial   []string `json:"partial" yaml:"partial"`
	Retried   int      `json:"retried" yaml:"retried"`
	Cancelled int      `json:"cancelled" yaml:"cancelled"`
	Errored   int      `json:"errored" yaml:"errored"`
	InFlight  int      `json:"in_flight" yaml:"in_flight"`
	Deferred  int      `json:"deferred" yaml:"deferred"`
	Failed    int      `json:"failed" yaml:"failed"`
}

// Run polls every processing batch once. Failures are isolated per batch:
// a transient poll failure leaves the batch in processing for the next
// run, while a reconciliation failure moves it to error.
func (p *Poller) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	batches, err := p.store.GetBatchesByStatus(ctx, model.StatusProcessing)
	if err != nil {
		return summary, fmt.Errorf("failed to list processing batches: %w", err)
	}

	for _, b := range batches {
		if err := p.poll(ctx, &b, summary); err != nil {
			summary.Failed++
			p.logger.Error("poll failed, batch left in processing",
				"group_id", b.GroupID, "error", err)
		}
	}

	return summary, nil
}

func (p *Poller) poll(ctx context.Context, b *model.Batch, summary *Summary) error {
	if b.ProviderJobID == "" {
		applied, err := p.transition(ctx, b, model.StatusError, map[string]any{
			"failure_reason": "processing batch has no provider job",
		})
		if err != nil {
			return err
		}
		if applied {
			summary.Errored++
		}
		return nil
	}

	job, err := p.provider.GetJob(ctx, b.ProviderJobID)
	if err != nil {
		return fmt.Errorf("fetching provider job %s: %w", b.ProviderJobID, err)
	}

	switch {
	case job.Status.InFlight():
		p.logger.Debug("job still in flight",
			"group_id", b.GroupID, "job_id", job.ID, "job_status", job.Status.String())
		summary.InFlight++
		return nil

	case job.Status == provider.StatusCancelled:
		applied, err := p.transition(ctx, b, model.StatusCancelled, nil)
		if err != nil {
			return err
		}
		if applied {
			summary.Cancelled++
			p.logger.Info("job cancelled at provider, batch queued for re-dispatch",
				"group_id", b.GroupID, "job_id", job.ID)
		}
		return nil

	case job.Status == provider.StatusExpired:
		applied, err := p.transition(ctx, b, model.StatusError, map[string]any{
			"failure_reason": "provider job expired before completion",
		})
		if err != nil {
			return err
		}
		if applied {
			summary.Errored++
			p.logger.Error("job expired", "group_id", b.GroupID, "job_id", job.ID)
		}
		return nil

	case job.Status == provider.StatusFailed:
		if job.CapacityExceeded {
			applied, err := p.transition(ctx, b, model.StatusRetry, nil)
			if err != nil {
				return err
			}
			if applied {
				summary.Retried++
				p.logger.Warn("job rejected for capacity, batch queued for retry",
					"group_id", b.GroupID, "job_id", job.ID, "reason", job.FailureReason)
			}
			return nil
		}
		applied, err := p.transition(ctx, b, model.StatusError, map[string]any{
			"failure_reason": job.FailureReason,
		})
		if err != nil {
			return err
		}
		if applied {
			summary.Errored++
			p.logger.Error("job failed",
				"group_id", b.GroupID, "job_id", job.ID, "reason", job.FailureReason)
		}
		return nil

	case job.Status == provider.StatusCompleted:
		if err := p.reconcile(ctx, b, job, summary); err != nil {
			p.logger.Error("reconciliation failed",
				"group_id", b.GroupID, "job_id", job.ID, "error", err)
			applied, terr := p.transition(ctx, b, model.StatusError, map[string]any{
				"failure_reason": err.Error(),
			})
			if terr != nil {
				return terr
			}
			if applied {
				summary.Errored++
			}
		}
		return nil

	default:
		p.logger.Warn("unrecognized job status, deferring",
			"group_id", b.GroupID, "job_id", job.ID, "job_status", job.Status.String())
		summary.Deferred++
		return nil
	}
}

// reconcile downloads the finished job's output, applies keywords to the
// group's postings in the state store, verifies the writes are readable,
// syncs the group to the document store, and only then marks the batch
// terminal. Result lines with a non-success status code are recorded on
// the batch and excluded from verification.
func (p *Poller) reconcile(ctx context.Context, b *model.Batch, job *provider.Job, summary *Summary) error {
	if job.OutputFileID == "" {
		return fmt.Errorf("completed job %s has no output file", job.ID)
	}

	// An output_file_id on a processing batch means an earlier cycle
	// already downloaded and applied this output and only the
	// verification read failed to converge. Re-verify without
	// re-downloading or re-applying anything.
	if b.OutputFileID != "" {
		failedSet := make(map[model.Key]struct{}, len(b.FailedIDs))
		for _, cid := range b.FailedIDs {
			if key, err := model.ParseCorrelationID(cid); err == nil {
				failedSet[key] = struct{}{}
			}
		}
		expected := b.TotalJobs - len(b.FailedIDs)
		return p.finalize(ctx, b, summary, b.OutputFileID, b.FailedIDs, failedSet, expected, 0)
	}

	results, err := p.provider.DownloadResults(ctx, job.OutputFileID)
	if err != nil {
		return fmt.Errorf("downloading results for job %s: %w", job.ID, err)
	}

	updates := make(map[model.Key][]string, len(results))
	failedSet := make(map[model.Key]struct{})
	var failedIDs []string
	malformed := 0
	for _, r := range results {
		key, err := model.ParseCorrelationID(r.CustomID)
		if err != nil {
			malformed++
			p.logger.Warn("skipping result with malformed correlation id",
				"group_id", b.GroupID, "custom_id", r.CustomID, "error", err)
			continue
		}
		if r.StatusCode != http.StatusOK {
			failedSet[key] = struct{}{}
			failedIDs = append(failedIDs, r.CustomID)
			continue
		}
		updates[key] = model.ParseKeywords(r.Content)
	}

	postings, err := p.store.GetJobsByGroup(ctx, b.GroupID)
	if err != nil {
		return fmt.Errorf("reading group %s: %w", b.GroupID, err)
	}
	members := make(map[model.Key]*model.JobPosting, len(postings))
	for i := range postings {
		members[postings[i].Key()] = &postings[i]
	}

	applied, matched := 0, 0
	for key, keywords := range updates {
		posting, ok := members[key]
		if !ok {
			p.logger.Warn("result does not match any posting in group",
				"group_id", b.GroupID, "source", key.Source, "id", key.ID)
			continue
		}
		matched++
		if posting.ExtractedKeywords != nil {
			continue
		}
		if err := p.store.UpdateJobKeywords(ctx, key, keywords); err != nil {
			return fmt.Errorf("applying keywords to %s/%s: %w", key.Source, key.ID, err)
		}
		applied++
	}
	if malformed > 0 {
		p.logger.Warn("results skipped during reconciliation",
			"group_id", b.GroupID, "malformed", malformed)
	}

	return p.finalize(ctx, b, summary, job.OutputFileID, failedIDs, failedSet, matched, applied)
}

// finalize verifies the group's keyword writes, syncs the verified
// postings to the document store, and performs the terminal transition.
// On verification non-convergence the batch stays in processing, with the
// output file id and failed ids persisted so the next cycle resumes at
// verification instead of re-downloading.
func (p *Poller) finalize(ctx context.Context, b *model.Batch, summary *Summary, outputFileID string, failedIDs []string, failedSet map[model.Key]struct{}, expected, applied int) error {
	synced, err := p.awaitVerified(ctx, b.GroupID, failedSet, expected)
	if err != nil {
		summary.Deferred++
		p.logger.Warn("keyword verification did not converge, batch deferred",
			"group_id", b.GroupID, "applied", applied, "error", err)
		if b.OutputFileID == "" {
			p.saveProgress(ctx, b, outputFileID, failedIDs)
		}
		return nil
	}

	if len(synced) > 0 {
		n, err := p.docs.BulkUpsert(ctx, synced)
		if err != nil {
			return fmt.Errorf("syncing group %s to document store: %w", b.GroupID, err)
		}
		p.logger.Info("group synced to document store",
			"group_id", b.GroupID, "postings", len(synced), "modified", n)
	}

	to := model.StatusCompleted
	extra := map[string]any{"output_file_id": outputFileID}
	if len(failedIDs) > 0 {
		to = model.StatusPartial
		extra["failed_ids"] = failedIDs
	}
	done, err := p.transition(ctx, b, to, extra)
	if err != nil {
		return err
	}
	if !done {
		return nil
	}

	switch to {
	case model.StatusPartial:
		summary.Partial = append(summary.Partial, b.GroupID)
		p.logger.Warn("batch partially reconciled",
			"group_id", b.GroupID, "applied", applied, "failed", len(failedIDs))
	default:
		summary.Completed = append(summary.Completed, b.GroupID)
		p.logger.Info("batch reconciled", "group_id", b.GroupID, "applied", applied)
	}
	return nil
}

// saveProgress records the downloaded output file and failed ids on a
// deferred batch without changing its status. Best effort: a failure here
// only costs the next cycle a re-download.
func (p *Poller) saveProgress(ctx context.Context, b *model.Batch, outputFileID string, failedIDs []string) {
	extra := map[string]any{"output_file_id": outputFileID}
	if len(failedIDs) > 0 {
		extra["failed_ids"] = failedIDs
	}
	err := p.store.UpdateBatchStatus(ctx, b.GroupID, b.CreatedAt,
		model.StatusProcessing, model.StatusProcessing, extra)
	if err != nil && !errors.Is(err, store.ErrConditionFailed) {
		p.logger.Warn("failed to record reconciliation progress",
			"group_id", b.GroupID, "error", err)
	}
}

// awaitVerified re-reads the group until every posting outside the failed
// set carries keywords and their count matches the number of successful
// results. The group index is eventually consistent, so fresh writes, and
// even whole rows, may take a read or two to show.
func (p *Poller) awaitVerified(ctx context.Context, groupID string, failedSet map[model.Key]struct{}, expected int) ([]model.JobPosting, error) {
	var verified []model.JobPosting

	op := func() error {
		current, err := p.store.GetJobsByGroup(ctx, groupID)
		if err != nil {
			return fmt.Errorf("re-reading group: %w", err)
		}

		var ready []model.JobPosting
		var missing []string
		for _, posting := range current {
			if _, failed := failedSet[posting.Key()]; failed {
				continue
			}
			if posting.ExtractedKeywords == nil {
				missing = append(missing, posting.Source+"/"+posting.ID)
				continue
			}
			ready = append(ready, posting)
		}
		if len(missing) > 0 {
			return fmt.Errorf("%d postings missing keywords: %s",
				len(missing), strings.Join(missing, ", "))
		}
		if len(ready) != expected {
			return fmt.Errorf("%d of %d successful results visible", len(ready), expected)
		}
		verified = ready
		return nil
	}

	err := p.verify.DoWithNotify(ctx, op, func(attempt uint, err error) {
		p.logger.Debug("verification attempt failed",
			"group_id", groupID, "attempt", attempt, "error", err)
	})
	if err != nil {
		return nil, err
	}
	return verified, nil
}

// transition conditionally moves the batch out of processing. Losing the
// condition means another poller already moved it, which is not an error.
func (p *Poller) transition(ctx context.Context, b *model.Batch, to model.BatchStatus, extra map[string]any) (bool, error) {
	err := p.store.UpdateBatchStatus(ctx, b.GroupID, b.CreatedAt, model.StatusProcessing, to, extra)
	if errors.Is(err, store.ErrConditionFailed) {
		p.logger.Info("batch already transitioned by another poller",
			"group_id", b.GroupID, "to", to)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("transitioning batch %s to %s: %w", b.GroupID, to, err)
	}
	return true, nil
}
