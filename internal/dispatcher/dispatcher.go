// Package dispatcher moves batches from init, retry, or cancelled into
// processing by creating (or re-creating) the provider job. Every step up
// to the final status write is idempotent, so a failed dispatch simply
// leaves the batch where it was for the next scheduled run.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/skillsift/skillsift/internal/model"
	"github.com/skillsift/skillsift/internal/provider"
)

// StateStore is the slice of the store the dispatcher needs.
type StateStore interface {
	GetBatchesByStatus(ctx context.Context, status model.BatchStatus) ([]model.Batch, error)
	GetJobsByGroup(ctx context.Context, groupID string) ([]model.JobPosting, error)
	UpdateBatchStatus(ctx context.Context, groupID string, createdAt time.Time, from, to model.BatchStatus, extra map[string]any) error
}

// Provider is the slice of the inference client the dispatcher needs.
type Provider interface {
	BuildPayload(postings []model.JobPosting) ([]byte, []model.Key, error)
	UploadInput(ctx context.Context, filename string, payload []byte) (*provider.Upload, error)
	CreateJob(ctx context.Context, inputFileID string) (string, error)
}

// Dispatcher submits pending batches to the inference provider.
type Dispatcher struct {
	store    StateStore
	provider Provider
	logger   *slog.Logger
}

// Config configures a Dispatcher.
type Config struct {
	Store    StateStore
	Provider Provider
	Logger   *slog.Logger
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:    cfg.Store,
		provider: cfg.Provider,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Summary reports one dispatch run.
type Summary struct {
	Dispatched []string `json:"dispatched" yaml:"dispatched"`
	Failed     int      `json:"failed" yaml:"failed"`
}

// Run scans each dispatchable status and submits every batch found. A
// batch's failure is logged and isolated; its status is left untouched so
// the next run retries it.
func (d *Dispatcher) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	for _, status := range []model.BatchStatus{model.StatusInit, model.StatusRetry, model.StatusCancelled} {
		batches, err := d.store.GetBatchesByStatus(ctx, status)
		if err != nil {
			return summary, fmt.Errorf("failed to list %s batches: %w", status, err)
		}

		for _, b := range batches {
			dispatched, err := d.dispatch(ctx, &b)
			if err != nil {
				summary.Failed++
				d.logger.Error("dispatch failed, batch left for next run",
					"group_id", b.GroupID, "status", b.Status, "error", err)
				continue
			}
			if dispatched {
				summary.Dispatched = append(summary.Dispatched, b.GroupID)
			}
		}
	}

	return summary, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, b *model.Batch) (bool, error) {
	if b.Status == model.StatusInit {
		return d.dispatchNew(ctx, b)
	}
	if err := d.redispatch(ctx, b); err != nil {
		return false, err
	}
	return true, nil
}

// dispatchNew formats and uploads the group's postings, then submits the
// job. The group index may lag the assembler's writes; a batch queried
// before its postings are visible is skipped, not failed.
func (d *Dispatcher) dispatchNew(ctx context.Context, b *model.Batch) (bool, error) {
	postings, err := d.store.GetJobsByGroup(ctx, b.GroupID)
	if err != nil {
		return false, fmt.Errorf("querying group postings: %w", err)
	}
	if len(postings) == 0 {
		d.logger.Warn("no postings visible for group yet, deferring", "group_id", b.GroupID)
		return false, nil
	}

	payload, skipped, err := d.provider.BuildPayload(postings)
	if err != nil {
		return false, fmt.Errorf("building payload: %w", err)
	}
	if len(skipped) > 0 {
		d.logger.Warn("postings skipped during payload build", "group_id", b.GroupID, "skipped", len(skipped))
	}

	upload, err := d.provider.UploadInput(ctx, b.GroupID+".jsonl", payload)
	if err != nil {
		return false, fmt.Errorf("uploading payload: %w", err)
	}

	jobID, err := d.provider.CreateJob(ctx, upload.FileID)
	if err != nil {
		return false, fmt.Errorf("creating provider job: %w", err)
	}

	err = d.store.UpdateBatchStatus(ctx, b.GroupID, b.CreatedAt,
		model.StatusInit, model.StatusProcessing,
		map[string]any{
			"provider_job_id":  jobID,
			"input_file_id":    upload.FileID,
			"input_filename":   upload.Filename,
			"input_file_bytes": upload.Bytes,
			"total_jobs":       len(postings) - len(skipped),
		})
	if err != nil {
		return false, fmt.Errorf("recording dispatch: %w", err)
	}

	d.logger.Info("batch dispatched",
		"group_id", b.GroupID,
		"provider_job_id", jobID,
		"postings", len(postings)-len(skipped),
		"payload_bytes", len(payload))
	return true, nil
}

// redispatch resubmits a retry or cancelled batch, reusing the input file
// uploaded on the first dispatch.
func (d *Dispatcher) redispatch(ctx context.Context, b *model.Batch) error {
	if b.InputFileID == "" {
		return fmt.Errorf("batch %s in %s has no input file to resubmit", b.GroupID, b.Status)
	}

	jobID, err := d.provider.CreateJob(ctx, b.InputFileID)
	if err != nil {
		return fmt.Errorf("re-creating provider job: %w", err)
	}

	err = d.store.UpdateBatchStatus(ctx, b.GroupID, b.CreatedAt,
		b.Status, model.StatusProcessing,
		map[string]any{"provider_job_id": jobID})
	if err != nil {
		return fmt.Errorf("recording re-dispatch: %w", err)
	}

	d.logger.Info("batch re-dispatched",
		"group_id", b.GroupID,
		"provider_job_id", jobID,
		"input_file_id", b.InputFileID,
		"previous_status", b.Status)
	return nil
}
