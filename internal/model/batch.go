package model

import (
	"fmt"
	"time"
)

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

const (
	// StatusInit: batch created by the assembler, not yet dispatched.
	StatusInit BatchStatus = "init"
	// StatusProcessing: a provider job is outstanding for this batch.
	StatusProcessing BatchStatus = "processing"
	// StatusRetry: the provider rejected the job for capacity reasons;
	// the dispatcher will resubmit reusing the uploaded input file.
	StatusRetry BatchStatus = "retry"
	// StatusCancelled: the provider job was cancelled; re-dispatchable.
	StatusCancelled BatchStatus = "cancelled"
	// StatusCompleted: all postings reconciled and synced to the document store.
	StatusCompleted BatchStatus = "completed"
	// StatusPartial: reconciled, but some result lines failed; the failed
	// posting ids are recorded on the batch and carry no keywords.
	StatusPartial BatchStatus = "partial"
	// StatusError: terminal failure, requires manual inspection.
	StatusError BatchStatus = "error"
)

// Terminal reports whether the status permits no further transitions.
func (s BatchStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusError:
		return true
	}
	return false
}

// Dispatchable reports whether the dispatcher may (re)submit this batch.
func (s BatchStatus) Dispatchable() bool {
	switch s {
	case StatusInit, StatusRetry, StatusCancelled:
		return true
	}
	return false
}

// ParseBatchStatus validates a stored status string.
func ParseBatchStatus(s string) (BatchStatus, error) {
	switch BatchStatus(s) {
	case StatusInit, StatusProcessing, StatusRetry, StatusCancelled,
		StatusCompleted, StatusPartial, StatusError:
		return BatchStatus(s), nil
	}
	return "", fmt.Errorf("unknown batch status %q", s)
}

// Batch is one unit of work submitted to the inference provider. Keyed by
// GroupID with CreatedAt as the range component. InputFileID is immutable
// once set: retry and cancelled transitions resubmit the same file rather
// than re-uploading.
type Batch struct {
	GroupID   string    `dynamodbav:"group_id" json:"group_id"`
	CreatedAt time.Time `dynamodbav:"created_at" json:"created_at"`

	Status BatchStatus `dynamodbav:"status" json:"status"`

	ProviderJobID  string `dynamodbav:"provider_job_id,omitempty" json:"provider_job_id,omitempty"`
	InputFileID    string `dynamodbav:"input_file_id,omitempty" json:"input_file_id,omitempty"`
	InputFilename  string `dynamodbav:"input_filename,omitempty" json:"input_filename,omitempty"`
	InputFileBytes int64  `dynamodbav:"input_file_bytes,omitempty" json:"input_file_bytes,omitempty"`
	OutputFileID   string `dynamodbav:"output_file_id,omitempty" json:"output_file_id,omitempty"`

	TotalJobs int `dynamodbav:"total_jobs,omitempty" json:"total_jobs,omitempty"`

	// FailedIDs holds the correlation ids of result lines that came back
	// with a non-success status code. Set only on partial batches.
	FailedIDs []string `dynamodbav:"failed_ids,omitempty" json:"failed_ids,omitempty"`
}
