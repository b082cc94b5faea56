package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	openai "github.com/openai/openai-go/v3"
)

// JobStatus is the closed set of provider job states the poller switches on.
type JobStatus int

const (
	StatusUnknown JobStatus = iota
	StatusValidating
	StatusInProgress
	StatusFinalizing
	StatusCancelling
	StatusCancelled
	StatusCompleted
	StatusFailed
	StatusExpired
)

func (s JobStatus) String() string {
	switch s {
	case StatusValidating:
		return "validating"
	case StatusInProgress:
		return "in_progress"
	case StatusFinalizing:
		return "finalizing"
	case StatusCancelling:
		return "cancelling"
	case StatusCancelled:
		return "cancelled"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// InFlight reports whether the provider is still working on the job.
func (s JobStatus) InFlight() bool {
	switch s {
	case StatusValidating, StatusInProgress, StatusFinalizing, StatusCancelling:
		return true
	}
	return false
}

// Job is the provider-side view of a batch job.
type Job struct {
	ID           string
	Status       JobStatus
	OutputFileID string
	// CapacityExceeded is set when a failed job's errors carry the
	// token/size-limit signal, which makes the failure retryable.
	CapacityExceeded bool
	FailureReason    string
}

// Upload holds the identifiers of an uploaded input file.
type Upload struct {
	FileID   string
	Filename string
	Bytes    int64
}

// UploadInput uploads a JSONL payload as a batch input file.
func (c *Client) UploadInput(ctx context.Context, filename string, payload []byte) (*Upload, error) {
	file, err := c.client.Files.New(ctx, openai.FileNewParams{
		File:    openai.File(bytes.NewReader(payload), filename, "application/jsonl"),
		Purpose: openai.FilePurposeBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload input file: %w", err)
	}
	return &Upload{
		FileID:   file.ID,
		Filename: file.Filename,
		Bytes:    file.Bytes,
	}, nil
}

// CreateJob submits a batch job for an already-uploaded input file and
// returns the provider job id.
func (c *Client) CreateJob(ctx context.Context, inputFileID string) (string, error) {
	batch, err := c.client.Batches.New(ctx, openai.BatchNewParams{
		InputFileID:      inputFileID,
		Endpoint:         openai.BatchNewParamsEndpointV1ChatCompletions,
		CompletionWindow: openai.BatchNewParamsCompletionWindow24h,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create batch job: %w", err)
	}
	return batch.ID, nil
}

// GetJob retrieves the current state of a batch job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	batch, err := c.client.Batches.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve batch job %s: %w", jobID, err)
	}

	job := &Job{
		ID:           batch.ID,
		Status:       mapStatus(batch.Status),
		OutputFileID: batch.OutputFileID,
	}
	if job.Status == StatusFailed {
		job.CapacityExceeded, job.FailureReason = classifyFailure(batch)
	}
	return job, nil
}

// DownloadResults fetches and parses a batch output file.
func (c *Client) DownloadResults(ctx context.Context, outputFileID string) ([]Result, error) {
	resp, err := c.client.Files.Content(ctx, outputFileID)
	if err != nil {
		return nil, fmt.Errorf("failed to download output file %s: %w", outputFileID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read output file %s: %w", outputFileID, err)
	}
	return parseResults(data)
}

func mapStatus(s openai.BatchStatus) JobStatus {
	switch s {
	case openai.BatchStatusValidating:
		return StatusValidating
	case openai.BatchStatusInProgress:
		return StatusInProgress
	case openai.BatchStatusFinalizing:
		return StatusFinalizing
	case openai.BatchStatusCancelling:
		return StatusCancelling
	case openai.BatchStatusCancelled:
		return StatusCancelled
	case openai.BatchStatusCompleted:
		return StatusCompleted
	case openai.BatchStatusFailed:
		return StatusFailed
	case openai.BatchStatusExpired:
		return StatusExpired
	default:
		return StatusUnknown
	}
}

// classifyFailure inspects a failed batch's errors for the capacity signal
// (enqueued token or request limits), which warrants a retry with the same
// input file instead of freezing the batch.
func classifyFailure(batch *openai.Batch) (capacity bool, reason string) {
	var reasons []string
	for _, e := range batch.Errors.Data {
		reasons = append(reasons, fmt.Sprintf("%s: %s", e.Code, e.Message))
		code := strings.ToLower(e.Code)
		msg := strings.ToLower(e.Message)
		if strings.Contains(code, "token_limit") || strings.Contains(code, "exceeded") ||
			(strings.Contains(msg, "limit") && strings.Contains(msg, "exceeded")) {
			capacity = true
		}
	}
	if len(reasons) == 0 {
		return false, "failed with no error detail"
	}
	return capacity, strings.Join(reasons, "; ")
}
