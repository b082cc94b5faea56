package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/skillsift/skillsift/internal/model"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		MaxRetries: 1,
	})
}

func TestBuildPayload(t *testing.T) {
	c := New(Config{APIKey: "k"})
	postings := []model.JobPosting{
		{Source: "indeed", ID: "1", Description: "Go and Kubernetes"},
		{Source: "linkedin", ID: "2", Description: "React"},
		{Source: "craigslist", ID: "3", Description: "skipped, unknown source"},
	}

	payload, skipped, err := c.BuildPayload(postings)
	if err != nil {
		t.Fatalf("BuildPayload failed: %v", err)
	}
	if len(skipped) != 1 || skipped[0].Source != "craigslist" {
		t.Errorf("expected the unknown-source posting skipped, got %v", skipped)
	}

	lines := strings.Split(string(payload), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSONL lines, got %d", len(lines))
	}

	var req struct {
		CustomID string `json:"custom_id"`
		Method   string `json:"method"`
		URL      string `json:"url"`
		Body     struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		} `json:"body"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &req); err != nil {
		t.Fatalf("line 0 is not valid JSON: %v", err)
	}
	if req.CustomID != "in-1" {
		t.Errorf("expected correlation id 'in-1', got %q", req.CustomID)
	}
	if req.URL != "/v1/chat/completions" || req.Method != "POST" {
		t.Errorf("unexpected request envelope: %s %s", req.Method, req.URL)
	}
	if len(req.Body.Messages) != 2 || req.Body.Messages[1].Content != "Go and Kubernetes" {
		t.Errorf("description not carried in user message: %+v", req.Body.Messages)
	}
}

func TestBuildPayloadAllSkipped(t *testing.T) {
	c := New(Config{APIKey: "k"})
	_, _, err := c.BuildPayload([]model.JobPosting{{Source: "nope", ID: "1"}})
	if err == nil {
		t.Fatal("expected error when no requests survive")
	}
}

func TestUploadInput(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/files") {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":       "file-abc",
			"object":   "file",
			"filename": "grp-1.jsonl",
			"bytes":    1234,
			"purpose":  "batch",
		})
	})

	up, err := c.UploadInput(context.Background(), "grp-1.jsonl", []byte(`{"x":1}`))
	if err != nil {
		t.Fatalf("UploadInput failed: %v", err)
	}
	if up.FileID != "file-abc" || up.Filename != "grp-1.jsonl" || up.Bytes != 1234 {
		t.Errorf("unexpected upload result: %+v", up)
	}
}

func TestCreateJob(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["input_file_id"] != "file-abc" {
			t.Errorf("input file id not forwarded: %v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "batch-123",
			"object": "batch",
			"status": "validating",
		})
	})

	id, err := c.CreateJob(context.Background(), "file-abc")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if id != "batch-123" {
		t.Errorf("expected job id 'batch-123', got %q", id)
	}
}

func TestGetJobStatusMapping(t *testing.T) {
	tests := []struct {
		provider string
		want     JobStatus
		inFlight bool
	}{
		{"validating", StatusValidating, true},
		{"in_progress", StatusInProgress, true},
		{"finalizing", StatusFinalizing, true},
		{"cancelling", StatusCancelling, true},
		{"cancelled", StatusCancelled, false},
		{"completed", StatusCompleted, false},
		{"expired", StatusExpired, false},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]any{
					"id":             "batch-123",
					"object":         "batch",
					"status":         tt.provider,
					"output_file_id": "file-out",
				})
			})

			job, err := c.GetJob(context.Background(), "batch-123")
			if err != nil {
				t.Fatalf("GetJob failed: %v", err)
			}
			if job.Status != tt.want {
				t.Errorf("status %q mapped to %v, want %v", tt.provider, job.Status, tt.want)
			}
			if job.Status.InFlight() != tt.inFlight {
				t.Errorf("InFlight() = %v for %q", job.Status.InFlight(), tt.provider)
			}
		})
	}
}

func TestGetJobCapacityFailure(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "batch-123",
			"object": "batch",
			"status": "failed",
			"errors": map[string]any{
				"object": "list",
				"data": []map[string]any{
					{"code": "token_limit_exceeded", "message": "Enqueued token limit reached"},
				},
			},
		})
	})

	job, err := c.GetJob(context.Background(), "batch-123")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != StatusFailed {
		t.Fatalf("expected failed status, got %v", job.Status)
	}
	if !job.CapacityExceeded {
		t.Error("token limit failure must be classified as capacity-exceeded")
	}
	if !strings.Contains(job.FailureReason, "token_limit_exceeded") {
		t.Errorf("failure reason missing code: %q", job.FailureReason)
	}
}

func TestGetJobPermanentFailure(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "batch-123",
			"object": "batch",
			"status": "failed",
			"errors": map[string]any{
				"object": "list",
				"data": []map[string]any{
					{"code": "invalid_request", "message": "malformed input file"},
				},
			},
		})
	})

	job, err := c.GetJob(context.Background(), "batch-123")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.CapacityExceeded {
		t.Error("non-capacity failure must not be retryable")
	}
}

func TestDownloadResults(t *testing.T) {
	line := func(cid string, code int, content string) string {
		return fmt.Sprintf(`{"custom_id":%q,"response":{"status_code":%d,"body":{"choices":[{"message":{"content":%q}}]}}}`,
			cid, code, content)
	}
	body := line("in-1", 200, "Go, AWS") + "\n" + line("in-2", 500, "") + "\n"

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "file-out") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(body))
	})

	results, err := c.DownloadResults(context.Background(), "file-out")
	if err != nil {
		t.Fatalf("DownloadResults failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].CustomID != "in-1" || results[0].StatusCode != 200 || results[0].Content != "Go, AWS" {
		t.Errorf("unexpected first result: %+v", results[0])
	}
	if results[1].StatusCode != 500 {
		t.Errorf("unexpected second result: %+v", results[1])
	}
}
