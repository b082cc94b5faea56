package provider

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/skillsift/skillsift/internal/model"
)

// batchRequest is one line of the uploaded JSONL payload.
type batchRequest struct {
	CustomID string      `json:"custom_id"`
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Body     requestBody `json:"body"`
}

type requestBody struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildPayload renders postings as newline-delimited chat-completion
// requests. Postings whose source has no registered correlation code are
// skipped and reported in the second return value.
func (c *Client) BuildPayload(postings []model.JobPosting) ([]byte, []model.Key, error) {
	var buf bytes.Buffer
	var skipped []model.Key

	for _, p := range postings {
		cid, err := model.CorrelationID(p.Key())
		if err != nil {
			skipped = append(skipped, p.Key())
			continue
		}

		req := batchRequest{
			CustomID: cid,
			Method:   "POST",
			URL:      "/v1/chat/completions",
			Body: requestBody{
				Model: c.model,
				Messages: []chatMessage{
					{Role: "system", Content: systemPrompt},
					{Role: "user", Content: p.Description},
				},
			},
		}

		line, err := json.Marshal(req)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request for %s: %w", cid, err)
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(line)
	}

	if buf.Len() == 0 {
		return nil, skipped, fmt.Errorf("no requests to submit (%d postings skipped)", len(skipped))
	}
	return buf.Bytes(), skipped, nil
}

// Result is one parsed line of a batch output file.
type Result struct {
	CustomID   string
	StatusCode int
	Content    string // raw model output (comma-separated keywords)
}

// resultLine mirrors the batch output JSONL schema.
type resultLine struct {
	CustomID string `json:"custom_id"`
	Response struct {
		StatusCode int `json:"status_code"`
		Body       struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		} `json:"body"`
	} `json:"response"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func parseResults(data []byte) ([]Result, error) {
	var results []Result
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var rl resultLine
		if err := json.Unmarshal(line, &rl); err != nil {
			return nil, fmt.Errorf("failed to parse result line: %w", err)
		}

		r := Result{CustomID: rl.CustomID, StatusCode: rl.Response.StatusCode}
		if len(rl.Response.Body.Choices) > 0 {
			r.Content = rl.Response.Body.Choices[0].Message.Content
		}
		results = append(results, r)
	}
	return results, nil
}
