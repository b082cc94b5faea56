// Package provider wraps the OpenAI Batch API: uploading JSONL request
// payloads, creating and polling batch jobs, and downloading result files.
// Provider state is modelled as a closed enum so the poller's transition
// table stays exhaustive.
package provider

import (
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const defaultModel = "gpt-4o-mini"

// systemPrompt instructs the model to emit a single comma-separated string
// of technical skills, or an empty string.
const systemPrompt = `Extract specific technical skills and tools mentioned in the following job description.

- Output only a list of technical skills or tools explicitly mentioned, such as programming languages, frameworks, libraries, software tools, protocols, platforms, etc.
- Do not include benefits, compensation details, years of experience, or general phrases unrelated to specific technologies or tools.
- Only output the keywords as a single string separated by commas. Do not include context, explanations, intros, or outros.
- If the job description is not clear or you cannot extract any keywords, output an empty string.
Remember: Your output should be a single string of comma-separated technical skills and tools, or an empty string if you cannot extract any keywords. Nothing else.`

// Config configures the batch client.
type Config struct {
	APIKey     string
	Model      string        // chat model for extraction (default gpt-4o-mini)
	MaxRetries int           // SDK transport retries
	Timeout    time.Duration // HTTP timeout
	BaseURL    string        // optional (tests)
	HTTPClient *http.Client  // optional (tests)
}

// Client talks to the OpenAI Batch API.
type Client struct {
	client openai.Client
	model  string
}

// New creates a batch client.
func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

// Model returns the chat model requests are built for.
func (c *Client) Model() string {
	return c.model
}
