// Package llm provides a synchronous client for OpenAI-compatible
// chat-completion endpoints (LM Studio, llama.cpp server, vLLM, ...).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config describes one generation endpoint and its request parameters.
// It travels with each job so per-request overrides are possible.
type Config struct {
	BaseURL       string  `json:"baseUrl"`
	Model         string  `json:"model"`
	Temperature   float64 `json:"temperature"`
	MaxInputChars int     `json:"maxInputChars"`
	TimeoutSec    int     `json:"timeoutSec"`
}

// RequestError is the single failure kind for generation calls. Transport
// errors, non-2xx responses and undecodable bodies all map here; the caller
// surfaces it as LLM_REQUEST_FAILED.
type RequestError struct {
	Message    string
	StatusCode int    // 0 when the failure was not an HTTP status
	Body       string // truncated response body, when available
	Reason     string // transport-level reason, when available
	Err        error
}

func (e *RequestError) Error() string {
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Client posts chat-completion requests and extracts the assistant content.
type Client struct {
	httpClient *http.Client
	captureMax int
}

// Option is a function that configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithCaptureMax caps how many bytes of an error response body are retained
// in RequestError details.
func WithCaptureMax(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.captureMax = n
		}
	}
}

// NewClient creates a generation client. Request timeouts come from the
// per-call Config, so the underlying http.Client carries none.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		captureMax: 12000,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveEndpoint normalizes a base URL into a chat-completions endpoint.
// Blank defaults to the local LM Studio port.
func ResolveEndpoint(baseURL string) string {
	clean := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if clean == "" {
		clean = "http://127.0.0.1:1234"
	}
	if strings.HasSuffix(clean, "/chat/completions") {
		return clean
	}
	if strings.HasSuffix(clean, "/v1") {
		return clean + "/chat/completions"
	}
	return clean + "/v1/chat/completions"
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete posts one system+user message pair and returns the trimmed
// assistant content. Temperature is clamped to [0,1] and max_tokens is
// floored at 64.
func (c *Client) Complete(ctx context.Context, cfg Config, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	if temperature < 0 {
		temperature = 0
	}
	if temperature > 1 {
		temperature = 1
	}
	if maxTokens < 64 {
		maxTokens = 64
	}

	payload := chatRequest{
		Model:       cfg.Model,
		Temperature: temperature,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens: maxTokens,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", &RequestError{Message: "Failed to call generation engine.", Reason: err.Error(), Err: err}
	}

	timeout := cfg.TimeoutSec
	if timeout < 10 {
		timeout = 10
	}
	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	endpoint := ResolveEndpoint(cfg.BaseURL)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", &RequestError{Message: "Failed to call generation engine.", Reason: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &RequestError{Message: "Generation engine is unavailable.", Reason: err.Error(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &RequestError{Message: "Generation engine is unavailable.", Reason: err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &RequestError{
			Message:    fmt.Sprintf("Generation engine returned HTTP %d.", resp.StatusCode),
			StatusCode: resp.StatusCode,
			Body:       c.truncate(string(body)),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &RequestError{
			Message: "Generation response could not be parsed.",
			Body:    c.truncate(string(body)),
			Reason:  err.Error(),
			Err:     err,
		}
	}

	if len(parsed.Choices) == 0 {
		return "", &RequestError{
			Message: "Generation response could not be parsed.",
			Body:    c.truncate(string(body)),
		}
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", &RequestError{Message: "Generation engine returned empty content."}
	}
	return content, nil
}

func (c *Client) truncate(body string) string {
	if len(body) <= c.captureMax {
		return body
	}
	return body[:c.captureMax]
}
