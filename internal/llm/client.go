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

	"github.com/kalambet/solace/internal/security"
)

// Segment represents a role-tagged piece of the prompt in the API format.
type Segment struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params tune a single completion request.
type Params struct {
	Temperature float64
	MaxTokens   int
}

const (
	maxAttempts    = 3
	initialBackoff = 500 * time.Millisecond
	requestTimeout = 60 * time.Second
)

// Client communicates with an OpenAI-compatible inference service over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Client targeting the given inference base URL.
func New(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// completionRequest is the JSON body for POST /chat/completions.
type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Segment `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

// completionResponse is the JSON returned by POST /chat/completions.
type completionResponse struct {
	Choices []struct {
		Message Segment `json:"message"`
	} `json:"choices"`
}

// Complete sends the prompt segments to the model and returns the assistant's
// response. Transient failures (429, 5xx, transport errors) are retried with
// exponential backoff up to three attempts; auth failures are not retried.
// Exhausted retries surface as ErrUpstreamUnavailable.
func (c *Client) Complete(ctx context.Context, segments []Segment, p Params) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model:       c.model,
		Messages:    segments,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Stream:      false,
	})
	if err != nil {
		return "", fmt.Errorf("encoding completion request: %w", err)
	}

	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, backoff); err != nil {
				return "", err
			}
			backoff *= 2
		}

		content, retryable, err := c.attempt(ctx, body)
		if err == nil {
			return content, nil
		}
		if !retryable {
			return "", err
		}
		lastErr = err
	}

	return "", fmt.Errorf("%w: %v", security.ErrUpstreamUnavailable, lastErr)
}

// attempt performs one request. The second return reports whether the failure
// is worth retrying.
func (c *Client) attempt(ctx context.Context, body []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("creating completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return "", true, fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Decoded below.
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// A bad credential will not fix itself; retrying only burns quota.
		return "", false, fmt.Errorf("%w: inference service rejected credentials (status %d)", security.ErrUpstreamUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return "", true, fmt.Errorf("completion: unexpected status %d", resp.StatusCode)
	default:
		return "", false, fmt.Errorf("%w: completion status %d", security.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var result completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", false, fmt.Errorf("%w: decoding completion response: %v", security.ErrUpstreamUnavailable, err)
	}
	if len(result.Choices) == 0 {
		return "", false, fmt.Errorf("%w: completion returned no choices", security.ErrUpstreamUnavailable)
	}
	return result.Choices[0].Message.Content, false, nil
}
