// Package pollinations is the client for the hosted text-generation API used
// for routine think cycles. It is the cheap model: anonymous tier, no auth.
// The heavy assistant (pkg/assistant) is the expensive path; everything here
// is deliberately low-ceremony.
package pollinations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultURL is the OpenAI-compatible chat endpoint.
const DefaultURL = "https://text.pollinations.ai/openai"

// DefaultModelsURL lists the models available to the anonymous tier.
const DefaultModelsURL = "https://text.pollinations.ai/models"

// DefaultModel is the anonymous-tier default.
const DefaultModel = "openai"

// requestTimeout bounds one generation call.
const requestTimeout = 60 * time.Second

// Client calls the generation API. A client-side rate limiter keeps the
// daemon's several timers from stampeding the free tier.
type Client struct {
	url       string
	modelsURL string
	model     string
	httpc     *http.Client
	limiter   *rate.Limiter
	seedFn    func() int // overridable for tests
}

// Option configures a Client.
type Option func(*Client)

// WithURL overrides the chat endpoint.
func WithURL(url string) Option {
	return func(c *Client) { c.url = url }
}

// WithModelsURL overrides the model-listing endpoint.
func WithModelsURL(url string) Option {
	return func(c *Client) { c.modelsURL = url }
}

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithSeedFunc overrides seed generation (tests).
func WithSeedFunc(fn func() int) Option {
	return func(c *Client) { c.seedFn = fn }
}

// New creates a Client. The limiter allows a small burst then one request
// every two seconds, comfortably under the anonymous-tier ceiling.
func New(opts ...Option) *Client {
	c := &Client{
		url:       DefaultURL,
		modelsURL: DefaultModelsURL,
		model:     DefaultModel,
		httpc:     &http.Client{Timeout: requestTimeout},
		limiter:   rate.NewLimiter(rate.Every(2*time.Second), 3),
		seedFn:    func() int { return rand.Intn(999999) + 1 }, //nolint:gosec // cache-busting, not crypto
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// chatRequest is the OpenAI-compatible request body. Seed is randomized per
// call: the API caches deterministically by prompt text, and without a fresh
// seed identical heartbeat prompts come back with identical stale output.
type chatRequest struct {
	Model    string        `json:"model"`
	Seed     int           `json:"seed"`
	Messages []chatMessage `json:"messages"`
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

// Ask sends one system+user exchange and returns the assistant text. Any
// non-200 status or transport failure is an error; the caller counts it and
// waits for the next cycle — there are no retries here.
func (c *Client) Ask(ctx context.Context, prompt, system string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("pollinations: rate limit wait: %w", err)
	}

	var messages []chatMessage
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Seed:     c.seedFn(),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("pollinations: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("pollinations: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("pollinations: request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("pollinations: status %d: %s", resp.StatusCode, snippet)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("pollinations: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("pollinations: empty choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// Models lists the model names available to the anonymous tier.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.modelsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("pollinations: build request: %w", err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pollinations: list models: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pollinations: list models: status %d", resp.StatusCode)
	}

	var entries []struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("pollinations: decode models: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name != "" {
			names = append(names, e.Name)
		}
	}
	return names, nil
}
