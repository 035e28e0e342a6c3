package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel                = "gemini-1.5-pro-latest"
	defaultAttemptTimeout       = 30 * time.Second
	defaultRetryDelay           = 500 * time.Millisecond
	responseBodyReadLimit int64 = 1024
)

var (
	errAPIKeyRequired = errors.New("gemini api key is required")
	errEmptyResponse  = errors.New("gemini returned no candidates")
)

// Client calls the Gemini generateContent REST endpoint.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	apiKey          string
	model           string
	attemptTimeout  time.Duration
	maxRetries      int
	retryDelay      time.Duration
	temperature     float64
	maxOutputTokens int
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithModel selects the generation model.
func WithModel(model string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(model)
		if trimmed != "" {
			c.model = trimmed
		}
	}
}

// WithAttemptTimeout bounds each HTTP attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.attemptTimeout = d
		}
	}
}

// WithRetries sets how many times a retryable failure is re-attempted and the pause between attempts.
func WithRetries(maxRetries int, delay time.Duration) Option {
	return func(c *Client) {
		if maxRetries >= 0 {
			c.maxRetries = maxRetries
		}
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

// WithGenerationConfig sets sampling temperature and the output token cap.
func WithGenerationConfig(temperature float64, maxOutputTokens int) Option {
	return func(c *Client) {
		if temperature >= 0 {
			c.temperature = temperature
		}
		if maxOutputTokens > 0 {
			c.maxOutputTokens = maxOutputTokens
		}
	}
}

// NewClient builds the Gemini client given an API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		apiKey:          trimmedKey,
		baseURL:         defaultBaseURL,
		model:           defaultModel,
		httpClient:      &http.Client{},
		attemptTimeout:  defaultAttemptTimeout,
		maxRetries:      1,
		retryDelay:      defaultRetryDelay,
		temperature:     0.7,
		maxOutputTokens: 2048,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{}
	}

	return client, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// retryableError marks failures worth a second attempt.
type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// Generate sends a single-turn prompt and returns the concatenated candidate text.
// Transport errors, 429 and 5xx are retried up to the configured count; other 4xx fail immediately.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "gemini client not configured")
	}
	if strings.TrimSpace(prompt) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "prompt is required")
	}

	payload, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     c.temperature,
			MaxOutputTokens: c.maxOutputTokens,
		},
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal generate request")
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.retryDelay); err != nil {
				return "", pkgerrors.Wrap(pkgerrors.CodeGenerationFailure, err, "generation cancelled")
			}
		}
		text, err := c.attempt(ctx, payload)
		if err == nil {
			return text, nil
		}
		lastErr = err
		var retry retryableError
		if !errors.As(err, &retry) || ctx.Err() != nil {
			break
		}
	}

	return "", pkgerrors.Wrap(pkgerrors.CodeGenerationFailure, lastErr, "generate content")
}

func (c *Client) attempt(ctx context.Context, payload []byte) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.buildURL(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", retryableError{err: fmt.Errorf("execute generate request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		statusErr := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return "", retryableError{err: statusErr}
		}
		return "", statusErr
	}

	var apiResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if apiResp.PromptFeedback != nil && apiResp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("prompt blocked: %s", apiResp.PromptFeedback.BlockReason)
	}

	var sb strings.Builder
	for _, cand := range apiResp.Candidates {
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		if sb.Len() > 0 {
			break
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", errEmptyResponse
	}
	return sb.String(), nil
}

func (c *Client) buildURL() string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	return fmt.Sprintf("%s/models/%s:generateContent", trimmed, url.PathEscape(c.model))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
