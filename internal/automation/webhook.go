package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/medfarma-backend/pkg/config"
)

const (
	defaultWebhookTimeout       = 10 * time.Second
	responseBodyReadLimit int64 = 512
)

var errWebhookBaseURLRequired = errors.New("automation webhook base url is required")

// WebhookClient posts event bodies to the workflow engine.
type WebhookClient struct {
	httpClient *http.Client
	baseURL    string
	source     string
}

// NewWebhookClient builds the client from config.
func NewWebhookClient(cfg config.AutomationConfig) (*WebhookClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.WebhookBaseURL), "/")
	if base == "" {
		return nil, errWebhookBaseURLRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	source := strings.TrimSpace(cfg.Source)
	if source == "" {
		source = "medfarma-backend"
	}
	return &WebhookClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    base,
		source:     source,
	}, nil
}

// Source is stamped on every body.
func (c *WebhookClient) Source() string {
	return c.source
}

// StatusError reports a non-2xx webhook response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the workflow engine asked for a redelivery.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// Post sends body to <base>/<path>. Non-2xx responses come back as *StatusError.
func (c *WebhookClient) Post(ctx context.Context, path string, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}
	url := fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.source)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute webhook request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, responseBodyReadLimit))
	return nil
}
