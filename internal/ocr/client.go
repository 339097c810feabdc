// Package ocr builds requests for the Mistral OCR API and converts its
// responses into domain results.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spherical/mistral-ocr/internal/domain"
	"github.com/spherical/mistral-ocr/internal/observability"
)

const (
	// DefaultBaseURL is the public Mistral API endpoint.
	DefaultBaseURL = "https://api.mistral.ai"
	// DefaultTimeout bounds a single OCR request.
	DefaultTimeout = 5 * time.Minute

	ocrPath         = "/v1/ocr"
	maxErrorBodyLen = 64 * 1024
)

// Client handles communication with the Mistral OCR API
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *observability.Logger
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *observability.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new OCR client. An empty API key is a ConfigError.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, domain.ConfigError("API key is required", nil)
	}

	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     observability.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithOperation("ocr")

	return c, nil
}

// Process submits req and returns the recognized content. It makes a
// single attempt; callers decide what a failure means for the batch.
func (c *Client) Process(ctx context.Context, req *Request) (*domain.OCRResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, domain.ValidationError("failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ocrPath, bytes.NewReader(body))
	if err != nil {
		return nil, domain.TransportError("failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	c.logger.Debug().
		Str("source", req.Source).
		Str("model", req.Model).
		Str("document_type", req.Document.Type).
		Int("body_bytes", len(body)).
		Msg("sending OCR request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.TransportError("failed to send request", err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("source", req.Source).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("received OCR response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp)
	}

	var decoded ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, domain.TransportError("failed to decode response", err)
	}

	result, err := decoded.toResult(req.Model)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// statusError maps a non-2xx response onto the error taxonomy.
func statusError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
	msg := apiErrorMessage(bodyBytes)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.AuthError(withDetail(fmt.Sprintf("authentication failed (status %d)", resp.StatusCode), msg), nil)
	case http.StatusTooManyRequests:
		return domain.RateLimitError(withDetail("rate limit exceeded (status 429)", msg), nil)
	default:
		return domain.ServiceError(withDetail(fmt.Sprintf("API returned status %d", resp.StatusCode), msg), nil)
	}
}

func withDetail(base, detail string) string {
	if detail == "" {
		return base
	}
	return base + ": " + detail
}

// apiErrorMessage extracts a human-readable message from an error body
// shaped as {message}, {detail} or {error: {message}}; otherwise the raw
// text is used.
func apiErrorMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return truncate(trimmed, 500)
	}

	for _, key := range []string{"message", "detail", "error"} {
		value, ok := payload[key]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			return v
		case map[string]interface{}:
			if m, ok := v["message"].(string); ok {
				return m
			}
		}
		if encoded, err := json.Marshal(value); err == nil {
			return truncate(string(encoded), 500)
		}
	}

	return truncate(trimmed, 500)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
