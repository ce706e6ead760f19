package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/http/httpguts"

	"github.com/lamim/askgpt/internal/config"
	"github.com/lamim/askgpt/internal/metrics"
)

const (
	// MaxResponseBytes caps how much of a response body is read
	MaxResponseBytes = 8 << 20
	// MaxRejectedBodyBytes caps the body kept on a ServiceRejected error
	MaxRejectedBodyBytes = 64 << 10
)

// Client sends single-turn questions to an OpenAI-compatible chat completions endpoint.
// It holds no per-call state: every call reloads the configuration from its provider.
type Client struct {
	httpClient      *http.Client
	provider        config.Provider
	rateLimiterPool *RateLimiterPool
	metrics         *metrics.Collector
	logger          *slog.Logger
	timeout         time.Duration
}

// NewClient creates a new API client
func NewClient(provider config.Provider, logger *slog.Logger) *Client {
	return &Client{
		// Deadlines come from the per-call context, see send
		httpClient:      &http.Client{},
		provider:        provider,
		rateLimiterPool: NewRateLimiterPool(logger),
		metrics:         metrics.NewCollector(logger),
		logger:          logger,
	}
}

// SetTimeout overrides the configured per-request timeout. Zero restores the configured value.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// SetHTTPClient replaces the underlying HTTP client
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

// SetMetrics replaces the metrics collector
func (c *Client) SetMetrics(collector *metrics.Collector) {
	c.metrics = collector
}

// Ask sends question as the only user message and returns the first choice's
// content verbatim. Every failure is a *ChatError.
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	resp, err := c.Complete(ctx, question)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Message.Content, nil
}

// Complete performs the same exchange as Ask and returns the decoded response.
// A nil error guarantees at least one choice.
func (c *Client) Complete(ctx context.Context, question string) (*ChatCompletionResponse, error) {
	requestStart := time.Now()
	requestID := uuid.NewString()
	logger := c.logger.With("request_id", requestID)

	// Load configuration
	cfg, err := c.provider.Load(ctx)
	if err != nil {
		chatErr := configError(err)
		c.record("", requestStart, chatErr)
		logger.Debug("Configuration unavailable", "error", err)
		return nil, chatErr
	}

	resp, chatErr := c.send(ctx, logger, cfg, question)
	c.record(cfg.Model, requestStart, chatErr)
	if chatErr != nil {
		logger.Debug("Chat completion failed",
			"model", cfg.Model,
			"kind", chatErr.Kind.Label(),
			"error", chatErr)
		return nil, chatErr
	}

	logger.Debug("Chat completion succeeded",
		"model", cfg.Model,
		"response_id", resp.ID,
		"choices", len(resp.Choices),
		"total_ms", time.Since(requestStart).Milliseconds())

	return resp, nil
}

func (c *Client) send(
	ctx context.Context,
	logger *slog.Logger,
	cfg *config.ServiceConfig,
	question string,
) (*ChatCompletionResponse, *ChatError) {
	// Build authenticated headers
	headers, err := authHeaders(cfg.APIKey)
	if err != nil {
		return nil, newError(KindConfiguration, err)
	}

	// Encode request
	buf := getBuffer()
	defer putBuffer(buf)

	if err := encodeRequest(buf, newQuestionRequest(cfg.Model, question)); err != nil {
		return nil, newError(KindConfiguration, fmt.Errorf("failed to marshal request: %w", err))
	}

	timeout := c.timeout
	if timeout == 0 {
		timeout = cfg.Timeout()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// Wait for rate limiter
	modelID := fmt.Sprintf("%s:%s", cfg.Endpoint, cfg.Model)
	rateLimitStart := time.Now()
	if err := c.rateLimiterPool.Wait(ctx, modelID, cfg.RateLimitPerMinute); err != nil {
		return nil, newError(KindNetwork, fmt.Errorf("rate limiter wait failed: %w", err))
	}
	if cfg.RateLimitPerMinute > 0 {
		c.metrics.RecordRateLimiterWait(cfg.Model, time.Since(rateLimitStart))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, newError(KindConfiguration, fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header = headers

	logger.Debug("API request",
		"endpoint", cfg.Endpoint,
		"model", cfg.Model,
		"key_length", len(cfg.APIKey),
		"timeout", timeout)

	// Send request
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, newError(KindNetwork, fmt.Errorf("request failed: %w", err))
	}
	defer func() {
		if err := httpResp.Body.Close(); err != nil {
			logger.Warn("Failed to close response body", "error", err)
		}
	}()

	// Read response body
	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, MaxResponseBytes))
	if err != nil {
		return nil, newError(KindNetwork, fmt.Errorf("failed to read response: %w", err))
	}

	logger.Debug("API response", "status", httpResp.StatusCode, "bytes", len(respBody))

	// Check status code
	if httpResp.StatusCode != http.StatusOK {
		return nil, rejectedError(httpResp.StatusCode, respBody)
	}

	// Parse response
	var resp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, newError(KindMalformedResponse, fmt.Errorf("failed to parse response: %w", err))
	}

	if len(resp.Choices) == 0 {
		return nil, newError(KindMalformedResponse, fmt.Errorf("no choices returned in response"))
	}
	if err := checkFirstChoice(respBody); err != nil {
		return nil, newError(KindMalformedResponse, err)
	}

	return &resp, nil
}

// checkFirstChoice requires choices[0].message.content to be present and
// non-null. An empty string is a valid answer.
func checkFirstChoice(body []byte) error {
	var shape struct {
		Choices []*struct {
			Message *struct {
				Content *string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &shape); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	first := shape.Choices[0]
	switch {
	case first == nil:
		return fmt.Errorf("first choice is null")
	case first.Message == nil:
		return fmt.Errorf("first choice has no message")
	case first.Message.Content == nil:
		return fmt.Errorf("first choice message has no content")
	}
	return nil
}

// authHeaders builds the request headers, refusing keys that would corrupt them
func authHeaders(apiKey string) (http.Header, error) {
	value := "Bearer " + apiKey
	if !httpguts.ValidHeaderFieldValue(value) {
		// Never echo the key itself
		return nil, fmt.Errorf("api_key contains characters not allowed in an HTTP header")
	}

	headers := make(http.Header)
	headers.Set("Authorization", value)
	headers.Set("Content-Type", "application/json")
	return headers, nil
}

func configError(err error) *ChatError {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newError(KindNetwork, err)
	case errors.Is(err, config.ErrConfigNotFound):
		return newError(KindConfigNotFound, err)
	case errors.Is(err, config.ErrConfigMalformed):
		return newError(KindConfigMalformed, err)
	default:
		return newError(KindConfiguration, err)
	}
}

func rejectedError(statusCode int, body []byte) *ChatError {
	kept := body
	if len(kept) > MaxRejectedBodyBytes {
		kept = kept[:MaxRejectedBodyBytes]
	}
	chatErr := &ChatError{
		Kind:       KindServiceRejected,
		StatusCode: statusCode,
		Body:       string(kept),
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		chatErr.ProviderMessage = errResp.Error.Message
	}
	return chatErr
}

func (c *Client) record(model string, start time.Time, chatErr *ChatError) {
	if model == "" {
		model = "unknown"
	}
	outcome := metrics.OutcomeSuccess
	if chatErr != nil {
		outcome = chatErr.Kind.Label()
	}
	c.metrics.RecordAsk(model, time.Since(start), outcome)
}
