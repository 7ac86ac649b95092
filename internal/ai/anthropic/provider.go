package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DukeRupert/postpilot/internal/ai"
	"github.com/DukeRupert/postpilot/internal/metrics"
)

const (
	// APIBaseURL is the Messages endpoint of the Anthropic API
	APIBaseURL = "https://api.anthropic.com/v1/messages"

	// APIVersion is the Anthropic API version
	APIVersion = "2023-06-01"

	// DefaultModel is the default Claude model to use
	DefaultModel = "claude-3-5-haiku-20241022"

	// Pricing in cents per 1M tokens for the default model
	PricingInputCents  = 80  // $0.80 per 1M input tokens
	PricingOutputCents = 400 // $4 per 1M output tokens

	// DefaultMaxTokens is used when a call does not set MaxTokens
	DefaultMaxTokens = 1000
)

// Config contains configuration for the Anthropic provider
type Config struct {
	APIKey         string
	Model          string
	BaseURL        string
	ProviderConfig ai.ProviderConfig
}

// Provider implements ai.Generator using Anthropic's Claude API
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

var _ ai.Generator = (*Provider)(nil)

// New creates a new Anthropic AI provider
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	// Set defaults
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = APIBaseURL
	}
	if config.ProviderConfig.MaxRetries == 0 {
		config.ProviderConfig.MaxRetries = 3
	}
	if config.ProviderConfig.RetryBaseDelay == 0 {
		config.ProviderConfig.RetryBaseDelay = 1 * time.Second
	}
	if config.ProviderConfig.RequestTimeout == 0 {
		config.ProviderConfig.RequestTimeout = 30 * time.Second
	}

	return &Provider{
		config: config,
		client: &http.Client{
			Timeout: config.ProviderConfig.RequestTimeout,
		},
		logger: logger,
	}, nil
}

// Generate sends a system/user prompt pair to Claude and returns the text reply.
func (p *Provider) Generate(ctx context.Context, params ai.GenerateParams) (*ai.Generation, error) {
	startTime := time.Now()

	if strings.TrimSpace(params.Prompt) == "" {
		return nil, ai.WrapError("generate", fmt.Errorf("%w: prompt is empty", ai.EAIInvalidRequest))
	}

	body, err := p.buildRequestBody(params)
	if err != nil {
		return nil, ai.WrapError("build request", err)
	}

	resp, err := p.executeWithRetry(ctx, body)
	if err != nil {
		metrics.AIAPICalls.WithLabelValues("error").Inc()
		p.logger.Warn("AI generation failed",
			"feature", params.Feature,
			"user_id", params.UserID,
			"error", err,
		)
		return nil, ai.WrapError("execute request", err)
	}
	metrics.AIAPICalls.WithLabelValues("success").Inc()

	text, err := responseText(resp)
	if err != nil {
		return nil, ai.WrapError("parse response", err)
	}

	usage := ai.UsageInfo{
		Model:        p.config.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CostCents:    p.calculateCost(resp.Usage.InputTokens, resp.Usage.OutputTokens),
		Duration:     time.Since(startTime),
	}
	p.trackUsage(usage)

	p.logger.Debug("AI generation completed",
		"feature", params.Feature,
		"user_id", params.UserID,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"duration_ms", usage.Duration.Milliseconds(),
	)

	return &ai.Generation{Text: text, Usage: usage}, nil
}

// buildRequestBody marshals the Messages API request for a generation call
func (p *Provider) buildRequestBody(params ai.GenerateParams) ([]byte, error) {
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	reqBody := apiRequest{
		Model:     p.config.Model,
		MaxTokens: maxTokens,
		System:    params.System,
		Messages: []apiMessage{
			{
				Role: "user",
				Content: []apiContent{
					{Type: "text", Text: params.Prompt},
				},
			},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return bodyBytes, nil
}

// newRequest builds a fresh HTTP request; a request body cannot be replayed.
func (p *Provider) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", APIVersion)

	return req, nil
}

// executeWithRetry executes the request with exponential backoff retry
func (p *Provider) executeWithRetry(ctx context.Context, body []byte) (*apiResponse, error) {
	var lastErr error

	for attempt := 1; attempt <= p.config.ProviderConfig.MaxRetries; attempt++ {
		req, err := p.newRequest(ctx, body)
		if err != nil {
			return nil, err
		}

		resp, err := p.executeRequest(req)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		// Only retry on retryable errors
		if !ai.IsRetryable(err) {
			return nil, err
		}

		if attempt >= p.config.ProviderConfig.MaxRetries {
			break
		}

		// Exponential: base * 2^(attempt-1)
		delay := p.config.ProviderConfig.RetryBaseDelay * time.Duration(1<<(attempt-1))
		p.logger.Info("Retrying AI request", "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// executeRequest executes a single HTTP request
func (p *Provider) executeRequest(req *http.Request) (*apiResponse, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ai.EAITimeout
		}
		// Network errors are typically retryable
		return nil, ai.EAIUnavailable
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.mapHTTPError(resp.StatusCode, bodyBytes)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &apiResp, nil
}

// mapHTTPError maps HTTP status codes to provider errors
func (p *Provider) mapHTTPError(statusCode int, body []byte) error {
	var errResp apiErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ai.EAIUnauthorized
	case http.StatusTooManyRequests:
		return ai.EAIRateLimit
	case http.StatusRequestTimeout:
		return ai.EAITimeout
	case http.StatusBadRequest:
		if strings.Contains(strings.ToLower(errResp.Error.Message), "policy") {
			return fmt.Errorf("%w: %s", ai.EAIContentPolicy, errResp.Error.Message)
		}
		return fmt.Errorf("%w: %s", ai.EAIInvalidRequest, errResp.Error.Message)
	case http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusBadGateway,
		http.StatusGatewayTimeout, 529: // 529: overloaded
		return ai.EAIUnavailable
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, errResp.Error.Message)
	}
}

// responseText concatenates the text blocks of a response
func responseText(resp *apiResponse) (string, error) {
	var b strings.Builder
	for _, content := range resp.Content {
		if content.Type == "text" {
			b.WriteString(content.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("%w: no text content in response", ai.EAIInvalidOutput)
	}
	return text, nil
}

// calculateCost calculates the cost in cents for the given token usage
func (p *Provider) calculateCost(inputTokens, outputTokens int) int {
	inputCost := (inputTokens * PricingInputCents) / 1_000_000
	outputCost := (outputTokens * PricingOutputCents) / 1_000_000
	return inputCost + outputCost
}

// trackUsage records token and cost totals
func (p *Provider) trackUsage(usage ai.UsageInfo) {
	metrics.AITokensTotal.WithLabelValues("input").Add(float64(usage.InputTokens))
	metrics.AITokensTotal.WithLabelValues("output").Add(float64(usage.OutputTokens))
	metrics.AICostCentsTotal.Add(float64(usage.CostCents))
}

// API request/response types

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system,omitempty"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string       `json:"role"`
	Content []apiContent `json:"content"`
}

type apiContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiResponse struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []apiContentOutput `json:"content"`
	Model   string             `json:"model"`
	Usage   apiUsage           `json:"usage"`
}

type apiContentOutput struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiErrorResponse struct {
	Type  string   `json:"type"`
	Error apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
