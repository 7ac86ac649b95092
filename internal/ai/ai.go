package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/google/uuid"
)

// Generator produces text for a rendered feature prompt.
type Generator interface {
	// Generate sends one system/user prompt pair to the model and returns
	// the raw text of its reply.
	Generate(ctx context.Context, params GenerateParams) (*Generation, error)
}

// GenerateParams contains parameters for a single generation call
type GenerateParams struct {
	System    string           // System prompt
	Prompt    string           // User prompt
	MaxTokens int              // Upper bound on output tokens
	Feature   domain.FeatureID // Feature being generated, for logging
	UserID    uuid.UUID        // Requesting user, for logging
}

// Generation is the model's reply to one GenerateParams.
type Generation struct {
	Text  string
	Usage UsageInfo
}

// UsageInfo tracks API usage for monitoring
type UsageInfo struct {
	Model        string        // AI model used
	InputTokens  int           // Tokens in the request
	OutputTokens int           // Tokens in the response
	CostCents    int           // Estimated cost in cents
	Duration     time.Duration // Request duration
}

// Add accumulates usage from several calls made for one request.
func (u UsageInfo) Add(other UsageInfo) UsageInfo {
	if u.Model == "" {
		u.Model = other.Model
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CostCents += other.CostCents
	if other.Duration > u.Duration {
		u.Duration = other.Duration
	}
	return u
}

// ProviderConfig contains common configuration for AI providers
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for AI provider operations
var (
	// EAIRateLimit indicates the API rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIInvalidRequest indicates the provider rejected the request payload
	EAIInvalidRequest = errors.New("ai provider rejected the request")

	// EAIContentPolicy indicates the prompt or reply was refused on policy grounds
	EAIContentPolicy = errors.New("content violates provider policy")

	// EAITimeout indicates the request timed out
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the AI service is temporarily unavailable
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")

	// EAIInvalidOutput indicates the reply could not be parsed into the
	// structure the prompt asked for
	EAIInvalidOutput = errors.New("ai reply was not in the expected format")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}

// ParseJSON extracts a JSON value from a model reply. Markdown code fences
// are stripped; if the remaining text is not valid JSON, the outermost array
// and then the outermost object are tried.
func ParseJSON(text string) (json.RawMessage, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.ReplaceAll(cleaned, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```JSON", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	if json.Valid([]byte(cleaned)) {
		return json.RawMessage(cleaned), nil
	}
	for _, delims := range [][2]string{{"[", "]"}, {"{", "}"}} {
		start := strings.Index(cleaned, delims[0])
		end := strings.LastIndex(cleaned, delims[1])
		if start < 0 || end <= start {
			continue
		}
		candidate := cleaned[start : end+1]
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}
	return nil, EAIInvalidOutput
}
