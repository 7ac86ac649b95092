package mock

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/DukeRupert/postpilot/internal/ai"
)

// Provider is a mock AI provider for testing and development
type Provider struct {
	logger *slog.Logger

	mu sync.Mutex

	// Configurable responses for testing
	GenerateResponse *ai.Generation
	GenerateError    error

	// Call tracking for testing
	GenerateCalls int
	LastParams    ai.GenerateParams
}

var _ ai.Generator = (*Provider)(nil)

// New creates a new mock AI provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// Generate returns a canned reply. Prompts that end with a JSON skeleton get
// the skeleton back, so structured features parse in development.
func (p *Provider) Generate(ctx context.Context, params ai.GenerateParams) (*ai.Generation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.GenerateCalls++
	p.LastParams = params

	if p.GenerateError != nil {
		return nil, p.GenerateError
	}
	if p.GenerateResponse != nil {
		return p.GenerateResponse, nil
	}

	text := "Mock reply: " + params.Prompt
	if i := strings.LastIndex(params.Prompt, "JSON: "); i >= 0 {
		text = params.Prompt[i+len("JSON: "):]
	}

	p.logger.Debug("Mock AI generation", "feature", params.Feature, "max_tokens", params.MaxTokens)

	return &ai.Generation{
		Text: text,
		Usage: ai.UsageInfo{
			Model:        "mock-ai-v1",
			InputTokens:  len(params.System+params.Prompt) / 4,
			OutputTokens: len(text) / 4,
			Duration:     5 * time.Millisecond,
		},
	}, nil
}

// Calls returns the number of Generate calls so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.GenerateCalls
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateCalls = 0
	p.LastParams = ai.GenerateParams{}
	p.GenerateResponse = nil
	p.GenerateError = nil
}
