package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/DukeRupert/postpilot/internal/ai"
	"github.com/DukeRupert/postpilot/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Content is the result of one generation request, keyed the way the
// endpoint returns it (e.g. {"caption": "..."} or {"ideas": [...]}).
type Content struct {
	Feature domain.FeatureID
	Result  map[string]any
	Usage   ai.UsageInfo
}

// ContentService renders feature prompts and runs them through a Generator.
type ContentService interface {
	// Validate applies defaults to in and checks the feature's required
	// fields. It does not touch the usage ledger.
	Validate(feature domain.FeatureID, in *ai.Input) error

	// Generate produces content for an already-authorized request. Provider
	// failures are returned as domain.EUPSTREAM errors.
	Generate(ctx context.Context, user *domain.User, feature domain.FeatureID, in ai.Input) (*Content, error)
}

type contentService struct {
	generator ai.Generator
	logger    *slog.Logger
}

// NewContentService creates a ContentService backed by generator.
func NewContentService(generator ai.Generator, logger *slog.Logger) ContentService {
	return &contentService{
		generator: generator,
		logger:    logger,
	}
}

func (s *contentService) Validate(feature domain.FeatureID, in *ai.Input) error {
	const op = "content.validate"

	tmpl, ok := ai.Lookup(feature)
	if !ok {
		return domain.NotFound(op, "feature", string(feature))
	}
	return tmpl.Validate(op, in)
}

func (s *contentService) Generate(ctx context.Context, user *domain.User, feature domain.FeatureID, in ai.Input) (*Content, error) {
	const op = "content.generate"

	tmpl, ok := ai.Lookup(feature)
	if !ok {
		return nil, domain.NotFound(op, "feature", string(feature))
	}
	if err := tmpl.Validate(op, &in); err != nil {
		return nil, err
	}

	content := &Content{Feature: feature, Result: make(map[string]any, 1)}

	switch {
	case tmpl.Local():
		content.Result[tmpl.Key] = ai.ImageURL(in)

	case len(tmpl.Parts) > 0:
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for _, part := range tmpl.Parts {
			partTmpl, ok := ai.Lookup(part)
			if !ok {
				return nil, domain.Internal(nil, op, "composite feature references unknown part "+string(part))
			}
			partIn := in
			g.Go(func() error {
				value, usage, err := s.run(gctx, user, part, partTmpl, partIn)
				if err != nil {
					return err
				}
				mu.Lock()
				content.Result[partTmpl.Key] = value
				content.Usage = content.Usage.Add(usage)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

	default:
		value, usage, err := s.run(ctx, user, feature, tmpl, in)
		if err != nil {
			return nil, err
		}
		content.Result[tmpl.Key] = value
		content.Usage = usage
	}

	s.logger.Info("content generated",
		"user_id", user.ID,
		"feature", feature,
		"input_tokens", content.Usage.InputTokens,
		"output_tokens", content.Usage.OutputTokens,
	)

	return content, nil
}

// run executes one template against the generator.
func (s *contentService) run(ctx context.Context, user *domain.User, feature domain.FeatureID, tmpl ai.Template, in ai.Input) (any, ai.UsageInfo, error) {
	const op = "content.generate"

	if err := tmpl.Validate(op, &in); err != nil {
		return nil, ai.UsageInfo{}, err
	}

	params := tmpl.Params(in)
	params.Feature = feature
	params.UserID = user.ID

	gen, err := s.generator.Generate(ctx, params)
	if err != nil {
		s.logger.Warn("generation failed", "user_id", user.ID, "feature", feature, "error", err)
		return nil, ai.UsageInfo{}, domain.Upstream(err, op)
	}

	if !tmpl.JSON {
		return gen.Text, gen.Usage, nil
	}

	raw, err := ai.ParseJSON(gen.Text)
	if err != nil {
		s.logger.Warn("unparseable generation", "user_id", user.ID, "feature", feature, "error", err)
		return nil, gen.Usage, domain.Upstream(err, op)
	}
	return raw, gen.Usage, nil
}

// Ensure contentService implements ContentService
var _ ContentService = (*contentService)(nil)
