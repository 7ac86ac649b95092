package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DukeRupert/postpilot/internal/worker"
)

// TokenPurger deletes API tokens past their expiry.
type TokenPurger interface {
	DeleteExpiredAPITokens(ctx context.Context) (int64, error)
}

// NewPurgeExpiredTokensHandler creates the handler for token cleanup jobs.
func NewPurgeExpiredTokensHandler(tokens TokenPurger, logger *slog.Logger) worker.JobHandler {
	return worker.HandlerFunc(worker.JobTypePurgeExpiredTokens, func(ctx context.Context, _ []byte) error {
		n, err := tokens.DeleteExpiredAPITokens(ctx)
		if err != nil {
			return fmt.Errorf("delete expired tokens: %w", err)
		}
		if n > 0 {
			logger.Info("expired API tokens purged", "count", n)
		}
		return nil
	})
}
