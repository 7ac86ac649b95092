package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/DukeRupert/postpilot/internal/repository"
	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// SubscriptionService applies billing provider events to subscription state.
type SubscriptionService interface {
	// ApplyEvent records the event id and applies its change in one
	// transaction. A redelivered event id is acknowledged without applying
	// anything a second time.
	ApplyEvent(ctx context.Context, event domain.BillingEvent) (domain.BillingEventResult, error)
}

type subscriptionService struct {
	db      *sql.DB
	queries *repository.Queries
	logger  *slog.Logger
}

// NewSubscriptionService creates a SubscriptionService. db is used to open the
// transaction that couples idempotency bookkeeping with the update.
func NewSubscriptionService(db *sql.DB, queries *repository.Queries, logger *slog.Logger) SubscriptionService {
	return &subscriptionService{
		db:      db,
		queries: queries,
		logger:  logger,
	}
}

func (s *subscriptionService) ApplyEvent(ctx context.Context, event domain.BillingEvent) (domain.BillingEventResult, error) {
	const op = "SubscriptionService.ApplyEvent"

	if event.ID == "" {
		return "", domain.Invalid(op, "Event id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", domain.Internal(err, op, "Failed to begin transaction")
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)
	logger := s.logger.With("event_id", event.ID, "event_type", event.Type, "customer_id", event.CustomerID)

	var userID uuid.NullUUID
	if event.CustomerID != "" {
		user, err := qtx.GetUserByStripeCustomerID(ctx, domain.ToNullString(event.CustomerID))
		switch {
		case err == nil:
			userID = uuid.NullUUID{UUID: user.ID, Valid: true}
		case errors.Is(err, sql.ErrNoRows):
			// Unknown customer: record the event so redelivery is a no-op.
		default:
			return "", domain.Internal(err, op, "Failed to look up customer")
		}
	}

	_, err = qtx.InsertBillingEvent(ctx, repository.InsertBillingEventParams{
		EventID:   event.ID,
		EventType: event.Type,
		UserID:    userID,
		Payload:   pqtype.NullRawMessage{RawMessage: event.Payload, Valid: len(event.Payload) > 0},
	})
	if errors.Is(err, sql.ErrNoRows) {
		logger.Info("duplicate billing event skipped")
		return domain.BillingEventDuplicate, nil
	}
	if err != nil {
		return "", domain.Internal(err, op, "Failed to record billing event")
	}

	result := domain.BillingEventSkipped
	if userID.Valid && event.Kind != domain.BillingIgnored {
		if err := s.apply(ctx, qtx, userID.UUID, event); err != nil {
			return "", domain.Internal(err, op, "Failed to apply billing event")
		}
		result = domain.BillingEventApplied
	} else if !userID.Valid && event.Kind != domain.BillingIgnored {
		logger.Warn("billing event for unknown customer")
	}

	if err := tx.Commit(); err != nil {
		return "", domain.Internal(err, op, "Failed to commit billing event")
	}

	logger.Info("billing event processed", "result", result, "kind", event.Kind)
	return result, nil
}

func (s *subscriptionService) apply(ctx context.Context, qtx *repository.Queries, userID uuid.UUID, event domain.BillingEvent) error {
	switch event.Kind {
	case domain.BillingSubscriptionChanged:
		u := event.Update
		if u.Status == "" {
			return fmt.Errorf("subscription event without status")
		}
		_, err := qtx.UpdateUserSubscription(ctx, repository.UpdateUserSubscriptionParams{
			Plan:                 domain.ToNullString(string(u.Plan)),
			SubscriptionStatus:   string(u.Status),
			CurrentPeriodEnd:     domain.ToNullTime(u.CurrentPeriodEnd),
			StripeSubscriptionID: domain.ToNullString(u.StripeSubscriptionID),
			ID:                   userID,
		})
		return err

	case domain.BillingSubscriptionDeleted:
		_, err := qtx.ClearUserSubscription(ctx, userID)
		return err

	case domain.BillingPaymentSucceeded:
		return s.setStatus(ctx, qtx, userID, domain.SubscriptionStatusActive)

	case domain.BillingPaymentFailed:
		return s.setStatus(ctx, qtx, userID, domain.SubscriptionStatusPastDue)
	}
	return fmt.Errorf("unhandled billing event kind %q", event.Kind)
}

func (s *subscriptionService) setStatus(ctx context.Context, qtx *repository.Queries, userID uuid.UUID, status domain.SubscriptionStatus) error {
	_, err := qtx.UpdateUserSubscription(ctx, repository.UpdateUserSubscriptionParams{
		SubscriptionStatus: string(status),
		ID:                 userID,
	})
	return err
}

// Ensure subscriptionService implements SubscriptionService
var _ SubscriptionService = (*subscriptionService)(nil)
