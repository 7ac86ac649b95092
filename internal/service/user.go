// Package service contains the business logic layer.
//
// Services orchestrate interactions between repositories, external APIs,
// and domain logic. They are responsible for:
// - Input validation
// - Business rule enforcement
// - Transaction coordination
// - Error translation (database errors -> domain errors)
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/DukeRupert/postpilot/internal/repository"
	"github.com/google/uuid"
)

// =============================================================================
// Configuration Constants
// =============================================================================

const (
	// APITokenBytes is the number of random bytes in a bearer token.
	// The token is hex-encoded to 64 characters for transmission.
	APITokenBytes = 32

	// DefaultAPITokenTTL is how long an issued token stays valid.
	DefaultAPITokenTTL = 90 * 24 * time.Hour

	// MaxListLimit caps the admin user listing page size.
	MaxListLimit = 200

	// BillingEventWindow is how far back admin stats count webhook events.
	BillingEventWindow = 30 * 24 * time.Hour
)

// =============================================================================
// Interface Definition
// =============================================================================

// UserService defines the interface for user-related operations.
type UserService interface {
	// Create registers a new account on the free plan.
	// Returns domain.ECONFLICT if the email already exists.
	Create(ctx context.Context, params domain.CreateUserParams) (*domain.User, error)

	// GetByID retrieves a user by their ID.
	// Returns domain.ENOTFOUND if user does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetByEmail retrieves a user by email.
	// Returns domain.ENOTFOUND if user does not exist.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetByAPIToken resolves a raw bearer token to its user.
	// Returns domain.EUNAUTHORIZED if the token is unknown or expired.
	// Banned users are returned; the gate classifies them.
	GetByAPIToken(ctx context.Context, token string) (*domain.User, error)

	// IssueAPIToken creates a bearer token for a user. The raw token is only
	// available in the result; the database keeps its SHA-256 hash.
	IssueAPIToken(ctx context.Context, userID uuid.UUID, ttl time.Duration) (*domain.IssuedToken, error)

	// DeleteExpiredAPITokens removes expired tokens and returns the count.
	DeleteExpiredAPITokens(ctx context.Context) (int64, error)

	// =========================================================================
	// Billing Methods
	// =========================================================================

	// UpdateStripeCustomer saves the Stripe customer ID for a user.
	UpdateStripeCustomer(ctx context.Context, userID uuid.UUID, stripeCustomerID string) error

	// GetByStripeCustomerID retrieves a user by their Stripe customer ID.
	// Returns domain.ENOTFOUND if no user has that customer ID.
	GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*domain.User, error)

	// =========================================================================
	// Admin Methods
	// =========================================================================

	// SetPlan assigns a plan outside of billing. Paid plans are flagged as
	// admin grants; the free plan clears the flag and forces inactive.
	SetPlan(ctx context.Context, grant domain.AdminPlanGrant) (*domain.User, error)

	// SetBan bans or unbans a user.
	SetBan(ctx context.Context, userID uuid.UUID, banned bool, reason string) (*domain.User, error)

	// Delete removes an account and everything that cascades from it.
	// Returns domain.ENOTFOUND if user does not exist.
	Delete(ctx context.Context, userID uuid.UUID) error

	// List returns users matching the filter, newest first.
	List(ctx context.Context, filter domain.UserFilter) ([]domain.UserListItem, error)

	// Stats returns platform-wide counts.
	Stats(ctx context.Context) (*domain.AdminStats, error)
}

// =============================================================================
// Implementation
// =============================================================================

// userService is the concrete implementation of UserService.
type userService struct {
	queries *repository.Queries
	logger  *slog.Logger
}

// NewUserService creates a new UserService instance.
func NewUserService(queries *repository.Queries, logger *slog.Logger) UserService {
	return &userService{
		queries: queries,
		logger:  logger,
	}
}

func (s *userService) Create(ctx context.Context, params domain.CreateUserParams) (*domain.User, error) {
	const op = "UserService.Create"

	params.Email = strings.ToLower(strings.TrimSpace(params.Email))
	params.Name = strings.TrimSpace(params.Name)

	if err := validateEmail(params.Email); err != nil {
		return nil, domain.Wrap(err, domain.EINVALID, op, "Invalid email address")
	}

	_, err := s.queries.GetUserByEmail(ctx, params.Email)
	if err == nil {
		return nil, domain.Conflict(op, "Email already registered")
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Internal(err, op, "Failed to check email availability")
	}

	repoUser, err := s.queries.CreateUser(ctx, repository.CreateUserParams{
		Email:   params.Email,
		Name:    params.Name,
		IsAdmin: params.IsAdmin,
	})
	if err != nil {
		// Check for unique constraint violation (race condition)
		if strings.Contains(err.Error(), "unique") || strings.Contains(err.Error(), "duplicate") {
			return nil, domain.Conflict(op, "Email already registered")
		}
		return nil, domain.Internal(err, op, "Failed to create user")
	}

	user := repoUserToDomain(repoUser)
	s.logger.Info("user created", "user_id", user.ID, "email", user.Email)
	return user, nil
}

func (s *userService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const op = "UserService.GetByID"

	repoUser, err := s.queries.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	return repoUserToDomain(repoUser), nil
}

func (s *userService) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const op = "UserService.GetByEmail"

	email = strings.ToLower(strings.TrimSpace(email))
	repoUser, err := s.queries.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", email)
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	return repoUserToDomain(repoUser), nil
}

// GetByAPIToken hashes the raw token and looks up the owning user. The query
// filters expired tokens.
func (s *userService) GetByAPIToken(ctx context.Context, token string) (*domain.User, error) {
	const op = "UserService.GetByAPIToken"

	if len(token) != APITokenBytes*2 {
		return nil, domain.Unauthorized(op, "Invalid or expired token")
	}

	repoUser, err := s.queries.GetUserByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.Unauthorized(op, "Invalid or expired token")
		}
		return nil, domain.Internal(err, op, "Failed to retrieve token")
	}

	return repoUserToDomain(repoUser), nil
}

func (s *userService) IssueAPIToken(ctx context.Context, userID uuid.UUID, ttl time.Duration) (*domain.IssuedToken, error) {
	const op = "UserService.IssueAPIToken"

	if ttl <= 0 {
		ttl = DefaultAPITokenTTL
	}

	token, err := generateToken()
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to generate token")
	}

	expiresAt := time.Now().Add(ttl)
	_, err = s.queries.CreateAPIToken(ctx, repository.CreateAPITokenParams{
		UserID:    userID,
		TokenHash: hashToken(token),
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to store token")
	}

	s.logger.Info("api token issued", "user_id", userID, "expires_at", expiresAt)
	return &domain.IssuedToken{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *userService) DeleteExpiredAPITokens(ctx context.Context) (int64, error) {
	const op = "UserService.DeleteExpiredAPITokens"

	count, err := s.queries.DeleteExpiredAPITokens(ctx)
	if err != nil {
		return 0, domain.Internal(err, op, "Failed to delete expired tokens")
	}
	if count > 0 {
		s.logger.Info("expired api tokens deleted", "count", count)
	}
	return count, nil
}

// =============================================================================
// Billing Methods Implementation
// =============================================================================

// UpdateStripeCustomer saves the Stripe customer ID for a user.
func (s *userService) UpdateStripeCustomer(ctx context.Context, userID uuid.UUID, stripeCustomerID string) error {
	const op = "UserService.UpdateStripeCustomer"

	err := s.queries.UpdateUserStripeCustomer(ctx, repository.UpdateUserStripeCustomerParams{
		ID:               userID,
		StripeCustomerID: domain.ToNullString(stripeCustomerID),
	})
	if err != nil {
		return domain.Internal(err, op, "Failed to update Stripe customer ID")
	}

	s.logger.Info("stripe customer ID updated", "user_id", userID, "stripe_customer_id", stripeCustomerID)
	return nil
}

// GetByStripeCustomerID retrieves a user by their Stripe customer ID.
func (s *userService) GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*domain.User, error) {
	const op = "UserService.GetByStripeCustomerID"

	repoUser, err := s.queries.GetUserByStripeCustomerID(ctx, domain.ToNullString(stripeCustomerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", stripeCustomerID)
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user by Stripe customer ID")
	}

	return repoUserToDomain(repoUser), nil
}

// =============================================================================
// Admin Methods Implementation
// =============================================================================

func (s *userService) SetPlan(ctx context.Context, grant domain.AdminPlanGrant) (*domain.User, error) {
	const op = "UserService.SetPlan"

	if !grant.Plan.Valid() {
		return nil, domain.Invalid(op, "Unknown plan")
	}
	if grant.Status != "" {
		if _, err := domain.ParseSubscriptionStatus(string(grant.Status)); err != nil {
			return nil, domain.Wrap(err, domain.EINVALID, op, "Unknown subscription status")
		}
	}

	status, granted := grant.Normalize()
	repoUser, err := s.queries.SetUserAdminPlan(ctx, repository.SetUserAdminPlanParams{
		ID:                 grant.UserID,
		Plan:               string(grant.Plan),
		SubscriptionStatus: string(status),
		GrantedByAdmin:     granted,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", grant.UserID.String())
		}
		return nil, domain.Internal(err, op, "Failed to set plan")
	}

	s.logger.Info("plan set by admin",
		"user_id", grant.UserID,
		"plan", grant.Plan,
		"status", status,
		"granted_by_admin", granted,
	)
	return repoUserToDomain(repoUser), nil
}

func (s *userService) SetBan(ctx context.Context, userID uuid.UUID, banned bool, reason string) (*domain.User, error) {
	const op = "UserService.SetBan"

	reason = strings.TrimSpace(reason)
	if !banned {
		reason = ""
	}

	repoUser, err := s.queries.SetUserBan(ctx, repository.SetUserBanParams{
		ID:        userID,
		IsBanned:  banned,
		BanReason: reason,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", userID.String())
		}
		return nil, domain.Internal(err, op, "Failed to update ban")
	}

	s.logger.Warn("user ban updated", "user_id", userID, "banned", banned, "reason", reason)
	return repoUserToDomain(repoUser), nil
}

func (s *userService) Delete(ctx context.Context, userID uuid.UUID) error {
	const op = "UserService.Delete"

	count, err := s.queries.DeleteUser(ctx, userID)
	if err != nil {
		return domain.Internal(err, op, "Failed to delete user")
	}
	if count == 0 {
		return domain.NotFound(op, "user", userID.String())
	}

	s.logger.Warn("user deleted", "user_id", userID)
	return nil
}

func (s *userService) List(ctx context.Context, filter domain.UserFilter) ([]domain.UserListItem, error) {
	const op = "UserService.List"

	plans := make([]string, 0, len(filter.Plans))
	for _, p := range filter.Plans {
		if !p.Valid() {
			return nil, domain.Invalid(op, "Unknown plan filter")
		}
		plans = append(plans, string(p))
	}

	limit := filter.Limit
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := s.queries.ListUsers(ctx, repository.ListUsersParams{
		Plans:      plans,
		BannedOnly: filter.BannedOnly,
		Offset:     int32(offset),
		Limit:      int32(limit),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list users")
	}

	items := make([]domain.UserListItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, domain.UserListItem{
			ID:             row.ID,
			Email:          row.Email,
			Name:           row.Name,
			IsAdmin:        row.IsAdmin,
			IsBanned:       row.IsBanned,
			Plan:           domain.Tier(row.Plan),
			Status:         domain.SubscriptionStatus(row.SubscriptionStatus),
			GrantedByAdmin: row.GrantedByAdmin,
			Usage: domain.UsageRecord{
				UserID:         row.ID,
				PostsGenerated: int64(row.PostsGenerated),
				MonthlyReset:   domain.NullTimeValue(row.MonthlyReset),
			},
			CreatedAt: row.CreatedAt,
		})
	}
	return items, nil
}

func (s *userService) Stats(ctx context.Context) (*domain.AdminStats, error) {
	const op = "UserService.Stats"

	totals, err := s.queries.AdminGetStats(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to load stats")
	}

	byPlan, err := s.queries.CountUsersByPlan(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to load plan counts")
	}

	since := time.Now().UTC().Add(-BillingEventWindow)
	events, err := s.queries.CountBillingEventsByType(ctx, since)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to load billing event counts")
	}

	stats := &domain.AdminStats{
		TotalUsers:         totals.TotalUsers,
		BannedUsers:        totals.BannedUsers,
		PayingUsers:        totals.PayingUsers,
		ByPlan:             make(map[domain.Tier]int64, len(domain.Tiers)),
		BillingEvents:      make(map[string]int64, len(events)),
		BillingEventsSince: since,
	}
	for _, t := range domain.Tiers {
		stats.ByPlan[t] = 0
	}
	for _, row := range byPlan {
		stats.ByPlan[domain.Tier(row.Plan)] = row.Count
	}
	for _, row := range events {
		stats.BillingEvents[row.EventType] = row.Count
	}
	return stats, nil
}

// =============================================================================
// Helpers
// =============================================================================

// generateToken creates a cryptographically secure bearer token.
func generateToken() (string, error) {
	bytes := make([]byte, APITokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// hashToken creates a SHA-256 hash of a bearer token. Tokens are high-entropy
// random values, so a fast hash is sufficient.
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// repoUserToDomain converts a repository.User to domain.User.
func repoUserToDomain(u repository.User) *domain.User {
	return &domain.User{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		IsAdmin:   u.IsAdmin,
		IsBanned:  u.IsBanned,
		BanReason: u.BanReason,
		Subscription: domain.SubscriptionState{
			Plan:             domain.Tier(u.Plan),
			Status:           domain.SubscriptionStatus(u.SubscriptionStatus),
			GrantedByAdmin:   u.GrantedByAdmin,
			CurrentPeriodEnd: domain.NullTimeValue(u.CurrentPeriodEnd),
		},
		StripeCustomerID:     domain.NullStringValue(u.StripeCustomerID),
		StripeSubscriptionID: domain.NullStringValue(u.StripeSubscriptionID),
		CreatedAt:            u.CreatedAt,
		UpdatedAt:            u.UpdatedAt,
	}
}

// validateEmail validates an email address format.
//
// Checks:
// - Basic format validation (contains @, has domain)
// - Length limits (RFC 5321: 254 chars max)
func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if len(email) > 254 {
		return errors.New("email is too long")
	}
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 {
		return errors.New("email must contain a local part and a domain")
	}
	domainPart := email[at+1:]
	if !strings.Contains(domainPart, ".") || strings.HasPrefix(domainPart, ".") || strings.HasSuffix(domainPart, ".") {
		return errors.New("email domain is invalid")
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return errors.New("email must not contain whitespace")
	}
	return nil
}

// =============================================================================
// Compile-time interface check
// =============================================================================

// Ensure userService implements UserService
var _ UserService = (*userService)(nil)
