package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DukeRupert/postpilot/internal/auth"
	"github.com/DukeRupert/postpilot/internal/billing"
	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
)

var testNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

// =============================================================================
// Mock UserService Implementation
// =============================================================================

// mockUserService implements the service.UserService interface for testing.
type mockUserService struct {
	GetByIDFunc              func(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateStripeCustomerFunc func(ctx context.Context, userID uuid.UUID, stripeCustomerID string) error
	SetPlanFunc              func(ctx context.Context, grant domain.AdminPlanGrant) (*domain.User, error)
	SetBanFunc               func(ctx context.Context, userID uuid.UUID, banned bool, reason string) (*domain.User, error)
	DeleteFunc               func(ctx context.Context, userID uuid.UUID) error
	ListFunc                 func(ctx context.Context, filter domain.UserFilter) ([]domain.UserListItem, error)
	StatsFunc                func(ctx context.Context) (*domain.AdminStats, error)
}

func (m *mockUserService) Create(ctx context.Context, params domain.CreateUserParams) (*domain.User, error) {
	return nil, errors.New("not implemented")
}

func (m *mockUserService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, errors.New("not implemented")
}

func (m *mockUserService) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return nil, errors.New("not implemented")
}

func (m *mockUserService) GetByAPIToken(ctx context.Context, token string) (*domain.User, error) {
	return nil, errors.New("not implemented")
}

func (m *mockUserService) IssueAPIToken(ctx context.Context, userID uuid.UUID, ttl time.Duration) (*domain.IssuedToken, error) {
	return nil, errors.New("not implemented")
}

func (m *mockUserService) DeleteExpiredAPITokens(ctx context.Context) (int64, error) {
	return 0, errors.New("not implemented")
}

func (m *mockUserService) UpdateStripeCustomer(ctx context.Context, userID uuid.UUID, stripeCustomerID string) error {
	if m.UpdateStripeCustomerFunc != nil {
		return m.UpdateStripeCustomerFunc(ctx, userID, stripeCustomerID)
	}
	return errors.New("not implemented")
}

func (m *mockUserService) GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*domain.User, error) {
	return nil, errors.New("not implemented")
}

func (m *mockUserService) SetPlan(ctx context.Context, grant domain.AdminPlanGrant) (*domain.User, error) {
	if m.SetPlanFunc != nil {
		return m.SetPlanFunc(ctx, grant)
	}
	return nil, errors.New("not implemented")
}

func (m *mockUserService) SetBan(ctx context.Context, userID uuid.UUID, banned bool, reason string) (*domain.User, error) {
	if m.SetBanFunc != nil {
		return m.SetBanFunc(ctx, userID, banned, reason)
	}
	return nil, errors.New("not implemented")
}

func (m *mockUserService) Delete(ctx context.Context, userID uuid.UUID) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, userID)
	}
	return errors.New("not implemented")
}

func (m *mockUserService) List(ctx context.Context, filter domain.UserFilter) ([]domain.UserListItem, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return nil, errors.New("not implemented")
}

func (m *mockUserService) Stats(ctx context.Context) (*domain.AdminStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx)
	}
	return nil, errors.New("not implemented")
}

// =============================================================================
// Mock billing.Service Implementation
// =============================================================================

type mockBillingService struct {
	CreateCustomerFunc  func(email, name string) (string, error)
	CheckoutFunc        func(customerID, priceID, successURL, cancelURL string) (string, error)
	PortalFunc          func(customerID, returnURL string) (string, error)
	VerifyFunc          func(payload []byte, signature string) (stripe.Event, error)
	ParseEventFunc      func(event stripe.Event) (domain.BillingEvent, error)
	Prices              map[domain.Tier]string
	createCustomerCalls int
}

func (m *mockBillingService) CreateCustomer(email, name string) (string, error) {
	m.createCustomerCalls++
	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(email, name)
	}
	return "cus_test", nil
}

func (m *mockBillingService) CreateCheckoutSession(customerID, priceID, successURL, cancelURL string) (string, error) {
	if m.CheckoutFunc != nil {
		return m.CheckoutFunc(customerID, priceID, successURL, cancelURL)
	}
	return "https://checkout.stripe.test/" + priceID, nil
}

func (m *mockBillingService) CreatePortalSession(customerID, returnURL string) (string, error) {
	if m.PortalFunc != nil {
		return m.PortalFunc(customerID, returnURL)
	}
	return "https://billing.stripe.test/" + customerID, nil
}

func (m *mockBillingService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(payload, signature)
	}
	return stripe.Event{}, errors.New("not implemented")
}

func (m *mockBillingService) PriceFor(tier domain.Tier, interval billing.Interval) (string, error) {
	if id, ok := m.Prices[tier]; ok {
		return id + "_" + string(interval), nil
	}
	return "", errors.New("price not configured")
}

func (m *mockBillingService) TierForPriceID(priceID string) domain.Tier {
	return ""
}

func (m *mockBillingService) ParseEvent(event stripe.Event) (domain.BillingEvent, error) {
	if m.ParseEventFunc != nil {
		return m.ParseEventFunc(event)
	}
	return domain.BillingEvent{ID: event.ID, Type: string(event.Type), Kind: domain.BillingIgnored}, nil
}

// =============================================================================
// Mock SubscriptionService Implementation
// =============================================================================

type mockSubscriptionService struct {
	ApplyEventFunc func(ctx context.Context, event domain.BillingEvent) (domain.BillingEventResult, error)
	applied        []domain.BillingEvent
}

func (m *mockSubscriptionService) ApplyEvent(ctx context.Context, event domain.BillingEvent) (domain.BillingEventResult, error) {
	m.applied = append(m.applied, event)
	if m.ApplyEventFunc != nil {
		return m.ApplyEventFunc(ctx, event)
	}
	return domain.BillingEventApplied, nil
}

// =============================================================================
// Test Helpers
// =============================================================================

func testUser(plan domain.Tier, status domain.SubscriptionStatus) *domain.User {
	return &domain.User{
		ID:           uuid.New(),
		Email:        "owner@example.com",
		Name:         "Owner",
		Subscription: domain.SubscriptionState{Plan: plan, Status: status},
	}
}

// withUser attaches user to the request context the way the auth middleware does.
func withUser(r *http.Request, user *domain.User) *http.Request {
	if user == nil {
		return r
	}
	return r.WithContext(auth.SetUser(r.Context(), user))
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body JSONError
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v (body %q)", err, rec.Body.String())
	}
	return body.Error
}
