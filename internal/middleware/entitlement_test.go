package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DukeRupert/postpilot/internal/auth"
	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/DukeRupert/postpilot/internal/handler"
	"github.com/DukeRupert/postpilot/internal/service"
	"github.com/DukeRupert/postpilot/internal/usage"
	"github.com/google/uuid"
)

var entitlementNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

// brokenStore fails every call.
type brokenStore struct{}

func (brokenStore) Consume(context.Context, uuid.UUID, int, time.Time) (domain.ConsumeResult, error) {
	return domain.ConsumeResult{}, errors.New("redis: connection refused")
}

func (brokenStore) Get(context.Context, uuid.UUID) (domain.UsageRecord, error) {
	return domain.UsageRecord{}, errors.New("redis: connection refused")
}

func (brokenStore) Reset(context.Context, uuid.UUID, time.Time) error {
	return errors.New("redis: connection refused")
}

func (brokenStore) Delete(context.Context, uuid.UUID) error {
	return errors.New("redis: connection refused")
}

func (brokenStore) Backend() string { return "broken" }

func newTestEntitlement(store usage.Store) *EntitlementMiddleware {
	logger := newTestLogger()
	gate := service.NewGate(service.NewQuotaService(store, logger), logger)
	mw := NewEntitlementMiddleware(gate, logger)
	mw.now = func() time.Time { return entitlementNow }
	return mw
}

// serveFeature routes the request through a mux so PathValue is populated.
func serveFeature(mw *EntitlementMiddleware, user *domain.User, feature string, next http.Handler) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.Handle("POST /api/ai/{feature}", mw.RequirePathFeature(next))

	req := httptest.NewRequest("POST", "/api/ai/"+feature, nil)
	if user != nil {
		req = req.WithContext(auth.SetUser(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func entitlementUser(plan domain.Tier, status domain.SubscriptionStatus) *domain.User {
	return &domain.User{
		ID:           uuid.New(),
		Email:        "owner@example.com",
		Subscription: domain.SubscriptionState{Plan: plan, Status: status},
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) handler.ErrorBody {
	t.Helper()
	var body handler.JSONError
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestRequirePathFeature_AllowedStoresDecision(t *testing.T) {
	store := usage.NewMemoryStore()
	mw := newTestEntitlement(store)
	user := entitlementUser(domain.TierFree, domain.SubscriptionStatusInactive)

	var got *domain.Decision
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = auth.GetDecision(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := serveFeature(mw, user, "caption", next)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got == nil || !got.Allowed {
		t.Fatalf("decision = %+v, want allowed", got)
	}
	if got.Used != 1 || got.Limit != 3 {
		t.Errorf("used/limit = %d/%d, want 1/3", got.Used, got.Limit)
	}
}

func TestRequirePathFeature_PlanRequired(t *testing.T) {
	mw := newTestEntitlement(usage.NewMemoryStore())
	user := entitlementUser(domain.TierFree, domain.SubscriptionStatusInactive)

	called := false
	rec := serveFeature(mw, user, "week", okHandler(&called))

	if called {
		t.Error("handler should not run on denial")
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	body := decodeError(t, rec)
	if body.Code != domain.EPLANREQUIRED || body.RequiredTier != "starter" {
		t.Errorf("body = %+v, want plan_required/starter", body)
	}
}

func TestRequirePathFeature_LimitReached(t *testing.T) {
	store := usage.NewMemoryStore()
	mw := newTestEntitlement(store)
	user := entitlementUser(domain.TierFree, domain.SubscriptionStatusInactive)
	reset := entitlementNow.AddDate(0, 0, -2)
	store.Set(domain.UsageRecord{UserID: user.ID, PostsGenerated: 3, MonthlyReset: &reset})

	called := false
	rec := serveFeature(mw, user, "caption", okHandler(&called))

	if called {
		t.Error("handler should not run on denial")
	}
	body := decodeError(t, rec)
	if body.Code != domain.ELIMITREACHED {
		t.Fatalf("code = %q, want %q", body.Code, domain.ELIMITREACHED)
	}
	if body.Limit == nil || *body.Limit != 3 || body.Used == nil || *body.Used != 3 {
		t.Errorf("limit/used = %v/%v, want 3/3", body.Limit, body.Used)
	}
}

func TestRequirePathFeature_Banned(t *testing.T) {
	mw := newTestEntitlement(usage.NewMemoryStore())
	user := entitlementUser(domain.TierAgency, domain.SubscriptionStatusActive)
	user.IsBanned = true

	called := false
	rec := serveFeature(mw, user, "caption", okHandler(&called))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if body := decodeError(t, rec); body.Code != domain.EBANNED {
		t.Errorf("code = %q, want %q", body.Code, domain.EBANNED)
	}
}

func TestRequirePathFeature_StorageFailureIs500(t *testing.T) {
	mw := newTestEntitlement(brokenStore{})
	user := entitlementUser(domain.TierStarter, domain.SubscriptionStatusActive)

	called := false
	rec := serveFeature(mw, user, "caption", okHandler(&called))

	if called {
		t.Error("handler should not run when the store is down")
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestRequirePathFeature_UnregisteredFeatureIs404(t *testing.T) {
	store := usage.NewMemoryStore()
	mw := newTestEntitlement(store)
	user := entitlementUser(domain.TierFree, domain.SubscriptionStatusInactive)

	called := false
	rec := serveFeature(mw, user, "nonexistent-feature", okHandler(&called))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	rec2, _ := store.Get(context.Background(), user.ID)
	if rec2.PostsGenerated != 0 {
		t.Errorf("unregistered feature consumed quota: %d", rec2.PostsGenerated)
	}
}

func TestRequirePathFeature_NoUserIs401(t *testing.T) {
	mw := newTestEntitlement(usage.NewMemoryStore())

	called := false
	rec := serveFeature(mw, nil, "caption", okHandler(&called))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireFeature_Fixed(t *testing.T) {
	mw := newTestEntitlement(usage.NewMemoryStore())
	user := entitlementUser(domain.TierPro, domain.SubscriptionStatusActive)

	called := false
	req := httptest.NewRequest("POST", "/api/ai/ideas", nil)
	req = req.WithContext(auth.SetUser(req.Context(), user))
	rec := httptest.NewRecorder()

	mw.RequireFeature("ideas30")(okHandler(&called)).ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Errorf("called=%v status=%d, want true/200", called, rec.Code)
	}
}
