package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DukeRupert/postpilot/internal/ai"
	"github.com/DukeRupert/postpilot/internal/ai/mock"
	"github.com/DukeRupert/postpilot/internal/auth"
	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/DukeRupert/postpilot/internal/service"
	"github.com/DukeRupert/postpilot/internal/usage"
)

// testGate mirrors the entitlement middleware: it authorizes the path feature
// and records the decision.
func testGate(g service.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := auth.GetUser(r.Context())
			d, err := g.Authorize(r.Context(), user, domain.FeatureID(r.PathValue("feature")), testNow)
			if err != nil {
				ErrorResponse(w, r, discardLogger(), err)
				return
			}
			if !d.Allowed {
				DenialResponse(w, r, discardLogger(), d)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.SetDecision(r.Context(), d)))
		})
	}
}

type contentFixture struct {
	mux       *http.ServeMux
	store     *usage.MemoryStore
	generator *mock.Provider
}

func newContentFixture() *contentFixture {
	logger := discardLogger()
	store := usage.NewMemoryStore()
	generator := mock.New(logger)
	gate := service.NewGate(service.NewQuotaService(store, logger), logger)

	h := NewContentHandler(service.NewContentService(generator, logger), logger)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, testGate(gate))

	return &contentFixture{mux: mux, store: store, generator: generator}
}

func (f *contentFixture) post(user *domain.User, feature, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/ai/"+feature, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = withUser(req, user)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *contentFixture) used(t *testing.T, user *domain.User) int64 {
	t.Helper()
	rec, err := f.store.Get(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	return rec.CurrentCount(testNow)
}

func TestContent_GeneratesAndReportsUsage(t *testing.T) {
	f := newContentFixture()
	f.generator.GenerateResponse = &ai.Generation{Text: "Spring is here 🌷"}
	user := testUser(domain.TierFree, domain.SubscriptionStatusInactive)

	rec := f.post(user, "caption", `{"topic":"spring menu","businessType":"bistro"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Caption string     `json:"caption"`
		Feature string     `json:"feature"`
		Usage   quotaUsage `json:"usage"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Caption != "Spring is here 🌷" {
		t.Errorf("caption = %q", body.Caption)
	}
	if body.Feature != "caption" {
		t.Errorf("feature = %q", body.Feature)
	}
	if body.Usage.Used != 1 || body.Usage.Limit != 3 || body.Usage.Remaining != 2 {
		t.Errorf("usage = %+v, want used 1 limit 3 remaining 2", body.Usage)
	}
	if body.Usage.Tier != domain.TierFree {
		t.Errorf("tier = %q", body.Usage.Tier)
	}
}

func TestContent_UnlimitedRemaining(t *testing.T) {
	f := newContentFixture()
	user := testUser(domain.TierPro, domain.SubscriptionStatusActive)

	rec := f.post(user, "ideas30", `{"businessType":"bakery"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Ideas json.RawMessage `json:"ideas"`
		Usage quotaUsage      `json:"usage"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !json.Valid(body.Ideas) || len(body.Ideas) == 0 {
		t.Errorf("ideas not returned as JSON: %s", body.Ideas)
	}
	if body.Usage.Remaining != domain.Unlimited {
		t.Errorf("remaining = %d, want %d", body.Usage.Remaining, domain.Unlimited)
	}
}

func TestContent_InvalidBodyDoesNotConsume(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"malformed", `{"topic":`},
		{"missing topic", `{"platform":"instagram"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newContentFixture()
			user := testUser(domain.TierFree, "")

			rec := f.post(user, "caption", tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if got := f.used(t, user); got != 0 {
				t.Errorf("used = %d, want 0", got)
			}
			if f.generator.Calls() != 0 {
				t.Error("generator should not be called")
			}
		})
	}
}

func TestContent_UnknownFeatureIs404(t *testing.T) {
	f := newContentFixture()
	user := testUser(domain.TierAgency, domain.SubscriptionStatusActive)

	rec := f.post(user, "teleport", `{"topic":"x"}`)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if got := f.used(t, user); got != 0 {
		t.Errorf("used = %d, want 0", got)
	}
}

func TestContent_PlanRequired(t *testing.T) {
	f := newContentFixture()
	user := testUser(domain.TierStarter, domain.SubscriptionStatusActive)

	rec := f.post(user, "translate", `{"caption":"hello","targetLang":"es"}`)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	body := decodeErrorBody(t, rec)
	if body.Code != domain.EPLANREQUIRED || body.RequiredTier != "agency" {
		t.Errorf("body = %+v", body)
	}
	if f.generator.Calls() != 0 {
		t.Error("generator should not be called")
	}
}

func TestContent_LimitReached(t *testing.T) {
	f := newContentFixture()
	user := testUser(domain.TierFree, "")

	for i := 0; i < 3; i++ {
		if rec := f.post(user, "hashtags", `{"topic":"coffee"}`); rec.Code != http.StatusOK {
			t.Fatalf("call %d: status = %d", i+1, rec.Code)
		}
	}

	rec := f.post(user, "hashtags", `{"topic":"coffee"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	body := decodeErrorBody(t, rec)
	if body.Code != domain.ELIMITREACHED {
		t.Errorf("code = %q", body.Code)
	}
	if body.Limit == nil || *body.Limit != 3 || body.Used == nil || *body.Used != 3 {
		t.Errorf("limit/used = %v/%v, want 3/3", body.Limit, body.Used)
	}
	if got := f.used(t, user); got != 3 {
		t.Errorf("used = %d, want 3", got)
	}
}

func TestContent_GeneratorFailureIs502AndNotRefunded(t *testing.T) {
	f := newContentFixture()
	f.generator.GenerateError = ai.EAIUnavailable
	user := testUser(domain.TierFree, "")

	rec := f.post(user, "caption", `{"topic":"x"}`)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if body := decodeErrorBody(t, rec); body.Code != domain.EUPSTREAM {
		t.Errorf("code = %q", body.Code)
	}
	if got := f.used(t, user); got != 1 {
		t.Errorf("used = %d, want 1 (no refund)", got)
	}
}

func TestContent_BannedUser(t *testing.T) {
	f := newContentFixture()
	user := testUser(domain.TierAgency, domain.SubscriptionStatusActive)
	user.IsBanned = true

	rec := f.post(user, "caption", `{"topic":"x"}`)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if body := decodeErrorBody(t, rec); body.Code != domain.EBANNED {
		t.Errorf("code = %q", body.Code)
	}
}

func TestContent_GenerateWithoutDecisionIsInternal(t *testing.T) {
	h := NewContentHandler(service.NewContentService(mock.New(discardLogger()), discardLogger()), discardLogger())

	req := withUser(httptest.NewRequest("POST", "/api/ai/caption", nil), testUser(domain.TierFree, ""))
	rec := httptest.NewRecorder()
	h.Generate(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestNewQuotaUsage_ClampsRemaining(t *testing.T) {
	u := newQuotaUsage(domain.Allow("caption", domain.TierFree, 3, 5))
	if u.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", u.Remaining)
	}
}
