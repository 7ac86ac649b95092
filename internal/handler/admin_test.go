package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/DukeRupert/postpilot/internal/service"
	"github.com/DukeRupert/postpilot/internal/usage"
	"github.com/google/uuid"
)

type adminFixture struct {
	mux   *http.ServeMux
	users *mockUserService
	store *usage.MemoryStore
	admin *domain.User
}

func newAdminFixture() *adminFixture {
	users := &mockUserService{}
	store := usage.NewMemoryStore()
	h := NewAdminHandler(users, service.NewQuotaService(store, discardLogger()), discardLogger())
	h.now = func() time.Time { return testNow }

	admin := testUser(domain.TierFree, "")
	admin.IsAdmin = true

	mux := http.NewServeMux()
	passthrough := func(next http.Handler) http.Handler { return next }
	h.RegisterRoutes(mux, passthrough)

	return &adminFixture{mux: mux, users: users, store: store, admin: admin}
}

func (f *adminFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, withUser(req, f.admin))
	return rec
}

func (f *adminFixture) seedUsage(userID uuid.UUID, count int64) {
	cycle := domain.CycleStart(testNow)
	f.store.Set(domain.UsageRecord{UserID: userID, PostsGenerated: count, MonthlyReset: &cycle})
}

func TestAdminStats(t *testing.T) {
	f := newAdminFixture()
	f.users.StatsFunc = func(ctx context.Context) (*domain.AdminStats, error) {
		return &domain.AdminStats{
			TotalUsers:  10,
			BannedUsers: 1,
			PayingUsers: 4,
			ByPlan:      map[domain.Tier]int64{domain.TierFree: 6, domain.TierPro: 4},
			BillingEvents: map[string]int64{
				"checkout.session.completed": 3,
				"invoice.payment_failed":     1,
			},
			BillingEventsSince: testNow.AddDate(0, 0, -30),
		}, nil
	}

	rec := f.do("GET", "/api/admin/stats", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body StatsResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.TotalUsers != 10 || body.BannedUsers != 1 || body.PayingUsers != 4 {
		t.Errorf("stats = %+v", body)
	}
	if len(body.ByPlan) != 4 {
		t.Errorf("by_plan has %d tiers, want 4", len(body.ByPlan))
	}
	if body.ByPlan[domain.TierAgency] != 0 || body.ByPlan[domain.TierPro] != 4 {
		t.Errorf("by_plan = %v", body.ByPlan)
	}
	if body.BillingEvents["checkout.session.completed"] != 3 || body.BillingEvents["invoice.payment_failed"] != 1 {
		t.Errorf("billing_events = %v", body.BillingEvents)
	}
	if !body.BillingEventsSince.Equal(testNow.AddDate(0, 0, -30)) {
		t.Errorf("billing_events_since = %v", body.BillingEventsSince)
	}
}

func TestAdminStats_NoBillingEvents(t *testing.T) {
	f := newAdminFixture()
	f.users.StatsFunc = func(ctx context.Context) (*domain.AdminStats, error) {
		return &domain.AdminStats{ByPlan: map[domain.Tier]int64{}}, nil
	}

	rec := f.do("GET", "/api/admin/stats", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"billing_events":{}`) {
		t.Errorf("body = %s, want an empty billing_events object", rec.Body.String())
	}
}

func TestAdminListUsers(t *testing.T) {
	f := newAdminFixture()
	id := uuid.New()
	current := domain.CycleStart(testNow)
	stale := domain.CycleStart(testNow.AddDate(0, -1, 0))

	var gotFilter domain.UserFilter
	f.users.ListFunc = func(ctx context.Context, filter domain.UserFilter) ([]domain.UserListItem, error) {
		gotFilter = filter
		return []domain.UserListItem{
			{ID: id, Email: "a@example.com", Plan: domain.TierStarter, Status: domain.SubscriptionStatusActive,
				Usage: domain.UsageRecord{UserID: id, PostsGenerated: 7, MonthlyReset: &current}},
			{ID: uuid.New(), Email: "b@example.com", Plan: domain.TierStarter, Status: domain.SubscriptionStatusActive,
				Usage: domain.UsageRecord{PostsGenerated: 30, MonthlyReset: &stale}},
		}, nil
	}

	rec := f.do("GET", "/api/admin/users?plan=starter,pro&banned=false&limit=20&offset=40", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if len(gotFilter.Plans) != 2 || gotFilter.Plans[0] != domain.TierStarter || gotFilter.Plans[1] != domain.TierPro {
		t.Errorf("plans = %v", gotFilter.Plans)
	}
	if gotFilter.BannedOnly || gotFilter.Limit != 20 || gotFilter.Offset != 40 {
		t.Errorf("filter = %+v", gotFilter)
	}

	var body struct {
		Users []AdminUser `json:"users"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Users) != 2 {
		t.Fatalf("got %d users, want 2", len(body.Users))
	}
	if body.Users[0].PostsGenerated != 7 {
		t.Errorf("users[0].posts_generated = %d, want 7", body.Users[0].PostsGenerated)
	}
	if body.Users[1].PostsGenerated != 0 {
		t.Errorf("users[1].posts_generated = %d, want 0 after rollover", body.Users[1].PostsGenerated)
	}
}

func TestAdminListUsers_DefaultLimit(t *testing.T) {
	f := newAdminFixture()
	var gotFilter domain.UserFilter
	f.users.ListFunc = func(ctx context.Context, filter domain.UserFilter) ([]domain.UserListItem, error) {
		gotFilter = filter
		return nil, nil
	}

	rec := f.do("GET", "/api/admin/users", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotFilter.Limit != 50 || gotFilter.Offset != 0 || len(gotFilter.Plans) != 0 {
		t.Errorf("filter = %+v", gotFilter)
	}
	if !strings.Contains(rec.Body.String(), `"users":[]`) {
		t.Errorf("body = %s, want empty users array", rec.Body.String())
	}
}

func TestAdminListUsers_BadFilter(t *testing.T) {
	tests := []string{
		"/api/admin/users?plan=gold",
		"/api/admin/users?banned=maybe",
		"/api/admin/users?limit=0",
		"/api/admin/users?limit=501",
		"/api/admin/users?offset=-1",
	}

	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			f := newAdminFixture()
			rec := f.do("GET", path, "")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestAdminUserDetail(t *testing.T) {
	f := newAdminFixture()
	user := testUser(domain.TierStarter, domain.SubscriptionStatusActive)
	user.IsBanned = true
	user.BanReason = "spam"
	f.users.GetByIDFunc = func(ctx context.Context, id uuid.UUID) (*domain.User, error) {
		if id != user.ID {
			return nil, domain.NotFound("user.get", "user", id.String())
		}
		return user, nil
	}
	f.seedUsage(user.ID, 10)

	rec := f.do("GET", "/api/admin/users/"+user.ID.String(), "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var body UserDetailResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ID != user.ID || !body.IsBanned || body.BanReason != "spam" {
		t.Errorf("user = %+v", body.AdminUser)
	}
	if body.EffectiveTier != domain.TierStarter {
		t.Errorf("effective_tier = %s", body.EffectiveTier)
	}
	if body.Usage.Used != 10 || body.Usage.Limit != 50 || body.Usage.Remaining != 40 {
		t.Errorf("usage = %+v", body.Usage)
	}
	if body.PostsGenerated != 10 {
		t.Errorf("posts_generated = %d", body.PostsGenerated)
	}
}

func TestAdminUserDetail_Errors(t *testing.T) {
	f := newAdminFixture()
	f.users.GetByIDFunc = func(ctx context.Context, id uuid.UUID) (*domain.User, error) {
		return nil, domain.NotFound("user.get", "user", id.String())
	}

	if rec := f.do("GET", "/api/admin/users/not-a-uuid", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid id: status = %d, want 400", rec.Code)
	}
	if rec := f.do("GET", "/api/admin/users/"+uuid.NewString(), ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing user: status = %d, want 404", rec.Code)
	}
}

func TestAdminSetPlan(t *testing.T) {
	f := newAdminFixture()
	target := uuid.New()

	var gotGrant domain.AdminPlanGrant
	f.users.SetPlanFunc = func(ctx context.Context, grant domain.AdminPlanGrant) (*domain.User, error) {
		gotGrant = grant
		status, granted := grant.Normalize()
		u := testUser(grant.Plan, status)
		u.ID = grant.UserID
		u.Subscription.GrantedByAdmin = granted
		return u, nil
	}

	rec := f.do("PATCH", "/api/admin/users/"+target.String()+"/plan", `{"plan":"Agency"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if gotGrant.UserID != target || gotGrant.Plan != domain.TierAgency || gotGrant.Status != "" {
		t.Errorf("grant = %+v", gotGrant)
	}

	var body UserDetailResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Plan != domain.TierAgency || !body.GrantedByAdmin || body.EffectiveTier != domain.TierAgency {
		t.Errorf("body = %+v", body)
	}
	if body.Usage.Remaining != domain.Unlimited {
		t.Errorf("remaining = %d, want unlimited", body.Usage.Remaining)
	}
}

func TestAdminSetPlan_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown plan", `{"plan":"gold"}`},
		{"unknown status", `{"plan":"pro","status":"paused"}`},
		{"empty body", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAdminFixture()
			rec := f.do("PATCH", "/api/admin/users/"+uuid.NewString()+"/plan", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestAdminSetBan(t *testing.T) {
	f := newAdminFixture()
	target := testUser(domain.TierPro, domain.SubscriptionStatusActive)

	var gotBanned bool
	var gotReason string
	f.users.SetBanFunc = func(ctx context.Context, userID uuid.UUID, banned bool, reason string) (*domain.User, error) {
		gotBanned, gotReason = banned, reason
		target.IsBanned, target.BanReason = banned, reason
		return target, nil
	}

	rec := f.do("PATCH", "/api/admin/users/"+target.ID.String()+"/ban", `{"banned":true,"reason":"  chargeback  "}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if !gotBanned || gotReason != "chargeback" {
		t.Errorf("SetBan(%v, %q)", gotBanned, gotReason)
	}
}

func TestAdminSetBan_CannotBanSelf(t *testing.T) {
	f := newAdminFixture()
	called := false
	f.users.SetBanFunc = func(ctx context.Context, userID uuid.UUID, banned bool, reason string) (*domain.User, error) {
		called = true
		return nil, nil
	}

	rec := f.do("PATCH", "/api/admin/users/"+f.admin.ID.String()+"/ban", `{"banned":true}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if called {
		t.Error("SetBan should not be called")
	}
}

func TestAdminResetUsage(t *testing.T) {
	f := newAdminFixture()
	user := testUser(domain.TierFree, "")
	f.users.GetByIDFunc = func(ctx context.Context, id uuid.UUID) (*domain.User, error) {
		return user, nil
	}
	f.seedUsage(user.ID, 3)

	rec := f.do("POST", "/api/admin/users/"+user.ID.String()+"/usage/reset", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var body UserDetailResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Usage.Used != 0 || body.Usage.Remaining != 3 {
		t.Errorf("usage = %+v, want used 0 remaining 3", body.Usage)
	}

	rec2, err := f.store.Get(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if rec2.CurrentCount(testNow) != 0 {
		t.Errorf("stored count = %d, want 0", rec2.CurrentCount(testNow))
	}
}

func TestAdminResetUsage_UnknownUser(t *testing.T) {
	f := newAdminFixture()
	f.users.GetByIDFunc = func(ctx context.Context, id uuid.UUID) (*domain.User, error) {
		return nil, domain.NotFound("user.get", "user", id.String())
	}

	rec := f.do("POST", "/api/admin/users/"+uuid.NewString()+"/usage/reset", "")

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAdminDeleteUser(t *testing.T) {
	f := newAdminFixture()
	target := testUser(domain.TierPro, domain.SubscriptionStatusActive)
	f.seedUsage(target.ID, 7)

	var deleted uuid.UUID
	f.users.DeleteFunc = func(ctx context.Context, userID uuid.UUID) error {
		deleted = userID
		return nil
	}

	rec := f.do("DELETE", "/api/admin/users/"+target.ID.String(), "")

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204 (body %s)", rec.Code, rec.Body.String())
	}
	if deleted != target.ID {
		t.Errorf("Delete(%s), want %s", deleted, target.ID)
	}
	stored, err := f.store.Get(context.Background(), target.ID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if stored.PostsGenerated != 0 || stored.MonthlyReset != nil {
		t.Errorf("counter survived deletion: %+v", stored)
	}
}

func TestAdminDeleteUser_CannotDeleteSelf(t *testing.T) {
	f := newAdminFixture()
	called := false
	f.users.DeleteFunc = func(ctx context.Context, userID uuid.UUID) error {
		called = true
		return nil
	}

	rec := f.do("DELETE", "/api/admin/users/"+f.admin.ID.String(), "")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if called {
		t.Error("Delete should not be called")
	}
}

func TestAdminDeleteUser_Errors(t *testing.T) {
	f := newAdminFixture()
	f.users.DeleteFunc = func(ctx context.Context, userID uuid.UUID) error {
		return domain.NotFound("user.delete", "user", userID.String())
	}

	if rec := f.do("DELETE", "/api/admin/users/"+uuid.NewString(), ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown user: status = %d, want 404", rec.Code)
	}
	if rec := f.do("DELETE", "/api/admin/users/not-a-uuid", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", rec.Code)
	}
}
