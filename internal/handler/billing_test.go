package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/google/uuid"
)

func newBillingFixture() (*BillingHandler, *mockBillingService, *mockUserService) {
	b := &mockBillingService{Prices: map[domain.Tier]string{
		domain.TierStarter: "price_starter",
		domain.TierPro:     "price_pro",
	}}
	users := &mockUserService{}
	return NewBillingHandler(b, users, "https://app.test", discardLogger()), b, users
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCreateCheckout_NewCustomer(t *testing.T) {
	h, b, users := newBillingFixture()
	user := testUser(domain.TierFree, "")

	var savedID uuid.UUID
	var savedCustomer string
	users.UpdateStripeCustomerFunc = func(ctx context.Context, userID uuid.UUID, customerID string) error {
		savedID, savedCustomer = userID, customerID
		return nil
	}
	var gotSuccess, gotCancel string
	b.CheckoutFunc = func(customerID, priceID, successURL, cancelURL string) (string, error) {
		gotSuccess, gotCancel = successURL, cancelURL
		return "https://checkout.stripe.test/" + customerID + "/" + priceID, nil
	}

	rec := httptest.NewRecorder()
	h.CreateCheckout(rec, withUser(postJSON("/api/billing/checkout", `{"plan":"pro","interval":"yearly"}`), user))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	var body RedirectResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.URL != "https://checkout.stripe.test/cus_test/price_pro_yearly" {
		t.Errorf("url = %q", body.URL)
	}
	if b.createCustomerCalls != 1 {
		t.Errorf("CreateCustomer calls = %d, want 1", b.createCustomerCalls)
	}
	if savedID != user.ID || savedCustomer != "cus_test" {
		t.Errorf("saved customer = %v/%q", savedID, savedCustomer)
	}
	if !strings.HasPrefix(gotSuccess, "https://app.test/billing/success?session_id=") {
		t.Errorf("success url = %q", gotSuccess)
	}
	if gotCancel != "https://app.test/pricing" {
		t.Errorf("cancel url = %q", gotCancel)
	}
}

func TestCreateCheckout_ExistingCustomer(t *testing.T) {
	h, b, _ := newBillingFixture()
	user := testUser(domain.TierStarter, domain.SubscriptionStatusActive)
	user.StripeCustomerID = "cus_existing"

	rec := httptest.NewRecorder()
	h.CreateCheckout(rec, withUser(postJSON("/api/billing/checkout", `{"plan":"starter","interval":"monthly"}`), user))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if b.createCustomerCalls != 0 {
		t.Errorf("CreateCustomer calls = %d, want 0", b.createCustomerCalls)
	}
}

func TestCreateCheckout_SaveCustomerFailureStillRedirects(t *testing.T) {
	h, _, users := newBillingFixture()
	users.UpdateStripeCustomerFunc = func(ctx context.Context, userID uuid.UUID, customerID string) error {
		return errors.New("db down")
	}

	rec := httptest.NewRecorder()
	h.CreateCheckout(rec, withUser(postJSON("/api/billing/checkout", `{"plan":"pro","interval":"monthly"}`), testUser(domain.TierFree, "")))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestCreateCheckout_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(b *mockBillingService)
		wantStatus int
		wantCode   string
	}{
		{"free plan", `{"plan":"free","interval":"monthly"}`, nil, http.StatusBadRequest, domain.EINVALID},
		{"unknown plan", `{"plan":"platinum","interval":"monthly"}`, nil, http.StatusBadRequest, domain.EINVALID},
		{"bad interval", `{"plan":"pro","interval":"weekly"}`, nil, http.StatusBadRequest, domain.EINVALID},
		{"no body", ``, nil, http.StatusBadRequest, domain.EINVALID},
		{"unpriced plan", `{"plan":"agency","interval":"monthly"}`, nil, http.StatusNotImplemented, domain.ENOTIMPL},
		{
			"customer creation fails",
			`{"plan":"pro","interval":"monthly"}`,
			func(b *mockBillingService) {
				b.CreateCustomerFunc = func(email, name string) (string, error) { return "", errors.New("stripe down") }
			},
			http.StatusBadGateway, domain.EUPSTREAM,
		},
		{
			"checkout fails",
			`{"plan":"pro","interval":"monthly"}`,
			func(b *mockBillingService) {
				b.CheckoutFunc = func(customerID, priceID, successURL, cancelURL string) (string, error) {
					return "", errors.New("stripe down")
				}
			},
			http.StatusBadGateway, domain.EUPSTREAM,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, b, _ := newBillingFixture()
			if tt.setup != nil {
				tt.setup(b)
			}

			rec := httptest.NewRecorder()
			h.CreateCheckout(rec, withUser(postJSON("/api/billing/checkout", tt.body), testUser(domain.TierFree, "")))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if body := decodeErrorBody(t, rec); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestCreateCheckout_BillingNotConfigured(t *testing.T) {
	h := NewBillingHandler(nil, &mockUserService{}, "https://app.test", discardLogger())

	rec := httptest.NewRecorder()
	h.CreateCheckout(rec, withUser(postJSON("/api/billing/checkout", `{"plan":"pro"}`), testUser(domain.TierFree, "")))

	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestCreateCheckout_Unauthenticated(t *testing.T) {
	h, _, _ := newBillingFixture()

	rec := httptest.NewRecorder()
	h.CreateCheckout(rec, postJSON("/api/billing/checkout", `{"plan":"pro"}`))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestOpenPortal(t *testing.T) {
	h, b, _ := newBillingFixture()
	var gotReturn string
	b.PortalFunc = func(customerID, returnURL string) (string, error) {
		gotReturn = returnURL
		return "https://billing.stripe.test/" + customerID, nil
	}
	user := testUser(domain.TierPro, domain.SubscriptionStatusActive)
	user.StripeCustomerID = "cus_123"

	rec := httptest.NewRecorder()
	h.OpenPortal(rec, withUser(httptest.NewRequest("POST", "/api/billing/portal", nil), user))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body RedirectResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.URL != "https://billing.stripe.test/cus_123" {
		t.Errorf("url = %q", body.URL)
	}
	if gotReturn != "https://app.test/account" {
		t.Errorf("return url = %q", gotReturn)
	}
}

func TestOpenPortal_NoCustomer(t *testing.T) {
	h, _, _ := newBillingFixture()

	rec := httptest.NewRecorder()
	h.OpenPortal(rec, withUser(httptest.NewRequest("POST", "/api/billing/portal", nil), testUser(domain.TierFree, "")))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
