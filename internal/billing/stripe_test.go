package billing

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/DukeRupert/postpilot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func newTestService() Service {
	return NewStripeService("sk_test_123", testWebhookSecret, PriceConfig{
		StarterMonthlyPriceID: "price_starter_m",
		StarterYearlyPriceID:  "price_starter_y",
		ProMonthlyPriceID:     "price_pro_m",
		AgencyMonthlyPriceID:  "price_agency_m",
		AgencyYearlyPriceID:   "price_agency_y",
	})
}

func event(t *testing.T, typ string, obj any) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(obj)
	require.NoError(t, err)
	return stripe.Event{
		ID:   "evt_" + typ,
		Type: stripe.EventType(typ),
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestPriceFor(t *testing.T) {
	svc := newTestService()

	id, err := svc.PriceFor(domain.TierPro, IntervalMonthly)
	require.NoError(t, err)
	assert.Equal(t, "price_pro_m", id)

	id, err = svc.PriceFor(domain.TierAgency, "")
	require.NoError(t, err)
	assert.Equal(t, "price_agency_m", id, "interval defaults to monthly")

	_, err = svc.PriceFor(domain.TierPro, IntervalYearly)
	assert.Error(t, err, "unconfigured price")

	_, err = svc.PriceFor(domain.TierFree, IntervalMonthly)
	assert.Error(t, err, "free has no price")

	_, err = svc.PriceFor(domain.TierStarter, "weekly")
	assert.Error(t, err)
}

func TestTierForPriceID(t *testing.T) {
	svc := newTestService()

	assert.Equal(t, domain.TierStarter, svc.TierForPriceID("price_starter_y"))
	assert.Equal(t, domain.TierAgency, svc.TierForPriceID("price_agency_m"))
	assert.Equal(t, domain.Tier(""), svc.TierForPriceID("price_unknown"))
	assert.Equal(t, domain.Tier(""), svc.TierForPriceID(""), "empty config entries are not mapped")
}

func TestMapStatus(t *testing.T) {
	tests := map[stripe.SubscriptionStatus]domain.SubscriptionStatus{
		stripe.SubscriptionStatusActive:            domain.SubscriptionStatusActive,
		stripe.SubscriptionStatusTrialing:          domain.SubscriptionStatusTrialing,
		stripe.SubscriptionStatusPastDue:           domain.SubscriptionStatusPastDue,
		stripe.SubscriptionStatusUnpaid:            domain.SubscriptionStatusPastDue,
		stripe.SubscriptionStatusCanceled:          domain.SubscriptionStatusCanceled,
		stripe.SubscriptionStatusIncomplete:        domain.SubscriptionStatusInactive,
		stripe.SubscriptionStatusIncompleteExpired: domain.SubscriptionStatusInactive,
		stripe.SubscriptionStatusPaused:            domain.SubscriptionStatusInactive,
	}
	for in, want := range tests {
		assert.Equal(t, want, MapStatus(in), "stripe status %s", in)
	}
}

func TestParseEvent_SubscriptionUpdated(t *testing.T) {
	svc := newTestService()
	periodEnd := time.Date(2026, time.April, 15, 0, 0, 0, 0, time.UTC)

	ev := event(t, "customer.subscription.updated", map[string]any{
		"id":                 "sub_123",
		"object":             "subscription",
		"customer":           "cus_123",
		"status":             "trialing",
		"current_period_end": periodEnd.Unix(),
		"items": map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": "si_1", "price": map[string]any{"id": "price_pro_m"}},
			},
		},
	})

	got, err := svc.ParseEvent(ev)
	require.NoError(t, err)

	assert.Equal(t, domain.BillingSubscriptionChanged, got.Kind)
	assert.Equal(t, "cus_123", got.CustomerID)
	assert.Equal(t, domain.TierPro, got.Update.Plan)
	assert.Equal(t, domain.SubscriptionStatusTrialing, got.Update.Status)
	assert.Equal(t, "sub_123", got.Update.StripeSubscriptionID)
	require.NotNil(t, got.Update.CurrentPeriodEnd)
	assert.True(t, periodEnd.Equal(*got.Update.CurrentPeriodEnd))
	assert.NotEmpty(t, got.Payload)
}

func TestParseEvent_UnknownPriceLeavesPlanEmpty(t *testing.T) {
	ev := event(t, "customer.subscription.created", map[string]any{
		"id":       "sub_1",
		"customer": "cus_1",
		"status":   "active",
		"items": map[string]any{
			"data": []map[string]any{{"price": map[string]any{"id": "price_legacy"}}},
		},
	})

	got, err := newTestService().ParseEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, domain.Tier(""), got.Update.Plan)
	assert.Equal(t, domain.SubscriptionStatusActive, got.Update.Status)
}

func TestParseEvent_Kinds(t *testing.T) {
	tests := []struct {
		typ  string
		obj  map[string]any
		want domain.BillingEventKind
	}{
		{"customer.subscription.deleted", map[string]any{"id": "sub_1", "customer": "cus_1"}, domain.BillingSubscriptionDeleted},
		{"invoice.paid", map[string]any{"id": "in_1", "customer": "cus_1"}, domain.BillingPaymentSucceeded},
		{"invoice.payment_succeeded", map[string]any{"id": "in_1", "customer": "cus_1"}, domain.BillingPaymentSucceeded},
		{"invoice.payment_failed", map[string]any{"id": "in_1", "customer": "cus_1"}, domain.BillingPaymentFailed},
		{"checkout.session.completed", map[string]any{"id": "cs_1", "customer": "cus_1"}, domain.BillingIgnored},
		{"customer.created", map[string]any{"id": "cus_1"}, domain.BillingIgnored},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			got, err := newTestService().ParseEvent(event(t, tt.typ, tt.obj))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, tt.typ, got.Type)
			if tt.want != domain.BillingIgnored {
				assert.Equal(t, "cus_1", got.CustomerID)
			}
		})
	}
}

func TestParseEvent_MalformedObject(t *testing.T) {
	ev := stripe.Event{
		ID:   "evt_bad",
		Type: "customer.subscription.updated",
		Data: &stripe.EventData{Raw: json.RawMessage(`{"status": 42}`)},
	}

	_, err := newTestService().ParseEvent(ev)
	assert.Error(t, err)
}

func TestParseEvent_NoData(t *testing.T) {
	got, err := newTestService().ParseEvent(stripe.Event{ID: "evt_1", Type: "invoice.paid"})
	require.NoError(t, err)
	assert.Equal(t, domain.BillingIgnored, got.Kind)
}

func TestVerifyWebhookSignature(t *testing.T) {
	svc := newTestService()
	payload := []byte(fmt.Sprintf(`{"id":"evt_sig","object":"event","type":"invoice.paid","api_version":%q,"data":{"object":{"id":"in_1","customer":"cus_1"}}}`, stripe.APIVersion))

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})

	ev, err := svc.VerifyWebhookSignature(signed.Payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, "evt_sig", ev.ID)

	_, err = svc.VerifyWebhookSignature(payload, "t=1,v1=deadbeef")
	assert.Error(t, err)
}
