package domain

// BillingEventKind is the normalized meaning of a billing provider event.
type BillingEventKind string

const (
	BillingSubscriptionChanged BillingEventKind = "subscription_changed"
	BillingSubscriptionDeleted BillingEventKind = "subscription_deleted"
	BillingPaymentSucceeded    BillingEventKind = "payment_succeeded"
	BillingPaymentFailed       BillingEventKind = "payment_failed"
	BillingIgnored             BillingEventKind = "ignored"
)

// BillingEvent is a provider webhook event reduced to what the subscription
// state needs. ID is the provider's event id and is the idempotency key.
type BillingEvent struct {
	ID         string
	Type       string
	Kind       BillingEventKind
	CustomerID string
	// Update is populated for BillingSubscriptionChanged. Plan is empty when
	// the price is not mapped to a tier.
	Update  SubscriptionUpdate
	Payload []byte
}

// BillingEventResult reports what happened to a delivered event.
type BillingEventResult string

const (
	BillingEventApplied   BillingEventResult = "applied"
	BillingEventDuplicate BillingEventResult = "duplicate"
	BillingEventSkipped   BillingEventResult = "ignored"
)
