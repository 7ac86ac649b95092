package metrics

// GateAllowed records an allowing gate decision.
func GateAllowed() {
	GateDecisions.WithLabelValues("allow", "").Inc()
}

// GateDenied records a denial with its reason code.
func GateDenied(reason string) {
	GateDecisions.WithLabelValues("deny", reason).Inc()
}

// GateErrored records a gate pass that ended in a storage failure.
func GateErrored() {
	GateDecisions.WithLabelValues("error", "storage").Inc()
}

// WebhookEvent records the handling result of one billing webhook event.
func WebhookEvent(eventType, result string) {
	BillingWebhookEvents.WithLabelValues(eventType, result).Inc()
}
