package visibility

import (
	"strings"
	"time"
)

// EventType is the closed set of billing events the reconciler understands.
type EventType string

const (
	EventCheckoutCompleted       EventType = "checkout_completed"
	EventSubscriptionUpdated     EventType = "subscription_updated"
	EventSubscriptionDeleted     EventType = "subscription_deleted"
	EventInvoicePaymentFailed    EventType = "invoice_payment_failed"
	EventInvoicePaymentSucceeded EventType = "invoice_payment_succeeded"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventCheckoutCompleted,
		EventSubscriptionUpdated,
		EventSubscriptionDeleted,
		EventInvoicePaymentFailed,
		EventInvoicePaymentSucceeded:
		return true
	}
	return false
}

// Provider-side subscription statuses.
const (
	StatusActive            = "active"
	StatusTrialing          = "trialing"
	StatusPastDue           = "past_due"
	StatusUnpaid            = "unpaid"
	StatusCanceled          = "canceled"
	StatusIncomplete        = "incomplete"
	StatusIncompleteExpired = "incomplete_expired"
	StatusPaused            = "paused"
)

// ListingMetadataKeys are the subscription/session metadata keys that may carry
// the listing id, checked in order.
var ListingMetadataKeys = []string{"negocio_id", "business_id", "listing_id"}

// BillingEvent is the provider-neutral shape of a verified webhook event.
type BillingEvent struct {
	EventID        string
	Type           EventType
	SubscriptionID string
	CustomerID     string
	Status         string
	ListingRef     string
	OccurredAt     time.Time
	Livemode       bool
}

// Subscription is the provider-neutral read model of a billing subscription.
type Subscription struct {
	ID                string
	CustomerID        string
	Status            string
	CancelAtPeriodEnd bool
	Metadata          map[string]string
}

// ListingRefFromMetadata returns the first non-empty listing reference in md.
func ListingRefFromMetadata(md map[string]string) string {
	for _, key := range ListingMetadataKeys {
		if v := strings.TrimSpace(md[key]); v != "" {
			return v
		}
	}
	return ""
}

func normalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}
