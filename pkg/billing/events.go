package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"vempraca_backend/pkg/visibility"
)

// ProviderStripe names the Stripe provider in the webhook log.
const ProviderStripe = "stripe"

// VerifyWebhook checks the Stripe-Signature header and parses the event.
func VerifyWebhook(payload []byte, signatureHeader, secret string) (stripe.Event, error) {
	if strings.TrimSpace(signatureHeader) == "" || strings.TrimSpace(secret) == "" {
		return stripe.Event{}, visibility.ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", visibility.ErrInvalidSignature, err)
	}
	return event, nil
}

type checkoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          json.RawMessage   `json:"customer"`
	Subscription      json.RawMessage   `json:"subscription"`
	Metadata          map[string]string `json:"metadata"`
}

type subscriptionObject struct {
	ID       string            `json:"id"`
	Customer json.RawMessage   `json:"customer"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

type invoiceObject struct {
	ID                  string          `json:"id"`
	Customer            json.RawMessage `json:"customer"`
	Subscription        json.RawMessage `json:"subscription"`
	SubscriptionDetails struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_details"`
	Metadata map[string]string `json:"metadata"`
}

// ToBillingEvent converts a verified Stripe event into the provider-neutral
// event. ok is false for event types that do not affect visibility.
func ToBillingEvent(event stripe.Event) (ev visibility.BillingEvent, ok bool, err error) {
	ev = visibility.BillingEvent{
		EventID:    event.ID,
		OccurredAt: time.Unix(event.Created, 0).UTC(),
		Livemode:   event.Livemode,
	}
	if event.Data == nil {
		return ev, false, fmt.Errorf("event %s has no data", event.ID)
	}
	raw := event.Data.Raw

	switch string(event.Type) {
	case "checkout.session.completed":
		var s checkoutSession
		if err := json.Unmarshal(raw, &s); err != nil {
			return ev, false, fmt.Errorf("decode checkout.session: %w", err)
		}
		// One-off payments carry no subscription and never affect visibility.
		if s.Mode != "" && s.Mode != "subscription" {
			return ev, false, nil
		}
		ev.Type = visibility.EventCheckoutCompleted
		ev.SubscriptionID = objectID(s.Subscription)
		ev.CustomerID = objectID(s.Customer)
		ev.ListingRef = visibility.ListingRefFromMetadata(s.Metadata)
		if ev.ListingRef == "" {
			ev.ListingRef = strings.TrimSpace(s.ClientReferenceID)
		}

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var s subscriptionObject
		if err := json.Unmarshal(raw, &s); err != nil {
			return ev, false, fmt.Errorf("decode subscription: %w", err)
		}
		ev.Type = visibility.EventSubscriptionUpdated
		if string(event.Type) == "customer.subscription.deleted" {
			ev.Type = visibility.EventSubscriptionDeleted
		}
		ev.SubscriptionID = s.ID
		ev.CustomerID = objectID(s.Customer)
		ev.Status = s.Status
		ev.ListingRef = visibility.ListingRefFromMetadata(s.Metadata)

	case "invoice.payment_failed", "invoice.payment_succeeded", "invoice.paid":
		var inv invoiceObject
		if err := json.Unmarshal(raw, &inv); err != nil {
			return ev, false, fmt.Errorf("decode invoice: %w", err)
		}
		ev.Type = visibility.EventInvoicePaymentSucceeded
		if string(event.Type) == "invoice.payment_failed" {
			ev.Type = visibility.EventInvoicePaymentFailed
		}
		ev.SubscriptionID = objectID(inv.Subscription)
		ev.CustomerID = objectID(inv.Customer)
		ev.ListingRef = visibility.ListingRefFromMetadata(inv.SubscriptionDetails.Metadata)
		if ev.ListingRef == "" {
			ev.ListingRef = visibility.ListingRefFromMetadata(inv.Metadata)
		}
		// Invoices outside a subscription do not affect visibility.
		if ev.SubscriptionID == "" {
			return ev, false, nil
		}

	default:
		return ev, false, nil
	}

	return ev, true, nil
}

// objectID reads an id from a field that is either a string or an expanded object.
func objectID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return strings.TrimSpace(id)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.ID)
	}
	return ""
}
