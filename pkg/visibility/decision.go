package visibility

import (
	"fmt"
	"strings"
)

// PaymentFailurePolicy selects how invoice payment failures affect visibility.
type PaymentFailurePolicy string

const (
	// HideImmediately hides the listing on the first failed payment.
	HideImmediately PaymentFailurePolicy = "hide_immediately"
	// AwaitDunning leaves visibility alone until the provider changes the
	// subscription status itself.
	AwaitDunning PaymentFailurePolicy = "await_dunning"
)

// ParsePaymentFailurePolicy accepts the configured policy name; empty means HideImmediately.
func ParsePaymentFailurePolicy(s string) (PaymentFailurePolicy, error) {
	switch p := PaymentFailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return HideImmediately, nil
	case HideImmediately, AwaitDunning:
		return p, nil
	default:
		return "", fmt.Errorf("unknown payment failure policy %q", s)
	}
}

// InGoodStanding reports whether a subscription status keeps a listing visible.
func InGoodStanding(status string) bool {
	switch normalizeStatus(status) {
	case StatusActive, StatusTrialing:
		return true
	}
	return false
}

// Decide maps an event to the desired visibility. apply is false when the
// event must not touch visibility under the given policy.
func Decide(ev BillingEvent, policy PaymentFailurePolicy) (visible bool, apply bool) {
	switch ev.Type {
	case EventCheckoutCompleted:
		return true, true
	case EventSubscriptionUpdated:
		return InGoodStanding(ev.Status), true
	case EventSubscriptionDeleted:
		return false, true
	case EventInvoicePaymentFailed:
		if policy == AwaitDunning {
			return false, false
		}
		return false, true
	case EventInvoicePaymentSucceeded:
		return true, true
	}
	return false, false
}
