package visibility

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Instruction is a classified event ready for the reconciler.
type Instruction struct {
	EventType      EventType
	ListingRef     string
	Visible        bool
	SubscriptionID string
	CustomerID     string
	// Rebind allows the instruction to replace a different bound subscription.
	Rebind     bool
	OccurredAt time.Time
}

// Classifier turns verified billing events into instructions.
type Classifier struct {
	provider Provider
	policy   PaymentFailurePolicy
	timeouts Timeouts
}

// NewClassifier creates a classifier that falls back to provider lookups for
// events without inline listing metadata.
func NewClassifier(provider Provider, policy PaymentFailurePolicy, timeouts Timeouts) *Classifier {
	if policy == "" {
		policy = HideImmediately
	}
	return &Classifier{provider: provider, policy: policy, timeouts: timeouts}
}

// Classify resolves the listing reference and the desired visibility of ev.
func (c *Classifier) Classify(ctx context.Context, ev BillingEvent) (Instruction, error) {
	if !ev.Type.Valid() {
		return Instruction{}, fmt.Errorf("event type %q: %w", ev.Type, ErrNoInstruction)
	}

	visible, apply := Decide(ev, c.policy)
	if !apply {
		return Instruction{}, fmt.Errorf("%s under policy %s: %w", ev.Type, c.policy, ErrNoInstruction)
	}

	ref, err := c.resolveListingRef(ctx, ev)
	if err != nil {
		return Instruction{}, err
	}

	return Instruction{
		EventType:      ev.Type,
		ListingRef:     ref,
		Visible:        visible,
		SubscriptionID: strings.TrimSpace(ev.SubscriptionID),
		CustomerID:     strings.TrimSpace(ev.CustomerID),
		Rebind:         ev.Type == EventCheckoutCompleted,
		OccurredAt:     ev.OccurredAt,
	}, nil
}

func (c *Classifier) resolveListingRef(ctx context.Context, ev BillingEvent) (string, error) {
	if ref := strings.TrimSpace(ev.ListingRef); ref != "" {
		return ref, nil
	}

	subID := strings.TrimSpace(ev.SubscriptionID)
	if subID == "" || c.provider == nil {
		return "", fmt.Errorf("event %s: %w", ev.EventID, ErrUnresolvableReference)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeouts.BillingTimeout())
	defer cancel()

	sub, err := c.provider.GetSubscription(callCtx, subID)
	if err != nil {
		// A subscription the provider no longer knows cannot carry metadata.
		if errors.Is(err, ErrSubscriptionNotFound) {
			return "", fmt.Errorf("subscription %s: %w", subID, ErrUnresolvableReference)
		}
		return "", upstream("get subscription", err)
	}

	if ref := ListingRefFromMetadata(sub.Metadata); ref != "" {
		return ref, nil
	}
	return "", fmt.Errorf("subscription %s: %w", subID, ErrUnresolvableReference)
}
