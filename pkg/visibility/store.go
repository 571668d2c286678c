package visibility

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Listing is the subset of a directory listing the reconciler needs.
type Listing struct {
	ID                string
	OwnerID           string
	IsVisible         bool
	SubscriptionID    string
	CustomerID        string
	Grandfathered     bool
	VisibilityEventAt *time.Time
}

// Update is a single-row visibility write keyed by listing id.
// Empty SubscriptionID/CustomerID leave the stored values untouched.
type Update struct {
	Visible        bool
	SubscriptionID string
	CustomerID     string
	// EventAt, when set, advances the stored visibility_event_at. The stamp
	// never moves backwards.
	EventAt *time.Time
	// NotBefore, when set, makes the write conditional on the stored
	// visibility_event_at being unset or not newer than it.
	NotBefore *time.Time
}

// Store is the directory store contract. FindListing returns ErrListingNotFound
// for unknown ids; ApplyVisibility returns ErrStaleEvent when NotBefore rejects the write.
type Store interface {
	FindListing(ctx context.Context, id string) (*Listing, error)
	ApplyVisibility(ctx context.Context, id string, u Update) error
}

// Provider is the billing provider contract.
type Provider interface {
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	CancelSubscription(ctx context.Context, id string) (*Subscription, error)
	ScheduleCancellation(ctx context.Context, id string) (*Subscription, error)
}

// ErrStaleEvent is returned by a Store when a newer event was already applied.
var ErrStaleEvent = errors.New("listing already updated by a newer event")

// Timeouts bound every call to the store and the billing provider.
type Timeouts struct {
	Store   time.Duration
	Billing time.Duration
}

// StoreTimeout returns the store bound, defaulting to 5s.
func (t Timeouts) StoreTimeout() time.Duration {
	if t.Store <= 0 {
		return 5 * time.Second
	}
	return t.Store
}

// BillingTimeout returns the provider bound, defaulting to 10s.
func (t Timeouts) BillingTimeout() time.Duration {
	if t.Billing <= 0 {
		return 10 * time.Second
	}
	return t.Billing
}

// upstream folds a collaborator error into the taxonomy. Errors already in
// the taxonomy pass through unchanged.
func upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrListingNotFound),
		errors.Is(err, ErrSubscriptionNotFound),
		errors.Is(err, ErrStaleEvent),
		errors.Is(err, ErrUpstreamTimeout),
		errors.Is(err, ErrUpstreamUnavailable):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %v", op, ErrUpstreamTimeout, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrUpstreamUnavailable, err)
	}
}
