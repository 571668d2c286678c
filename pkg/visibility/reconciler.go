package visibility

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vempraca_backend/pkg/metrics"
)

// Outcome describes what Reconcile did with an instruction.
type Outcome string

const (
	OutcomeApplied       Outcome = "applied"
	OutcomeRebound       Outcome = "rebound"
	OutcomeGrandfathered Outcome = "grandfathered"
	OutcomeConflict      Outcome = "conflict"
	OutcomeStale         Outcome = "stale"
)

// Result is returned by Reconcile.
type Result struct {
	ListingID string
	Outcome   Outcome
	Visible   bool
}

// Reconciler applies visibility instructions to listings.
type Reconciler struct {
	store           Store
	timeouts        Timeouts
	enforceOrdering bool
	logger          zerolog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithEventOrdering rejects instructions older than the last applied event.
func WithEventOrdering(enabled bool) Option {
	return func(r *Reconciler) { r.enforceOrdering = enabled }
}

// WithTimeouts overrides the default store timeout.
func WithTimeouts(t Timeouts) Option {
	return func(r *Reconciler) { r.timeouts = t }
}

// WithLogger sets the logger; the default is the global zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// NewReconciler creates a reconciler over store.
func NewReconciler(store Store, opts ...Option) *Reconciler {
	r := &Reconciler{store: store, logger: log.Logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile applies in to exactly the listing it references. Grandfathered
// listings are never written. An instruction for a different subscription than
// the one bound to the listing is dropped unless it is a rebind.
func (r *Reconciler) Reconcile(ctx context.Context, in Instruction) (Result, error) {
	ref := strings.TrimSpace(in.ListingRef)
	if ref == "" {
		return Result{}, ErrUnresolvableReference
	}

	listing, err := r.find(ctx, ref)
	if err != nil {
		return Result{ListingID: ref}, err
	}

	res := Result{ListingID: listing.ID, Visible: listing.IsVisible}
	logger := r.logger.With().
		Str("listing_id", listing.ID).
		Str("event_type", string(in.EventType)).
		Str("subscription_id", in.SubscriptionID).
		Logger()

	if listing.Grandfathered {
		logger.Info().Msg("listing is grandfathered, skipping visibility update")
		res.Outcome = OutcomeGrandfathered
		return res, nil
	}

	outcome := OutcomeApplied
	if in.SubscriptionID != "" && listing.SubscriptionID != "" && in.SubscriptionID != listing.SubscriptionID {
		if !in.Rebind {
			logger.Warn().
				Str("bound_subscription_id", listing.SubscriptionID).
				Msg("event references a different subscription, write skipped")
			res.Outcome = OutcomeConflict
			return res, fmt.Errorf("listing %s bound to %s, event for %s: %w",
				listing.ID, listing.SubscriptionID, in.SubscriptionID, ErrConflictingSubscription)
		}
		// A delayed checkout for a subscription the listing already moved
		// away from must not take the binding back.
		if listing.VisibilityEventAt != nil && !in.OccurredAt.IsZero() && in.OccurredAt.Before(*listing.VisibilityEventAt) {
			logger.Warn().
				Str("bound_subscription_id", listing.SubscriptionID).
				Time("occurred_at", in.OccurredAt).
				Time("visibility_event_at", *listing.VisibilityEventAt).
				Msg("checkout predates the last applied event, rebind refused")
			res.Outcome = OutcomeConflict
			return res, fmt.Errorf("listing %s bound to %s, stale checkout for %s: %w",
				listing.ID, listing.SubscriptionID, in.SubscriptionID, ErrConflictingSubscription)
		}
		logger.Info().
			Str("previous_subscription_id", listing.SubscriptionID).
			Msg("rebinding listing to new subscription")
		outcome = OutcomeRebound
	}

	u := Update{
		Visible:        in.Visible,
		SubscriptionID: in.SubscriptionID,
		CustomerID:     in.CustomerID,
	}
	if !in.OccurredAt.IsZero() {
		at := in.OccurredAt.UTC()
		u.EventAt = &at
		if r.enforceOrdering {
			u.NotBefore = &at
		}
	}

	if err := r.apply(ctx, listing.ID, u); err != nil {
		if errors.Is(err, ErrStaleEvent) {
			logger.Info().Time("occurred_at", in.OccurredAt).Msg("newer event already applied, skipping")
			res.Outcome = OutcomeStale
			return res, nil
		}
		return res, err
	}

	metrics.VisibilityWritesTotal.WithLabelValues(boolLabel(in.Visible)).Inc()
	logger.Info().Bool("visible", in.Visible).Str("outcome", string(outcome)).Msg("listing visibility reconciled")

	res.Outcome = outcome
	res.Visible = in.Visible
	return res, nil
}

// Hide sets a listing invisible outside of the event flow. Grandfathered
// listings are left alone; the returned value is the listing's visibility afterwards.
func (r *Reconciler) Hide(ctx context.Context, listing *Listing) (bool, error) {
	if listing.Grandfathered {
		return listing.IsVisible, nil
	}
	if err := r.apply(ctx, listing.ID, Update{Visible: false}); err != nil {
		return listing.IsVisible, err
	}
	metrics.VisibilityWritesTotal.WithLabelValues(boolLabel(false)).Inc()
	return false, nil
}

func (r *Reconciler) find(ctx context.Context, id string) (*Listing, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeouts.StoreTimeout())
	defer cancel()

	listing, err := r.store.FindListing(callCtx, id)
	if err != nil {
		return nil, upstream("find listing", err)
	}
	return listing, nil
}

func (r *Reconciler) apply(ctx context.Context, id string, u Update) error {
	callCtx, cancel := context.WithTimeout(ctx, r.timeouts.StoreTimeout())
	defer cancel()

	return upstream("apply visibility", r.store.ApplyVisibility(callCtx, id, u))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
