package visibility

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"vempraca_backend/pkg/metrics"
)

// CancelMode selects how a subscription is cancelled.
type CancelMode string

const (
	CancelImmediate   CancelMode = "immediate"
	CancelEndOfPeriod CancelMode = "end_of_period"
)

// ParseCancelMode validates a requested mode.
func ParseCancelMode(s string) (CancelMode, error) {
	switch m := CancelMode(strings.ToLower(strings.TrimSpace(s))); m {
	case CancelImmediate, CancelEndOfPeriod:
		return m, nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrInvalidMode)
}

// CancelRequest is an owner's request to cancel the subscription of a listing.
type CancelRequest struct {
	ListingID string
	ActorID   string
	Mode      CancelMode
}

// CancelResult reports the state after cancellation. IsVisible is only set
// for immediate cancellations.
type CancelResult struct {
	ListingID         string
	SubscriptionID    string
	Status            string
	CancelAtPeriodEnd bool
	IsVisible         *bool
}

// Canceller runs the synchronous cancellation path.
type Canceller struct {
	provider   Provider
	reconciler *Reconciler
	timeouts   Timeouts
}

// NewCanceller creates a canceller. The reconciler performs the visibility write.
func NewCanceller(provider Provider, reconciler *Reconciler, timeouts Timeouts) *Canceller {
	return &Canceller{provider: provider, reconciler: reconciler, timeouts: timeouts}
}

// Cancel cancels the listing's subscription. Retrying a request that already
// succeeded does not call the provider's cancel again.
func (c *Canceller) Cancel(ctx context.Context, req CancelRequest) (res CancelResult, err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.CancellationsTotal.WithLabelValues(string(req.Mode), result).Inc()
	}()

	if req.Mode != CancelImmediate && req.Mode != CancelEndOfPeriod {
		return CancelResult{}, fmt.Errorf("%q: %w", req.Mode, ErrInvalidMode)
	}
	if strings.TrimSpace(req.ActorID) == "" {
		return CancelResult{}, ErrUnauthorized
	}

	listing, err := c.reconciler.find(ctx, req.ListingID)
	if err != nil {
		return CancelResult{}, err
	}
	if listing.OwnerID != req.ActorID {
		return CancelResult{}, fmt.Errorf("user %s on listing %s: %w", req.ActorID, listing.ID, ErrForbidden)
	}
	if listing.SubscriptionID == "" {
		return CancelResult{}, fmt.Errorf("listing %s: %w", listing.ID, ErrNoSubscription)
	}

	sub, err := c.current(ctx, listing.SubscriptionID)
	if err != nil {
		return CancelResult{}, err
	}

	logger := c.reconciler.logger.With().
		Str("listing_id", listing.ID).
		Str("subscription_id", listing.SubscriptionID).
		Str("mode", string(req.Mode)).
		Logger()

	switch req.Mode {
	case CancelImmediate:
		if normalizeStatus(sub.Status) != StatusCanceled {
			sub, err = c.call(ctx, "cancel subscription", c.provider.CancelSubscription, listing.SubscriptionID)
			switch {
			case errors.Is(err, ErrSubscriptionNotFound):
				// Removed since it was read; the provider already ended it.
				sub = &Subscription{ID: listing.SubscriptionID, Status: StatusCanceled}
			case err != nil:
				return CancelResult{}, err
			}
		}
		visible, err := c.reconciler.Hide(ctx, listing)
		if err != nil {
			return CancelResult{}, err
		}
		logger.Info().Bool("visible", visible).Msg("subscription cancelled immediately")
		res = resultFrom(listing, sub)
		res.IsVisible = &visible
		return res, nil

	default:
		if normalizeStatus(sub.Status) != StatusCanceled && !sub.CancelAtPeriodEnd {
			sub, err = c.call(ctx, "schedule cancellation", c.provider.ScheduleCancellation, listing.SubscriptionID)
			if err != nil {
				return CancelResult{}, err
			}
		}
		logger.Info().Msg("subscription cancellation scheduled for period end")
		return resultFrom(listing, sub), nil
	}
}

// current reads the subscription, treating one the provider no longer knows as canceled.
func (c *Canceller) current(ctx context.Context, id string) (*Subscription, error) {
	sub, err := c.call(ctx, "get subscription", c.provider.GetSubscription, id)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return &Subscription{ID: id, Status: StatusCanceled}, nil
	}
	return sub, err
}

func (c *Canceller) call(ctx context.Context, op string, fn func(context.Context, string) (*Subscription, error), id string) (*Subscription, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeouts.BillingTimeout())
	defer cancel()

	sub, err := fn(callCtx, id)
	if err != nil {
		return nil, upstream(op, err)
	}
	return sub, nil
}

func resultFrom(listing *Listing, sub *Subscription) CancelResult {
	return CancelResult{
		ListingID:         listing.ID,
		SubscriptionID:    listing.SubscriptionID,
		Status:            sub.Status,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
}
