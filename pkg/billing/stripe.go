package billing

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/subscription"

	"vempraca_backend/pkg/visibility"
)

// StripeConfig configures the Stripe billing provider.
type StripeConfig struct {
	SecretKey string
	Timeout   time.Duration
	// BaseURL overrides the Stripe API endpoint, used against local fakes.
	BaseURL string
}

// Stripe implements visibility.Provider on top of the Stripe API.
type Stripe struct {
	subs subscription.Client
}

// NewStripe creates a provider with its own backend so no package-level
// stripe.Key is shared between callers.
func NewStripe(cfg StripeConfig) *Stripe {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}

	return &Stripe{
		subs: subscription.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.SecretKey,
		},
	}
}

func (s *Stripe) GetSubscription(ctx context.Context, id string) (*visibility.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := s.subs.Get(id, params)
	if err != nil {
		return nil, mapStripeError("get subscription "+id, err)
	}
	return fromStripeSubscription(sub), nil
}

func (s *Stripe) CancelSubscription(ctx context.Context, id string) (*visibility.Subscription, error) {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx

	sub, err := s.subs.Cancel(id, params)
	if err != nil {
		return nil, mapStripeError("cancel subscription "+id, err)
	}
	return fromStripeSubscription(sub), nil
}

func (s *Stripe) ScheduleCancellation(ctx context.Context, id string) (*visibility.Subscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx

	sub, err := s.subs.Update(id, params)
	if err != nil {
		return nil, mapStripeError("schedule cancellation "+id, err)
	}
	return fromStripeSubscription(sub), nil
}

func fromStripeSubscription(sub *stripe.Subscription) *visibility.Subscription {
	out := &visibility.Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	return out
}

// mapStripeError folds Stripe SDK errors into the visibility error taxonomy.
func mapStripeError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, visibility.ErrUpstreamTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w: %v", op, visibility.ErrUpstreamTimeout, err)
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Code == stripe.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == http.StatusNotFound {
			return fmt.Errorf("%s: %w", op, visibility.ErrSubscriptionNotFound)
		}
		if stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%s: %w: %s", op, visibility.ErrUpstreamUnavailable, strings.TrimSpace(stripeErr.Msg))
		}
		return fmt.Errorf("%s: stripe %s: %s", op, stripeErr.Type, stripeErr.Msg)
	}

	return fmt.Errorf("%s: %w: %v", op, visibility.ErrUpstreamUnavailable, err)
}
