package visibility

import "errors"

var (
	ErrInvalidSignature        = errors.New("invalid webhook signature")
	ErrUnresolvableReference   = errors.New("event carries no listing reference")
	ErrListingNotFound         = errors.New("listing not found")
	ErrConflictingSubscription = errors.New("event subscription does not match listing subscription")
	ErrUpstreamTimeout         = errors.New("upstream timeout")
	ErrUpstreamUnavailable     = errors.New("upstream unavailable")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrForbidden               = errors.New("forbidden")

	// ErrNoInstruction means the event is valid but does not change visibility.
	ErrNoInstruction        = errors.New("event does not map to a visibility change")
	ErrNoSubscription       = errors.New("listing has no subscription")
	ErrSubscriptionNotFound = errors.New("subscription not found at billing provider")
	ErrInvalidMode          = errors.New("invalid cancellation mode")
)

// IsTerminal reports errors that end processing of an event without a retry.
// The webhook acknowledges them so the provider does not redeliver.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrUnresolvableReference) ||
		errors.Is(err, ErrListingNotFound) ||
		errors.Is(err, ErrConflictingSubscription) ||
		errors.Is(err, ErrNoInstruction)
}

// IsRetryable reports transient failures talking to the provider or the store.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamTimeout) || errors.Is(err, ErrUpstreamUnavailable)
}
