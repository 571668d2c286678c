package controller

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v74"

	"vempraca_backend/internal/model"
	"vempraca_backend/pkg/billing"
	"vempraca_backend/pkg/metrics"
	"vempraca_backend/pkg/visibility"
)

// WebhookRecorder is the delivery log used to short-circuit redeliveries.
type WebhookRecorder interface {
	Record(ctx context.Context, provider, eventID, eventType string, payload []byte) (*model.BillingWebhookEvent, bool, error)
	MarkProcessed(ctx context.Context, id uint, outcome string, processingErr error) error
}

type WebhookController struct {
	signingSecret string
	sandboxMode   bool
	classifier    *visibility.Classifier
	reconciler    *visibility.Reconciler
	events        WebhookRecorder
	timeouts      visibility.Timeouts
}

// NewWebhookController wires the Stripe webhook. events may be nil, in which
// case every delivery is processed. Delivery log calls are bounded by the
// store timeout.
func NewWebhookController(signingSecret string, sandboxMode bool, classifier *visibility.Classifier, reconciler *visibility.Reconciler, events WebhookRecorder, timeouts visibility.Timeouts) *WebhookController {
	return &WebhookController{
		signingSecret: signingSecret,
		sandboxMode:   sandboxMode,
		classifier:    classifier,
		reconciler:    reconciler,
		events:        events,
		timeouts:      timeouts,
	}
}

// HandleStripeWebhook answers 2xx only once the event is applied or
// deliberately dropped; anything else makes Stripe redeliver.
func (h *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	start := time.Now()
	eventType := "unknown"
	outcome := "rejected"
	defer func() {
		metrics.WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	payload := append([]byte(nil), c.Body()...)
	event, err := billing.VerifyWebhook(payload, c.Get("Stripe-Signature"), h.signingSecret)
	if err != nil {
		log.Warn().Err(err).Msg("Rejected Stripe webhook with invalid signature")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook signature",
		})
	}
	eventType = string(event.Type)

	ctx := c.UserContext()
	logger := log.With().Str("event_id", event.ID).Str("event_type", eventType).Logger()

	var stored *model.BillingWebhookEvent
	if h.events != nil {
		var created bool
		recordCtx, cancel := context.WithTimeout(ctx, h.timeouts.StoreTimeout())
		stored, created, err = h.events.Record(recordCtx, billing.ProviderStripe, event.ID, eventType, payload)
		cancel()
		if err != nil {
			logger.Error().Err(err).Msg("Could not record webhook delivery")
			outcome = model.OutcomeFailed
			status := fiber.StatusServiceUnavailable
			if errors.Is(err, context.DeadlineExceeded) {
				status = fiber.StatusGatewayTimeout
			}
			return c.Status(status).JSON(fiber.Map{
				"error": "processing failed",
			})
		}
		if !created && stored.Handled() {
			outcome = "duplicate"
			return c.JSON(fiber.Map{"received": true, "outcome": outcome})
		}
	}

	outcome, err = h.process(ctx, event)
	h.markProcessed(ctx, stored, outcome, err)

	switch {
	case err == nil:
		logger.Info().Str("outcome", outcome).Msg("Processed Stripe webhook")
		return c.JSON(fiber.Map{"received": true, "outcome": outcome})

	case errors.Is(err, errInvalidPayload), visibility.IsTerminal(err):
		logger.Warn().Err(err).Str("outcome", outcome).Msg("Dropped Stripe webhook, needs manual review")
		return c.JSON(fiber.Map{"received": true, "outcome": outcome})

	default:
		logger.Error().Err(err).Msg("Stripe webhook processing failed")
		status := fiber.StatusServiceUnavailable
		if errors.Is(err, visibility.ErrUpstreamTimeout) {
			status = fiber.StatusGatewayTimeout
		}
		return c.Status(status).JSON(fiber.Map{
			"error": "processing failed",
		})
	}
}

var errInvalidPayload = errors.New("invalid webhook payload")

// process returns the outcome label and, for anything but a clean apply or
// ignore, the error that decides the response status.
func (h *WebhookController) process(ctx context.Context, event stripe.Event) (string, error) {
	// Sandbox deployments only act on test-mode events and vice versa.
	if event.Livemode == h.sandboxMode {
		return "ignored_mode", nil
	}

	ev, ok, err := billing.ToBillingEvent(event)
	if err != nil {
		return "invalid_payload", errors.Join(errInvalidPayload, err)
	}
	if !ok {
		return "ignored", nil
	}

	instr, err := h.classifier.Classify(ctx, ev)
	if err != nil {
		return outcomeFor(err), err
	}

	res, err := h.reconciler.Reconcile(ctx, instr)
	if err != nil {
		return outcomeFor(err), err
	}
	return string(res.Outcome), nil
}

func (h *WebhookController) markProcessed(ctx context.Context, stored *model.BillingWebhookEvent, outcome string, err error) {
	if h.events == nil || stored == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeouts.StoreTimeout())
	defer cancel()
	if err := h.events.MarkProcessed(ctx, stored.ID, outcome, err); err != nil {
		log.Error().Err(err).Uint("webhook_event_id", stored.ID).Msg("Could not mark webhook delivery processed")
	}
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, visibility.ErrNoInstruction):
		return "no_change"
	case errors.Is(err, visibility.ErrUnresolvableReference):
		return "unresolvable_reference"
	case errors.Is(err, visibility.ErrListingNotFound):
		return "listing_not_found"
	case errors.Is(err, visibility.ErrConflictingSubscription):
		return string(visibility.OutcomeConflict)
	default:
		return model.OutcomeFailed
	}
}
