package controller

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"vempraca_backend/internal/middleware"
	"vempraca_backend/pkg/visibility"
)

var validate = validator.New()

type CancelSubscriptionInput struct {
	Mode string `json:"mode" validate:"required,oneof=immediate end_of_period"`
}

type SubscriptionController struct {
	canceller *visibility.Canceller
}

func NewSubscriptionController(canceller *visibility.Canceller) *SubscriptionController {
	return &SubscriptionController{canceller: canceller}
}

// CancelSubscription cancels the listing's subscription immediately or at
// period end. The response always carries the resulting billing state.
func (h *SubscriptionController) CancelSubscription(c *fiber.Ctx) error {
	input := new(CancelSubscriptionInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input",
		})
	}
	if err := validate.Struct(input); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "mode must be immediate or end_of_period",
		})
	}

	mode, err := visibility.ParseCancelMode(input.Mode)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "mode must be immediate or end_of_period",
		})
	}

	res, err := h.canceller.Cancel(c.UserContext(), visibility.CancelRequest{
		ListingID: c.Params("id"),
		ActorID:   middleware.UserID(c),
		Mode:      mode,
	})
	if err != nil {
		status, msg := cancelErrorStatus(err)
		if status >= fiber.StatusInternalServerError {
			log.Error().Err(err).Str("listing_id", c.Params("id")).Str("mode", string(mode)).Msg("Subscription cancellation failed")
		}
		return c.Status(status).JSON(fiber.Map{
			"error": msg,
		})
	}

	body := fiber.Map{
		"listing_id":           res.ListingID,
		"subscription_id":      res.SubscriptionID,
		"status":               res.Status,
		"cancel_at_period_end": res.CancelAtPeriodEnd,
	}
	if res.IsVisible != nil {
		body["is_visible"] = *res.IsVisible
	}
	return c.JSON(body)
}

// GetListingSubscription returns the billing state stored on the listing.
func (h *SubscriptionController) GetListingSubscription(c *fiber.Ctx) error {
	listing, ok := c.Locals("listing").(*visibility.Listing)
	if !ok || listing == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Listing not found",
		})
	}

	return c.JSON(fiber.Map{
		"listing_id":      listing.ID,
		"is_visible":      listing.IsVisible,
		"subscription_id": listing.SubscriptionID,
		"customer_id":     listing.CustomerID,
		"grandfathered":   listing.Grandfathered,
	})
}

func cancelErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, visibility.ErrUnauthorized):
		return fiber.StatusUnauthorized, "Authentication required"
	case errors.Is(err, visibility.ErrForbidden):
		return fiber.StatusForbidden, "You don't have permission to manage this listing"
	case errors.Is(err, visibility.ErrListingNotFound):
		return fiber.StatusNotFound, "Listing not found"
	case errors.Is(err, visibility.ErrNoSubscription):
		return fiber.StatusConflict, "Listing has no subscription"
	case errors.Is(err, visibility.ErrInvalidMode):
		return fiber.StatusUnprocessableEntity, "mode must be immediate or end_of_period"
	case errors.Is(err, visibility.ErrUpstreamTimeout):
		return fiber.StatusGatewayTimeout, "Upstream did not answer in time, cancellation state unknown"
	case errors.Is(err, visibility.ErrUpstreamUnavailable):
		return fiber.StatusBadGateway, "Could not cancel subscription"
	default:
		return fiber.StatusInternalServerError, "Could not cancel subscription"
	}
}
