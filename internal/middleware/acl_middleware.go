package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"vempraca_backend/pkg/visibility"
)

// CheckListingOwnership verifies the authenticated user owns the listing in
// :id and stores it in c.Locals("listing").
func CheckListingOwnership(store visibility.Store, timeout time.Duration) fiber.Handler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return func(c *fiber.Ctx) error {
		userID := UserID(c)
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing bearer token",
			})
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()

		listing, err := store.FindListing(ctx, c.Params("id"))
		if err != nil {
			if errors.Is(err, visibility.ErrListingNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Listing not found",
				})
			}
			log.Error().Err(err).Str("listing_id", c.Params("id")).Msg("listing lookup failed")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Could not load listing",
			})
		}

		if listing.OwnerID != userID {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "You don't have permission to manage this listing",
			})
		}

		c.Locals("listing", listing)
		return c.Next()
	}
}
