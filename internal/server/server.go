package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vempraca_backend/internal/controller"
	"vempraca_backend/internal/middleware"
	"vempraca_backend/pkg/utils/jwt"
	"vempraca_backend/pkg/visibility"
)

const webhookBodyLimit = 1024 * 1024

type Deps struct {
	Tokens        *jwt.Manager
	Store         visibility.Store
	StoreTimeout  time.Duration
	Webhooks      *controller.WebhookController
	Subscriptions *controller.SubscriptionController
	// RequestLog enables the fiber access log.
	RequestLog bool
}

func New(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit: webhookBodyLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	if d.RequestLog {
		app.Use(logger.New())
	}
	app.Use(cors.New())

	setupRoutes(app, d)
	return app
}

func setupRoutes(app *fiber.App, d Deps) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	api.Get("/health", controller.Health)

	// Stripe webhook
	api.Post("/webhooks/stripe", d.Webhooks.HandleStripeWebhook)

	listings := api.Group("/listings", middleware.AuthMiddleware(d.Tokens))
	owned := middleware.CheckListingOwnership(d.Store, d.StoreTimeout)
	listings.Get("/:id/subscription", owned, d.Subscriptions.GetListingSubscription)
	listings.Post("/:id/subscription/cancel", owned, d.Subscriptions.CancelSubscription)
}
