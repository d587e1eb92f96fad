package http

import (
	"net/http"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/sakashimaa/paybot/internal/transport/http/handler"
)

type Handlers struct {
	Health *handler.HealthHandler
	// Metrics is optional.
	Metrics http.Handler
}

func NewApp(h *Handlers) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Use(otelfiber.Middleware())

	app.Use(limiter.New(limiter.Config{
		Max:        20,
		Expiration: 5 * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Try again later.",
			})
		},
	}))

	RegisterRoutes(app, h)

	return app
}

func RegisterRoutes(app *fiber.App, h *Handlers) {
	app.Get("/health", h.Health.Live)
	app.Get("/ready", h.Health.Ready)

	if h.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(h.Metrics))
	}
}
