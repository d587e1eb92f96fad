package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/paybot/pkg/mylogger"
	"go.uber.org/zap"
)

// Checker reports whether one dependency is reachable.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

type CheckFunc struct {
	Label string
	Fn    func(ctx context.Context) error
}

func (c CheckFunc) Name() string                    { return c.Label }
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

type HealthHandler struct {
	checkers []Checker
	timeout  time.Duration
	logger   *zap.Logger
}

func NewHealthHandler(timeout time.Duration, logger *zap.Logger, checkers ...Checker) *HealthHandler {
	return &HealthHandler{
		checkers: checkers,
		timeout:  timeout,
		logger:   logger,
	}
}

func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	checks := fiber.Map{}
	ready := true

	for _, checker := range h.checkers {
		if err := checker.Check(ctx); err != nil {
			mylogger.Warn(
				ctx,
				h.logger,
				"Readiness check failed",
				zap.String("dependency", checker.Name()),
				zap.Error(err),
			)

			checks[checker.Name()] = "unavailable"
			ready = false
			continue
		}
		checks[checker.Name()] = "ok"
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
			"checks": checks,
		})
	}

	return c.JSON(fiber.Map{"status": "ok", "checks": checks})
}
