package routes

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/akatsuki-labs/akatsuki/internal/app"
	"github.com/akatsuki-labs/akatsuki/internal/middleware"
	"github.com/akatsuki-labs/akatsuki/internal/purchase"
)

// Invoker executes one purchase run.
type Invoker interface {
	Invoke(ctx context.Context, req purchase.Request) (purchase.Summary, error)
}

// RegisterRunRoutes wires the run trigger behind guards.
func RegisterRunRoutes(r fiber.Router, runner Invoker, logger *slog.Logger, guards ...fiber.Handler) {
	handlers := append(guards, func(c *fiber.Ctx) error {
		var req purchase.Request
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(http.StatusBadRequest, err.Error())
			}
		}
		summary, err := runner.Invoke(c.UserContext(), req)
		switch {
		case err == nil:
			c.Locals(middleware.LocalRunID, summary.RunID)
			c.Locals(middleware.LocalTargetDate, summary.TargetDate)
			return c.Status(http.StatusOK).JSON(summary)
		case errors.Is(err, purchase.ErrConfiguration):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrRunInProgress):
			return fiber.NewError(http.StatusConflict, err.Error())
		default:
			logger.Error("run failed", slog.Any("error", err))
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	})
	r.Post("/runs", handlers...)
}
