package evaluation

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/akatsuki-labs/akatsuki/internal/bet"
)

// Handler triggers evaluations over HTTP.
type Handler struct {
	evaluator *Evaluator
}

func NewHandler(evaluator *Evaluator) *Handler {
	return &Handler{evaluator: evaluator}
}

// Evaluate settles the purchases of :date and returns the report.
func (h *Handler) Evaluate(c *fiber.Ctx) error {
	report, err := h.evaluator.Evaluate(c.UserContext(), c.Params("date"))
	switch {
	case err == nil:
		return c.Status(http.StatusOK).JSON(report)
	case errors.Is(err, bet.ErrInvalidInstruction):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrMalformedResults):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
