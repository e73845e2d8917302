package funding

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/akatsuki-labs/akatsuki/internal/bet"
)

// Handler exposes deposit headroom to operators.
type Handler struct {
	service *Service
	now     func() time.Time
}

// NewHandler constructs a funding handler. now resolves the "auto" date.
func NewHandler(service *Service, now func() time.Time) *Handler {
	return &Handler{service: service, now: now}
}

// Allowance returns the day's deposited total and remaining cap.
func (h *Handler) Allowance(c *fiber.Ctx) error {
	day, err := bet.NormalizeDate(c.Params("date"), h.now())
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	a, err := h.service.Allowance(c.UserContext(), day)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(a)
}
