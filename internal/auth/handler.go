package auth

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the stored portal session to operators.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type sessionResponse struct {
	Identity string     `json:"identity"`
	Stored   bool       `json:"stored"`
	IssuedAt *time.Time `json:"issued_at,omitempty"`
}

// Status reports whether a session is stored. It never contacts the portal.
func (h *Handler) Status(c *fiber.Ctx) error {
	state, err := h.svc.Stored(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	resp := sessionResponse{Identity: h.svc.identity}
	if state != nil && len(state.Blob) > 0 {
		resp.Stored = true
		issued := state.IssuedAt
		resp.IssuedAt = &issued
	}
	return c.JSON(resp)
}

// Clear forgets the stored session.
func (h *Handler) Clear(c *fiber.Ctx) error {
	if err := h.svc.Forget(c.UserContext()); err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.SendStatus(http.StatusNoContent)
}
