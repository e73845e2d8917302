package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/akatsuki-labs/akatsuki/internal/auth"
	"github.com/akatsuki-labs/akatsuki/internal/evaluation"
	"github.com/akatsuki-labs/akatsuki/internal/funding"
	"github.com/akatsuki-labs/akatsuki/internal/ledger"
)

// RegisterLedgerRoutes wires the per-date ledger view.
func RegisterLedgerRoutes(r fiber.Router, h *ledger.Handler) {
	r.Get("/ledger/:date", h.Show)
}

// RegisterSessionRoutes wires the stored portal session endpoints.
func RegisterSessionRoutes(r fiber.Router, h *auth.Handler) {
	group := r.Group("/session")
	group.Get("", h.Status)
	group.Delete("", h.Clear)
}

// RegisterFundingRoutes wires the daily deposit allowance view.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler) {
	r.Get("/funding/:date", h.Allowance)
}

// RegisterEvaluationRoutes wires the post-race evaluation trigger.
func RegisterEvaluationRoutes(r fiber.Router, h *evaluation.Handler) {
	r.Post("/evaluations/:date", h.Evaluate)
}
