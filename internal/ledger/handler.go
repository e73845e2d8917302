package ledger

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/akatsuki-labs/akatsuki/internal/bet"
)

// Handler exposes the ledger of a target date to operators.
type Handler struct {
	ledger *Ledger
	now    func() time.Time
}

// NewHandler builds a ledger HTTP handler. now resolves the "auto" date.
func NewHandler(ledger *Ledger, now func() time.Time) *Handler {
	return &Handler{ledger: ledger, now: now}
}

type showResponse struct {
	TargetDate string         `json:"target_date"`
	Counts     map[Status]int `json:"counts"`
	Tickets    []Record       `json:"tickets"`
}

// Show returns every record of :date ordered by bet identity.
func (h *Handler) Show(c *fiber.Ctx) error {
	date, err := bet.NormalizeDate(c.Params("date"), h.now())
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	entries, err := h.ledger.Get(c.UserContext(), date)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(showResponse{
		TargetDate: date,
		Counts:     Counts(entries),
		Tickets:    Sorted(entries),
	})
}
