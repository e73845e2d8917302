package middleware

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// quietPaths are polled by the scheduler and the metrics scraper.
var quietPaths = []string{"/healthz", "/metrics"}

// Audit logs one line per trigger with the run it started or the date it
// touched. Client errors log at warn and server errors at error; polling
// endpoints log at debug.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if id := GetRequestID(c); id != "" {
			attrs = append(attrs, slog.String("request_id", id))
		}
		date, _ := c.Locals(LocalTargetDate).(string)
		if date == "" {
			date = c.Params("date")
		}
		if date != "" {
			attrs = append(attrs, slog.String("target_date", date))
		}
		if runID, _ := c.Locals(LocalRunID).(string); runID != "" {
			attrs = append(attrs, slog.String("run_id", runID))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
		}

		switch {
		case status >= fiber.StatusInternalServerError:
			logger.Error("request completed", attrs...)
		case status >= fiber.StatusBadRequest:
			logger.Warn("request completed", attrs...)
		case isQuiet(c.Path()):
			logger.Debug("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
		return err
	}
}

func isQuiet(path string) bool {
	for _, p := range quietPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
