package routes

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/akatsuki-labs/akatsuki/internal/app"
	"github.com/akatsuki-labs/akatsuki/internal/auth"
	"github.com/akatsuki-labs/akatsuki/internal/config"
	"github.com/akatsuki-labs/akatsuki/internal/evaluation"
	"github.com/akatsuki-labs/akatsuki/internal/funding"
	"github.com/akatsuki-labs/akatsuki/internal/ledger"
	"github.com/akatsuki-labs/akatsuki/internal/middleware"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg     config.Config
	Runtime *app.App
	Logger  *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Cfg.TriggerTokenHash == "" && !d.Cfg.IsDev() {
		return errors.New("TRIGGER_TOKEN_HASH is required outside development")
	}
	rt := d.Runtime

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(rt.Metrics.Handler()))

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.GetRequestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	var protected fiber.Router = api
	if d.Cfg.TriggerTokenHash != "" {
		protected = api.Group("", middleware.TokenAuth(d.Cfg.TriggerTokenHash))
	} else {
		d.Logger.Warn("trigger token not configured; API is unauthenticated")
	}

	loc := d.Cfg.Location()
	now := func() time.Time { return time.Now().In(loc) }

	RegisterRunRoutes(protected, rt.Runner, d.Logger,
		middleware.TriggerRateLimit(rt.Cache, 5),
		middleware.RunLock(rt.Cache, d.Cfg.RunLockTTL, loc, d.Logger))
	RegisterLedgerRoutes(protected, ledger.NewHandler(rt.Ledger, now))
	RegisterSessionRoutes(protected, auth.NewHandler(rt.SessionView))
	RegisterFundingRoutes(protected, funding.NewHandler(rt.AllowanceView, now))
	RegisterEvaluationRoutes(protected, evaluation.NewHandler(rt.Evaluator))

	return nil
}
