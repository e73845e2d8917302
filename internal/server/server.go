package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/akatsuki-labs/akatsuki/internal/app"
	"github.com/akatsuki-labs/akatsuki/internal/config"
	"github.com/akatsuki-labs/akatsuki/internal/routes"
)

// Server wraps the Fiber application and the runtime it serves.
type Server struct {
	app     *fiber.App
	cfg     config.Config
	runtime *app.App
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, runtime *app.App, logger *slog.Logger) (*Server, error) {
	f := fiber.New(fiber.Config{
		AppName:     cfg.AppName,
		ReadTimeout: 30 * time.Second,
		// a run may take the whole run budget before the summary is written
		WriteTimeout: cfg.Run.Budget + time.Minute,
	})

	if err := routes.Setup(f, routes.Deps{Cfg: cfg, Runtime: runtime, Logger: logger}); err != nil {
		return nil, err
	}

	return &Server{app: f, cfg: cfg, runtime: runtime}, nil
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server, then drains the runtime.
func (s *Server) Shutdown(ctx context.Context) error {
	return errors.Join(s.app.ShutdownWithContext(ctx), s.runtime.Close(ctx))
}
