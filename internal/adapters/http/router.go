// Package http exposes the orchestrator over a Fiber application.
package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
	"github.com/melih/lighthouse-orchestrator/internal/core/ports"
	"github.com/melih/lighthouse-orchestrator/internal/log"
	"github.com/melih/lighthouse-orchestrator/internal/metrics"
)

// Config holds the HTTP surface settings.
type Config struct {
	Secret         string
	MaxUploadBytes int
	// GatewayHost is where worker host ports are reachable from this process.
	GatewayHost string
}

// NewRouter builds the Fiber application with every route registered.
func NewRouter(cfg Config, workers ports.WorkerService, files ports.FileService) *fiber.App {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	if cfg.GatewayHost == "" {
		cfg.GatewayHost = "127.0.0.1"
	}

	app := fiber.New(fiber.Config{
		AppName:               "lighthouse-orchestrator",
		BodyLimit:             cfg.MaxUploadBytes,
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler,
	})
	app.Use(RequestLogger(log.WithComponent("http")))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	auth := RequireSecret(cfg.Secret)
	app.Get("/metrics", auth, adaptor.HTTPHandler(metrics.Handler()))

	workerHandler := NewWorkerHandler(workers)
	fileHandler := NewFileHandler(files)
	proxy := NewGatewayProxy(workers, cfg.GatewayHost)

	containers := app.Group("/api/containers", auth)
	containers.Get("/", workerHandler.List)
	containers.Post("/provision", workerHandler.Provision)
	containers.Get("/status/:id", workerHandler.Status)
	containers.Post("/restart", workerHandler.Restart)
	containers.Post("/stop", workerHandler.Stop)
	containers.Delete("/remove/:id", workerHandler.Remove)
	containers.Get("/logs/:id", workerHandler.Logs)

	containers.Get("/files/:id", fileHandler.List)
	containers.Post("/files/:id", fileHandler.Upload)
	containers.Delete("/files/:id/:filename", fileHandler.Delete)
	containers.Get("/memory/:id", fileHandler.Memory)

	containers.All("/gateway/:id/*", proxy.ProxyRequest)

	return app
}

// ErrorHandler renders errors as {"error": message} with a status derived
// from the domain error kind.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
}

func statusFor(err error) int {
	var ferr *fiber.Error
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidArgument):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.As(err, &ferr):
		return ferr.Code
	default:
		return fiber.StatusInternalServerError
	}
}
