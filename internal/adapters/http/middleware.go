package http

import (
	"crypto/subtle"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/melih/lighthouse-orchestrator/internal/core/domain"
)

// SecretHeader carries the shared secret on every authenticated request.
const SecretHeader = "X-Orchestrator-Secret"

// RequireSecret rejects requests whose SecretHeader does not match secret.
func RequireSecret(secret string) fiber.Handler {
	want := []byte(secret)
	return func(c *fiber.Ctx) error {
		got := []byte(c.Get(SecretHeader))
		if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			return domain.ErrUnauthorized
		}
		return c.Next()
	}
}

// RequestLogger logs one line per request once the response status is known.
func RequestLogger(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// Let the error handler write the response so the logged status is final.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		event := logger.Info()
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		}
		event.
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
		return nil
	}
}
