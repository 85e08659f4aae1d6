// Package health serves the liveness endpoint used by container platforms.
package health

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Source reports the state included in health responses.
type Source interface {
	QueueLength() int
	QuarantinedCount() int
	SchedulerState() string
}

// Response is the JSON body of GET /health.
type Response struct {
	Status      string `json:"status"`
	Queue       int    `json:"queue"`
	Quarantined int    `json:"quarantined"`
	Scheduler   string `json:"scheduler"`
	Version     string `json:"version"`
}

// NewApp builds the HTTP app. GET / and GET /health both answer with a Response.
func NewApp(src Source, version string) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		AppName:               "chanqueue-bot",
	})
	handler := func(c *fiber.Ctx) error {
		return c.JSON(Response{
			Status:      "healthy",
			Queue:       src.QueueLength(),
			Quarantined: src.QuarantinedCount(),
			Scheduler:   src.SchedulerState(),
			Version:     version,
		})
	}
	app.Get("/", handler)
	app.Get("/health", handler)
	return app
}

// Serve listens on addr until ctx is cancelled.
func Serve(ctx context.Context, app *fiber.App, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("health server listening")
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Warn().Err(err).Msg("health server shutdown")
		}
		return nil
	}
}
