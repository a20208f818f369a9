// handlers/settlement_routes.go
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"challenge-settlement-system/metrics"
	"challenge-settlement-system/middleware"
	"challenge-settlement-system/models"
	"challenge-settlement-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
)

// JobRunner is satisfied by *services.Scheduler.
type JobRunner interface {
	Jobs() []string
	RunNow(ctx context.Context, name string) (*models.SettlementRun, error)
}

// RunLister is satisfied by *services.RunJournal.
type RunLister interface {
	Recent(ctx context.Context, job string, limit int) ([]models.SettlementRun, error)
}

// SetupOpsRoutes mounts the unauthenticated health and metrics endpoints.
func SetupOpsRoutes(app *fiber.App, gatherer prometheus.Gatherer) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "time": time.Now().UTC()})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(gatherer)))
}

// SetupAdminRoutes mounts the job trigger and run history under /admin.
// Nothing is mounted when token is empty.
func SetupAdminRoutes(app *fiber.App, runner JobRunner, runs RunLister, token string, logger *slog.Logger) {
	if token == "" {
		logger.Warn("ADMIN_SERVICE_TOKEN not set, admin routes disabled")
		return
	}

	admin := app.Group("/admin", middleware.ServiceTokenAuth(token, logger))

	admin.Get("/jobs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"jobs": runner.Jobs()})
	})

	admin.Post("/jobs/:name/run", func(c *fiber.Ctx) error {
		name := c.Params("name")
		logger.Info("manual settlement run requested", slog.String("job", name), slog.String("ip", c.IP()))

		run, err := runner.RunNow(c.UserContext(), name)
		switch {
		case errors.Is(err, services.ErrUnknownJob):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, services.ErrJobRunning):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		case err != nil:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
				"run":   run,
			})
		}
		return c.JSON(run)
	})

	admin.Get("/runs", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 20)
		list, err := runs.Recent(c.UserContext(), c.Query("job"), limit)
		if err != nil {
			logger.Error("failed to list settlement runs", slog.String("error", err.Error()))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to list settlement runs",
			})
		}
		if list == nil {
			list = []models.SettlementRun{}
		}
		return c.JSON(fiber.Map{"runs": list})
	})
}
