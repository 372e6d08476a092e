package main

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"queryforge/internal/database"
	"queryforge/internal/engine"
	"queryforge/internal/logging"
	"queryforge/internal/plancache"
)

type queryRequest struct {
	Query    string   `json:"query"`
	Entities []string `json:"entities,omitempty"`
}

// registerRoutes wires the engine's HTTP surface: health, plan-only, and
// full plan-and-execute endpoints, plus cache diagnostics.
func registerRoutes(app *fiber.App, eng *engine.Engine, mongoDB *database.MongoDB) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "time": time.Now().UTC()})
	})

	api := app.Group("/api")

	// Plan without executing, for inspection and debugging
	api.Post("/plan", func(c *fiber.Ctx) error {
		var req queryRequest
		if err := c.BodyParser(&req); err != nil || req.Query == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "query is required"})
		}

		plan := eng.Plan(c.Context(), req.Query, req.Entities)
		return c.JSON(plan)
	})

	// Plan, execute, and record the outcome
	api.Post("/query", func(c *fiber.Ctx) error {
		var req queryRequest
		if err := c.BodyParser(&req); err != nil || req.Query == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "query is required"})
		}

		ctx := c.Context()
		plan := eng.Plan(ctx, req.Query, req.Entities)
		result := eng.Execute(ctx, plan)

		reqLog := logging.WithQuery(plan.ID, req.Query)
		if result.Success {
			reqLog.Info("query executed", "steps", len(result.Log))
		} else if len(result.Log) > 0 {
			failed := result.Log[len(result.Log)-1]
			logging.WithStep(reqLog, failed.Step, failed.Entity).
				Error("query failed", "code", result.Error.Code, "message", result.Error.Message)
		}

		// Outcome recording is best-effort and must not block the reply
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			eng.RecordOutcome(bg, req.Query, plan, result.Success, result.Error)
		}()

		return c.JSON(fiber.Map{
			"plan":   plan,
			"result": result,
		})
	})

	api.Get("/cache/stats", func(c *fiber.Ctx) error {
		if mongoDB == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "cache not configured"})
		}
		stats, err := plancache.Stats(c.Context(), mongoDB)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(stats)
	})
}
