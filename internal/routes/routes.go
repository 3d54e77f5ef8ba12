package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/kommyut/internal/config"
	"github.com/example/kommyut/internal/handlers"
	"github.com/example/kommyut/internal/metrics"
	"github.com/example/kommyut/internal/middleware"
	"github.com/example/kommyut/internal/models"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config  *config.Config
	Users   *handlers.UserHandler
	Trips   *handlers.TripHandler
	Limiter fiber.Handler
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, deps Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "status": "ok"})
	})
	app.Get("/metrics", metrics.Handler())

	limit := deps.Limiter
	if limit == nil {
		limit = func(c *fiber.Ctx) error { return c.Next() }
	}
	manager := middleware.RequireRole(models.RoleManager)

	api := app.Group("/api", middleware.AuthMiddleware(deps.Config))

	// Users
	users := api.Group("/users")
	users.Post("/", deps.Users.UpsertUser)
	users.Get("/pending-verification", manager, deps.Users.ListPendingVerification)
	users.Get("/verification-history", manager, deps.Users.ListVerificationHistory)
	users.Get("/:uid", deps.Users.GetUser)
	users.Get("/:uid/points", deps.Users.ListPoints)
	users.Put("/:uid/verify", manager, limit, deps.Users.VerifyUser)

	// Trips
	trips := api.Group("/trips")
	trips.Post("/", deps.Trips.StartTrip)
	trips.Get("/active/:uid", deps.Trips.ListActiveTrips)
	trips.Get("/completed/:uid", deps.Trips.ListCompletedTrips)
	trips.Put("/:id/complete", limit, deps.Trips.CompleteTrip)
}
