// Package main provides the Shipline API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/jonboulle/clockwork"

	"github.com/courierlab/shipline/pkg/directory"
	"github.com/courierlab/shipline/pkg/eventbus"
	"github.com/courierlab/shipline/pkg/persistence"
	"github.com/courierlab/shipline/pkg/services"
	"github.com/courierlab/shipline/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	directory   directory.Directory
	scheduler   services.ProgressionScheduler
	eventBus    eventbus.EventBus
	clock       clockwork.Clock
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	directory directory.Directory,
	scheduler services.ProgressionScheduler,
	eventBus eventbus.EventBus,
	clock clockwork.Clock,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		directory:   directory,
		scheduler:   scheduler,
		eventBus:    eventBus,
		clock:       clock,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	shipmentService := services.NewShipment(
		a.persistence,
		a.directory,
		a.scheduler,
		a.eventBus,
		a.clock,
		a.logger,
	)

	handlers := web.NewAPIHandlers(shipmentService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Shipline API")
	})

	app.Post("/pickups", handlers.CreatePickup)
	app.Post("/deliveries", handlers.CreateDelivery)

	s := app.Group("/shipments")
	s.Get("/active", handlers.ListActiveShipments)
	s.Get("/:id", handlers.GetShipment)
	s.Post("/:id/cancel", handlers.CancelShipment)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
