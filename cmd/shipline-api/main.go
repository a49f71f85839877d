package main

import (
	"context"
	"os"

	"github.com/jonboulle/clockwork"
	cli "github.com/urfave/cli/v3"

	"github.com/courierlab/shipline/pkg/cmd"
	"github.com/courierlab/shipline/pkg/directory"
	"github.com/courierlab/shipline/pkg/log"
	"github.com/courierlab/shipline/pkg/otelhelper"
	"github.com/courierlab/shipline/pkg/scheduler"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "shipline-api",
		Usage:                 "Create and track pickup and delivery shipments",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "directory-file",
				Usage:   "Path to the user directory JSON file",
				Value:   "./users.json",
				Sources: cli.EnvVars("DIRECTORY_FILE"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.FloatFlag{
				Name:    "simulation-speed",
				Usage:   "Timeline compression factor (3600 turns one planned hour into one second)",
				Value:   1.0,
				Sources: cli.EnvVars("SIMULATION_SPEED"),
			},
			&cli.IntFlag{
				Name:    "max-concurrent",
				Usage:   "Maximum shipments progressing at once",
				Value:   64,
				Sources: cli.EnvVars("MAX_CONCURRENT"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OTLP traces for shipment operations",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Shipline API")

			if command.Bool("tracing") {
				_, err := otelhelper.NewTracer(ctx, "shipline-api")
				if err != nil {
					return err
				}
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "shipline-api", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			clock := clockwork.NewRealClock()

			progression := scheduler.NewScheduler(
				persistence.ShipmentRepository(),
				eventBus,
				clock,
				logger,
				scheduler.Config{
					SimulationSpeed: command.Float("simulation-speed"),
					MaxConcurrent:   int(command.Int("max-concurrent")),
				},
			)
			defer progression.Stop()

			// Pick in-flight shipments back up before accepting traffic.
			err = progression.Resume(ctx)
			if err != nil {
				return err
			}

			users := directory.NewFileDirectory(command.String("directory-file"))

			api := NewAPI(logger, persistence, users, progression, eventBus, clock)

			err = api.Start(int(command.Int("port")))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
