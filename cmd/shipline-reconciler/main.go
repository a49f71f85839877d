// Package main provides the Shipline reconciler daemon.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	cli "github.com/urfave/cli/v3"

	"github.com/courierlab/shipline/pkg/cmd"
	"github.com/courierlab/shipline/pkg/log"
	"github.com/courierlab/shipline/pkg/reconciler"
)

func main() {
	logger := log.WithModule("reconciler")

	command := &cli.Command{
		Name:                  "shipline-reconciler",
		Usage:                 "Detect and repair shipments lagging their planned timeline",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron expression for reconciliation passes",
				Value:   "*/5 * * * *",
				Sources: cli.EnvVars("RECONCILE_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "repair",
				Usage:   "Complete lagging stages at their planned times instead of only reporting",
				Sources: cli.EnvVars("RECONCILE_REPAIR"),
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Run a single pass and exit",
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

			logger.InfoContext(ctx, "Initializing Shipline reconciler")

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

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "shipline-reconciler", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			r := reconciler.NewReconciler(
				persistence.ShipmentRepository(),
				eventBus,
				clockwork.NewRealClock(),
				logger,
				reconciler.Config{
					Schedule: command.String("schedule"),
					Repair:   command.Bool("repair"),
				},
			)

			if command.Bool("once") {
				return r.Run(ctx)
			}

			err = r.Start(ctx)
			if err != nil {
				return err
			}

			defer r.Stop()

			signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			<-signalCtx.Done()
			logger.InfoContext(ctx, "Shutting down")

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
