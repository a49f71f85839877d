// Package reconciler detects shipments whose persisted state lags their
// planned timeline and optionally repairs them.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/courierlab/shipline/pkg/eventbus"
	"github.com/courierlab/shipline/pkg/events"
	"github.com/courierlab/shipline/pkg/models"
	"github.com/courierlab/shipline/pkg/persistence"
)

// Config controls reconciliation behavior.
type Config struct {
	// Schedule is a cron expression for periodic passes, e.g. "*/5 * * * *".
	Schedule string

	// Repair completes lagging stages at their planned due times instead of
	// only reporting them.
	Repair bool
}

// Reconciler sweeps the store comparing persisted stage state against the
// planned schedule. Divergence normally means a stage write failed during
// progression.
type Reconciler struct {
	repository persistence.ShipmentRepository
	publisher  eventbus.EventPublisher
	clock      clockwork.Clock
	logger     *slog.Logger
	config     Config
	cron       *cron.Cron
}

// NewReconciler creates a reconciler.
func NewReconciler(
	repository persistence.ShipmentRepository,
	publisher eventbus.EventPublisher,
	clock clockwork.Clock,
	logger *slog.Logger,
	config Config,
) *Reconciler {
	return &Reconciler{
		repository: repository,
		publisher:  publisher,
		clock:      clock,
		logger:     logger.With("module", "reconciler"),
		config:     config,
	}
}

// Start schedules periodic reconciliation passes.
func (r *Reconciler) Start(ctx context.Context) error {
	if r.config.Schedule == "" {
		return fmt.Errorf("reconciler schedule is empty")
	}

	r.cron = cron.New()

	_, err := r.cron.AddFunc(r.config.Schedule, func() {
		if err := r.Run(ctx); err != nil {
			r.logger.ErrorContext(ctx, "Reconciliation pass failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reconciler schedule %q: %w", r.config.Schedule, err)
	}

	r.cron.Start()
	r.logger.InfoContext(ctx, "Reconciler started", "schedule", r.config.Schedule, "repair", r.config.Repair)

	return nil
}

// Stop halts periodic passes and waits for a running pass to finish.
func (r *Reconciler) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// Run executes a single reconciliation pass over the whole store.
func (r *Reconciler) Run(ctx context.Context) error {
	shipments, err := r.repository.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list shipments: %w", err)
	}

	now := r.clock.Now().UTC()
	diverged := 0

	for _, shipment := range shipments {
		if !shipment.IsActive() {
			continue
		}

		overdue := shipment.OverdueStages(now)
		if len(overdue) == 0 {
			continue
		}

		diverged++

		names := make([]string, 0, len(overdue))
		for _, index := range overdue {
			names = append(names, shipment.Stages[index].Name)
		}

		r.logger.WarnContext(ctx, "Shipment lags planned timeline",
			"shipment_id", shipment.ID, "overdue_stages", names)

		r.publish(ctx, shipment.ID, events.ShipmentOverdue{
			BaseEvent:     events.NewBaseEvent(events.ShipmentOverdueEvent, shipment.ID),
			OverdueStages: names,
			ObservedAt:    now,
		})

		if r.config.Repair {
			r.repairShipment(ctx, shipment, overdue)
		}
	}

	r.logger.InfoContext(ctx, "Reconciliation pass completed",
		"shipments", len(shipments), "diverged", diverged)

	return nil
}

// repairShipment completes lagging stages at their planned due times.
func (r *Reconciler) repairShipment(ctx context.Context, shipment *models.Shipment, overdue []int) {
	for _, index := range overdue {
		stage := shipment.Stages[index]
		dueAt := shipment.DueAt(index)

		err := r.repository.CompleteStage(ctx, shipment.ID, models.Stage{
			Name:       stage.Name,
			ActualTime: &dueAt,
			Completed:  true,
		})
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to repair stage",
				"shipment_id", shipment.ID, "stage", stage.Name, "error", err)

			return
		}

		shipment.CompleteStage(stage.Name, dueAt)

		r.publish(ctx, shipment.ID, events.ShipmentStageCompleted{
			BaseEvent:  events.NewBaseEvent(events.ShipmentStageCompletedEvent, shipment.ID),
			StageName:  stage.Name,
			StageIndex: index,
			ActualTime: dueAt,
		})

		r.logger.InfoContext(ctx, "Repaired lagging stage",
			"shipment_id", shipment.ID, "stage", stage.Name, "due_at", dueAt)
	}
}

func (r *Reconciler) publish(ctx context.Context, key string, event eventbus.Event) {
	if r.publisher == nil {
		return
	}

	err := r.publisher.Publish(ctx, key, event)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to publish event",
			"shipment_id", key, "event_type", event.GetType(), "error", err)
	}
}
