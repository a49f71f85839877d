// Package scheduler drives shipments through their staged timelines on
// compressed simulation time.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/courierlab/shipline/pkg/eventbus"
	"github.com/courierlab/shipline/pkg/events"
	"github.com/courierlab/shipline/pkg/models"
	"github.com/courierlab/shipline/pkg/persistence"
)

const (
	defaultSimulationSpeed = 1.0
	defaultMaxConcurrent   = 64
)

// Config controls timeline progression.
type Config struct {
	// SimulationSpeed divides every stage dwell: a speed of 3600 turns one
	// planned hour into one wall-clock second.
	SimulationSpeed float64

	// MaxConcurrent bounds how many shipments progress at once. Further
	// shipments queue for a slot instead of being rejected.
	MaxConcurrent int
}

// Scheduler owns at most one progression task per shipment ID. Tasks survive
// only in memory; Resume rebuilds them from the store after a restart.
type Scheduler struct {
	repository persistence.ShipmentRepository
	publisher  eventbus.EventPublisher
	clock      clockwork.Clock
	logger     *slog.Logger
	config     Config

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running map[string]context.CancelFunc

	slots chan struct{}
	wg    sync.WaitGroup
}

// NewScheduler creates a scheduler. Zero config fields fall back to defaults.
func NewScheduler(
	repository persistence.ShipmentRepository,
	publisher eventbus.EventPublisher,
	clock clockwork.Clock,
	logger *slog.Logger,
	config Config,
) *Scheduler {
	if config.SimulationSpeed <= 0 {
		config.SimulationSpeed = defaultSimulationSpeed
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaultMaxConcurrent
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		repository: repository,
		publisher:  publisher,
		clock:      clock,
		logger:     logger.With("module", "scheduler"),
		config:     config,
		ctx:        ctx,
		cancel:     cancel,
		running:    make(map[string]context.CancelFunc),
		slots:      make(chan struct{}, config.MaxConcurrent),
	}
}

// Schedule starts autonomous progression for the shipment. Scheduling a
// shipment that is already running or already terminal is a no-op.
func (s *Scheduler) Schedule(shipment *models.Shipment) {
	if !shipment.IsActive() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.running[shipment.ID]; exists {
		return
	}

	runCtx, cancel := context.WithCancel(s.ctx)
	s.running[shipment.ID] = cancel

	s.wg.Add(1)

	go s.run(runCtx, shipment)
}

// Cancel stops the progression task for the shipment, if one is running.
func (s *Scheduler) Cancel(shipmentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel, exists := s.running[shipmentID]
	if !exists {
		return false
	}

	cancel()
	delete(s.running, shipmentID)

	return true
}

// Resume rebuilds progression tasks from the store after a restart. Stages
// whose due time already passed are caught up synchronously at their planned
// times before the shipment re-enters simulated progression.
func (s *Scheduler) Resume(ctx context.Context) error {
	shipments, err := s.repository.ListAll(ctx)
	if err != nil {
		return err
	}

	resumed := 0

	for _, shipment := range shipments {
		if !shipment.IsActive() {
			continue
		}

		s.catchUp(ctx, shipment)

		if shipment.IsActive() {
			s.Schedule(shipment)
		}

		resumed++
	}

	s.logger.InfoContext(ctx, "Resumed shipment progression", "total", len(shipments), "resumed", resumed)

	return nil
}

// Stop cancels every progression task and waits for them to drain.
func (s *Scheduler) Stop() {
	s.cancel()

	s.mu.Lock()
	s.running = make(map[string]context.CancelFunc)
	s.mu.Unlock()

	s.wg.Wait()
}

// catchUp completes overdue stages at their planned times.
func (s *Scheduler) catchUp(ctx context.Context, shipment *models.Shipment) {
	now := s.clock.Now().UTC()

	for _, index := range shipment.OverdueStages(now) {
		stage := shipment.Stages[index]
		dueAt := shipment.DueAt(index)

		if !s.completeStage(ctx, shipment, index, dueAt) {
			return
		}

		s.logger.InfoContext(ctx, "Caught up overdue stage",
			"shipment_id", shipment.ID, "stage", stage.Name, "due_at", dueAt)
	}
}

func (s *Scheduler) run(ctx context.Context, shipment *models.Shipment) {
	defer s.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Progression task panicked", "shipment_id", shipment.ID, "panic", r)
		}

		s.mu.Lock()
		delete(s.running, shipment.ID)
		s.mu.Unlock()
	}()

	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return
	}

	defer func() { <-s.slots }()

	for index := shipment.CurrentStageIndex() + 1; index < len(shipment.Stages); index++ {
		// The dwell before stage N is stage N-1's planned duration. Stage 0
		// completes at creation, so index is always at least 1 here.
		dwell := shipment.Stages[index-1].PlannedDuration
		wait := time.Duration(float64(dwell) / s.config.SimulationSpeed)

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(wait):
		}

		if !s.completeStage(ctx, shipment, index, s.clock.Now().UTC()) {
			return
		}
	}
}

// completeStage persists one transition and publishes the matching events.
// Returns false when progression must stop for this shipment.
func (s *Scheduler) completeStage(ctx context.Context, shipment *models.Shipment, index int, at time.Time) bool {
	stage := shipment.Stages[index]

	err := s.repository.CompleteStage(ctx, shipment.ID, models.Stage{
		Name:       stage.Name,
		ActualTime: &at,
		Completed:  true,
	})
	if err != nil {
		if persistence.IsShipmentNotFound(err) {
			s.logger.WarnContext(ctx, "Shipment vanished mid-progression", "shipment_id", shipment.ID)

			return false
		}

		// Write failures do not halt the timeline; the reconciler closes
		// the gap from the planned schedule later.
		s.logger.ErrorContext(ctx, "Failed to persist stage transition",
			"shipment_id", shipment.ID, "stage", stage.Name, "error", err)

		s.publish(ctx, shipment.ID, events.ShipmentStageWriteFailure{
			BaseEvent: events.NewBaseEvent(events.ShipmentStageWriteFailed, shipment.ID),
			StageName: stage.Name,
			Error:     err.Error(),
		})
	}

	shipment.CompleteStage(stage.Name, at)

	s.publish(ctx, shipment.ID, events.ShipmentStageCompleted{
		BaseEvent:  events.NewBaseEvent(events.ShipmentStageCompletedEvent, shipment.ID),
		StageName:  stage.Name,
		StageIndex: index,
		ActualTime: at,
	})

	if index == len(shipment.Stages)-1 {
		s.publish(ctx, shipment.ID, events.ShipmentCompleted{
			BaseEvent:   events.NewBaseEvent(events.ShipmentCompletedEvent, shipment.ID),
			FinalStage:  stage.Name,
			CompletedAt: at,
		})
	}

	return true
}

func (s *Scheduler) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	err := s.publisher.Publish(ctx, key, event)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish event",
			"shipment_id", key, "event_type", event.GetType(), "error", err)
	}
}
