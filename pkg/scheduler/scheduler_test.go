package scheduler_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierlab/shipline/pkg/eventbus"
	"github.com/courierlab/shipline/pkg/events"
	"github.com/courierlab/shipline/pkg/models"
	"github.com/courierlab/shipline/pkg/persistence"
	"github.com/courierlab/shipline/pkg/persistence/file"
	"github.com/courierlab/shipline/pkg/scheduler"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *capturingPublisher) byType(eventType events.EventType) []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	matched := make([]eventbus.Event, 0)

	for _, event := range p.events {
		if event.GetType() == eventType {
			matched = append(matched, event)
		}
	}

	return matched
}

type failingRepository struct {
	persistence.ShipmentRepository

	mu       sync.Mutex
	failures int
}

func (r *failingRepository) CompleteStage(ctx context.Context, id string, stage models.Stage) error {
	r.mu.Lock()
	fail := r.failures > 0
	if fail {
		r.failures--
	}
	r.mu.Unlock()

	if fail {
		return persistence.NewWriteError("CompleteStage", id, errors.New("store unavailable"))
	}

	return r.ShipmentRepository.CompleteStage(ctx, id, stage)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newShipment(t *testing.T, id string, shipmentType models.ShipmentType, createdAt time.Time) *models.Shipment {
	t.Helper()

	catalog, err := models.CatalogFor(shipmentType)
	require.NoError(t, err)

	stages := models.BuildTimeline(catalog, createdAt)

	return &models.Shipment{
		ID:                  id,
		Type:                shipmentType,
		UserID:              "U1",
		OrderID:             "O1",
		ProductID:           "P1",
		Address:             "1 Test Way",
		Stages:              stages,
		Status:              stages[0].Name,
		EstimatedCompletion: stages[len(stages)-1].PlannedTime,
		CreatedAt:           createdAt,
	}
}

func stageCompleted(t *testing.T, repo persistence.ShipmentRepository, id string, index int) func() bool {
	t.Helper()

	return func() bool {
		shipment, err := repo.GetByID(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, shipment)

		return shipment.Stages[index].Completed
	}
}

func TestScheduler_ProgressesThroughTimeline(t *testing.T) {
	repo := file.NewShipmentRepository(t.TempDir())
	publisher := &capturingPublisher{}

	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)

	s := scheduler.NewScheduler(repo, publisher, clock, testLogger(), scheduler.Config{})
	defer s.Stop()

	shipment := newShipment(t, "PKP-0A1B2C3D", models.ShipmentTypePickup, start)
	require.NoError(t, repo.Create(t.Context(), shipment))

	s.Schedule(shipment)

	// Stage 1 completes after the first dwell (2h).
	clock.BlockUntil(1)
	clock.Advance(2 * time.Hour)
	require.Eventually(t, stageCompleted(t, repo, shipment.ID, 1), 2*time.Second, 5*time.Millisecond)

	fetched, err := repo.GetByID(t.Context(), shipment.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pickup Scheduled", fetched.Status)

	// Walk the remaining dwells stage by stage.
	for index := 2; index < len(shipment.Stages); index++ {
		clock.BlockUntil(1)
		clock.Advance(shipment.Stages[index-1].PlannedDuration)
		require.Eventually(t, stageCompleted(t, repo, shipment.ID, index), 2*time.Second, 5*time.Millisecond)
	}

	fetched, err = repo.GetByID(t.Context(), shipment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TerminalStage(models.ShipmentTypePickup), fetched.Status)
	assert.False(t, fetched.IsActive())

	require.Eventually(t, func() bool {
		return len(publisher.byType(events.ShipmentCompletedEvent)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Five transitions after creation: stages 1 through 5.
	assert.Len(t, publisher.byType(events.ShipmentStageCompletedEvent), 5)
}

func TestScheduler_SimulationSpeedCompressesDwells(t *testing.T) {
	repo := file.NewShipmentRepository(t.TempDir())
	publisher := &capturingPublisher{}

	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)

	// One planned hour passes per simulated second.
	s := scheduler.NewScheduler(repo, publisher, clock, testLogger(), scheduler.Config{SimulationSpeed: 3600})
	defer s.Stop()

	shipment := newShipment(t, "DLV-0A1B2C3D", models.ShipmentTypeDelivery, start)
	require.NoError(t, repo.Create(t.Context(), shipment))

	s.Schedule(shipment)

	// First dwell is 2h planned, 2s simulated.
	clock.BlockUntil(1)
	clock.Advance(2 * time.Second)
	require.Eventually(t, stageCompleted(t, repo, shipment.ID, 1), 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_ScheduleIsIdempotent(t *testing.T) {
	repo := file.NewShipmentRepository(t.TempDir())
	publisher := &capturingPublisher{}

	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)

	s := scheduler.NewScheduler(repo, publisher, clock, testLogger(), scheduler.Config{})
	defer s.Stop()

	shipment := newShipment(t, "PKP-11111111", models.ShipmentTypePickup, start)
	require.NoError(t, repo.Create(t.Context(), shipment))

	s.Schedule(shipment)
	s.Schedule(shipment)
	s.Schedule(shipment)

	// Exactly one task waits on the timeline.
	clock.BlockUntil(1)
	clock.Advance(2 * time.Hour)
	require.Eventually(t, stageCompleted(t, repo, shipment.ID, 1), 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(publisher.byType(events.ShipmentStageCompletedEvent)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// No duplicate transition arrives from a second task.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, publisher.byType(events.ShipmentStageCompletedEvent), 1)
}

func TestScheduler_CancelStopsProgression(t *testing.T) {
	repo := file.NewShipmentRepository(t.TempDir())
	publisher := &capturingPublisher{}

	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)

	s := scheduler.NewScheduler(repo, publisher, clock, testLogger(), scheduler.Config{})
	defer s.Stop()

	shipment := newShipment(t, "PKP-22222222", models.ShipmentTypePickup, start)
	require.NoError(t, repo.Create(t.Context(), shipment))

	s.Schedule(shipment)
	clock.BlockUntil(1)

	assert.True(t, s.Cancel(shipment.ID))
	assert.False(t, s.Cancel(shipment.ID))

	clock.Advance(48 * time.Hour)
	time.Sleep(50 * time.Millisecond)

	fetched, err := repo.GetByID(t.Context(), shipment.ID)
	require.NoError(t, err)
	assert.False(t, fetched.Stages[1].Completed)
	assert.Equal(t, "Pickup Requested", fetched.Status)
}

func TestScheduler_WriteFailureDoesNotHaltTimeline(t *testing.T) {
	fileRepo := file.NewShipmentRepository(t.TempDir())
	repo := &failingRepository{ShipmentRepository: fileRepo, failures: 1}
	publisher := &capturingPublisher{}

	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)

	s := scheduler.NewScheduler(repo, publisher, clock, testLogger(), scheduler.Config{})
	defer s.Stop()

	shipment := newShipment(t, "PKP-33333333", models.ShipmentTypePickup, start)
	require.NoError(t, fileRepo.Create(t.Context(), shipment))

	s.Schedule(shipment)

	// First transition fails to persist but the timeline keeps moving.
	clock.BlockUntil(1)
	clock.Advance(2 * time.Hour)
	require.Eventually(t, func() bool {
		return len(publisher.byType(events.ShipmentStageWriteFailed)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	clock.BlockUntil(1)
	clock.Advance(6 * time.Hour)
	require.Eventually(t, stageCompleted(t, repo, shipment.ID, 2), 2*time.Second, 5*time.Millisecond)

	// The failed stage stays incomplete in the store for the reconciler.
	fetched, err := repo.GetByID(t.Context(), shipment.ID)
	require.NoError(t, err)
	assert.False(t, fetched.Stages[1].Completed)
	assert.True(t, fetched.Stages[2].Completed)
}

func TestScheduler_ResumeCatchesUpOverdueStages(t *testing.T) {
	repo := file.NewShipmentRepository(t.TempDir())
	publisher := &capturingPublisher{}

	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	shipment := newShipment(t, "PKP-44444444", models.ShipmentTypePickup, start)
	require.NoError(t, repo.Create(t.Context(), shipment))

	// Restart lands 9 hours in: stages 1 (+2h) and 2 (+8h) are overdue.
	clock := clockwork.NewFakeClockAt(start.Add(9 * time.Hour))

	s := scheduler.NewScheduler(repo, publisher, clock, testLogger(), scheduler.Config{})
	defer s.Stop()

	require.NoError(t, s.Resume(t.Context()))

	fetched, err := repo.GetByID(t.Context(), shipment.ID)
	require.NoError(t, err)
	assert.True(t, fetched.Stages[1].Completed)
	assert.True(t, fetched.Stages[2].Completed)
	assert.False(t, fetched.Stages[3].Completed)
	assert.Equal(t, "Agent Assigned", fetched.Status)

	// Caught-up stages land on their planned due times.
	require.NotNil(t, fetched.Stages[1].ActualTime)
	assert.Equal(t, start.Add(2*time.Hour), *fetched.Stages[1].ActualTime)
	require.NotNil(t, fetched.Stages[2].ActualTime)
	assert.Equal(t, start.Add(8*time.Hour), *fetched.Stages[2].ActualTime)

	// Progression resumes on simulated time for the rest of the timeline.
	clock.BlockUntil(1)
	clock.Advance(8 * time.Hour)
	require.Eventually(t, stageCompleted(t, repo, shipment.ID, 3), 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_ResumeSkipsTerminalShipments(t *testing.T) {
	repo := file.NewShipmentRepository(t.TempDir())
	publisher := &capturingPublisher{}

	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	shipment := newShipment(t, "DLV-55555555", models.ShipmentTypeDelivery, start)
	for _, stage := range shipment.Stages {
		at := start
		shipment.CompleteStage(stage.Name, at)
	}
	require.NoError(t, repo.Create(t.Context(), shipment))

	clock := clockwork.NewFakeClockAt(start.Add(72 * time.Hour))

	s := scheduler.NewScheduler(repo, publisher, clock, testLogger(), scheduler.Config{})
	defer s.Stop()

	require.NoError(t, s.Resume(t.Context()))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, publisher.byType(events.ShipmentStageCompletedEvent))
}
