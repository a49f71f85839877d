package reconciler_test

import (
	"context"
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
	"github.com/courierlab/shipline/pkg/persistence/file"
	"github.com/courierlab/shipline/pkg/reconciler"
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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func seedShipment(t *testing.T, repo *file.ShipmentRepository, id string, createdAt time.Time) *models.Shipment {
	t.Helper()

	catalog, err := models.CatalogFor(models.ShipmentTypePickup)
	require.NoError(t, err)

	stages := models.BuildTimeline(catalog, createdAt)

	shipment := &models.Shipment{
		ID:                  id,
		Type:                models.ShipmentTypePickup,
		UserID:              "U1",
		OrderID:             "O1",
		ProductID:           "P1",
		Address:             "1 Test Way",
		Stages:              stages,
		Status:              stages[0].Name,
		EstimatedCompletion: stages[len(stages)-1].PlannedTime,
		CreatedAt:           createdAt,
	}
	require.NoError(t, repo.Create(t.Context(), shipment))

	return shipment
}

func TestRun_ReportsDivergence(t *testing.T) {
	repo := file.NewShipmentRepository(t.TempDir())
	publisher := &capturingPublisher{}

	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	seedShipment(t, repo, "PKP-0A1B2C3D", start)

	// 9 hours in: stages 1 (+2h) and 2 (+8h) should have completed.
	clock := clockwork.NewFakeClockAt(start.Add(9 * time.Hour))

	r := reconciler.NewReconciler(repo, publisher, clock, testLogger(), reconciler.Config{})
	require.NoError(t, r.Run(t.Context()))

	overdue := publisher.byType(events.ShipmentOverdueEvent)
	require.Len(t, overdue, 1)

	event, ok := overdue[0].(events.ShipmentOverdue)
	require.True(t, ok)
	assert.Equal(t, "PKP-0A1B2C3D", event.ShipmentID)
	assert.Equal(t, []string{"Pickup Scheduled", "Agent Assigned"}, event.OverdueStages)

	// Reporting alone does not touch the store.
	stored, err := repo.GetByID(t.Context(), "PKP-0A1B2C3D")
	require.NoError(t, err)
	assert.False(t, stored.Stages[1].Completed)
}

func TestRun_RepairsLaggingStages(t *testing.T) {
	repo := file.NewShipmentRepository(t.TempDir())
	publisher := &capturingPublisher{}

	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	seedShipment(t, repo, "PKP-11111111", start)

	clock := clockwork.NewFakeClockAt(start.Add(9 * time.Hour))

	r := reconciler.NewReconciler(repo, publisher, clock, testLogger(), reconciler.Config{Repair: true})
	require.NoError(t, r.Run(t.Context()))

	stored, err := repo.GetByID(t.Context(), "PKP-11111111")
	require.NoError(t, err)

	assert.True(t, stored.Stages[1].Completed)
	assert.True(t, stored.Stages[2].Completed)
	assert.False(t, stored.Stages[3].Completed)
	assert.Equal(t, "Agent Assigned", stored.Status)

	// Repaired stages land on their planned due times.
	require.NotNil(t, stored.Stages[1].ActualTime)
	assert.Equal(t, start.Add(2*time.Hour), *stored.Stages[1].ActualTime)
	require.NotNil(t, stored.Stages[2].ActualTime)
	assert.Equal(t, start.Add(8*time.Hour), *stored.Stages[2].ActualTime)

	assert.Len(t, publisher.byType(events.ShipmentStageCompletedEvent), 2)
}

func TestRun_SkipsOnScheduleShipments(t *testing.T) {
	repo := file.NewShipmentRepository(t.TempDir())
	publisher := &capturingPublisher{}

	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	seedShipment(t, repo, "PKP-22222222", start)

	// One hour in, nothing is due yet.
	clock := clockwork.NewFakeClockAt(start.Add(time.Hour))

	r := reconciler.NewReconciler(repo, publisher, clock, testLogger(), reconciler.Config{Repair: true})
	require.NoError(t, r.Run(t.Context()))

	assert.Empty(t, publisher.byType(events.ShipmentOverdueEvent))
}

func TestRun_SkipsTerminalShipments(t *testing.T) {
	repo := file.NewShipmentRepository(t.TempDir())
	publisher := &capturingPublisher{}

	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	shipment := seedShipment(t, repo, "PKP-33333333", start)

	for _, stage := range shipment.Stages {
		at := start
		require.NoError(t, repo.CompleteStage(t.Context(), shipment.ID, models.Stage{
			Name:       stage.Name,
			ActualTime: &at,
			Completed:  true,
		}))
	}

	clock := clockwork.NewFakeClockAt(start.Add(72 * time.Hour))

	r := reconciler.NewReconciler(repo, publisher, clock, testLogger(), reconciler.Config{Repair: true})
	require.NoError(t, r.Run(t.Context()))

	assert.Empty(t, publisher.byType(events.ShipmentOverdueEvent))
}

func TestStart_InvalidSchedule(t *testing.T) {
	repo := file.NewShipmentRepository(t.TempDir())
	clock := clockwork.NewFakeClockAt(time.Now())

	r := reconciler.NewReconciler(repo, nil, clock, testLogger(), reconciler.Config{Schedule: "not a cron"})
	assert.Error(t, r.Start(t.Context()))

	empty := reconciler.NewReconciler(repo, nil, clock, testLogger(), reconciler.Config{})
	assert.Error(t, empty.Start(t.Context()))
}
