package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/courierlab/shipline/pkg/models"
	"github.com/courierlab/shipline/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testShipment(t *testing.T, id string, shipmentType models.ShipmentType, createdAt time.Time) *models.Shipment {
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
		Address:             "221B Baker Street",
		Stages:              stages,
		Status:              stages[0].Name,
		EstimatedCompletion: stages[len(stages)-1].PlannedTime,
		CreatedAt:           createdAt,
	}
}

func TestShipmentRepository_CreateAndGetByID(t *testing.T) {
	repo := NewShipmentRepository(t.TempDir())
	createdAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	shipment := testShipment(t, "PKP-0A1B2C3D", models.ShipmentTypePickup, createdAt)
	require.NoError(t, repo.Create(t.Context(), shipment))

	fetched, err := repo.GetByID(t.Context(), "PKP-0A1B2C3D")
	require.NoError(t, err)
	require.NotNil(t, fetched)

	assert.Equal(t, shipment.ID, fetched.ID)
	assert.Equal(t, models.ShipmentTypePickup, fetched.Type)
	assert.Equal(t, "Pickup Requested", fetched.Status)
	assert.Len(t, fetched.Stages, 6)
	assert.True(t, fetched.Stages[0].Completed)
	assert.Equal(t, createdAt.Add(models.TotalCommitment), fetched.EstimatedCompletion)
}

func TestShipmentRepository_GetByID_NotFound(t *testing.T) {
	repo := NewShipmentRepository(t.TempDir())

	fetched, err := repo.GetByID(t.Context(), "PKP-FFFFFFFF")
	require.NoError(t, err)
	assert.Nil(t, fetched)
}

func TestShipmentRepository_Create_Duplicate(t *testing.T) {
	repo := NewShipmentRepository(t.TempDir())
	createdAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	shipment := testShipment(t, "DLV-0A1B2C3D", models.ShipmentTypeDelivery, createdAt)
	require.NoError(t, repo.Create(t.Context(), shipment))

	err := repo.Create(t.Context(), shipment)
	assert.ErrorIs(t, err, persistence.ErrShipmentAlreadyExists)
}

func TestShipmentRepository_CompleteStage(t *testing.T) {
	repo := NewShipmentRepository(t.TempDir())
	createdAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	shipment := testShipment(t, "PKP-11223344", models.ShipmentTypePickup, createdAt)
	require.NoError(t, repo.Create(t.Context(), shipment))

	at := createdAt.Add(2 * time.Hour)
	err := repo.CompleteStage(t.Context(), "PKP-11223344", models.Stage{
		Name:       "Pickup Scheduled",
		ActualTime: &at,
		Completed:  true,
	})
	require.NoError(t, err)

	fetched, err := repo.GetByID(t.Context(), "PKP-11223344")
	require.NoError(t, err)
	require.NotNil(t, fetched)

	assert.Equal(t, "Pickup Scheduled", fetched.Status)
	assert.True(t, fetched.Stages[1].Completed)
	require.NotNil(t, fetched.Stages[1].ActualTime)
	assert.Equal(t, at, *fetched.Stages[1].ActualTime)
}

func TestShipmentRepository_CompleteStage_NotFound(t *testing.T) {
	repo := NewShipmentRepository(t.TempDir())
	at := time.Now().UTC()

	err := repo.CompleteStage(t.Context(), "PKP-FFFFFFFF", models.Stage{
		Name:       "Pickup Scheduled",
		ActualTime: &at,
		Completed:  true,
	})
	assert.ErrorIs(t, err, persistence.ErrShipmentNotFound)
}

func TestShipmentRepository_CompleteStage_UnknownStage(t *testing.T) {
	repo := NewShipmentRepository(t.TempDir())
	createdAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	shipment := testShipment(t, "PKP-55667788", models.ShipmentTypePickup, createdAt)
	require.NoError(t, repo.Create(t.Context(), shipment))

	at := createdAt.Add(time.Hour)
	err := repo.CompleteStage(t.Context(), "PKP-55667788", models.Stage{
		Name:       "Teleported",
		ActualTime: &at,
		Completed:  true,
	})
	assert.ErrorIs(t, err, persistence.ErrStageNotFound)
}

func TestShipmentRepository_ListAll(t *testing.T) {
	repo := NewShipmentRepository(t.TempDir())

	first := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(3 * time.Hour)

	require.NoError(t, repo.Create(t.Context(), testShipment(t, "PKP-00000001", models.ShipmentTypePickup, first)))
	require.NoError(t, repo.Create(t.Context(), testShipment(t, "DLV-00000002", models.ShipmentTypeDelivery, second)))

	shipments, err := repo.ListAll(t.Context())
	require.NoError(t, err)
	require.Len(t, shipments, 2)

	// Most recently created first.
	assert.Equal(t, "DLV-00000002", shipments[0].ID)
	assert.Equal(t, "PKP-00000001", shipments[1].ID)
}

func TestShipmentRepository_ListAll_Empty(t *testing.T) {
	repo := NewShipmentRepository(t.TempDir())

	shipments, err := repo.ListAll(t.Context())
	require.NoError(t, err)
	assert.Empty(t, shipments)
}

func TestShipmentRepository_GetByID_RejectsCorruptDocument(t *testing.T) {
	root := t.TempDir()
	repo := NewShipmentRepository(root)

	dir := filepath.Join(root, "shipments")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "PKP-DEADBEEF.json"), []byte(`{"id": "PKP-DEADBEEF"}`), 0o600))

	fetched, err := repo.GetByID(t.Context(), "PKP-DEADBEEF")
	assert.Nil(t, fetched)
	assert.ErrorIs(t, err, persistence.ErrInvalidShipmentDocument)
}

func TestPersistence_HealthCheck(t *testing.T) {
	p := NewPersistence(t.TempDir())
	assert.NoError(t, p.HealthCheck(t.Context()))
	assert.NoError(t, p.Close(t.Context()))

	missing := NewPersistence("/nonexistent/shipline-test")
	assert.Error(t, missing.HealthCheck(t.Context()))
}
