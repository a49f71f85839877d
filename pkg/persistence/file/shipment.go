package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/courierlab/shipline/pkg/models"
	"github.com/courierlab/shipline/pkg/persistence"
)

// ShipmentRepository handles shipment-related file operations. Each shipment
// is one JSON document under <root>/shipments.
type ShipmentRepository struct {
	root string
}

// NewShipmentRepository creates a new shipment repository.
func NewShipmentRepository(root string) *ShipmentRepository {
	return &ShipmentRepository{root: root}
}

// Create persists a new shipment document. The write is durable when Create returns.
func (sr *ShipmentRepository) Create(ctx context.Context, shipment *models.Shipment) error {
	existing, err := sr.GetByID(ctx, shipment.ID)
	if err != nil {
		return fmt.Errorf("failed to check for existing shipment %s: %w", shipment.ID, err)
	}

	if existing != nil {
		return persistence.ErrShipmentAlreadyExists
	}

	return sr.write(shipment, "Create")
}

// GetByID retrieves a shipment by its ID from the file system. Documents are
// schema-validated on read because the store is plain JSON that operators can
// hand-edit.
func (sr *ShipmentRepository) GetByID(_ context.Context, shipmentID string) (*models.Shipment, error) {
	filePath := filepath.Clean(path.Join(sr.root, "shipments", shipmentID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch shipment %s: %w", shipmentID, err)
	}

	if err := validateShipmentDocument(body); err != nil {
		return nil, fmt.Errorf("shipment %s: %w", shipmentID, err)
	}

	var shipment models.Shipment

	err = json.Unmarshal(body, &shipment)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal shipment %s: %w", shipmentID, err)
	}

	return &shipment, nil
}

// ListAll returns every stored shipment, most recently created first.
func (sr *ShipmentRepository) ListAll(ctx context.Context) ([]*models.Shipment, error) {
	root := os.DirFS(path.Join(sr.root, "shipments"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list shipment files: %w", err)
	}

	shipments := make([]*models.Shipment, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		shipmentID := file[:len(file)-5] // Remove .json extension

		shipment, err := sr.GetByID(ctx, shipmentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load shipment %s: %w", shipmentID, err)
		}

		if shipment != nil {
			shipments = append(shipments, shipment)
		}
	}

	sort.Slice(shipments, func(i, j int) bool {
		return shipments[i].CreatedAt.After(shipments[j].CreatedAt)
	})

	return shipments, nil
}

// CompleteStage applies one stage transition and the derived status as a
// single document rewrite.
func (sr *ShipmentRepository) CompleteStage(ctx context.Context, id string, stage models.Stage) error {
	shipment, err := sr.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load shipment %s: %w", id, err)
	}

	if shipment == nil {
		return persistence.ErrShipmentNotFound
	}

	if err := applyStage(shipment, stage); err != nil {
		return err
	}

	return sr.write(shipment, "CompleteStage")
}

func (sr *ShipmentRepository) write(shipment *models.Shipment, op string) error {
	dir := path.Join(sr.root, "shipments")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return persistence.NewWriteError(op, shipment.ID, err)
	}

	shipment.UpdatedAt = time.Now().UTC()

	body, err := json.MarshalIndent(shipment, "", "  ")
	if err != nil {
		return persistence.NewWriteError(op, shipment.ID, err)
	}

	filePath := filepath.Clean(path.Join(dir, shipment.ID+".json"))

	if err := os.WriteFile(filePath, body, 0o600); err != nil {
		return persistence.NewWriteError(op, shipment.ID, err)
	}

	return nil
}

// applyStage merges a completed stage into the shipment, keeping transitions monotonic.
func applyStage(shipment *models.Shipment, stage models.Stage) error {
	for i := range shipment.Stages {
		if shipment.Stages[i].Name != stage.Name {
			continue
		}

		if shipment.Stages[i].Completed {
			return nil
		}

		shipment.Stages[i].ActualTime = stage.ActualTime
		shipment.Stages[i].Completed = stage.Completed
		shipment.Status = stage.Name

		return nil
	}

	return persistence.ErrStageNotFound
}
