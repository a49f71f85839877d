// Package persistence provides the data storage abstraction for shipments.
package persistence

import (
	"context"

	"github.com/courierlab/shipline/pkg/models"
)

// Persistence is the gateway to a concrete storage backend.
type Persistence interface {
	ShipmentRepository() ShipmentRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ShipmentRepository handles shipment records. Create must be durable before
// it returns. CompleteStage applies one stage transition together with the
// derived status as a single logical update. GetByID returns nil, nil when no
// record exists.
type ShipmentRepository interface {
	Create(ctx context.Context, shipment *models.Shipment) error
	GetByID(ctx context.Context, id string) (*models.Shipment, error)
	ListAll(ctx context.Context) ([]*models.Shipment, error)
	CompleteStage(ctx context.Context, id string, stage models.Stage) error
}
