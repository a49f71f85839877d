package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/courierlab/shipline/pkg/models"
	"github.com/courierlab/shipline/pkg/persistence"
)

const (
	shipmentKeyPrefix = "shipline:shipments:"
	shipmentIndexKey  = "shipline:shipments"
)

// ShipmentRepository handles shipment-related Redis operations.
type ShipmentRepository struct {
	client redis.UniversalClient
}

// NewShipmentRepository creates a new shipment repository.
func NewShipmentRepository(client redis.UniversalClient) *ShipmentRepository {
	return &ShipmentRepository{client: client}
}

func shipmentKey(id string) string {
	return shipmentKeyPrefix + id
}

// Create persists a new shipment value and registers it in the index set.
func (r *ShipmentRepository) Create(ctx context.Context, shipment *models.Shipment) error {
	shipment.UpdatedAt = time.Now().UTC()

	body, err := json.Marshal(shipment)
	if err != nil {
		return persistence.NewWriteError("Create", shipment.ID, err)
	}

	// Value and index entry land in one MULTI/EXEC so a created shipment can
	// never be missing from ListAll. Re-adding the ID on a duplicate create is
	// harmless, the set already holds it.
	pipe := r.client.TxPipeline()
	created := pipe.SetNX(ctx, shipmentKey(shipment.ID), body, 0)
	pipe.SAdd(ctx, shipmentIndexKey, shipment.ID)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return persistence.NewWriteError("Create", shipment.ID, err)
	}

	if !created.Val() {
		return persistence.ErrShipmentAlreadyExists
	}

	return nil
}

// GetByID retrieves a shipment by its ID. Returns nil without error when the
// shipment does not exist.
func (r *ShipmentRepository) GetByID(ctx context.Context, shipmentID string) (*models.Shipment, error) {
	body, err := r.client.Get(ctx, shipmentKey(shipmentID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch shipment %s: %w", shipmentID, err)
	}

	var shipment models.Shipment

	err = json.Unmarshal(body, &shipment)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal shipment %s: %w", shipmentID, err)
	}

	return &shipment, nil
}

// ListAll returns every stored shipment, most recently created first.
func (r *ShipmentRepository) ListAll(ctx context.Context) ([]*models.Shipment, error) {
	ids, err := r.client.SMembers(ctx, shipmentIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list shipment index: %w", err)
	}

	shipments := make([]*models.Shipment, 0, len(ids))

	for _, id := range ids {
		shipment, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load shipment %s: %w", id, err)
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
// single value rewrite, guarded by a WATCH on the shipment key so concurrent
// transitions on the same shipment retry instead of clobbering each other.
func (r *ShipmentRepository) CompleteStage(ctx context.Context, id string, stage models.Stage) error {
	key := shipmentKey(id)

	transition := func(tx *redis.Tx) error {
		body, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return persistence.ErrShipmentNotFound
			}

			return err
		}

		var shipment models.Shipment

		err = json.Unmarshal(body, &shipment)
		if err != nil {
			return fmt.Errorf("failed to unmarshal shipment %s: %w", id, err)
		}

		found := false

		for i := range shipment.Stages {
			if shipment.Stages[i].Name != stage.Name {
				continue
			}

			found = true

			if shipment.Stages[i].Completed {
				// Already applied, keep transitions monotonic.
				return nil
			}

			shipment.Stages[i].ActualTime = stage.ActualTime
			shipment.Stages[i].Completed = stage.Completed
			shipment.Status = stage.Name

			break
		}

		if !found {
			return persistence.ErrStageNotFound
		}

		shipment.UpdatedAt = time.Now().UTC()

		updated, err := json.Marshal(&shipment)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)

			return nil
		})

		return err
	}

	for attempt := 0; attempt < 3; attempt++ {
		err := r.client.Watch(ctx, transition, key)
		if err == nil {
			return nil
		}

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		if errors.Is(err, persistence.ErrShipmentNotFound) || errors.Is(err, persistence.ErrStageNotFound) {
			return err
		}

		return persistence.NewWriteError("CompleteStage", id, err)
	}

	return persistence.NewWriteError("CompleteStage", id, redis.TxFailedErr)
}
