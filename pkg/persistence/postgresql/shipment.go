package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/courierlab/shipline/pkg/models"
	"github.com/courierlab/shipline/pkg/persistence"
)

// ShipmentRepository handles shipment-related database operations.
type ShipmentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewShipmentRepository creates a new shipment repository.
func NewShipmentRepository(db *sql.DB, logger *slog.Logger) *ShipmentRepository {
	return &ShipmentRepository{db: db, logger: logger}
}

// Create persists a new shipment row. The write is durable when Create returns.
func (r *ShipmentRepository) Create(ctx context.Context, shipment *models.Shipment) error {
	stagesJSON, err := json.Marshal(shipment.Stages)
	if err != nil {
		return persistence.NewWriteError("Create", shipment.ID, err)
	}

	shipment.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO shipments (
			id, type, user_id, order_id, product_id, address,
			status, stages, estimated_completion, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		shipment.ID,
		string(shipment.Type),
		shipment.UserID,
		shipment.OrderID,
		shipment.ProductID,
		shipment.Address,
		shipment.Status,
		stagesJSON,
		shipment.EstimatedCompletion,
		shipment.CreatedAt,
		shipment.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return persistence.ErrShipmentAlreadyExists
		}

		return persistence.NewWriteError("Create", shipment.ID, err)
	}

	return nil
}

// GetByID retrieves a shipment by its ID. Returns nil without error when the
// shipment does not exist.
func (r *ShipmentRepository) GetByID(ctx context.Context, shipmentID string) (*models.Shipment, error) {
	query := `
		SELECT
			id
		  , type
		  , user_id
		  , order_id
		  , product_id
		  , address
		  , status
		  , stages
		  , estimated_completion
		  , created_at
		  , updated_at
		FROM shipments
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, shipmentID)

	shipment, err := r.scanShipment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan shipment: %w", err)
	}

	return shipment, nil
}

// ListAll returns every stored shipment, most recently created first.
func (r *ShipmentRepository) ListAll(ctx context.Context) ([]*models.Shipment, error) {
	query := `
		SELECT
			id
		  , type
		  , user_id
		  , order_id
		  , product_id
		  , address
		  , status
		  , stages
		  , estimated_completion
		  , created_at
		  , updated_at
		FROM shipments
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query shipments: %w", err)
	}

	defer func(ctx context.Context, r *ShipmentRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	shipments := make([]*models.Shipment, 0)

	for rows.Next() {
		shipment, err := r.scanShipment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shipment: %w", err)
		}

		shipments = append(shipments, shipment)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating shipments: %w", err)
	}

	return shipments, nil
}

// CompleteStage applies one stage transition and the derived status inside a
// transaction, re-reading the row with FOR UPDATE so concurrent transitions on
// the same shipment serialize.
func (r *ShipmentRepository) CompleteStage(ctx context.Context, id string, stage models.Stage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewWriteError("CompleteStage", id, err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var stagesJSON []byte

	err = tx.QueryRowContext(ctx, "SELECT stages FROM shipments WHERE id = $1 FOR UPDATE", id).Scan(&stagesJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ErrShipmentNotFound
		}

		return persistence.NewWriteError("CompleteStage", id, err)
	}

	var stages []models.Stage

	err = json.Unmarshal(stagesJSON, &stages)
	if err != nil {
		return fmt.Errorf("failed to unmarshal stages for shipment %s: %w", id, err)
	}

	found := false
	status := ""

	for i := range stages {
		if stages[i].Name != stage.Name {
			continue
		}

		found = true

		if stages[i].Completed {
			// Already applied, keep transitions monotonic.
			_ = tx.Rollback()

			return nil
		}

		stages[i].ActualTime = stage.ActualTime
		stages[i].Completed = stage.Completed
		status = stage.Name

		break
	}

	if !found {
		err = persistence.ErrStageNotFound

		return err
	}

	updatedJSON, err := json.Marshal(stages)
	if err != nil {
		return persistence.NewWriteError("CompleteStage", id, err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE shipments SET stages = $1, status = $2, updated_at = $3 WHERE id = $4",
		updatedJSON, status, time.Now().UTC(), id,
	)
	if err != nil {
		return persistence.NewWriteError("CompleteStage", id, err)
	}

	err = tx.Commit()
	if err != nil {
		return persistence.NewWriteError("CompleteStage", id, err)
	}

	return nil
}

// scanner abstracts sql.Row and sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func (r *ShipmentRepository) scanShipment(row scanner) (*models.Shipment, error) {
	var (
		shipment     models.Shipment
		shipmentType string
		stagesJSON   []byte
	)

	err := row.Scan(
		&shipment.ID,
		&shipmentType,
		&shipment.UserID,
		&shipment.OrderID,
		&shipment.ProductID,
		&shipment.Address,
		&shipment.Status,
		&stagesJSON,
		&shipment.EstimatedCompletion,
		&shipment.CreatedAt,
		&shipment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	shipment.Type = models.ShipmentType(shipmentType)

	err = json.Unmarshal(stagesJSON, &shipment.Stages)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal stages: %w", err)
	}

	return &shipment, nil
}
