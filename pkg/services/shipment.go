package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/courierlab/shipline/pkg/directory"
	"github.com/courierlab/shipline/pkg/eventbus"
	"github.com/courierlab/shipline/pkg/events"
	"github.com/courierlab/shipline/pkg/models"
	"github.com/courierlab/shipline/pkg/otelhelper"
	"github.com/courierlab/shipline/pkg/persistence"
)

// Address fallbacks used when the request carries no explicit address.
const (
	addressNotFound    = "Address not found"
	addressNotProvided = "Address not provided"
)

// ProgressionScheduler is the slice of the scheduler the service needs.
type ProgressionScheduler interface {
	Schedule(shipment *models.Shipment)
	Cancel(shipmentID string) bool
}

// Shipment is the application service for creating, querying, and cancelling
// shipments.
type Shipment struct {
	persistence persistence.Persistence
	directory   directory.Directory
	scheduler   ProgressionScheduler
	publisher   eventbus.EventPublisher
	clock       clockwork.Clock
	logger      *slog.Logger
	validator   *validator.Validate
	tracer      trace.Tracer
}

// NewShipment creates a new shipment service.
func NewShipment(
	p persistence.Persistence,
	d directory.Directory,
	s ProgressionScheduler,
	publisher eventbus.EventPublisher,
	clock clockwork.Clock,
	logger *slog.Logger,
) *Shipment {
	return &Shipment{
		persistence: p,
		directory:   d,
		scheduler:   s,
		publisher:   publisher,
		clock:       clock,
		logger:      logger.With("module", "shipment_service"),
		validator:   validator.New(),
		tracer:      otel.Tracer("shipline.services"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Shipment) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// CreateShipmentRequest carries the fields needed to open a fulfillment flow.
// Address is optional; when empty the user directory provides the fallback.
type CreateShipmentRequest struct {
	UserID    string `json:"user_id"    validate:"required"`
	OrderID   string `json:"order_id"   validate:"required"`
	ProductID string `json:"product_id" validate:"required"`
	Address   string `json:"address"`
}

// CreateShipmentResult is returned after a shipment is opened and its
// progression scheduled.
type CreateShipmentResult struct {
	ID                  string              `json:"id"`
	Type                models.ShipmentType `json:"type"`
	Status              string              `json:"status"`
	Address             string              `json:"address"`
	EstimatedCompletion time.Time           `json:"estimated_completion"`
	Message             string              `json:"message"`
}

// CreatePickup opens a pickup flow for an item return.
func (s *Shipment) CreatePickup(ctx context.Context, req CreateShipmentRequest) (*CreateShipmentResult, error) {
	result, err := s.createShipment(ctx, models.ShipmentTypePickup, req)
	if err != nil {
		return nil, err
	}

	result.Message = fmt.Sprintf("Pickup scheduled. Shipment ID: %s", result.ID)

	return result, nil
}

// CreateDelivery opens a delivery flow for a replacement item.
func (s *Shipment) CreateDelivery(ctx context.Context, req CreateShipmentRequest) (*CreateShipmentResult, error) {
	result, err := s.createShipment(ctx, models.ShipmentTypeDelivery, req)
	if err != nil {
		return nil, err
	}

	result.Message = fmt.Sprintf("Replacement delivery initiated. Shipment ID: %s", result.ID)

	return result, nil
}

func (s *Shipment) createShipment(
	ctx context.Context,
	shipmentType models.ShipmentType,
	req CreateShipmentRequest,
) (*CreateShipmentResult, error) {
	if err := shipmentType.Validate(); err != nil {
		return nil, err
	}

	if err := s.validator.Struct(req); err != nil {
		return nil, NewValidationError("createShipment", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	address, err := s.resolveAddress(ctx, req)
	if err != nil {
		return nil, err
	}

	catalog, err := models.CatalogFor(shipmentType)
	if err != nil {
		return nil, err
	}

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "shipment.create",
		attribute.String(otelhelper.ShipmentTypeKey, string(shipmentType)),
		attribute.String(otelhelper.UserIDKey, req.UserID),
		attribute.String(otelhelper.OrderIDKey, req.OrderID),
	)
	defer span.End()

	now := s.clock.Now().UTC()
	stages := models.BuildTimeline(catalog, now)

	shipment := &models.Shipment{
		ID:                  NewShipmentID(shipmentType),
		Type:                shipmentType,
		UserID:              req.UserID,
		OrderID:             req.OrderID,
		ProductID:           req.ProductID,
		Address:             address,
		Stages:              stages,
		Status:              stages[0].Name,
		EstimatedCompletion: stages[len(stages)-1].PlannedTime,
		CreatedAt:           now,
	}

	// A shipment that was never persisted must not progress: the store is
	// the source of truth for every later transition.
	err = s.persistence.ShipmentRepository().Create(ctx, shipment)
	if err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("failed to create shipment: %w", err)
	}

	span.SetAttributes(attribute.String(otelhelper.ShipmentIDKey, shipment.ID))

	s.scheduler.Schedule(shipment)

	s.publish(ctx, shipment.ID, events.ShipmentCreated{
		BaseEvent:           events.NewBaseEvent(events.ShipmentCreatedEvent, shipment.ID),
		ShipmentType:        string(shipment.Type),
		UserID:              shipment.UserID,
		OrderID:             shipment.OrderID,
		EstimatedCompletion: shipment.EstimatedCompletion,
	})

	s.logger.InfoContext(ctx, "Shipment created",
		"shipment_id", shipment.ID, "type", shipment.Type, "user_id", shipment.UserID)

	return &CreateShipmentResult{
		ID:                  shipment.ID,
		Type:                shipment.Type,
		Status:              shipment.Status,
		Address:             shipment.Address,
		EstimatedCompletion: shipment.EstimatedCompletion,
	}, nil
}

// resolveAddress prefers the explicit request address and falls back to the
// user directory record.
func (s *Shipment) resolveAddress(ctx context.Context, req CreateShipmentRequest) (string, error) {
	if req.Address != "" {
		return req.Address, nil
	}

	user, err := s.directory.GetUser(ctx, req.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve user %s: %w", req.UserID, err)
	}

	if user == nil {
		return addressNotProvided, nil
	}

	if user.Address == "" {
		return addressNotFound, nil
	}

	return user.Address, nil
}

// TimelineEntry is one stage in a status projection.
type TimelineEntry struct {
	Name        string     `json:"name"`
	PlannedTime time.Time  `json:"planned_time"`
	ActualTime  *time.Time `json:"actual_time,omitempty"`
	Completed   bool       `json:"completed"`
}

// StatusSnapshot projects a shipment's persisted state for clients.
type StatusSnapshot struct {
	ID                  string              `json:"id"`
	Type                models.ShipmentType `json:"type"`
	Status              string              `json:"status"`
	Address             string              `json:"address"`
	Active              bool                `json:"active"`
	EstimatedCompletion time.Time           `json:"estimated_completion"`
	CreatedAt           time.Time           `json:"created_at"`
	Timeline            []TimelineEntry     `json:"timeline"`
}

// GetStatus returns the status projection for one shipment.
func (s *Shipment) GetStatus(ctx context.Context, shipmentID string) (*StatusSnapshot, error) {
	shipment, err := s.persistence.ShipmentRepository().GetByID(ctx, shipmentID)
	if err != nil {
		return nil, err
	}

	if shipment == nil {
		return nil, ErrShipmentNotFound
	}

	timeline := make([]TimelineEntry, 0, len(shipment.Stages))
	for _, stage := range shipment.Stages {
		timeline = append(timeline, TimelineEntry{
			Name:        stage.Name,
			PlannedTime: stage.PlannedTime,
			ActualTime:  stage.ActualTime,
			Completed:   stage.Completed,
		})
	}

	return &StatusSnapshot{
		ID:                  shipment.ID,
		Type:                shipment.Type,
		Status:              shipment.Status,
		Address:             shipment.Address,
		Active:              shipment.IsActive(),
		EstimatedCompletion: shipment.EstimatedCompletion,
		CreatedAt:           shipment.CreatedAt,
		Timeline:            timeline,
	}, nil
}

// ActiveShipment is one row in the active-shipment listing.
type ActiveShipment struct {
	ID                  string              `json:"id"`
	Type                models.ShipmentType `json:"type"`
	UserID              string              `json:"user_id"`
	Status              string              `json:"status"`
	EstimatedCompletion time.Time           `json:"estimated_completion"`
	CreatedAt           time.Time           `json:"created_at"`
}

// ListActive returns every shipment that has not reached its terminal stage,
// most recently created first.
func (s *Shipment) ListActive(ctx context.Context) ([]ActiveShipment, error) {
	shipments, err := s.persistence.ShipmentRepository().ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list shipments: %w", err)
	}

	active := make([]ActiveShipment, 0, len(shipments))

	for _, shipment := range shipments {
		if !shipment.IsActive() {
			continue
		}

		active = append(active, ActiveShipment{
			ID:                  shipment.ID,
			Type:                shipment.Type,
			UserID:              shipment.UserID,
			Status:              shipment.Status,
			EstimatedCompletion: shipment.EstimatedCompletion,
			CreatedAt:           shipment.CreatedAt,
		})
	}

	return active, nil
}

// Cancel stops autonomous progression for an active shipment. The persisted
// timeline keeps whatever stages already completed.
func (s *Shipment) Cancel(ctx context.Context, shipmentID string) (*StatusSnapshot, error) {
	shipment, err := s.persistence.ShipmentRepository().GetByID(ctx, shipmentID)
	if err != nil {
		return nil, err
	}

	if shipment == nil {
		return nil, ErrShipmentNotFound
	}

	if !shipment.IsActive() {
		return nil, ErrShipmentNotActive
	}

	s.scheduler.Cancel(shipmentID)

	s.publish(ctx, shipmentID, events.ShipmentCancelled{
		BaseEvent: events.NewBaseEvent(events.ShipmentCancelledEvent, shipmentID),
		LastStage: shipment.Status,
	})

	s.logger.InfoContext(ctx, "Shipment cancelled", "shipment_id", shipmentID, "last_stage", shipment.Status)

	return s.GetStatus(ctx, shipmentID)
}

func (s *Shipment) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	err := s.publisher.Publish(ctx, key, event)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish event",
			"shipment_id", key, "event_type", event.GetType(), "error", err)
	}
}
