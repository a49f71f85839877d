// Package events defines event types and structures for shipment lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Kafka topic carrying all shipment lifecycle events.
const Topic = "shipline.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ShipmentCreatedEvent        EventType = "shipment.created"
	ShipmentStageCompletedEvent EventType = "shipment.stage.completed"
	ShipmentCompletedEvent      EventType = "shipment.completed"
	ShipmentStageWriteFailed    EventType = "shipment.stage.write_failed"
	ShipmentCancelledEvent      EventType = "shipment.cancelled"
	ShipmentOverdueEvent        EventType = "shipment.overdue"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	ShipmentID string         `json:"shipment_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type ShipmentCreated struct {
	BaseEvent

	ShipmentType        string    `json:"shipment_type"`
	UserID              string    `json:"user_id"`
	OrderID             string    `json:"order_id"`
	EstimatedCompletion time.Time `json:"estimated_completion"`
}

func (e ShipmentCreated) GetType() EventType {
	return ShipmentCreatedEvent
}

type ShipmentStageCompleted struct {
	BaseEvent

	StageName  string    `json:"stage_name"`
	StageIndex int       `json:"stage_index"`
	ActualTime time.Time `json:"actual_time"`
}

func (e ShipmentStageCompleted) GetType() EventType {
	return ShipmentStageCompletedEvent
}

type ShipmentCompleted struct {
	BaseEvent

	FinalStage  string    `json:"final_stage"`
	CompletedAt time.Time `json:"completed_at"`
}

func (e ShipmentCompleted) GetType() EventType {
	return ShipmentCompletedEvent
}

// ShipmentStageWriteFailure is published when a stage transition could not be
// persisted. Progression keeps going; the reconciler picks the gap up later.
type ShipmentStageWriteFailure struct {
	BaseEvent

	StageName string `json:"stage_name"`
	Error     string `json:"error"`
}

func (e ShipmentStageWriteFailure) GetType() EventType {
	return ShipmentStageWriteFailed
}

type ShipmentCancelled struct {
	BaseEvent

	LastStage string `json:"last_stage"`
}

func (e ShipmentCancelled) GetType() EventType {
	return ShipmentCancelledEvent
}

// ShipmentOverdue is published by the reconciler when persisted state lags the
// planned timeline.
type ShipmentOverdue struct {
	BaseEvent

	OverdueStages []string  `json:"overdue_stages"`
	ObservedAt    time.Time `json:"observed_at"`
}

func (e ShipmentOverdue) GetType() EventType {
	return ShipmentOverdueEvent
}

func NewBaseEvent(eventType EventType, shipmentID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		ShipmentID: shipmentID,
		Metadata:   make(map[string]any),
	}
}
