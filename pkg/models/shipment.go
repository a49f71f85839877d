// Package models defines the core domain models for shipment timeline simulation.
package models

import (
	"errors"
	"time"
)

// ShipmentType distinguishes a pickup (item collection for a return) from a
// delivery (item dispatch for a replacement).
type ShipmentType string

const (
	ShipmentTypePickup   ShipmentType = "pickup"
	ShipmentTypeDelivery ShipmentType = "delivery"
)

// ErrInvalidShipmentType is returned when a shipment type has no stage catalog.
var ErrInvalidShipmentType = errors.New("invalid shipment type")

// Validate checks that the type names one of the two known catalogs.
func (t ShipmentType) Validate() error {
	switch t {
	case ShipmentTypePickup, ShipmentTypeDelivery:
		return nil
	default:
		return ErrInvalidShipmentType
	}
}

// IDPrefix returns the shipment ID prefix for this type.
func (t ShipmentType) IDPrefix() string {
	if t == ShipmentTypePickup {
		return "PKP"
	}

	return "DLV"
}

// StageTemplate is an immutable stage definition from a catalog: the stage
// name plus how long the shipment dwells in it before the next stage arrives.
type StageTemplate struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// Stage is an instantiated stage on a concrete timeline. PlannedTime is the
// hand-off target: start time plus the cumulative duration up to and
// including this stage.
type Stage struct {
	Name            string        `json:"name"`
	PlannedDuration time.Duration `json:"planned_duration"`
	PlannedTime     time.Time     `json:"planned_time"`
	ActualTime      *time.Time    `json:"actual_time,omitempty"`
	Completed       bool          `json:"completed"`
}

// Shipment represents one in-flight pickup or delivery progressing through a
// fixed stage sequence. Status always equals the name of the highest-index
// completed stage; completed stages never revert.
type Shipment struct {
	ID                  string       `json:"id"                   validate:"required"`
	Type                ShipmentType `json:"type"                 validate:"required,oneof=pickup delivery"`
	UserID              string       `json:"user_id"              validate:"required"`
	OrderID             string       `json:"order_id"             validate:"required"`
	ProductID           string       `json:"product_id"           validate:"required"`
	Address             string       `json:"address"`
	Stages              []Stage      `json:"stages"`
	Status              string       `json:"status"`
	EstimatedCompletion time.Time    `json:"estimated_completion"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// CurrentStageIndex returns the index of the highest completed stage, or -1
// when no stage is completed (which never happens for a well-formed shipment).
func (s *Shipment) CurrentStageIndex() int {
	current := -1

	for i, stage := range s.Stages {
		if stage.Completed {
			current = i
		}
	}

	return current
}

// IsActive reports whether the shipment has not yet reached its terminal stage.
func (s *Shipment) IsActive() bool {
	return s.Status != TerminalStage(s.Type)
}

// CompleteStage marks the stage with the given name as completed at the given
// time and advances the derived status. Completing an already completed stage
// is a no-op so transitions stay monotonic.
func (s *Shipment) CompleteStage(name string, at time.Time) bool {
	for i := range s.Stages {
		if s.Stages[i].Name != name {
			continue
		}

		if s.Stages[i].Completed {
			return false
		}

		t := at
		s.Stages[i].ActualTime = &t
		s.Stages[i].Completed = true
		s.Status = name

		return true
	}

	return false
}

// DueAt returns the time by which the stage at the given index should have
// completed: the previous stage's planned hand-off time, or the creation time
// for the first stage.
func (s *Shipment) DueAt(index int) time.Time {
	if index <= 0 {
		return s.CreatedAt
	}

	return s.Stages[index-1].PlannedTime
}

// OverdueStages returns the indexes of incomplete stages whose due time has
// already passed. A non-empty result means persisted state lags the planned
// timeline.
func (s *Shipment) OverdueStages(now time.Time) []int {
	overdue := make([]int, 0)

	for i := range s.Stages {
		if !s.Stages[i].Completed && !s.DueAt(i).After(now) {
			overdue = append(overdue, i)
		}
	}

	return overdue
}
