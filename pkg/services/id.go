package services

import (
	"strings"

	"github.com/google/uuid"

	"github.com/courierlab/shipline/pkg/models"
)

const shipmentIDLength = 8

// NewShipmentID generates a shipment identifier: the type prefix plus eight
// uppercase hex characters, e.g. PKP-0A1B2C3D.
func NewShipmentID(shipmentType models.ShipmentType) string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	suffix := strings.ToUpper(raw[:shipmentIDLength])

	return shipmentType.IDPrefix() + "-" + suffix
}
