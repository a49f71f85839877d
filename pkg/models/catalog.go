package models

import "time"

// TotalCommitment is the service-level commitment both catalogs sum to.
const TotalCommitment = 48 * time.Hour

// pickupStages mirrors the warehouse return flow. Durations sum to 48h.
var pickupStages = []StageTemplate{
	{Name: "Pickup Requested", Duration: 2 * time.Hour},
	{Name: "Pickup Scheduled", Duration: 6 * time.Hour},
	{Name: "Agent Assigned", Duration: 8 * time.Hour},
	{Name: "Out for Pickup", Duration: 16 * time.Hour},
	{Name: "Package Picked Up", Duration: 12 * time.Hour},
	{Name: "Returned to Warehouse", Duration: 4 * time.Hour},
}

// deliveryStages mirrors the replacement dispatch flow. Durations sum to 48h.
var deliveryStages = []StageTemplate{
	{Name: "Order Confirmed", Duration: 2 * time.Hour},
	{Name: "Pickup Scheduled", Duration: 4 * time.Hour},
	{Name: "Package Picked Up", Duration: 6 * time.Hour},
	{Name: "Shipped", Duration: 8 * time.Hour},
	{Name: "In Transit", Duration: 14 * time.Hour},
	{Name: "Out for Delivery", Duration: 10 * time.Hour},
	{Name: "Delivered", Duration: 4 * time.Hour},
}

// CatalogFor returns the ordered stage templates for a shipment type. The
// returned slice is a copy; callers may not mutate the catalog.
func CatalogFor(shipmentType ShipmentType) ([]StageTemplate, error) {
	var catalog []StageTemplate

	switch shipmentType {
	case ShipmentTypePickup:
		catalog = pickupStages
	case ShipmentTypeDelivery:
		catalog = deliveryStages
	default:
		return nil, ErrInvalidShipmentType
	}

	out := make([]StageTemplate, len(catalog))
	copy(out, catalog)

	return out, nil
}

// TerminalStage returns the final stage name for a shipment type. A shipment
// whose status equals this name is no longer active.
func TerminalStage(shipmentType ShipmentType) string {
	if shipmentType == ShipmentTypePickup {
		return pickupStages[len(pickupStages)-1].Name
	}

	return deliveryStages[len(deliveryStages)-1].Name
}
