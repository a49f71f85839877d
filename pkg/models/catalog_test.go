package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogFor_DurationsSumToCommitment(t *testing.T) {
	for _, shipmentType := range []ShipmentType{ShipmentTypePickup, ShipmentTypeDelivery} {
		catalog, err := CatalogFor(shipmentType)
		require.NoError(t, err)
		require.NotEmpty(t, catalog)

		var total time.Duration
		for _, template := range catalog {
			total += template.Duration
		}

		assert.Equal(t, TotalCommitment, total, "catalog %s", shipmentType)
	}
}

func TestCatalogFor_UnknownType(t *testing.T) {
	catalog, err := CatalogFor(ShipmentType("drone-drop"))
	assert.Nil(t, catalog)
	assert.ErrorIs(t, err, ErrInvalidShipmentType)
}

func TestCatalogFor_ReturnsCopy(t *testing.T) {
	catalog, err := CatalogFor(ShipmentTypePickup)
	require.NoError(t, err)

	catalog[0].Name = "tampered"

	fresh, err := CatalogFor(ShipmentTypePickup)
	require.NoError(t, err)
	assert.Equal(t, "Pickup Requested", fresh[0].Name)
}

func TestTerminalStage(t *testing.T) {
	assert.Equal(t, "Returned to Warehouse", TerminalStage(ShipmentTypePickup))
	assert.Equal(t, "Delivered", TerminalStage(ShipmentTypeDelivery))
}

func TestShipmentType_Validate(t *testing.T) {
	assert.NoError(t, ShipmentTypePickup.Validate())
	assert.NoError(t, ShipmentTypeDelivery.Validate())
	assert.ErrorIs(t, ShipmentType("courier").Validate(), ErrInvalidShipmentType)
}
