package file

import (
	"fmt"

	"github.com/courierlab/shipline/pkg/persistence"
	"github.com/xeipuuv/gojsonschema"
)

// shipmentDocumentSchema guards documents read back from disk. The store is
// plain JSON, so a hand-edited or truncated file must be rejected instead of
// unmarshalled into a half-formed shipment.
const shipmentDocumentSchema = `{
	"type": "object",
	"required": ["id", "type", "user_id", "order_id", "product_id", "status", "stages", "estimated_completion", "created_at"],
	"properties": {
		"id": {"type": "string", "pattern": "^(PKP|DLV)-[0-9A-F]{8}$"},
		"type": {"type": "string", "enum": ["pickup", "delivery"]},
		"user_id": {"type": "string"},
		"order_id": {"type": "string"},
		"product_id": {"type": "string"},
		"address": {"type": "string"},
		"status": {"type": "string"},
		"estimated_completion": {"type": "string"},
		"created_at": {"type": "string"},
		"updated_at": {"type": "string"},
		"stages": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["name", "planned_duration", "planned_time", "completed"],
				"properties": {
					"name": {"type": "string"},
					"planned_duration": {"type": "integer"},
					"planned_time": {"type": "string"},
					"actual_time": {"type": "string"},
					"completed": {"type": "boolean"}
				}
			}
		}
	}
}`

var schemaLoader = gojsonschema.NewStringLoader(shipmentDocumentSchema)

func validateShipmentDocument(body []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", persistence.ErrInvalidShipmentDocument, err)
	}

	if !result.Valid() {
		return fmt.Errorf("%w: %s", persistence.ErrInvalidShipmentDocument, result.Errors()[0].String())
	}

	return nil
}
