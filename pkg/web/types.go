package web

import "github.com/courierlab/shipline/pkg/services"

// CreateShipmentRequest is the JSON body accepted by the pickup and delivery
// creation endpoints. Address is optional; the user directory provides the
// fallback when it is empty.
type CreateShipmentRequest struct {
	UserID    string `json:"user_id"    validate:"required"`
	OrderID   string `json:"order_id"   validate:"required"`
	ProductID string `json:"product_id" validate:"required"`
	Address   string `json:"address"`
}

func (r CreateShipmentRequest) toCreateRequest() services.CreateShipmentRequest {
	return services.CreateShipmentRequest{
		UserID:    r.UserID,
		OrderID:   r.OrderID,
		ProductID: r.ProductID,
		Address:   r.Address,
	}
}
