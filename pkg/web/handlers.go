// Package web provides HTTP handlers and REST API endpoints for shipment tracking.
package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/courierlab/shipline/pkg/services"
)

type APIHandlers struct {
	shipmentService *services.Shipment
	validator       *validator.Validate
}

func NewAPIHandlers(shipmentService *services.Shipment, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		shipmentService: shipmentService,
		validator:       validator,
	}
}

func (h *APIHandlers) CreatePickup(c fiber.Ctx) error {
	var req CreateShipmentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.shipmentService.CreatePickup(c.Context(), req.toCreateRequest())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *APIHandlers) CreateDelivery(c fiber.Ctx) error {
	var req CreateShipmentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.shipmentService.CreateDelivery(c.Context(), req.toCreateRequest())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *APIHandlers) GetShipment(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Shipment ID is required")
	}

	snapshot, err := h.shipmentService.GetStatus(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(snapshot)
}

func (h *APIHandlers) ListActiveShipments(c fiber.Ctx) error {
	active, err := h.shipmentService.ListActive(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"shipments":   active,
		"total_count": len(active),
	})
}

func (h *APIHandlers) CancelShipment(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Shipment ID is required")
	}

	snapshot, err := h.shipmentService.Cancel(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(snapshot)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.shipmentService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Shipline API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Shipline API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
