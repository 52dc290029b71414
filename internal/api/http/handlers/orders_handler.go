package handlers

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/install-dispatch/internal/api/dto"
	"github.com/spec-kit/install-dispatch/internal/domain"
	"github.com/spec-kit/install-dispatch/internal/service"
	apperrors "github.com/spec-kit/install-dispatch/pkg/util"
)

// OrdersHandler exposes order lifecycle endpoints.
type OrdersHandler struct {
	orders   *service.OrderService
	buffer   *service.BufferService
	validate *validator.Validate
}

// NewOrdersHandler constructs handler.
func NewOrdersHandler(orders *service.OrderService, buffer *service.BufferService, validate *validator.Validate) *OrdersHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &OrdersHandler{orders: orders, buffer: buffer, validate: validate}
}

// List GET /orders.
func (h *OrdersHandler) List(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	filter, err := parseOrderQuery(c)
	if err != nil {
		return err
	}
	orders, err := h.orders.List(c.UserContext(), member, filter)
	if err != nil {
		return err
	}
	items := make([]dto.OrderResponse, 0, len(orders))
	for i := range orders {
		items = append(items, orderResponse(&orders[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /orders/:id.
func (h *OrdersHandler) Get(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	order, err := h.orders.Get(c.UserContext(), member, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": orderResponse(order)})
}

// History GET /orders/:id/history.
func (h *OrdersHandler) History(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	entries, err := h.orders.History(c.UserContext(), member, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(entries)})
}

// Transfer POST /orders/:id/transfer.
func (h *OrdersHandler) Transfer(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req dto.TransferRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return err
	}
	order, err := h.orders.TransferToBuffer(c.UserContext(), member, id, req.TargetTeam, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": orderResponse(order)})
}

// Return POST /orders/:id/return.
func (h *OrdersHandler) Return(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	order, err := h.orders.ReturnFromBuffer(c.UserContext(), member, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": orderResponse(order)})
}

// Accept POST /orders/:id/accept.
func (h *OrdersHandler) Accept(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	order, err := h.orders.AcceptFromBuffer(c.UserContext(), member, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": orderResponse(order)})
}

// ChangeStatus POST /orders/:id/status.
func (h *OrdersHandler) ChangeStatus(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req dto.ChangeStatusRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return err
	}
	order, err := h.orders.ChangeStatus(c.UserContext(), member, id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": orderResponse(order)})
}

// MarkInvalid POST /orders/:id/invalid.
func (h *OrdersHandler) MarkInvalid(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req dto.MarkInvalidRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return err
	}
	order, err := h.orders.MarkInvalid(c.UserContext(), member, id, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": orderResponse(order)})
}

// Buffer GET /buffer.
func (h *OrdersHandler) Buffer(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	view, err := h.buffer.View(c.UserContext(), member)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": bufferViewResponse(view)})
}

func parseOrderQuery(c *fiber.Ctx) (service.OrderListFilter, error) {
	filter := service.OrderListFilter{Team: c.Query("team")}
	for _, part := range splitList(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.OrderStatus(part))
	}
	if raw := c.Query("in_buffer"); raw != "" {
		inBuffer, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, apperrors.NewValidationError("in_buffer must be a boolean", map[string]any{"in_buffer": raw})
		}
		filter.InBuffer = &inBuffer
	}
	filter.Limit, filter.Offset = pagination(c)
	return filter, nil
}
