package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/install-dispatch/internal/api/dto"
	"github.com/spec-kit/install-dispatch/internal/service"
)

// RequestsHandler exposes intake endpoints.
type RequestsHandler struct {
	requests *service.RequestService
	orders   *service.OrderService
	validate *validator.Validate
}

// NewRequestsHandler constructs handler.
func NewRequestsHandler(requests *service.RequestService, orders *service.OrderService, validate *validator.Validate) *RequestsHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &RequestsHandler{requests: requests, orders: orders, validate: validate}
}

// Create POST /requests.
func (h *RequestsHandler) Create(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	var req dto.CreateRequestRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return err
	}
	created, err := h.requests.CreateRequest(c.UserContext(), member, service.RequestCreateInput{
		ClientID: req.ClientID,
		City:     req.City,
		Address:  req.Address,
		Comment:  req.Comment,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": requestResponse(created)})
}

// ListUnclaimed GET /requests.
func (h *RequestsHandler) ListUnclaimed(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	requests, err := h.requests.ListUnclaimed(c.UserContext(), c.Query("city"), limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.RequestResponse, 0, len(requests))
	for i := range requests {
		items = append(items, requestResponse(&requests[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Claim POST /requests/:id/claim.
func (h *RequestsHandler) Claim(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req dto.ClaimRequestRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, h.validate, &req); err != nil {
			return err
		}
	}
	order, err := h.orders.Claim(c.UserContext(), member, id, req.Comment)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": orderResponse(order)})
}
