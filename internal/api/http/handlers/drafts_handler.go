package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/install-dispatch/internal/api/dto"
	"github.com/spec-kit/install-dispatch/internal/service"
)

// DraftsHandler exposes scheduling draft sessions.
type DraftsHandler struct {
	scheduling *service.SchedulingService
	validate   *validator.Validate
}

// NewDraftsHandler constructs handler.
func NewDraftsHandler(schedulingService *service.SchedulingService, validate *validator.Validate) *DraftsHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &DraftsHandler{scheduling: schedulingService, validate: validate}
}

// Start POST /drafts.
func (h *DraftsHandler) Start(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	var req dto.StartDraftRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return err
	}
	draft, err := h.scheduling.StartDraft(c.UserContext(), member, service.DraftStartInput{
		Date:     req.Date,
		ClientID: req.ClientID,
		City:     req.City,
		Address:  req.Address,
		Comment:  req.Comment,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": draftResponse(draft)})
}

// LoadForOrder POST /orders/:id/draft.
func (h *DraftsHandler) LoadForOrder(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	draft, err := h.scheduling.LoadDraftForOrder(c.UserContext(), member, id)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": draftResponse(draft)})
}

// Get GET /drafts/:id.
func (h *DraftsHandler) Get(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	draft, err := h.scheduling.GetDraft(c.UserContext(), member, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": draftResponse(draft)})
}

// Discard DELETE /drafts/:id.
func (h *DraftsHandler) Discard(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	if err := h.scheduling.Discard(c.UserContext(), member, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// SelectTechnician PUT /drafts/:id/technician.
func (h *DraftsHandler) SelectTechnician(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	var req dto.SelectTechnicianRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return err
	}
	draft, err := h.scheduling.SelectTechnician(c.UserContext(), member, c.Params("id"), req.Technician)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.DraftCommandResponse{Draft: draftResponse(draft)}})
}

// ChangeDate PUT /drafts/:id/date.
func (h *DraftsHandler) ChangeDate(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	var req dto.ChangeDateRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return err
	}
	draft, err := h.scheduling.ChangeDate(c.UserContext(), member, c.Params("id"), req.Date)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.DraftCommandResponse{Draft: draftResponse(draft)}})
}

// ToggleSlot POST /drafts/:id/slots/toggle. A refused toggle is a 200 with
// accepted=false.
func (h *DraftsHandler) ToggleSlot(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	var req dto.ToggleSlotRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return err
	}
	res, err := h.scheduling.ToggleSlot(c.UserContext(), member, c.Params("id"), req.Key)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": draftCommandResponse(res)})
}

// SetSecondary PUT /drafts/:id/secondary.
func (h *DraftsHandler) SetSecondary(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	var req dto.SetSecondaryRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return err
	}
	res, err := h.scheduling.SetSecondary(c.UserContext(), member, c.Params("id"), req.Technician)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": draftCommandResponse(res)})
}

// ClearSecondary DELETE /drafts/:id/secondary.
func (h *DraftsHandler) ClearSecondary(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	draft, err := h.scheduling.ClearSecondary(c.UserContext(), member, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.DraftCommandResponse{Draft: draftResponse(draft)}})
}

// Reconcile POST /drafts/:id/reconcile.
func (h *DraftsHandler) Reconcile(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	res, err := h.scheduling.Reconcile(c.UserContext(), member, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": draftCommandResponse(res)})
}

// Commit POST /drafts/:id/commit. A draft refused after the availability
// re-check returns 200 with accepted=false and the reconciled draft.
func (h *DraftsHandler) Commit(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	res, err := h.scheduling.Commit(c.UserContext(), member, c.Params("id"))
	if err != nil {
		return err
	}
	resp := dto.CommitResponse{Outcome: outcomeResponse(res.Outcome)}
	if res.Order != nil {
		order := orderResponse(res.Order)
		resp.Order = &order
		return c.Status(http.StatusCreated).JSON(fiber.Map{"data": resp})
	}
	draft := draftResponse(res.Draft)
	resp.Draft = &draft
	return c.JSON(fiber.Map{"data": resp})
}

func draftCommandResponse(res service.DraftResult) dto.DraftCommandResponse {
	resp := dto.DraftCommandResponse{Draft: draftResponse(res.Draft)}
	if res.Outcome != nil {
		outcome := outcomeResponse(*res.Outcome)
		resp.Outcome = &outcome
	}
	return resp
}
