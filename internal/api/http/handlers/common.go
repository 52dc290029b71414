package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/install-dispatch/internal/api/dto"
	"github.com/spec-kit/install-dispatch/internal/auth"
	"github.com/spec-kit/install-dispatch/internal/domain"
	"github.com/spec-kit/install-dispatch/internal/lifecycle"
	"github.com/spec-kit/install-dispatch/internal/scheduling"
	apperrors "github.com/spec-kit/install-dispatch/pkg/util"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func currentMember(c *fiber.Ctx) (domain.Member, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal == nil || principal.Member.Team == "" {
		return domain.Member{}, apperrors.NewUnauthorized("team member required")
	}
	return principal.Member, nil
}

// parseBody decodes the JSON body into dst and runs struct validation.
func parseBody(c *fiber.Ctx, validate *validator.Validate, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]any, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			return apperrors.NewValidationError("invalid payload", map[string]any{"fields": fields})
		}
		return apperrors.NewValidationError(err.Error(), nil)
	}
	return nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

// pagination returns limit and offset from page and page_size query params.
func pagination(c *fiber.Ctx) (int, int) {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), defaultPageSize)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return pageSize, (page - 1) * pageSize
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func requestResponse(req *domain.UnclaimedRequest) dto.RequestResponse {
	return dto.RequestResponse{
		ID:            req.ID,
		ClientID:      req.ClientID,
		City:          req.City,
		Address:       req.Address,
		Comment:       req.Comment,
		ClaimedByTeam: req.ClaimedByTeam,
		ClaimedAt:     req.ClaimedAt,
		OrderID:       req.OrderID,
		CreatedAt:     req.CreatedAt,
	}
}

func transferOriginResponse(origin domain.TransferOrigin) dto.TransferOriginResponse {
	return dto.TransferOriginResponse{
		Team:          origin.Team,
		UserName:      origin.UserName,
		TransferredAt: origin.TransferredAt,
		Comment:       origin.Comment,
	}
}

func orderResponse(order *domain.Order) dto.OrderResponse {
	resp := dto.OrderResponse{
		ID:                order.ID,
		ExternalKey:       order.ExternalKey,
		RequestID:         order.RequestID,
		OwnerTeam:         order.OwnerTeam,
		CreatedBy:         order.CreatedBy,
		State:             lifecycle.StateOf(*order),
		TransferStatus:    order.TransferStatus,
		TransferredToTeam: order.TransferredToTeam,
		Status:            order.TextStatus,
		InvalidReason:     order.InvalidReason,
		ClientID:          order.ClientID,
		City:              order.City,
		Address:           order.Address,
		Comment:           order.Comment,
		DateSlots:         order.DateSlots,
		StartTime:         order.StartTime,
		Version:           order.Version,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
	if order.TransferredFrom != nil {
		origin := transferOriginResponse(*order.TransferredFrom)
		resp.TransferredFrom = &origin
	}
	return resp
}

func historyResponses(entries []domain.OrderHistory) []dto.OrderHistoryResponse {
	resp := make([]dto.OrderHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.OrderHistoryResponse{
			ID:            entry.ID,
			ChangeType:    entry.ChangeType,
			ChangedBy:     entry.ChangedBy,
			ChangedByTeam: entry.ChangedByTeam,
			OldValue:      entry.OldValue,
			NewValue:      entry.NewValue,
			CreatedAt:     entry.CreatedAt,
		})
	}
	return resp
}

func bufferEntries(entries []domain.BufferEntry, viewer string) []dto.BufferEntryResponse {
	resp := make([]dto.BufferEntryResponse, 0, len(entries))
	for i := range entries {
		resp = append(resp, dto.BufferEntryResponse{
			Order:           orderResponse(&entries[i].Order),
			TransferredFrom: transferOriginResponse(entries[i].TransferredFrom),
			Visibility:      lifecycle.Classify(entries[i], viewer),
		})
	}
	return resp
}

func bufferViewResponse(view lifecycle.BufferView) dto.BufferViewResponse {
	return dto.BufferViewResponse{
		Team:     view.Viewer,
		All:      bufferEntries(view.All, view.Viewer),
		Internal: bufferEntries(view.Internal, view.Viewer),
		External: bufferEntries(view.External, view.Viewer),
		Counts:   view.Counts,
	}
}

func timeStrings(times []domain.TimeComponent) []string {
	out := make([]string, 0, len(times))
	for _, tc := range times {
		out = append(out, tc.String())
	}
	return out
}

func keyStrings(keys []scheduling.SlotKey) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, scheduling.Encode(key))
	}
	return out
}

func selectionResponse(sel scheduling.Selection) dto.SelectionResponse {
	return dto.SelectionResponse{
		Technician: sel.Technician,
		Date:       sel.Date,
		Times:      timeStrings(sel.Times),
		Keys:       keyStrings(sel.Keys()),
	}
}

func draftResponse(draft scheduling.OrderDraft) dto.DraftResponse {
	resp := dto.DraftResponse{
		ID:           draft.ID,
		OrderID:      draft.OrderID,
		OrderVersion: draft.Version,
		Team:         draft.Team,
		CreatedBy:    draft.CreatedBy,
		Primary:      selectionResponse(draft.Primary),
		StartTime:    draft.StartLabel(),
		DateSlots:    draft.DateSlots(),
		Released:     keyStrings(draft.Released()),
		ClientID:     draft.ClientID,
		City:         draft.City,
		Address:      draft.Address,
		Comment:      draft.Comment,
		UpdatedAt:    draft.UpdatedAt,
	}
	if draft.Secondary != nil {
		secondary := selectionResponse(draft.Secondary.Selection)
		resp.Secondary = &secondary
	}
	return resp
}

func outcomeResponse(outcome scheduling.Outcome) dto.OutcomeResponse {
	resp := dto.OutcomeResponse{
		Accepted: outcome.Accepted,
		Reason:   string(outcome.Reason),
		Released: outcome.Released,
		Events:   make([]dto.DraftEventResponse, 0, len(outcome.Events)),
	}
	if len(outcome.IncompatibleTimes) > 0 {
		resp.IncompatibleTimes = timeStrings(outcome.IncompatibleTimes)
	}
	for _, evt := range outcome.Events {
		resp.Events = append(resp.Events, dto.DraftEventResponse{
			Type:       string(evt.Type),
			Technician: evt.Technician,
			Times:      timeStrings(evt.Times),
		})
	}
	return resp
}

func scheduleResponses(schedules []domain.TechnicianSchedule) []dto.TechnicianScheduleResponse {
	resp := make([]dto.TechnicianScheduleResponse, 0, len(schedules))
	for _, sched := range schedules {
		days := make(map[string][]dto.SlotResponse, len(sched.Schedule))
		for date, slots := range sched.Schedule {
			items := make([]dto.SlotResponse, 0, len(slots))
			for _, slot := range slots {
				items = append(items, dto.SlotResponse{
					Key:              scheduling.Encode(scheduling.NewSlotKey(sched.TechnicianName, date, slot.Time())),
					Time:             slot.Time().String(),
					Hour:             slot.Hour,
					Meridiem:         string(slot.Meridiem),
					Busy:             slot.Busy,
					ReservingOrderID: slot.ReservingOrderID,
				})
			}
			days[date] = items
		}
		resp = append(resp, dto.TechnicianScheduleResponse{
			TechnicianName: sched.TechnicianName,
			Team:           sched.Team,
			Days:           days,
		})
	}
	return resp
}

func teamResponse(team *domain.Team) dto.TeamResponse {
	cities := team.Cities
	if cities == nil {
		cities = []string{}
	}
	return dto.TeamResponse{ID: team.ID, Name: team.Name, IsActive: team.IsActive, Cities: cities}
}

// uuidParam returns the named path parameter when it is a UUID. Order and
// request ids are UUIDs.
func uuidParam(c *fiber.Ctx, name string) (string, error) {
	raw := c.Params(name)
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return "", apperrors.NewValidationError("malformed identifier", map[string]any{name: raw})
	}
	return parsed.String(), nil
}
