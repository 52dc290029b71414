package handlers

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/install-dispatch/internal/api/dto"
	"github.com/spec-kit/install-dispatch/internal/domain"
	"github.com/spec-kit/install-dispatch/internal/service"
)

// CalendarHandler exposes technician availability and team geography.
type CalendarHandler struct {
	calendar *service.CalendarService
	validate *validator.Validate
}

// NewCalendarHandler constructs handler.
func NewCalendarHandler(calendar *service.CalendarService, validate *validator.Validate) *CalendarHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &CalendarHandler{calendar: calendar, validate: validate}
}

// View GET /calendar?from=&to=. to defaults to from.
func (h *CalendarHandler) View(c *fiber.Ctx) error {
	from := c.Query("from")
	to := c.Query("to", from)
	schedules, err := h.calendar.View(c.UserContext(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": scheduleResponses(schedules)})
}

// PublishAvailability PUT /technicians/:name/availability.
func (h *CalendarHandler) PublishAvailability(c *fiber.Ctx) error {
	member, err := currentMember(c)
	if err != nil {
		return err
	}
	var req dto.AvailabilityRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return err
	}
	team := strings.TrimSpace(req.Team)
	if team == "" {
		team = member.Team
	}
	free := make([]domain.TimeComponent, 0, len(req.Hours))
	for _, hour := range req.Hours {
		free = append(free, domain.TimeComponent{Hour: hour.Hour, Meridiem: domain.Meridiem(hour.Meridiem)})
	}
	if err := h.calendar.PublishAvailability(c.UserContext(), c.Params("name"), team, req.Date, free); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Teams GET /teams.
func (h *CalendarHandler) Teams(c *fiber.Ctx) error {
	teams, err := h.calendar.Teams(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.TeamResponse, 0, len(teams))
	for i := range teams {
		items = append(items, teamResponse(&teams[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateTeam POST /teams.
func (h *CalendarHandler) CreateTeam(c *fiber.Ctx) error {
	var req dto.CreateTeamRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return err
	}
	team, err := h.calendar.CreateTeam(c.UserContext(), req.Name, req.Cities)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": teamResponse(team)})
}

// Cities GET /teams/:name/cities.
func (h *CalendarHandler) Cities(c *fiber.Ctx) error {
	cities, err := h.calendar.Cities(c.UserContext(), c.Params("name"))
	if err != nil {
		return err
	}
	names := make([]string, 0, len(cities))
	for _, city := range cities {
		names = append(names, city.Name)
	}
	return c.JSON(fiber.Map{"data": names})
}
