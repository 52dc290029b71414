package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/install-dispatch/internal/domain"
	"github.com/spec-kit/install-dispatch/internal/observability"
	"github.com/spec-kit/install-dispatch/internal/repository"
	"github.com/spec-kit/install-dispatch/internal/scheduling"
	apperrors "github.com/spec-kit/install-dispatch/pkg/util"
)

const defaultWindowDays = 31

// CalendarService serves technician availability and team geography.
type CalendarService struct {
	slots      repository.TechnicianSlotRepository
	teams      repository.TeamRepository
	cache      repository.CalendarCache
	cacheTTL   time.Duration
	windowDays int
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// CalendarDependencies bundles collaborators for the calendar service.
type CalendarDependencies struct {
	SlotRepo   repository.TechnicianSlotRepository
	TeamRepo   repository.TeamRepository
	Cache      repository.CalendarCache
	CacheTTL   time.Duration
	WindowDays int
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewCalendarService constructs the service.
func NewCalendarService(deps CalendarDependencies) *CalendarService {
	window := deps.WindowDays
	if window <= 0 {
		window = defaultWindowDays
	}
	return &CalendarService{
		slots:      deps.SlotRepo,
		teams:      deps.TeamRepo,
		cache:      deps.Cache,
		cacheTTL:   deps.CacheTTL,
		windowDays: window,
		metrics:    deps.Metrics,
		logger:     loggerOrNop(deps.Logger),
	}
}

// Snapshot fetches a fresh calendar for from..to. Scheduling decisions always
// go through here rather than the cache.
func (s *CalendarService) Snapshot(ctx context.Context, from, to string) (scheduling.Calendar, error) {
	if err := s.validateWindow(from, to); err != nil {
		return scheduling.Calendar{}, err
	}
	schedules, err := s.slots.Snapshot(ctx, from, to)
	if err != nil {
		return scheduling.Calendar{}, mapError(err, "calendar", from)
	}
	return scheduling.NewCalendar(schedules), nil
}

// View returns schedules for display, served from cache when possible.
func (s *CalendarService) View(ctx context.Context, from, to string) ([]domain.TechnicianSchedule, error) {
	if err := s.validateWindow(from, to); err != nil {
		return nil, err
	}
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, from, to)
		switch {
		case err == nil:
			s.metrics.RecordCacheLookup(true)
			return cached, nil
		case errors.Is(err, repository.ErrCacheMiss):
			s.metrics.RecordCacheLookup(false)
		default:
			s.metrics.RecordCacheLookup(false)
			s.logger.Warn("calendar cache get failed", zap.Error(err))
		}
	}

	schedules, err := s.slots.Snapshot(ctx, from, to)
	if err != nil {
		return nil, mapError(err, "calendar", from)
	}
	if schedules == nil {
		schedules = []domain.TechnicianSchedule{}
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, from, to, schedules, s.cacheTTL); err != nil {
			s.logger.Warn("calendar cache set failed", zap.Error(err))
		}
	}
	return schedules, nil
}

// PublishAvailability replaces the free hours of a technician's day.
func (s *CalendarService) PublishAvailability(ctx context.Context, technician, team, date string, free []domain.TimeComponent) error {
	technician = strings.TrimSpace(technician)
	if technician == "" {
		return apperrors.NewValidationError("technician required", map[string]any{"field": "technician"})
	}
	if _, err := scheduling.ParseDate(date); err != nil {
		return apperrors.NewValidationError("invalid date", map[string]any{"date": date})
	}
	for _, tc := range free {
		if !tc.Valid() {
			return apperrors.NewValidationError("invalid time", map[string]any{"time": tc.String()})
		}
	}
	if err := s.slots.PublishDay(ctx, technician, team, date, free); err != nil {
		return mapError(err, "calendar", date)
	}
	s.logger.Info("availability published",
		zap.String("technician", technician),
		zap.String("date", date),
		zap.Int("hours", len(free)))
	s.Invalidate(ctx)
	return nil
}

// Invalidate drops cached snapshots after availability or reservations change.
func (s *CalendarService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("calendar cache invalidate failed", zap.Error(err))
	}
}

// Cities lists the cities served by a team.
func (s *CalendarService) Cities(ctx context.Context, team string) ([]domain.City, error) {
	cities, err := s.teams.ListCities(ctx, team)
	if err != nil {
		return nil, mapError(err, "team", team)
	}
	return cities, nil
}

// Teams lists active teams.
func (s *CalendarService) Teams(ctx context.Context) ([]domain.Team, error) {
	teams, err := s.teams.ListActive(ctx)
	if err != nil {
		return nil, mapError(err, "team", "")
	}
	return teams, nil
}

// CreateTeam registers a team and the cities it serves.
func (s *CalendarService) CreateTeam(ctx context.Context, name string, cities []string) (*domain.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "INTERNAL" {
		return nil, apperrors.NewValidationError("invalid team name", map[string]any{"name": name})
	}
	team := &domain.Team{Name: name, IsActive: true}
	for _, city := range cities {
		if city = strings.TrimSpace(city); city != "" {
			team.Cities = append(team.Cities, city)
		}
	}
	if err := s.teams.Create(ctx, team); err != nil {
		return nil, mapError(err, "team", name)
	}
	return team, nil
}

func (s *CalendarService) validateWindow(from, to string) error {
	start, err := scheduling.ParseDate(from)
	if err != nil {
		return apperrors.NewValidationError("invalid from date", map[string]any{"from": from})
	}
	end, err := scheduling.ParseDate(to)
	if err != nil {
		return apperrors.NewValidationError("invalid to date", map[string]any{"to": to})
	}
	if end.Before(start) {
		return apperrors.NewValidationError("to must not precede from", nil)
	}
	if end.Sub(start) > time.Duration(s.windowDays)*24*time.Hour {
		return apperrors.NewValidationError("window too large", map[string]any{"max_days": s.windowDays})
	}
	return nil
}
