package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/install-dispatch/internal/domain"
	"github.com/spec-kit/install-dispatch/internal/events"
	"github.com/spec-kit/install-dispatch/internal/lifecycle"
	"github.com/spec-kit/install-dispatch/internal/observability"
	"github.com/spec-kit/install-dispatch/internal/repository"
	"github.com/spec-kit/install-dispatch/internal/scheduling"
	apperrors "github.com/spec-kit/install-dispatch/pkg/util"
)

const defaultDraftTTL = 2 * time.Hour

// SchedulingService runs draft editing sessions and commits them to orders.
type SchedulingService struct {
	drafts   repository.DraftStore
	orders   repository.OrderRepository
	calendar *CalendarService
	machine  *lifecycle.Machine
	events   publisher
	metrics  *observability.Metrics
	logger   *zap.Logger
	ttl      time.Duration
	now      func() time.Time
}

// SchedulingDependencies bundles collaborators for the scheduling service.
type SchedulingDependencies struct {
	DraftStore  repository.DraftStore
	OrderRepo   repository.OrderRepository
	Calendar    *CalendarService
	Machine     *lifecycle.Machine
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	DraftTTL    time.Duration
	Now         func() time.Time
}

// DraftStartInput carries the client data of a new order draft.
type DraftStartInput struct {
	Date     string
	ClientID string
	City     string
	Address  string
	Comment  string
}

// DraftResult is a draft after a command. Outcome is nil for commands that
// cannot be refused.
type DraftResult struct {
	Draft   scheduling.OrderDraft
	Outcome *scheduling.Outcome
}

// CommitResult is the outcome of persisting a draft. Order is nil when the
// draft was refused after re-checking availability.
type CommitResult struct {
	Order   *domain.Order
	Draft   scheduling.OrderDraft
	Outcome scheduling.Outcome
}

// NewSchedulingService constructs the service.
func NewSchedulingService(deps SchedulingDependencies) *SchedulingService {
	ttl := deps.DraftTTL
	if ttl <= 0 {
		ttl = defaultDraftTTL
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	machine := deps.Machine
	if machine == nil {
		machine = lifecycle.NewMachine(now)
	}
	logger := loggerOrNop(deps.Logger)
	return &SchedulingService{
		drafts:   deps.DraftStore,
		orders:   deps.OrderRepo,
		calendar: deps.Calendar,
		machine:  machine,
		events:   publisher{dispatcher: deps.Dispatcher, logger: logger},
		metrics:  deps.Metrics,
		logger:   logger,
		ttl:      ttl,
		now:      now,
	}
}

// StartDraft opens a draft for a new order.
func (s *SchedulingService) StartDraft(ctx context.Context, member domain.Member, input DraftStartInput) (scheduling.OrderDraft, error) {
	draft, err := scheduling.NewDraft(uuid.NewString(), member.Team, member.Name, input.Date)
	if err != nil {
		return scheduling.OrderDraft{}, mapError(err, "draft", "")
	}
	draft.ClientID = strings.TrimSpace(input.ClientID)
	draft.City = strings.TrimSpace(input.City)
	draft.Address = strings.TrimSpace(input.Address)
	draft.Comment = strings.TrimSpace(input.Comment)
	if err := s.save(ctx, &draft); err != nil {
		return scheduling.OrderDraft{}, err
	}
	return draft, nil
}

// LoadDraftForOrder opens a draft pre-filled with an order's persisted slots.
func (s *SchedulingService) LoadDraftForOrder(ctx context.Context, member domain.Member, orderID string) (scheduling.OrderDraft, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return scheduling.OrderDraft{}, mapError(err, "order", orderID)
	}
	if err := requireOwner(member, order); err != nil {
		return scheduling.OrderDraft{}, err
	}
	draft, err := scheduling.LoadDraft(uuid.NewString(), *order, member.Name)
	if err != nil {
		s.logger.Warn("order has malformed date slots", zap.String("order_id", orderID), zap.Error(err))
		return scheduling.OrderDraft{}, mapError(err, "order", orderID)
	}
	if err := s.save(ctx, &draft); err != nil {
		return scheduling.OrderDraft{}, err
	}
	return draft, nil
}

// GetDraft returns a draft of the member's team.
func (s *SchedulingService) GetDraft(ctx context.Context, member domain.Member, draftID string) (scheduling.OrderDraft, error) {
	draft, err := s.drafts.Get(ctx, draftID)
	if err != nil {
		return scheduling.OrderDraft{}, mapError(err, "draft", draftID)
	}
	if draft.Team != member.Team && !isAdmin(member) {
		return scheduling.OrderDraft{}, apperrors.NewForbidden("draft belongs to another team")
	}
	return draft, nil
}

// SelectTechnician switches the primary technician.
func (s *SchedulingService) SelectTechnician(ctx context.Context, member domain.Member, draftID, technician string) (scheduling.OrderDraft, error) {
	technician = strings.TrimSpace(technician)
	if technician == "" {
		return scheduling.OrderDraft{}, apperrors.NewValidationError("technician required", map[string]any{"field": "technician"})
	}
	return s.update(ctx, member, draftID, func(d scheduling.OrderDraft) (scheduling.OrderDraft, error) {
		return d.SelectTechnician(technician), nil
	})
}

// ChangeDate moves the draft to another date.
func (s *SchedulingService) ChangeDate(ctx context.Context, member domain.Member, draftID, date string) (scheduling.OrderDraft, error) {
	return s.update(ctx, member, draftID, func(d scheduling.OrderDraft) (scheduling.OrderDraft, error) {
		return d.ChangeDate(date)
	})
}

// ClearSecondary removes the second technician.
func (s *SchedulingService) ClearSecondary(ctx context.Context, member domain.Member, draftID string) (scheduling.OrderDraft, error) {
	return s.update(ctx, member, draftID, func(d scheduling.OrderDraft) (scheduling.OrderDraft, error) {
		return d.ClearSecondary(), nil
	})
}

// ToggleSlot selects or deselects one hour against a fresh calendar. A
// refused toggle is reported in the outcome and leaves the draft unchanged.
func (s *SchedulingService) ToggleSlot(ctx context.Context, member domain.Member, draftID, rawKey string) (DraftResult, error) {
	key, err := scheduling.Decode(strings.TrimSpace(rawKey))
	if err != nil {
		return DraftResult{}, mapError(err, "slot", rawKey)
	}
	draft, err := s.GetDraft(ctx, member, draftID)
	if err != nil {
		return DraftResult{}, err
	}
	cal, err := s.freshCalendar(ctx, draft)
	if err != nil {
		return DraftResult{}, err
	}

	next, outcome := draft.ToggleSlot(cal, key)
	if !outcome.Accepted {
		s.metrics.RecordToggle(string(outcome.Reason))
		s.logger.Debug("toggle refused", zap.String("draft_id", draftID), zap.String("key", key.String()), zap.String("reason", string(outcome.Reason)))
		return DraftResult{Draft: draft, Outcome: &outcome}, nil
	}
	s.metrics.RecordToggle("accepted")
	if err := s.save(ctx, &next); err != nil {
		return DraftResult{}, err
	}
	s.publishDraftEvents(ctx, member, next, outcome.Events)
	return DraftResult{Draft: next, Outcome: &outcome}, nil
}

// SetSecondary assigns a second technician when they are free at every
// selected hour.
func (s *SchedulingService) SetSecondary(ctx context.Context, member domain.Member, draftID, technician string) (DraftResult, error) {
	draft, err := s.GetDraft(ctx, member, draftID)
	if err != nil {
		return DraftResult{}, err
	}
	cal, err := s.freshCalendar(ctx, draft)
	if err != nil {
		return DraftResult{}, err
	}

	next, outcome := draft.SetSecondary(cal, strings.TrimSpace(technician))
	if !outcome.Accepted {
		s.logger.Debug("secondary refused",
			zap.String("draft_id", draftID),
			zap.String("technician", technician),
			zap.String("reason", string(outcome.Reason)))
		return DraftResult{Draft: draft, Outcome: &outcome}, nil
	}
	if err := s.save(ctx, &next); err != nil {
		return DraftResult{}, err
	}
	return DraftResult{Draft: next, Outcome: &outcome}, nil
}

// Reconcile re-checks the secondary technician against a fresh calendar and
// evicts it when it no longer fits.
func (s *SchedulingService) Reconcile(ctx context.Context, member domain.Member, draftID string) (DraftResult, error) {
	draft, err := s.GetDraft(ctx, member, draftID)
	if err != nil {
		return DraftResult{}, err
	}
	cal, err := s.freshCalendar(ctx, draft)
	if err != nil {
		return DraftResult{}, err
	}

	next, evts := draft.Reconcile(cal)
	if err := s.save(ctx, &next); err != nil {
		return DraftResult{}, err
	}
	s.publishDraftEvents(ctx, member, next, evts)
	return DraftResult{Draft: next, Outcome: &scheduling.Outcome{Accepted: true, Events: evts}}, nil
}

// Discard deletes a draft without touching any order.
func (s *SchedulingService) Discard(ctx context.Context, member domain.Member, draftID string) error {
	if _, err := s.GetDraft(ctx, member, draftID); err != nil {
		return err
	}
	if err := s.drafts.Delete(ctx, draftID); err != nil {
		return mapError(err, "draft", draftID)
	}
	return nil
}

// Commit persists the draft: a new order is created, an existing one gets its
// slots and start time replaced. Availability is re-checked first; a draft
// that no longer fits is saved back with the refusal in the outcome.
func (s *SchedulingService) Commit(ctx context.Context, member domain.Member, draftID string) (CommitResult, error) {
	draft, err := s.GetDraft(ctx, member, draftID)
	if err != nil {
		return CommitResult{}, err
	}
	cal, err := s.freshCalendar(ctx, draft)
	if err != nil {
		return CommitResult{}, err
	}

	for _, key := range draft.Primary.Keys() {
		if !cal.Bookable(key.Technician, key.Date, key.Time(), draft.OrderID) {
			outcome := scheduling.Outcome{Reason: scheduling.ReasonSlotUnavailable}
			return CommitResult{Draft: draft, Outcome: outcome}, nil
		}
	}
	reconciled, evts := draft.Reconcile(cal)
	if len(evts) > 0 {
		if err := s.save(ctx, &reconciled); err != nil {
			return CommitResult{}, err
		}
		s.publishDraftEvents(ctx, member, reconciled, evts)
		outcome := scheduling.Outcome{Reason: scheduling.ReasonIncompatible, IncompatibleTimes: evts[0].Times, Events: evts}
		return CommitResult{Draft: reconciled, Outcome: outcome}, nil
	}

	var order *domain.Order
	if draft.OrderID == "" {
		order, err = s.createOrder(ctx, member, draft)
	} else {
		order, err = s.rescheduleOrder(ctx, member, draft)
	}
	if err != nil {
		return CommitResult{}, err
	}

	if err := s.drafts.Delete(ctx, draft.ID); err != nil {
		s.logger.Warn("draft delete failed", zap.String("draft_id", draft.ID), zap.Error(err))
	}
	if s.calendar != nil {
		s.calendar.Invalidate(ctx)
	}
	return CommitResult{Order: order, Draft: draft, Outcome: scheduling.Outcome{Accepted: true}}, nil
}

func (s *SchedulingService) createOrder(ctx context.Context, member domain.Member, draft scheduling.OrderDraft) (*domain.Order, error) {
	res, err := s.machine.Create(lifecycle.CreateInput{
		OrderID:     uuid.NewString(),
		ExternalKey: generateOrderKey(),
		Team:        draft.Team,
		Actor:       member.Name,
		ClientID:    draft.ClientID,
		City:        draft.City,
		Address:     draft.Address,
		Comment:     draft.Comment,
		DateSlots:   draft.DateSlots(),
		StartTime:   draft.StartLabel(),
	})
	if err != nil {
		return nil, mapError(err, "order", "")
	}
	order := res.Order
	schedule := repository.ScheduleChange{Reserve: draft.Keys(), Team: draft.Team}
	if err := s.orders.Create(ctx, &order, schedule, historyEntry(member, res.Change)); err != nil {
		return nil, mapError(err, "order", order.ID)
	}

	s.metrics.RecordTransition(string(lifecycle.TransitionCreate), "ok")
	s.logger.Info("order created", zap.String("order_id", order.ID), zap.String("team", order.OwnerTeam))
	s.events.publish(ctx, events.Event{
		Type:    events.EventOrderCreated,
		OrderID: order.ID,
		DraftID: draft.ID,
		Actor:   memberActor(member),
		Payload: events.ScheduledPayload{DateSlots: order.DateSlots, StartTime: order.StartTime},
	})
	return &order, nil
}

func (s *SchedulingService) rescheduleOrder(ctx context.Context, member domain.Member, draft scheduling.OrderDraft) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, draft.OrderID)
	if err != nil {
		return nil, mapError(err, "order", draft.OrderID)
	}
	if err := requireOwner(member, order); err != nil {
		return nil, err
	}
	if order.InBuffer() {
		s.metrics.RecordTransition(string(lifecycle.TransitionReschedule), "rejected")
		return nil, mapError(&lifecycle.InvalidTransitionError{
			From:      lifecycle.StateInBuffer,
			Attempted: lifecycle.TransitionReschedule,
			Reason:    "order is frozen while in buffer",
		}, "order", order.ID)
	}
	if draft.Version != 0 && draft.Version != order.Version {
		return nil, mapError(repository.ErrVersionConflict, "order", order.ID)
	}

	previous, err := scheduling.DecodeList(order.DateSlots)
	if err != nil {
		return nil, mapError(err, "order", order.ID)
	}
	current := draft.Keys()
	released := subtractKeys(previous, current)

	oldValue := map[string]any{"date_slots": order.DateSlots, "start_time": order.StartTime}
	order.DateSlots = draft.DateSlots()
	order.StartTime = draft.StartLabel()

	change := lifecycle.Change{
		Type:     domain.ChangeTypeSchedule,
		OldValue: oldValue,
		NewValue: map[string]any{"date_slots": order.DateSlots, "start_time": order.StartTime},
	}
	schedule := repository.ScheduleChange{Reserve: current, Release: released, Team: order.OwnerTeam}
	if err := s.orders.UpdateSchedule(ctx, order, schedule, historyEntry(member, change)); err != nil {
		return nil, mapError(err, "order", order.ID)
	}

	s.metrics.RecordTransition(string(lifecycle.TransitionReschedule), "ok")
	releasedKeys := make([]string, 0, len(released))
	for _, key := range released {
		releasedKeys = append(releasedKeys, key.String())
	}
	s.logger.Info("order rescheduled",
		zap.String("order_id", order.ID),
		zap.String("date_slots", order.DateSlots),
		zap.Int("released", len(released)))
	s.events.publish(ctx, events.Event{
		Type:    events.EventOrderScheduled,
		OrderID: order.ID,
		DraftID: draft.ID,
		Actor:   memberActor(member),
		Payload: events.ScheduledPayload{DateSlots: order.DateSlots, StartTime: order.StartTime, Released: releasedKeys},
	})
	return order, nil
}

// update applies an unconditional command to a stored draft.
func (s *SchedulingService) update(ctx context.Context, member domain.Member, draftID string, fn func(scheduling.OrderDraft) (scheduling.OrderDraft, error)) (scheduling.OrderDraft, error) {
	draft, err := s.GetDraft(ctx, member, draftID)
	if err != nil {
		return scheduling.OrderDraft{}, err
	}
	next, err := fn(draft)
	if err != nil {
		return scheduling.OrderDraft{}, mapError(err, "draft", draftID)
	}
	if err := s.save(ctx, &next); err != nil {
		return scheduling.OrderDraft{}, err
	}
	return next, nil
}

func (s *SchedulingService) save(ctx context.Context, draft *scheduling.OrderDraft) error {
	draft.UpdatedAt = s.now()
	if err := s.drafts.Save(ctx, *draft, s.ttl); err != nil {
		return mapError(err, "draft", draft.ID)
	}
	return nil
}

// freshCalendar fetches the calendar of the draft's date. A draft without a
// date gets an empty calendar.
func (s *SchedulingService) freshCalendar(ctx context.Context, draft scheduling.OrderDraft) (scheduling.Calendar, error) {
	date := draft.Primary.Date
	if date == "" || s.calendar == nil {
		return scheduling.NewCalendar(nil), nil
	}
	return s.calendar.Snapshot(ctx, date, date)
}

func (s *SchedulingService) publishDraftEvents(ctx context.Context, member domain.Member, draft scheduling.OrderDraft, evts []scheduling.Event) {
	for _, evt := range evts {
		times := make([]string, 0, len(evt.Times))
		for _, tc := range evt.Times {
			times = append(times, tc.String())
		}
		eventType := events.EventSlotReleased
		if evt.Type == scheduling.EventSecondaryIncompatible {
			eventType = events.EventSecondaryIncompatible
			s.metrics.RecordEviction()
		}
		s.events.publish(ctx, events.Event{
			Type:    eventType,
			OrderID: draft.OrderID,
			DraftID: draft.ID,
			Actor:   memberActor(member),
			Payload: events.SlotsPayload{Technician: evt.Technician, Times: times},
		})
	}
}

func subtractKeys(from, minus []scheduling.SlotKey) []scheduling.SlotKey {
	keep := make(map[scheduling.SlotKey]struct{}, len(minus))
	for _, key := range minus {
		keep[key] = struct{}{}
	}
	var out []scheduling.SlotKey
	for _, key := range from {
		if _, ok := keep[key]; !ok {
			out = append(out, key)
		}
	}
	return out
}
