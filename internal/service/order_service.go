package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/install-dispatch/internal/domain"
	"github.com/spec-kit/install-dispatch/internal/events"
	"github.com/spec-kit/install-dispatch/internal/lifecycle"
	"github.com/spec-kit/install-dispatch/internal/observability"
	"github.com/spec-kit/install-dispatch/internal/repository"
	apperrors "github.com/spec-kit/install-dispatch/pkg/util"
)

// OrderService coordinates claims, buffer transfers and status changes.
type OrderService struct {
	orders   repository.OrderRepository
	requests repository.RequestRepository
	history  repository.OrderHistoryRepository
	teams    repository.TeamRepository
	machine  *lifecycle.Machine
	events   publisher
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// OrderDependencies bundles collaborators for the order service.
type OrderDependencies struct {
	OrderRepo   repository.OrderRepository
	RequestRepo repository.RequestRepository
	HistoryRepo repository.OrderHistoryRepository
	TeamRepo    repository.TeamRepository
	Machine     *lifecycle.Machine
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// OrderListFilter describes listing filters.
type OrderListFilter struct {
	Team     string
	Statuses []domain.OrderStatus
	InBuffer *bool
	Limit    int
	Offset   int
}

// NewOrderService constructs the service.
func NewOrderService(deps OrderDependencies) *OrderService {
	machine := deps.Machine
	if machine == nil {
		machine = lifecycle.NewMachine(nil)
	}
	logger := loggerOrNop(deps.Logger)
	return &OrderService{
		orders:   deps.OrderRepo,
		requests: deps.RequestRepo,
		history:  deps.HistoryRepo,
		teams:    deps.TeamRepo,
		machine:  machine,
		events:   publisher{dispatcher: deps.Dispatcher, logger: logger},
		metrics:  deps.Metrics,
		logger:   logger,
	}
}

// Claim turns an unclaimed request into an order owned by the member's team.
func (s *OrderService) Claim(ctx context.Context, member domain.Member, requestID, comment string) (*domain.Order, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, mapError(err, "request", requestID)
	}

	res, err := s.machine.Claim(*req, member.Team, lifecycle.CreateInput{
		OrderID:     uuid.NewString(),
		ExternalKey: generateOrderKey(),
		Actor:       member.Name,
		Comment:     strings.TrimSpace(comment),
	})
	if err != nil {
		s.rejected(lifecycle.TransitionClaim, requestID, err)
		return nil, mapError(err, "request", requestID)
	}

	order := res.Order
	if err := s.requests.Claim(ctx, req.ID, &order, historyEntry(member, res.Change)); err != nil {
		s.rejected(lifecycle.TransitionClaim, requestID, err)
		return nil, mapError(err, "request", requestID)
	}

	s.metrics.RecordTransition(string(lifecycle.TransitionClaim), "ok")
	s.logger.Info("request claimed",
		zap.String("request_id", req.ID),
		zap.String("order_id", order.ID),
		zap.String("team", member.Team))
	s.events.publish(ctx, events.Event{
		Type:    events.EventOrderClaimed,
		OrderID: order.ID,
		Actor:   memberActor(member),
		Payload: events.TransitionPayload{ChangeType: res.Change.Type, OldValue: res.Change.OldValue, NewValue: res.Change.NewValue},
	})
	return &order, nil
}

// TransferToBuffer offers the order to targetTeam, or to the owner's own
// teammates when targetTeam is "INTERNAL".
func (s *OrderService) TransferToBuffer(ctx context.Context, member domain.Member, orderID, targetTeam, comment string) (*domain.Order, error) {
	targetTeam = strings.TrimSpace(targetTeam)
	if err := s.validateTarget(ctx, targetTeam); err != nil {
		return nil, err
	}
	return s.submitTransition(ctx, member, orderID, lifecycle.TransitionTransfer, events.EventOrderTransferred,
		requireOwner,
		func(o domain.Order) (lifecycle.Result, error) {
			return s.machine.TransferToBuffer(o, targetTeam, member.Name, comment)
		})
}

// ReturnFromBuffer takes an order out of the buffer. Either the owner or the
// team it was offered to may return it.
func (s *OrderService) ReturnFromBuffer(ctx context.Context, member domain.Member, orderID string) (*domain.Order, error) {
	return s.submitTransition(ctx, member, orderID, lifecycle.TransitionReturn, events.EventOrderReturned,
		func(m domain.Member, o *domain.Order) error {
			if canView(m, o) {
				return nil
			}
			return apperrors.NewForbidden("order was not offered to your team")
		},
		func(o domain.Order) (lifecycle.Result, error) {
			return s.machine.ReturnFromBuffer(o, member.Team)
		})
}

// AcceptFromBuffer transfers ownership to the member's team.
func (s *OrderService) AcceptFromBuffer(ctx context.Context, member domain.Member, orderID string) (*domain.Order, error) {
	return s.submitTransition(ctx, member, orderID, lifecycle.TransitionAccept, events.EventOrderAccepted,
		nil,
		func(o domain.Order) (lifecycle.Result, error) {
			return s.machine.AcceptFromBuffer(o, member.Team)
		})
}

// ChangeStatus sets the business status of an order owned by the member's team.
func (s *OrderService) ChangeStatus(ctx context.Context, member domain.Member, orderID string, status domain.OrderStatus) (*domain.Order, error) {
	return s.submitTransition(ctx, member, orderID, lifecycle.TransitionChangeStatus, events.EventOrderStatusChanged,
		requireOwner,
		func(o domain.Order) (lifecycle.Result, error) {
			return s.machine.ChangeStatus(o, status)
		})
}

// MarkInvalid flags an order as invalid with a reason.
func (s *OrderService) MarkInvalid(ctx context.Context, member domain.Member, orderID, reason string) (*domain.Order, error) {
	return s.submitTransition(ctx, member, orderID, lifecycle.TransitionMarkInvalid, events.EventOrderMarkedInvalid,
		requireOwner,
		func(o domain.Order) (lifecycle.Result, error) {
			return s.machine.MarkInvalid(o, reason)
		})
}

// Get returns an order visible to the member.
func (s *OrderService) Get(ctx context.Context, member domain.Member, orderID string) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapError(err, "order", orderID)
	}
	if !canView(member, order) {
		return nil, apperrors.NewForbidden("order belongs to another team")
	}
	return order, nil
}

// List returns orders of the member's team. Admins may list any team.
func (s *OrderService) List(ctx context.Context, member domain.Member, filter OrderListFilter) ([]domain.Order, error) {
	team := member.Team
	if isAdmin(member) {
		team = filter.Team
	}
	orders, err := s.orders.List(ctx, repository.OrderFilter{
		OwnerTeam: team,
		Statuses:  filter.Statuses,
		InBuffer:  filter.InBuffer,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	})
	if err != nil {
		return nil, mapError(err, "order", "")
	}
	return orders, nil
}

// History returns the audit trail of an order visible to the member.
func (s *OrderService) History(ctx context.Context, member domain.Member, orderID string) ([]domain.OrderHistory, error) {
	if _, err := s.Get(ctx, member, orderID); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []domain.OrderHistory{}, nil
	}
	entries, err := s.history.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, mapError(err, "order", orderID)
	}
	return entries, nil
}

// submitTransition loads the order, applies a pure transition and persists
// the result and its history entry with an optimistic version check.
func (s *OrderService) submitTransition(
	ctx context.Context,
	member domain.Member,
	orderID string,
	transition lifecycle.Transition,
	eventType events.EventType,
	authorize func(domain.Member, *domain.Order) error,
	apply func(domain.Order) (lifecycle.Result, error),
) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, mapError(err, "order", orderID)
	}
	if authorize != nil {
		if err := authorize(member, order); err != nil {
			s.rejected(transition, orderID, err)
			return nil, err
		}
	}

	res, err := apply(*order)
	if err != nil {
		s.rejected(transition, orderID, err)
		return nil, mapError(err, "order", orderID)
	}

	updated := res.Order
	if err := s.orders.Update(ctx, &updated, historyEntry(member, res.Change)); err != nil {
		s.rejected(transition, orderID, err)
		return nil, mapError(err, "order", orderID)
	}

	s.metrics.RecordTransition(string(transition), "ok")
	s.logger.Info("order transition",
		zap.String("order_id", updated.ID),
		zap.String("transition", string(transition)),
		zap.String("team", member.Team),
		zap.String("member", member.Name))
	s.events.publish(ctx, events.Event{
		Type:    eventType,
		OrderID: updated.ID,
		Actor:   memberActor(member),
		Payload: events.TransitionPayload{ChangeType: res.Change.Type, OldValue: res.Change.OldValue, NewValue: res.Change.NewValue},
	})
	return &updated, nil
}

// validateTarget checks that a cross-team target is a known active team.
func (s *OrderService) validateTarget(ctx context.Context, target string) error {
	if s.teams == nil || target == "" || target == lifecycle.InternalTarget {
		return nil
	}
	team, err := s.teams.GetByName(ctx, target)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewValidationError("unknown target team", map[string]any{"target_team": target})
		}
		return mapError(err, "team", target)
	}
	if !team.IsActive {
		return apperrors.NewValidationError("target team is inactive", map[string]any{"target_team": target})
	}
	return nil
}

func (s *OrderService) rejected(transition lifecycle.Transition, id string, err error) {
	s.metrics.RecordTransition(string(transition), "rejected")
	s.logger.Debug("transition rejected",
		zap.String("transition", string(transition)),
		zap.String("id", id),
		zap.Error(err))
}
