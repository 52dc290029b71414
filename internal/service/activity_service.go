package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/install-dispatch/internal/events"
	"github.com/spec-kit/install-dispatch/internal/observability"
)

// ActivityService records every domain event in the log and in metrics.
// Delivery to users (toasts, push) is left to downstream consumers.
type ActivityService struct {
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewActivityService creates the service.
func NewActivityService(dispatcher events.Dispatcher, metrics *observability.Metrics, logger *zap.Logger) *ActivityService {
	return &ActivityService{
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     loggerOrNop(logger),
	}
}

// RegisterHandlers subscribes to events.
func (a *ActivityService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllTypes {
		switch eventType {
		case events.EventSecondaryIncompatible, events.EventSlotReleased:
			a.dispatcher.Subscribe(eventType, a.handleDraftEvent)
		default:
			a.dispatcher.Subscribe(eventType, a.handleOrderEvent)
		}
	}
}

func (a *ActivityService) handleOrderEvent(_ context.Context, event events.Event) error {
	a.metrics.RecordEvent(string(event.Type))
	a.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("order_id", event.OrderID),
		zap.String("actor", event.Actor.Name),
		zap.String("team", event.Actor.Team),
		zap.Any("payload", event.Payload))
	return nil
}

func (a *ActivityService) handleDraftEvent(_ context.Context, event events.Event) error {
	a.metrics.RecordEvent(string(event.Type))
	a.logger.Debug(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("draft_id", event.DraftID),
		zap.String("order_id", event.OrderID),
		zap.Any("payload", event.Payload))
	return nil
}
