package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/install-dispatch/internal/domain"
	"github.com/spec-kit/install-dispatch/internal/events"
	"github.com/spec-kit/install-dispatch/internal/repository"
	apperrors "github.com/spec-kit/install-dispatch/pkg/util"
)

// RequestService handles intake of requests no team owns yet.
type RequestService struct {
	requests repository.RequestRepository
	events   publisher
	logger   *zap.Logger
}

// RequestDependencies bundles collaborators for the request service.
type RequestDependencies struct {
	RequestRepo repository.RequestRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// RequestCreateInput describes an incoming request.
type RequestCreateInput struct {
	ClientID string
	City     string
	Address  string
	Comment  string
}

// NewRequestService constructs the service.
func NewRequestService(deps RequestDependencies) *RequestService {
	logger := loggerOrNop(deps.Logger)
	return &RequestService{
		requests: deps.RequestRepo,
		events:   publisher{dispatcher: deps.Dispatcher, logger: logger},
		logger:   logger,
	}
}

// CreateRequest stores a new unclaimed request.
func (s *RequestService) CreateRequest(ctx context.Context, member domain.Member, input RequestCreateInput) (*domain.UnclaimedRequest, error) {
	req := &domain.UnclaimedRequest{
		ClientID: strings.TrimSpace(input.ClientID),
		City:     strings.TrimSpace(input.City),
		Address:  strings.TrimSpace(input.Address),
		Comment:  strings.TrimSpace(input.Comment),
	}
	if req.ClientID == "" {
		return nil, apperrors.NewValidationError("client id required", map[string]any{"field": "client_id"})
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, mapError(err, "request", "")
	}
	s.logger.Info("request created", zap.String("request_id", req.ID), zap.String("city", req.City))
	s.events.publish(ctx, events.Event{
		Type:  events.EventRequestCreated,
		Actor: memberActor(member),
		Payload: map[string]string{
			"request_id": req.ID,
			"city":       req.City,
		},
	})
	return req, nil
}

// ListUnclaimed returns open requests, oldest first, optionally for one city.
func (s *RequestService) ListUnclaimed(ctx context.Context, city string, limit, offset int) ([]domain.UnclaimedRequest, error) {
	requests, err := s.requests.ListUnclaimed(ctx, strings.TrimSpace(city), limit, offset)
	if err != nil {
		return nil, mapError(err, "request", "")
	}
	return requests, nil
}
