package service

import (
	"context"

	"github.com/spec-kit/install-dispatch/internal/domain"
	"github.com/spec-kit/install-dispatch/internal/lifecycle"
	"github.com/spec-kit/install-dispatch/internal/repository"
)

// BufferService builds the per-team buffer view.
type BufferService struct {
	orders repository.OrderRepository
}

// NewBufferService constructs the service.
func NewBufferService(orders repository.OrderRepository) *BufferService {
	return &BufferService{orders: orders}
}

// View partitions the orders offered to the member's team into internal and
// external entries. The view is rebuilt on every call.
func (s *BufferService) View(ctx context.Context, member domain.Member) (lifecycle.BufferView, error) {
	orders, err := s.orders.ListBuffered(ctx, member.Team)
	if err != nil {
		return lifecycle.BufferView{}, mapError(err, "buffer", member.Team)
	}
	entries := make([]domain.BufferEntry, 0, len(orders))
	for _, order := range orders {
		if entry, ok := lifecycle.EntryFromOrder(order); ok {
			entries = append(entries, entry)
		}
	}
	return lifecycle.Partition(entries, member.Team), nil
}
