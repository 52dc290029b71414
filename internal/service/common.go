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
	apperrors "github.com/spec-kit/install-dispatch/pkg/util"
)

// publisher stamps and publishes events on a possibly nil dispatcher.
type publisher struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

func (p publisher) publish(ctx context.Context, event events.Event) {
	if p.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := p.dispatcher.Publish(ctx, event); err != nil && p.logger != nil {
		p.logger.Warn("event handler failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func memberActor(member domain.Member) events.Actor {
	return events.Actor{Name: member.Name, Team: member.Team}
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func generateOrderKey() string {
	return "ORD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func isAdmin(member domain.Member) bool {
	return member.Role == domain.MemberRoleAdmin
}

// canView reports whether member may read order: its owner, the team it is
// offered to, or an admin.
func canView(member domain.Member, order *domain.Order) bool {
	if isAdmin(member) || order.OwnerTeam == member.Team {
		return true
	}
	return order.InBuffer() && order.TransferredToTeam != nil && *order.TransferredToTeam == member.Team
}

func requireOwner(member domain.Member, order *domain.Order) error {
	if isAdmin(member) || order.OwnerTeam == member.Team {
		return nil
	}
	return apperrors.NewForbidden("order belongs to another team")
}

// historyEntry describes a change for the audit log. The repository fills in
// the order id when it stores the entry with the order.
func historyEntry(member domain.Member, change lifecycle.Change) *domain.OrderHistory {
	return &domain.OrderHistory{
		ChangedBy:     member.Name,
		ChangedByTeam: member.Team,
		ChangeType:    change.Type,
		OldValue:      change.OldValue,
		NewValue:      change.NewValue,
	}
}
