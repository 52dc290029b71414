package dto

import (
	"time"

	"github.com/spec-kit/install-dispatch/internal/domain"
	"github.com/spec-kit/install-dispatch/internal/lifecycle"
)

// TransferRequest payload. TargetTeam "INTERNAL" keeps the order inside the owning team.
type TransferRequest struct {
	TargetTeam string `json:"target_team" validate:"required,max=64"`
	Comment    string `json:"comment" validate:"max=1024"`
}

// ChangeStatusRequest payload.
type ChangeStatusRequest struct {
	Status domain.OrderStatus `json:"status" validate:"required"`
}

// MarkInvalidRequest payload.
type MarkInvalidRequest struct {
	Reason string `json:"reason" validate:"required,max=1024"`
}

// TransferOriginResponse describes who put an order into a buffer.
type TransferOriginResponse struct {
	Team          string    `json:"team"`
	UserName      string    `json:"user_name"`
	TransferredAt time.Time `json:"transferred_at"`
	Comment       string    `json:"comment,omitempty"`
}

// OrderResponse represents an order.
type OrderResponse struct {
	ID                string                  `json:"id"`
	ExternalKey       string                  `json:"external_key"`
	RequestID         *string                 `json:"request_id"`
	OwnerTeam         string                  `json:"owner_team"`
	CreatedBy         string                  `json:"created_by"`
	State             lifecycle.State         `json:"state"`
	TransferStatus    domain.TransferStatus   `json:"transfer_status"`
	TransferredToTeam *string                 `json:"transferred_to_team"`
	TransferredFrom   *TransferOriginResponse `json:"transferred_from"`
	Status            domain.OrderStatus      `json:"status"`
	InvalidReason     string                  `json:"invalid_reason,omitempty"`
	ClientID          string                  `json:"client_id"`
	City              string                  `json:"city"`
	Address           string                  `json:"address"`
	Comment           string                  `json:"comment"`
	DateSlots         string                  `json:"date_slots"`
	StartTime         string                  `json:"start_time"`
	Version           int                     `json:"version"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
}

// OrderHistoryResponse is one audit entry.
type OrderHistoryResponse struct {
	ID            string                 `json:"id"`
	ChangeType    domain.OrderChangeType `json:"change_type"`
	ChangedBy     string                 `json:"changed_by"`
	ChangedByTeam string                 `json:"changed_by_team"`
	OldValue      map[string]any         `json:"old_value"`
	NewValue      map[string]any         `json:"new_value"`
	CreatedAt     time.Time              `json:"created_at"`
}

// BufferEntryResponse is an order offered through the buffer.
type BufferEntryResponse struct {
	Order           OrderResponse          `json:"order"`
	TransferredFrom TransferOriginResponse `json:"transferred_from"`
	Visibility      lifecycle.Visibility   `json:"visibility"`
}

// BufferViewResponse is the partitioned buffer of one team.
type BufferViewResponse struct {
	Team     string                 `json:"team"`
	All      []BufferEntryResponse  `json:"all"`
	Internal []BufferEntryResponse  `json:"internal"`
	External []BufferEntryResponse  `json:"external"`
	Counts   lifecycle.BufferCounts `json:"counts"`
}
