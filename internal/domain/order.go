package domain

import "time"

// OrderStatus enumerates business statuses for installation orders.
// The set is flat: any status may follow any other.
type OrderStatus string

const (
	OrderStatusNew        OrderStatus = "NEW"
	OrderStatusScheduled  OrderStatus = "SCHEDULED"
	OrderStatusInProgress OrderStatus = "IN_PROGRESS"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusPostponed  OrderStatus = "POSTPONED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusRefused    OrderStatus = "REFUSED"
	OrderStatusInvalid    OrderStatus = "INVALID"
)

// OrderStatuses lists every accepted status value.
var OrderStatuses = []OrderStatus{
	OrderStatusNew,
	OrderStatusScheduled,
	OrderStatusInProgress,
	OrderStatusCompleted,
	OrderStatusPostponed,
	OrderStatusCancelled,
	OrderStatusRefused,
	OrderStatusInvalid,
}

// Valid reports whether s belongs to the status enumeration.
func (s OrderStatus) Valid() bool {
	for _, candidate := range OrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// TransferStatus tracks whether an order is parked in a buffer.
type TransferStatus string

const (
	TransferStatusNone     TransferStatus = "none"
	TransferStatusInBuffer TransferStatus = "in_buffer"
)

// TransferOrigin records who put an order into a buffer.
type TransferOrigin struct {
	Team          string    `json:"team"`
	UserName      string    `json:"user_name"`
	TransferredAt time.Time `json:"transferred_at"`
	Comment       string    `json:"comment,omitempty"`
}

// Order is the aggregate for an installation job.
type Order struct {
	ID                string
	ExternalKey       string
	RequestID         *string
	OwnerTeam         string
	CreatedBy         string
	TransferStatus    TransferStatus
	TransferredToTeam *string
	TransferredFrom   *TransferOrigin
	TextStatus        OrderStatus
	InvalidReason     string
	ClientID          string
	City              string
	Address           string
	Comment           string
	DateSlots         string
	StartTime         string
	Version           int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// InBuffer reports whether the order currently sits in a buffer.
func (o Order) InBuffer() bool {
	return o.TransferStatus == TransferStatusInBuffer
}

// UnclaimedRequest is an intake record visible to teams before ownership exists.
type UnclaimedRequest struct {
	ID            string
	ClientID      string
	City          string
	Address       string
	Comment       string
	ClaimedByTeam *string
	ClaimedAt     *time.Time
	OrderID       *string
	CreatedAt     time.Time
}

// Claimed reports whether a team already owns the request.
func (r UnclaimedRequest) Claimed() bool {
	return r.ClaimedByTeam != nil
}

// BufferEntry is an order offered to a team through the buffer.
type BufferEntry struct {
	Order           Order
	TransferredFrom TransferOrigin
}
