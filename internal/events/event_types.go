package events

import (
	"time"

	"github.com/spec-kit/install-dispatch/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRequestCreated        EventType = "request_created"
	EventOrderCreated          EventType = "order_created"
	EventOrderClaimed          EventType = "order_claimed"
	EventOrderTransferred      EventType = "order_transferred"
	EventOrderReturned         EventType = "order_returned"
	EventOrderAccepted         EventType = "order_accepted"
	EventOrderStatusChanged    EventType = "order_status_changed"
	EventOrderMarkedInvalid    EventType = "order_marked_invalid"
	EventOrderScheduled        EventType = "order_scheduled"
	EventSecondaryIncompatible EventType = "secondary_incompatible"
	EventSlotReleased          EventType = "slot_released"
)

// AllTypes lists every event type, for subscribers interested in all of them.
var AllTypes = []EventType{
	EventRequestCreated,
	EventOrderCreated,
	EventOrderClaimed,
	EventOrderTransferred,
	EventOrderReturned,
	EventOrderAccepted,
	EventOrderStatusChanged,
	EventOrderMarkedInvalid,
	EventOrderScheduled,
	EventSecondaryIncompatible,
	EventSlotReleased,
}

// Actor is the team member an event is attributed to.
type Actor struct {
	Name string `json:"name"`
	Team string `json:"team"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	OrderID   string      `json:"order_id,omitempty"`
	DraftID   string      `json:"draft_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TransitionPayload describes a lifecycle change.
type TransitionPayload struct {
	ChangeType domain.OrderChangeType `json:"change_type"`
	OldValue   map[string]any         `json:"old_value,omitempty"`
	NewValue   map[string]any         `json:"new_value,omitempty"`
}

// ScheduledPayload describes a committed schedule.
type ScheduledPayload struct {
	DateSlots string   `json:"date_slots"`
	StartTime string   `json:"start_time"`
	Released  []string `json:"released,omitempty"`
}

// SlotsPayload names a technician and the hours concerned.
type SlotsPayload struct {
	Technician string   `json:"technician"`
	Times      []string `json:"times"`
}
