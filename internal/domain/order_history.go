package domain

import "time"

// OrderChangeType captures what changed in a history entry.
type OrderChangeType string

const (
	ChangeTypeCreated  OrderChangeType = "CREATED"
	ChangeTypeClaimed  OrderChangeType = "CLAIMED"
	ChangeTypeTransfer OrderChangeType = "TRANSFER"
	ChangeTypeReturn   OrderChangeType = "RETURN"
	ChangeTypeAccept   OrderChangeType = "ACCEPT"
	ChangeTypeStatus   OrderChangeType = "STATUS_CHANGE"
	ChangeTypeInvalid  OrderChangeType = "MARKED_INVALID"
	ChangeTypeSchedule OrderChangeType = "SCHEDULE_CHANGE"
)

// OrderHistory is an immutable audit trail entry.
type OrderHistory struct {
	ID            string
	OrderID       string
	ChangedBy     string
	ChangedByTeam string
	ChangeType    OrderChangeType
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}
