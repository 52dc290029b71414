package dto

import "time"

// StartDraftRequest opens a draft for a new order.
type StartDraftRequest struct {
	Date     string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	ClientID string `json:"client_id" validate:"max=64"`
	City     string `json:"city" validate:"max=128"`
	Address  string `json:"address" validate:"max=256"`
	Comment  string `json:"comment" validate:"max=1024"`
}

// SelectTechnicianRequest payload.
type SelectTechnicianRequest struct {
	Technician string `json:"technician" validate:"required,max=128"`
}

// ChangeDateRequest payload.
type ChangeDateRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

// ToggleSlotRequest carries an encoded slot key.
type ToggleSlotRequest struct {
	Key string `json:"key" validate:"required,max=512"`
}

// SetSecondaryRequest payload.
type SetSecondaryRequest struct {
	Technician string `json:"technician" validate:"required,max=128"`
}

// SelectionResponse describes one technician's selected hours.
type SelectionResponse struct {
	Technician string   `json:"technician"`
	Date       string   `json:"date"`
	Times      []string `json:"times"`
	Keys       []string `json:"keys"`
}

// DraftResponse represents a scheduling draft.
type DraftResponse struct {
	ID           string             `json:"id"`
	OrderID      string             `json:"order_id,omitempty"`
	OrderVersion int                `json:"order_version,omitempty"`
	Team         string             `json:"team"`
	CreatedBy    string             `json:"created_by"`
	Primary      SelectionResponse  `json:"primary"`
	Secondary    *SelectionResponse `json:"secondary"`
	StartTime    string             `json:"start_time"`
	DateSlots    string             `json:"date_slots"`
	Released     []string           `json:"released"`
	ClientID     string             `json:"client_id"`
	City         string             `json:"city"`
	Address      string             `json:"address"`
	Comment      string             `json:"comment"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// DraftEventResponse is a side effect to surface to the user.
type DraftEventResponse struct {
	Type       string   `json:"type"`
	Technician string   `json:"technician"`
	Times      []string `json:"times"`
}

// OutcomeResponse reports whether a draft command was applied.
type OutcomeResponse struct {
	Accepted          bool                 `json:"accepted"`
	Reason            string               `json:"reason,omitempty"`
	Released          bool                 `json:"released,omitempty"`
	IncompatibleTimes []string             `json:"incompatible_times,omitempty"`
	Events            []DraftEventResponse `json:"events"`
}

// DraftCommandResponse is returned by draft commands.
type DraftCommandResponse struct {
	Draft   DraftResponse    `json:"draft"`
	Outcome *OutcomeResponse `json:"outcome,omitempty"`
}

// CommitResponse is returned when a draft is persisted.
type CommitResponse struct {
	Order   *OrderResponse  `json:"order"`
	Draft   *DraftResponse  `json:"draft,omitempty"`
	Outcome OutcomeResponse `json:"outcome"`
}
