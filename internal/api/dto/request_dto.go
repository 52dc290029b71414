package dto

import "time"

// CreateRequestRequest payload for intake.
type CreateRequestRequest struct {
	ClientID string `json:"client_id" validate:"required,max=64"`
	City     string `json:"city" validate:"max=128"`
	Address  string `json:"address" validate:"max=256"`
	Comment  string `json:"comment" validate:"max=1024"`
}

// ClaimRequestRequest payload.
type ClaimRequestRequest struct {
	Comment string `json:"comment" validate:"max=1024"`
}

// RequestResponse represents an intake request.
type RequestResponse struct {
	ID            string     `json:"id"`
	ClientID      string     `json:"client_id"`
	City          string     `json:"city"`
	Address       string     `json:"address"`
	Comment       string     `json:"comment"`
	ClaimedByTeam *string    `json:"claimed_by_team"`
	ClaimedAt     *time.Time `json:"claimed_at"`
	OrderID       *string    `json:"order_id"`
	CreatedAt     time.Time  `json:"created_at"`
}
