package dto

// SlotResponse is one hour of a technician's day.
type SlotResponse struct {
	Key              string  `json:"key"`
	Time             string  `json:"time"`
	Hour             int     `json:"hour"`
	Meridiem         string  `json:"meridiem"`
	Busy             bool    `json:"busy"`
	ReservingOrderID *string `json:"reserving_order_id,omitempty"`
}

// TechnicianScheduleResponse lists a technician's slots per date.
type TechnicianScheduleResponse struct {
	TechnicianName string                    `json:"technician_name"`
	Team           string                    `json:"team"`
	Days           map[string][]SlotResponse `json:"days"`
}

// TimeRequest is an hour on the 12-hour clock.
type TimeRequest struct {
	Hour     int    `json:"hour" validate:"min=1,max=12"`
	Meridiem string `json:"meridiem" validate:"required,oneof=AM PM"`
}

// AvailabilityRequest replaces the free hours of a technician's day.
type AvailabilityRequest struct {
	Date  string        `json:"date" validate:"required,datetime=2006-01-02"`
	Team  string        `json:"team" validate:"max=64"`
	Hours []TimeRequest `json:"hours" validate:"dive"`
}

// CreateTeamRequest payload.
type CreateTeamRequest struct {
	Name   string   `json:"name" validate:"required,max=64"`
	Cities []string `json:"cities" validate:"dive,max=128"`
}

// TeamResponse represents a regional team.
type TeamResponse struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	IsActive bool     `json:"is_active"`
	Cities   []string `json:"cities"`
}
