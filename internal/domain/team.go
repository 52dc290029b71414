package domain

import "time"

// Team represents a regional installation team.
type Team struct {
	ID        string
	Name      string
	IsActive  bool
	Cities    []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// City is a locality served by a team.
type City struct {
	Name string
}
