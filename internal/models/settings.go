package models

import "time"

// RotationSettings is the singleton holding the global rotation strategy
type RotationSettings struct {
	ID        int       `json:"id"`
	Strategy  Strategy  `json:"strategy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// User represents an operator account
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Session is an authenticated operator session
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// RotationCursor is the last agent served for a group
type RotationCursor struct {
	GroupID   string    `json:"groupId"`
	AgentID   string    `json:"agentId"`
	Position  int       `json:"position"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Inventory is a snapshot of stored entity counts
type Inventory struct {
	Groups       int64 `json:"groups"`
	ActiveGroups int64 `json:"activeGroups"`
	Agents       int64 `json:"agents"`
	ActiveAgents int64 `json:"activeAgents"`
	ClickEvents  int64 `json:"clickEvents"`
}
