package models

import "time"

// Status is the lifecycle state of a visitor session.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusActive  Status = "active"
	StatusClosed  Status = "closed"
)

// Rank orders statuses along the only direction a session may move.
// Unknown statuses rank below waiting.
func (s Status) Rank() int {
	switch s {
	case StatusWaiting:
		return 1
	case StatusActive:
		return 2
	case StatusClosed:
		return 3
	}
	return 0
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool { return s.Rank() > 0 }

// Session is one visitor's conversation with the desk.
type Session struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	Name          string    `gorm:"size:128;not null" json:"name"`
	Contact       string    `gorm:"size:256;not null" json:"contact"`
	Status        Status    `gorm:"size:16;not null;default:waiting;index" json:"status"`
	AssignedAgent string    `gorm:"size:64" json:"assigned_agent,omitempty"`
	CreatedAt     time.Time `gorm:"precision:6;index" json:"created_at"`
	UpdatedAt     time.Time `gorm:"precision:6" json:"updated_at"`
}

// Closed reports whether the session reached its terminal status.
func (s *Session) Closed() bool {
	return s.Status == StatusClosed
}
