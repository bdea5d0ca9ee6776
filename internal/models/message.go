package models

import "time"

// Role identifies which side of the conversation sent a message.
type Role string

const (
	RoleVisitor Role = "visitor"
	RoleAgent   Role = "agent"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleVisitor || r == RoleAgent
}

// Message is an immutable chat line. Messages within a session are totally
// ordered by (CreatedAt, ID); Seq numbers them 1..n in that same order.
type Message struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID     string    `gorm:"size:36;not null;uniqueIndex:idx_session_seq;index:idx_session_cursor,priority:1" json:"session_id"`
	Seq           uint64    `gorm:"not null;uniqueIndex:idx_session_seq" json:"seq"`
	Role          Role      `gorm:"size:16;not null" json:"role"`
	SenderID      string    `gorm:"size:64" json:"sender_id,omitempty"`
	Body          string    `gorm:"type:text;not null" json:"body"`
	CorrelationID string    `gorm:"size:64;not null;uniqueIndex" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"precision:6;index:idx_session_cursor,priority:2" json:"created_at"`
}

// Cursor returns the message's position in its session's total order.
func (m Message) Cursor() Cursor {
	return Cursor{At: m.CreatedAt, ID: m.ID}
}
