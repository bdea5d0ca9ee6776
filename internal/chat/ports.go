// Package chat defines the error taxonomy and the collaborator contracts the
// livedesk core consumes: durable session and message stores and a push
// change feed.
package chat

import (
	"context"

	"github.com/zulandar/livedesk/internal/models"
)

// SessionStore is the durable record of visitor sessions.
type SessionStore interface {
	// Create inserts a waiting session and returns it with its generated id.
	Create(ctx context.Context, name, contact string) (*models.Session, error)

	// Get returns the session or an error wrapping ErrNotFound.
	Get(ctx context.Context, id string) (*models.Session, error)

	// SetStatus overwrites the session status. Returns ErrNotFound for
	// unknown ids.
	SetStatus(ctx context.Context, id string, status models.Status) error

	// Assign records the agent engaging the session. Informational only.
	Assign(ctx context.Context, id, agentID string) error

	// List returns every session, newest created first.
	List(ctx context.Context) ([]models.Session, error)
}

// NewMessage is the input to MessageStore.Append.
type NewMessage struct {
	SessionID     string
	Role          models.Role
	SenderID      string
	Body          string
	CorrelationID string
}

// MessageStore is the append-only message log.
type MessageStore interface {
	// Append stores a message and returns it with id, seq and timestamp
	// assigned. Appending a correlation id that already exists returns the
	// stored message instead of a duplicate.
	Append(ctx context.Context, msg NewMessage) (*models.Message, error)

	// Query returns the session's messages with cursor strictly after the
	// given one, in cursor order.
	Query(ctx context.Context, sessionID string, after models.Cursor) ([]models.Message, error)
}

// FeedEvent notifies a subscriber that a message row was inserted. Delivery
// is at-least-once and may be reordered or gapped.
type FeedEvent struct {
	SessionID string
	Message   models.Message
}

// FeedHandle cancels one ChangeFeed subscription.
type FeedHandle interface {
	Unsubscribe()
}

// ChangeFeed pushes FeedEvents for a topic (a session id).
type ChangeFeed interface {
	Subscribe(topic string, onEvent func(FeedEvent)) (FeedHandle, error)
}
