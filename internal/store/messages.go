package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/livedesk/internal/chat"
	"github.com/zulandar/livedesk/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Messages is a chat.MessageStore backed by the messages table. Every
// committed insert is published to the configured callback, which is how
// the store provides row-level change notification.
type Messages struct {
	db      *gorm.DB
	publish func(chat.FeedEvent)
	now     func() time.Time
}

// MessagesOpts holds parameters for creating a Messages store.
type MessagesOpts struct {
	DB *gorm.DB
	// Publish receives every newly committed message. Optional.
	Publish func(chat.FeedEvent)
}

// NewMessages returns a message store.
func NewMessages(opts MessagesOpts) *Messages {
	return &Messages{db: opts.DB, publish: opts.Publish, now: utcNow}
}

// Append stores the message inside a transaction that locks the owning
// session row, so Seq and CreatedAt are assigned in a single total order per
// session. CreatedAt is clamped to the previous message's timestamp when the
// clock moves backwards. A repeated correlation id returns the existing row.
func (m *Messages) Append(ctx context.Context, in chat.NewMessage) (*models.Message, error) {
	if in.CorrelationID == "" {
		in.CorrelationID = uuid.NewString()
	}

	var (
		out     models.Message
		created bool
	)
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []models.Message
		if err := tx.Where("correlation_id = ?", in.CorrelationID).Limit(1).Find(&existing).Error; err != nil {
			return err
		}
		if len(existing) > 0 {
			if existing[0].SessionID != in.SessionID {
				return fmt.Errorf("correlation id %s belongs to another session: %w", in.CorrelationID, chat.ErrValidation)
			}
			out = existing[0]
			return nil
		}

		var sess models.Session
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").Where("id = ?", in.SessionID).First(&sess).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("session %s: %w", in.SessionID, chat.ErrNotFound)
			}
			return err
		}

		var last []models.Message
		if err := tx.Where("session_id = ?", in.SessionID).
			Order("seq DESC").Limit(1).Find(&last).Error; err != nil {
			return err
		}

		msg := models.Message{
			SessionID:     in.SessionID,
			Seq:           1,
			Role:          in.Role,
			SenderID:      in.SenderID,
			Body:          in.Body,
			CorrelationID: in.CorrelationID,
			CreatedAt:     m.now(),
		}
		if len(last) > 0 {
			msg.Seq = last[0].Seq + 1
			if msg.CreatedAt.Before(last[0].CreatedAt) {
				msg.CreatedAt = last[0].CreatedAt
			}
		}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		out = msg
		created = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: append: %w", err)
	}

	if created && m.publish != nil {
		m.publish(chat.FeedEvent{SessionID: out.SessionID, Message: out})
	}
	return &out, nil
}

// Query returns the messages of sessionID strictly after the cursor, in
// (created_at, id) order.
func (m *Messages) Query(ctx context.Context, sessionID string, after models.Cursor) ([]models.Message, error) {
	q := m.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if !after.IsZero() {
		at := after.At.UTC()
		q = q.Where("(created_at > ? OR (created_at = ? AND id > ?))", at, at, after.ID)
	}
	var msgs []models.Message
	if err := q.Order("created_at ASC, id ASC").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("store: query %s: %w", sessionID, err)
	}
	return msgs, nil
}
