// Package store implements the chat session and message stores on GORM.
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
)

// Sessions is a chat.SessionStore backed by the sessions table.
type Sessions struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSessions returns a session store on db.
func NewSessions(db *gorm.DB) *Sessions {
	return &Sessions{db: db, now: utcNow}
}

// Create inserts a waiting session with a fresh uuid.
func (s *Sessions) Create(ctx context.Context, name, contact string) (*models.Session, error) {
	now := s.now()
	sess := models.Session{
		ID:        uuid.NewString(),
		Name:      name,
		Contact:   contact,
		Status:    models.StatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&sess).Error; err != nil {
		return nil, fmt.Errorf("store: create session: %w", err)
	}
	return &sess, nil
}

// Get loads one session.
func (s *Sessions) Get(ctx context.Context, id string) (*models.Session, error) {
	var sess models.Session
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&sess).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("store: session %s: %w", id, chat.ErrNotFound)
		}
		return nil, fmt.Errorf("store: get session %s: %w", id, err)
	}
	return &sess, nil
}

// SetStatus writes a new status. A closed session never leaves closed; such
// an update fails with chat.ErrInvalidTransition even if a caller raced past
// the lifecycle check.
func (s *Sessions) SetStatus(ctx context.Context, id string, status models.Status) error {
	if !status.Valid() {
		return fmt.Errorf("store: set status %q: %w", status, chat.ErrValidation)
	}
	q := s.db.WithContext(ctx).Model(&models.Session{}).Where("id = ?", id)
	if status != models.StatusClosed {
		q = q.Where("status <> ?", models.StatusClosed)
	}
	result := q.Updates(map[string]any{"status": status, "updated_at": s.now()})
	if result.Error != nil {
		return fmt.Errorf("store: set status %s: %w", id, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess.Closed() && status != models.StatusClosed {
		return fmt.Errorf("store: session %s is closed: %w", id, chat.ErrInvalidTransition)
	}
	return nil
}

// Assign records the agent that engaged the session.
func (s *Sessions) Assign(ctx context.Context, id, agentID string) error {
	result := s.db.WithContext(ctx).Model(&models.Session{}).Where("id = ?", id).
		Updates(map[string]any{"assigned_agent": agentID, "updated_at": s.now()})
	if result.Error != nil {
		return fmt.Errorf("store: assign %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: session %s: %w", id, chat.ErrNotFound)
	}
	return nil
}

// List returns all sessions, newest first.
func (s *Sessions) List(ctx context.Context) ([]models.Session, error) {
	var sessions []models.Session
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	return sessions, nil
}

func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
