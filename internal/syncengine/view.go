package syncengine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/livedesk/internal/chat"
	"github.com/zulandar/livedesk/internal/models"
)

// EntryState is the phase of a displayed message.
type EntryState string

const (
	// EntryPending is a local insertion awaiting store acknowledgement.
	EntryPending EntryState = "pending"
	// EntryConfirmed is a stored message.
	EntryConfirmed EntryState = "confirmed"
)

// Entry is one line of a View's transcript.
type Entry struct {
	State         EntryState
	CorrelationID string
	Role          models.Role
	Body          string
	At            time.Time       // store time when confirmed, local time while pending
	Message       *models.Message // nil while pending
}

// View is a single viewer's transcript of one session: stored messages in
// cursor order plus its own optimistic sends. Each message shows once, no
// matter whether the acknowledgement or the subscription echo lands first.
type View struct {
	engine    *Engine
	sessionID string
	role      models.Role
	senderID  string
	onChange  func([]Entry)
	now       func() time.Time

	sub *Subscription

	mu        sync.Mutex
	confirmed []models.Message
	seen      map[uint]bool
	pending   []Entry
}

// OpenView subscribes to a session on behalf of a viewer sending as role.
// onChange, if set, receives a fresh snapshot after every change.
func (e *Engine) OpenView(ctx context.Context, sessionID string, role models.Role, senderID string,
	onChange func([]Entry)) (*View, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("syncengine: unknown role %q: %w", role, chat.ErrValidation)
	}
	v := &View{
		engine:    e,
		sessionID: sessionID,
		role:      role,
		senderID:  senderID,
		onChange:  onChange,
		now:       time.Now,
		seen:      make(map[uint]bool),
	}
	sub, err := e.Subscribe(ctx, sessionID, nil, v.onEcho, nil)
	if err != nil {
		return nil, err
	}
	v.sub = sub
	return v, nil
}

// Subscription returns the view's underlying subscription.
func (v *View) Subscription() *Subscription { return v.sub }

// Close ends the view's subscription.
func (v *View) Close() { v.sub.Close() }

// Send shows body as pending, then writes it. On success the entry becomes
// the stored message; on failure it is retracted and the error returned so
// the caller can restore its input. An empty correlationID is generated.
func (v *View) Send(ctx context.Context, body, correlationID string) (*models.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("syncengine: body is required: %w", chat.ErrValidation)
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	v.mu.Lock()
	v.pending = append(v.pending, Entry{
		State:         EntryPending,
		CorrelationID: correlationID,
		Role:          v.role,
		Body:          strings.TrimSpace(body),
		At:            v.now(),
	})
	v.mu.Unlock()
	v.changed()

	msg, err := v.engine.Send(ctx, SendRequest{
		SessionID:     v.sessionID,
		Role:          v.role,
		Body:          body,
		CorrelationID: correlationID,
		SenderID:      v.senderID,
	})

	v.mu.Lock()
	v.dropPending(correlationID)
	if err == nil {
		v.confirm(*msg)
	}
	v.mu.Unlock()
	v.changed()

	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Entries returns stored messages in cursor order followed by pending
// sends in the order they were made.
func (v *View) Entries() []Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshot()
}

// onEcho receives subscription deliveries.
func (v *View) onEcho(m models.Message) {
	v.mu.Lock()
	if v.seen[m.ID] {
		v.mu.Unlock()
		return
	}
	v.matchPending(m)
	v.confirm(m)
	v.mu.Unlock()
	v.changed()
}

// matchPending removes the pending entry m echoes: by correlation id, or,
// for an echo without one, by role and body within the echo window.
func (v *View) matchPending(m models.Message) {
	if m.CorrelationID != "" {
		v.dropPending(m.CorrelationID)
		return
	}
	for i, p := range v.pending {
		if p.Role != m.Role || p.Body != strings.TrimSpace(m.Body) {
			continue
		}
		d := m.CreatedAt.Sub(p.At)
		if d < 0 {
			d = -d
		}
		if d <= v.engine.echoWindow {
			v.pending = append(v.pending[:i], v.pending[i+1:]...)
			return
		}
	}
}

func (v *View) dropPending(correlationID string) {
	for i, p := range v.pending {
		if p.CorrelationID == correlationID {
			v.pending = append(v.pending[:i], v.pending[i+1:]...)
			return
		}
	}
}

// confirm inserts m at its cursor position. Caller holds mu.
func (v *View) confirm(m models.Message) {
	if v.seen[m.ID] {
		return
	}
	v.seen[m.ID] = true
	c := m.Cursor()
	i := sort.Search(len(v.confirmed), func(i int) bool {
		return v.confirmed[i].Cursor().After(c)
	})
	v.confirmed = append(v.confirmed, models.Message{})
	copy(v.confirmed[i+1:], v.confirmed[i:])
	v.confirmed[i] = m
}

func (v *View) snapshot() []Entry {
	out := make([]Entry, 0, len(v.confirmed)+len(v.pending))
	for i := range v.confirmed {
		m := v.confirmed[i]
		out = append(out, Entry{
			State:         EntryConfirmed,
			CorrelationID: m.CorrelationID,
			Role:          m.Role,
			Body:          m.Body,
			At:            m.CreatedAt,
			Message:       &m,
		})
	}
	return append(out, v.pending...)
}

func (v *View) changed() {
	if v.onChange == nil {
		return
	}
	v.mu.Lock()
	snap := v.snapshot()
	v.mu.Unlock()
	v.onChange(snap)
}
