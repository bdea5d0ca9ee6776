package syncengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zulandar/livedesk/internal/chat"
	"github.com/zulandar/livedesk/internal/models"
)

// memStore is an in-memory SessionStore and MessageStore with the same
// ordering guarantees as the gorm store.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	msgs     map[string][]models.Message
	byCorr   map[string]models.Message
	nextID   uint
	clock    time.Time
	tick     time.Duration

	publish   func(chat.FeedEvent)
	appendErr error
	queryErr  error
	block     chan struct{}
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]*models.Session),
		msgs:     make(map[string][]models.Message),
		byCorr:   make(map[string]models.Message),
		clock:    time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
		tick:     time.Millisecond,
	}
}

func (s *memStore) Create(_ context.Context, name, contact string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("s%d", len(s.sessions)+1)
	sess := &models.Session{ID: id, Name: name, Contact: contact, Status: models.StatusWaiting, CreatedAt: s.clock}
	s.sessions[id] = sess
	cp := *sess
	return &cp, nil
}

func (s *memStore) Get(_ context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("mem: get %s: %w", id, chat.ErrNotFound)
	}
	cp := *sess
	return &cp, nil
}

func (s *memStore) SetStatus(_ context.Context, id string, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("mem: set status %s: %w", id, chat.ErrNotFound)
	}
	sess.Status = status
	return nil
}

func (s *memStore) Assign(_ context.Context, id, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("mem: assign %s: %w", id, chat.ErrNotFound)
	}
	sess.AssignedAgent = agentID
	return nil
}

func (s *memStore) List(_ context.Context) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	return out, nil
}

func (s *memStore) Append(ctx context.Context, nm chat.NewMessage) (*models.Message, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	if s.appendErr != nil {
		s.mu.Unlock()
		return nil, s.appendErr
	}
	if _, ok := s.sessions[nm.SessionID]; !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("mem: append: %w", chat.ErrNotFound)
	}
	if nm.CorrelationID != "" {
		if m, ok := s.byCorr[nm.CorrelationID]; ok {
			s.mu.Unlock()
			return &m, nil
		}
	}
	s.nextID++
	prior := s.msgs[nm.SessionID]
	m := models.Message{
		ID:            s.nextID,
		SessionID:     nm.SessionID,
		Seq:           uint64(len(prior) + 1),
		Role:          nm.Role,
		SenderID:      nm.SenderID,
		Body:          nm.Body,
		CorrelationID: nm.CorrelationID,
		CreatedAt:     s.clock,
	}
	s.clock = s.clock.Add(s.tick)
	s.msgs[nm.SessionID] = append(prior, m)
	if m.CorrelationID != "" {
		s.byCorr[m.CorrelationID] = m
	}
	publish := s.publish
	s.mu.Unlock()

	if publish != nil {
		publish(chat.FeedEvent{SessionID: m.SessionID, Message: m})
	}
	return &m, nil
}

func (s *memStore) Query(_ context.Context, sessionID string, after models.Cursor) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []models.Message
	for _, m := range s.msgs[sessionID] {
		if m.Cursor().After(after) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) setQueryErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryErr = err
}

func (s *memStore) message(sessionID string, seq int) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msgs[sessionID][seq-1]
}

// manualFeed hands pushes to subscribers only when the test says so.
type manualFeed struct {
	mu   sync.Mutex
	subs map[string][]func(chat.FeedEvent)
	fail bool
}

func newManualFeed() *manualFeed {
	return &manualFeed{subs: make(map[string][]func(chat.FeedEvent))}
}

func (f *manualFeed) Subscribe(topic string, onEvent func(chat.FeedEvent)) (chat.FeedHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, fmt.Errorf("manual: %w", chat.ErrFeedUnavailable)
	}
	f.subs[topic] = append(f.subs[topic], onEvent)
	return manualHandle{}, nil
}

func (f *manualFeed) push(m models.Message) {
	f.mu.Lock()
	subs := append([]func(chat.FeedEvent){}, f.subs[m.SessionID]...)
	f.mu.Unlock()
	for _, cb := range subs {
		cb(chat.FeedEvent{SessionID: m.SessionID, Message: m})
	}
}

type manualHandle struct{}

func (manualHandle) Unsubscribe() {}

// collector records deliveries for assertions.
type collector struct {
	mu   sync.Mutex
	msgs []models.Message
	errs []error
}

func (c *collector) onMessage(m models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
}

func (c *collector) onError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *collector) messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.msgs...)
}

func (c *collector) bodies() []string {
	var out []string
	for _, m := range c.messages() {
		out = append(out, m.Body)
	}
	return out
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *collector) errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errs...)
}

type recordingActivator struct {
	mu    sync.Mutex
	calls []string
}

func (a *recordingActivator) OnAgentMessage(_ context.Context, sessionID, agentID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, sessionID+"/"+agentID)
	return nil
}
