package syncengine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/livedesk/internal/chat"
	"github.com/zulandar/livedesk/internal/models"
)

// Subscription delivers one session's messages to one viewer in strictly
// increasing cursor order, each exactly once.
type Subscription struct {
	engine    *Engine
	sessionID string
	onMessage func(models.Message)
	onError   func(error)
	log       zerolog.Logger

	events  chan models.Message
	handle  chat.FeedHandle
	cancel  context.CancelFunc
	stopped chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once

	// mu serializes delivery and guards the cursor state.
	mu       sync.Mutex
	cursor   models.Cursor
	lastSeq  uint64
	seqKnown bool

	// delivered mirrors cursor for readers that must not take mu.
	delivered atomic.Pointer[models.Cursor]
}

// SessionID returns the subscribed session.
func (s *Subscription) SessionID() string { return s.sessionID }

// Cursor returns the cursor of the last delivered message. Safe to call
// from onMessage.
func (s *Subscription) Cursor() models.Cursor {
	if c := s.delivered.Load(); c != nil {
		return *c
	}
	return models.Cursor{}
}

// Degraded reports whether the subscription runs without a push feed.
func (s *Subscription) Degraded() bool { return s.handle == nil }

// Done is closed when the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.stopped }

// Close stops delivery and releases the feed subscription. Idempotent and
// safe to call from onMessage. A callback already running on another
// goroutine may complete; nothing is delivered after that.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		if s.handle != nil {
			s.handle.Unsubscribe()
		}
		s.log.Debug().Msg("subscription closed")
	})
}

// Reconcile fetches everything after the current cursor and delivers what
// has not been seen. It runs on every tick; callers may force a cycle but
// must not call it from onMessage.
func (s *Subscription) Reconcile(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil
	}
	msgs, err := s.engine.messages.Query(ctx, s.sessionID, s.cursor)
	if err != nil {
		return fmt.Errorf("syncengine: reconcile %s: %w: %w", s.sessionID, chat.ErrStoreUnavailable, err)
	}
	for _, m := range msgs {
		if !s.deliver(m) {
			break
		}
	}
	return nil
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.stopped)
	defer s.Close()

	ticker := time.NewTicker(s.engine.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-s.events:
			if err := s.handlePush(ctx, m); err != nil {
				s.report(err)
			}
		case <-ticker.C:
			if err := s.Reconcile(ctx); err != nil {
				s.report(err)
			}
		}
	}
}

// enqueue is the feed callback. It never blocks the publisher: when the
// buffer is full the push is dropped and the next tick picks it up.
func (s *Subscription) enqueue(e chat.FeedEvent) {
	if s.closed.Load() || e.SessionID != s.sessionID {
		return
	}
	select {
	case s.events <- e.Message:
	default:
		s.log.Debug().Uint64("seq", e.Message.Seq).Msg("push buffer full, dropping")
	}
}

// handlePush merges one pushed message. The next message in sequence is
// delivered directly; anything at or below the cursor is a duplicate; a
// message further ahead means pushes were lost, so the gap up to and
// including it is fetched from the store.
func (s *Subscription) handlePush(ctx context.Context, m models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil
	}
	pushed := m.Cursor()
	if !pushed.After(s.cursor) {
		s.log.Debug().Uint64("seq", m.Seq).Msg("duplicate push dropped")
		return nil
	}
	if s.seqKnown && m.Seq == s.lastSeq+1 {
		s.deliver(m)
		return nil
	}

	s.log.Debug().Uint64("seq", m.Seq).Uint64("last_seq", s.lastSeq).Msg("gap detected, fetching")
	msgs, err := s.engine.messages.Query(ctx, s.sessionID, s.cursor)
	if err != nil {
		return fmt.Errorf("syncengine: gap fetch %s: %w: %w", s.sessionID, chat.ErrStoreUnavailable, err)
	}
	for _, gm := range msgs {
		if gm.Cursor().After(pushed) {
			break
		}
		if !s.deliver(gm) {
			return nil
		}
	}
	if s.seqKnown && m.Seq == s.lastSeq+1 {
		s.deliver(m)
	}
	return nil
}

// deliver hands m to the viewer if it advances the cursor. Caller holds mu.
func (s *Subscription) deliver(m models.Message) bool {
	if s.closed.Load() {
		return false
	}
	c := m.Cursor()
	if !c.After(s.cursor) {
		return true
	}
	s.cursor = c
	s.delivered.Store(&c)
	s.lastSeq = m.Seq
	s.seqKnown = m.Seq > 0
	s.onMessage(m)
	return true
}

func (s *Subscription) report(err error) {
	s.log.Warn().Err(err).Msg("reconcile failed")
	if s.onError != nil && !s.closed.Load() {
		s.onError(err)
	}
}
