// Package syncengine delivers each session's messages to any number of
// independent viewers in one total order, merging a push change feed with
// periodic polling of the message store.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/livedesk/internal/chat"
	"github.com/zulandar/livedesk/internal/models"
)

const (
	DefaultReconcileInterval = 2 * time.Second
	DefaultSendTimeout       = 5 * time.Second
	DefaultEchoWindow        = 10 * time.Second

	pushBuffer = 64
)

// Activator is told about every stored agent message so it can apply the
// session activation policy.
type Activator interface {
	OnAgentMessage(ctx context.Context, sessionID, agentID string) error
}

// Engine coordinates subscriptions and sends.
type Engine struct {
	sessions  chat.SessionStore
	messages  chat.MessageStore
	feed      chat.ChangeFeed
	activator Activator
	log       zerolog.Logger

	reconcileInterval time.Duration
	sendTimeout       time.Duration
	echoWindow        time.Duration
}

// Opts holds parameters for creating an Engine. Feed and Activator are
// optional; without a feed every subscription polls.
type Opts struct {
	Sessions  chat.SessionStore
	Messages  chat.MessageStore
	Feed      chat.ChangeFeed
	Activator Activator
	Log       zerolog.Logger

	ReconcileInterval time.Duration
	SendTimeout       time.Duration
	EchoWindow        time.Duration
}

// New creates an Engine, applying defaults for zero durations.
func New(opts Opts) (*Engine, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("syncengine: sessions store is required")
	}
	if opts.Messages == nil {
		return nil, fmt.Errorf("syncengine: messages store is required")
	}
	e := &Engine{
		sessions:          opts.Sessions,
		messages:          opts.Messages,
		feed:              opts.Feed,
		activator:         opts.Activator,
		log:               opts.Log,
		reconcileInterval: opts.ReconcileInterval,
		sendTimeout:       opts.SendTimeout,
		echoWindow:        opts.EchoWindow,
	}
	if e.reconcileInterval <= 0 {
		e.reconcileInterval = DefaultReconcileInterval
	}
	if e.sendTimeout <= 0 {
		e.sendTimeout = DefaultSendTimeout
	}
	if e.echoWindow <= 0 {
		e.echoWindow = DefaultEchoWindow
	}
	return e, nil
}

// SendRequest is the input to Engine.Send.
type SendRequest struct {
	SessionID     string
	Role          models.Role
	Body          string
	CorrelationID string // reused on retry to get the stored message back
	SenderID      string // agent id, empty for visitors
}

// Send validates and appends a message. Store failures and timeouts come
// back as chat.ErrSendFailed; the engine never retries. Closed sessions
// still accept messages.
func (e *Engine) Send(ctx context.Context, req SendRequest) (*models.Message, error) {
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, fmt.Errorf("syncengine: body is required: %w", chat.ErrValidation)
	}
	if !req.Role.Valid() {
		return nil, fmt.Errorf("syncengine: unknown role %q: %w", req.Role, chat.ErrValidation)
	}
	if req.SessionID == "" {
		return nil, fmt.Errorf("syncengine: session id is required: %w", chat.ErrValidation)
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()

	type result struct {
		msg *models.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := e.messages.Append(sendCtx, chat.NewMessage{
			SessionID:     req.SessionID,
			Role:          req.Role,
			SenderID:      req.SenderID,
			Body:          body,
			CorrelationID: req.CorrelationID,
		})
		done <- result{msg, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-sendCtx.Done():
		e.log.Warn().Str("session", req.SessionID).Str("correlation", req.CorrelationID).
			Dur("timeout", e.sendTimeout).Msg("send not acknowledged")
		return nil, fmt.Errorf("syncengine: send %s: %w: %w", req.SessionID, chat.ErrSendFailed, sendCtx.Err())
	}
	if res.err != nil {
		switch {
		case errors.Is(res.err, chat.ErrNotFound), errors.Is(res.err, chat.ErrValidation):
			return nil, fmt.Errorf("syncengine: send: %w", res.err)
		default:
			e.log.Warn().Err(res.err).Str("session", req.SessionID).Msg("send failed")
			return nil, fmt.Errorf("syncengine: send %s: %w: %w", req.SessionID, chat.ErrSendFailed, res.err)
		}
	}

	if req.Role == models.RoleAgent && e.activator != nil {
		if err := e.activator.OnAgentMessage(ctx, req.SessionID, req.SenderID); err != nil {
			e.log.Warn().Err(err).Str("session", req.SessionID).Msg("activation after agent message")
		}
	}
	return res.msg, nil
}

// Subscribe opens a subscription on a session. Every stored message with a
// cursor after since (or every message, when since is nil) is delivered to
// onMessage before Subscribe returns; live delivery follows on the
// subscription's own goroutine until Close or until ctx is cancelled.
// onError, if set, receives store read failures during reconciliation.
func (e *Engine) Subscribe(ctx context.Context, sessionID string, since *models.Cursor,
	onMessage func(models.Message), onError func(error)) (*Subscription, error) {
	if onMessage == nil {
		return nil, fmt.Errorf("syncengine: onMessage is required")
	}
	if _, err := e.sessions.Get(ctx, sessionID); err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return nil, fmt.Errorf("syncengine: subscribe: %w", err)
		}
		return nil, fmt.Errorf("syncengine: subscribe %s: %w: %w", sessionID, chat.ErrStoreUnavailable, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		engine:    e,
		sessionID: sessionID,
		onMessage: onMessage,
		onError:   onError,
		events:    make(chan models.Message, pushBuffer),
		cancel:    cancel,
		stopped:   make(chan struct{}),
		log:       e.log.With().Str("session", sessionID).Logger(),
	}
	if since != nil {
		c := *since
		s.cursor = c
		s.delivered.Store(&c)
	}

	// Join the feed before the backfill so nothing inserted in between is
	// missed; early pushes are deduplicated by cursor.
	if e.feed == nil {
		s.log.Warn().Msg("no change feed configured, polling only")
	} else {
		handle, err := e.feed.Subscribe(sessionID, s.enqueue)
		if err != nil {
			s.log.Warn().Err(err).Msg("change feed unavailable, polling only")
		} else {
			s.handle = handle
		}
	}

	if err := s.Reconcile(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("syncengine: subscribe backfill: %w", err)
	}

	go s.run(loopCtx)
	return s, nil
}
