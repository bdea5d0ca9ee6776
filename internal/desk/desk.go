// Package desk is the surface the visitor page, the agent dashboard, the
// HTTP API and the CLI all drive: one object wiring stores, lifecycle, sync
// engine, roster and notifications together.
package desk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/livedesk/internal/chat"
	"github.com/zulandar/livedesk/internal/config"
	"github.com/zulandar/livedesk/internal/feed"
	"github.com/zulandar/livedesk/internal/lifecycle"
	"github.com/zulandar/livedesk/internal/models"
	"github.com/zulandar/livedesk/internal/notify"
	"github.com/zulandar/livedesk/internal/roster"
	"github.com/zulandar/livedesk/internal/store"
	"github.com/zulandar/livedesk/internal/syncengine"
	"gorm.io/gorm"
)

const notifyTimeout = 10 * time.Second

// Desk coordinates every presentation-facing operation.
type Desk struct {
	sessions  chat.SessionStore
	lifecycle *lifecycle.Lifecycle
	engine    *syncengine.Engine
	roster    *roster.Roster
	notifier  notify.Notifier
	hub       *feed.Hub
	log       zerolog.Logger

	mu   sync.Mutex
	subs map[string]map[*syncengine.Subscription]struct{}

	notifying sync.WaitGroup
}

// Opts holds parameters for creating a Desk. Notifier and Hub are optional.
type Opts struct {
	Sessions  chat.SessionStore
	Lifecycle *lifecycle.Lifecycle
	Engine    *syncengine.Engine
	Roster    *roster.Roster
	Notifier  notify.Notifier
	Hub       *feed.Hub
	Log       zerolog.Logger
}

// New creates a Desk from already-built components.
func New(opts Opts) (*Desk, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("desk: sessions store is required")
	}
	if opts.Lifecycle == nil {
		return nil, fmt.Errorf("desk: lifecycle is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("desk: engine is required")
	}
	if opts.Roster == nil {
		return nil, fmt.Errorf("desk: roster is required")
	}
	return &Desk{
		sessions:  opts.Sessions,
		lifecycle: opts.Lifecycle,
		engine:    opts.Engine,
		roster:    opts.Roster,
		notifier:  opts.Notifier,
		hub:       opts.Hub,
		log:       opts.Log,
		subs:      make(map[string]map[*syncengine.Subscription]struct{}),
	}, nil
}

// FromConfig wires a Desk over an open database: gorm stores, the
// in-process change feed (unless disabled), lifecycle, engine, roster and
// the configured notifiers.
func FromConfig(gormDB *gorm.DB, cfg *config.Config, log zerolog.Logger) (*Desk, error) {
	sessions := store.NewSessions(gormDB)

	var (
		hub     *feed.Hub
		publish func(chat.FeedEvent)
		changes chat.ChangeFeed
	)
	if cfg.Sync.FeedEnabled() {
		hub = feed.NewHub(feed.HubOpts{Log: log.With().Str("component", "feed").Logger()})
		publish = hub.Publish
		changes = hub
	}
	messages := store.NewMessages(store.MessagesOpts{DB: gormDB, Publish: publish})

	lc, err := lifecycle.New(lifecycle.Opts{
		Sessions: sessions,
		Policy:   lifecycle.Policy(cfg.Sync.Activation),
		Log:      log.With().Str("component", "lifecycle").Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("desk: %w", err)
	}

	engine, err := syncengine.New(syncengine.Opts{
		Sessions:          sessions,
		Messages:          messages,
		Feed:              changes,
		Activator:         lc,
		Log:               log.With().Str("component", "sync").Logger(),
		ReconcileInterval: cfg.Sync.ReconcileInterval,
		SendTimeout:       cfg.Sync.SendTimeout,
		EchoWindow:        cfg.Sync.EchoWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("desk: %w", err)
	}

	r, err := roster.New(roster.Opts{
		Sessions: sessions,
		Interval: cfg.Sync.RosterInterval,
		Log:      log.With().Str("component", "roster").Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("desk: %w", err)
	}

	notifier, err := notify.FromConfig(cfg.Notify, log.With().Str("component", "notify").Logger())
	if err != nil {
		return nil, fmt.Errorf("desk: %w", err)
	}

	return New(Opts{
		Sessions:  sessions,
		Lifecycle: lc,
		Engine:    engine,
		Roster:    r,
		Notifier:  notifier,
		Hub:       hub,
		Log:       log,
	})
}

// Start begins periodic roster refresh until ctx is cancelled.
func (d *Desk) Start(ctx context.Context) error {
	if err := d.roster.Start(ctx); err != nil {
		return fmt.Errorf("desk: start roster: %w", err)
	}
	return nil
}

// Close ends every subscription the desk opened, stops the roster and waits
// for outstanding notifications.
func (d *Desk) Close() {
	d.mu.Lock()
	var all []*syncengine.Subscription
	for _, set := range d.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	d.subs = make(map[string]map[*syncengine.Subscription]struct{})
	d.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
	d.roster.Stop()
	if d.hub != nil {
		d.hub.Close()
	}
	d.notifying.Wait()
}

// Roster returns the agent dashboard's session list.
func (d *Desk) Roster() *roster.Roster { return d.roster }

// Engine returns the sync engine.
func (d *Desk) Engine() *syncengine.Engine { return d.engine }

// CreateSession starts a waiting session for a visitor and alerts agents.
func (d *Desk) CreateSession(ctx context.Context, name, contact string) (*models.Session, error) {
	sess, err := d.lifecycle.Create(ctx, name, contact)
	if err != nil {
		return nil, err
	}
	d.roster.Upsert(*sess)
	d.notify(notify.Event{
		Kind:      notify.KindSessionCreated,
		SessionID: sess.ID,
		Name:      sess.Name,
		Contact:   sess.Contact,
		At:        sess.CreatedAt,
	})
	return sess, nil
}

// Session returns one session.
func (d *Desk) Session(ctx context.Context, id string) (*models.Session, error) {
	sess, err := d.sessions.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("desk: %w", err)
	}
	return sess, nil
}

// ListSessions returns every session, newest created first, straight from
// the store.
func (d *Desk) ListSessions(ctx context.Context) ([]models.Session, error) {
	list, err := d.sessions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("desk: list sessions: %w: %w", chat.ErrStoreUnavailable, err)
	}
	return list, nil
}

// Permitted lists the lifecycle actions a session accepts.
func (d *Desk) Permitted(ctx context.Context, id string) ([]lifecycle.Action, error) {
	return d.lifecycle.Permitted(ctx, id)
}

// OpenSession subscribes a viewer to a session's messages. See
// syncengine.Engine.Subscribe for delivery guarantees.
func (d *Desk) OpenSession(ctx context.Context, sessionID string, since *models.Cursor,
	onMessage func(models.Message), onError func(error)) (*syncengine.Subscription, error) {
	sub, err := d.engine.Subscribe(ctx, sessionID, since, onMessage, onError)
	if err != nil {
		return nil, err
	}
	d.track(sub)
	return sub, nil
}

// OpenView opens an optimistic transcript for a viewer.
func (d *Desk) OpenView(ctx context.Context, sessionID string, role models.Role, senderID string,
	onChange func([]syncengine.Entry)) (*syncengine.View, error) {
	v, err := d.engine.OpenView(ctx, sessionID, role, senderID, onChange)
	if err != nil {
		return nil, err
	}
	d.track(v.Subscription())
	return v, nil
}

// CloseSubscription ends a subscription opened through the desk.
func (d *Desk) CloseSubscription(sub *syncengine.Subscription) {
	if sub == nil {
		return
	}
	d.untrack(sub)
	sub.Close()
}

// SendMessage stores a message and updates the roster. Visitor messages
// alert agents.
func (d *Desk) SendMessage(ctx context.Context, req syncengine.SendRequest) (*models.Message, error) {
	msg, err := d.engine.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	d.roster.Touch(msg.SessionID, msg.CreatedAt)

	switch req.Role {
	case models.RoleAgent:
		if d.lifecycle.Policy() == lifecycle.PolicyFirstAgentMessage {
			d.roster.MarkActive(msg.SessionID)
		}
	case models.RoleVisitor:
		sess, err := d.sessions.Get(ctx, msg.SessionID)
		if err != nil {
			d.log.Warn().Err(err).Str("session", msg.SessionID).Msg("load session for notification")
			break
		}
		d.notify(notify.Event{
			Kind:      notify.KindVisitorMessage,
			SessionID: sess.ID,
			Name:      sess.Name,
			Contact:   sess.Contact,
			Body:      msg.Body,
			At:        msg.CreatedAt,
		})
	}
	return msg, nil
}

// ActivateSession marks a session active on an agent's explicit
// assignment.
func (d *Desk) ActivateSession(ctx context.Context, id, agentID string) error {
	if err := d.lifecycle.MarkActive(ctx, id, agentID); err != nil {
		return err
	}
	d.roster.MarkActive(id)
	return nil
}

// CloseSession closes a session and ends every subscription the desk holds
// on it.
func (d *Desk) CloseSession(ctx context.Context, id string) error {
	if err := d.lifecycle.Close(ctx, id); err != nil {
		return err
	}
	d.roster.MarkClosed(id)

	d.mu.Lock()
	set := d.subs[id]
	delete(d.subs, id)
	d.mu.Unlock()
	for s := range set {
		s.Close()
	}
	d.log.Info().Str("session", id).Int("subscriptions", len(set)).Msg("session closed")
	return nil
}

func (d *Desk) track(sub *syncengine.Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.subs[sub.SessionID()]
	if !ok {
		set = make(map[*syncengine.Subscription]struct{})
		d.subs[sub.SessionID()] = set
	}
	set[sub] = struct{}{}

	go func() {
		<-sub.Done()
		d.untrack(sub)
	}()
}

func (d *Desk) untrack(sub *syncengine.Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if set, ok := d.subs[sub.SessionID()]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(d.subs, sub.SessionID())
		}
	}
}

// Subscriptions returns the number of open subscriptions on a session.
func (d *Desk) Subscriptions(sessionID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs[sessionID])
}

// notify delivers e in the background; failures are logged by the notifier.
func (d *Desk) notify(e notify.Event) {
	if d.notifier == nil {
		return
	}
	d.notifying.Add(1)
	go func() {
		defer d.notifying.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := d.notifier.Notify(ctx, e); err != nil {
			d.log.Debug().Err(err).Str("session", e.SessionID).Msg("notify")
		}
	}()
}
