// Package notify alerts agents about new sessions and visitor messages
// through a desktop command, Slack and Discord. Delivery is best-effort.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/livedesk/internal/config"
)

// Kind identifies what happened.
type Kind string

const (
	KindSessionCreated Kind = "session_created"
	KindVisitorMessage Kind = "visitor_message"
)

// Event is one agent alert.
type Event struct {
	Kind      Kind
	SessionID string
	Name      string
	Contact   string
	Body      string
	At        time.Time
}

// Title is a one-line headline for the event.
func (e Event) Title() string {
	switch e.Kind {
	case KindSessionCreated:
		return "New visitor waiting: " + e.Name
	case KindVisitorMessage:
		return "Message from " + e.Name
	}
	return string(e.Kind)
}

// Text is the event detail; the message body, or the contact for a new
// session.
func (e Event) Text() string {
	if e.Kind == KindSessionCreated {
		return e.Contact
	}
	return e.Body
}

// Notifier delivers an Event to one destination.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Multi fans an event out to every notifier.
type Multi struct {
	notifiers []Notifier
	log       zerolog.Logger
}

// NewMulti creates a Multi over ns.
func NewMulti(log zerolog.Logger, ns ...Notifier) *Multi {
	return &Multi{notifiers: ns, log: log}
}

// Len returns the number of destinations.
func (m *Multi) Len() int { return len(m.notifiers) }

// Notify delivers to every destination, logging and collecting failures.
func (m *Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, e); err != nil {
			m.log.Warn().Err(err).Str("session", e.SessionID).Str("kind", string(e.Kind)).Msg("notification failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds a Multi for every destination the config enables.
func FromConfig(cfg config.NotifyConfig, log zerolog.Logger) (*Multi, error) {
	var ns []Notifier
	if cfg.Command != "" {
		ns = append(ns, NewCommand(cfg.Command, log))
	}
	if cfg.Slack.Enabled() {
		s, err := NewSlack(SlackOpts{BotToken: cfg.Slack.BotToken, ChannelID: cfg.Slack.ChannelID})
		if err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
		ns = append(ns, s)
	}
	if cfg.Discord.Enabled() {
		d, err := NewDiscord(DiscordOpts{BotToken: cfg.Discord.BotToken, ChannelID: cfg.Discord.ChannelID})
		if err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
		ns = append(ns, d)
	}
	return NewMulti(log, ns...), nil
}
