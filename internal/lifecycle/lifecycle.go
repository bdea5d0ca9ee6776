// Package lifecycle enforces visitor session status transitions:
// waiting -> active -> closed, with closed terminal.
package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/qmuntal/stateless"
	"github.com/rs/zerolog"
	"github.com/zulandar/livedesk/internal/chat"
	"github.com/zulandar/livedesk/internal/models"
)

// Action is a lifecycle trigger.
type Action string

const (
	ActionActivate Action = "activate"
	ActionClose    Action = "close"
)

// Policy decides when a waiting session becomes active.
type Policy string

const (
	// PolicyFirstAgentMessage activates on the first agent message as well as
	// on explicit assignment.
	PolicyFirstAgentMessage Policy = "first_agent_message"
	// PolicyExplicit activates only through MarkActive.
	PolicyExplicit Policy = "explicit"
)

// Lifecycle applies status transitions against a SessionStore.
type Lifecycle struct {
	sessions chat.SessionStore
	policy   Policy
	log      zerolog.Logger
}

// Opts holds parameters for creating a Lifecycle.
type Opts struct {
	Sessions chat.SessionStore
	Policy   Policy // defaults to PolicyFirstAgentMessage
	Log      zerolog.Logger
}

// New creates a Lifecycle.
func New(opts Opts) (*Lifecycle, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("lifecycle: sessions store is required")
	}
	policy := opts.Policy
	switch policy {
	case "":
		policy = PolicyFirstAgentMessage
	case PolicyFirstAgentMessage, PolicyExplicit:
	default:
		return nil, fmt.Errorf("lifecycle: unknown activation policy %q", policy)
	}
	return &Lifecycle{sessions: opts.Sessions, policy: policy, log: opts.Log}, nil
}

// Policy returns the configured activation policy.
func (l *Lifecycle) Policy() Policy { return l.policy }

// Create starts a waiting session. Name and contact are trimmed and must not
// be empty.
func (l *Lifecycle) Create(ctx context.Context, name, contact string) (*models.Session, error) {
	name = strings.TrimSpace(name)
	contact = strings.TrimSpace(contact)
	if name == "" {
		return nil, fmt.Errorf("lifecycle: name is required: %w", chat.ErrValidation)
	}
	if contact == "" {
		return nil, fmt.Errorf("lifecycle: contact is required: %w", chat.ErrValidation)
	}
	sess, err := l.sessions.Create(ctx, name, contact)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: create: %w", err)
	}
	l.log.Info().Str("session", sess.ID).Msg("session created")
	return sess, nil
}

// Status returns the current status of a session.
func (l *Lifecycle) Status(ctx context.Context, id string) (models.Status, error) {
	sess, err := l.sessions.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("lifecycle: %w", err)
	}
	return sess.Status, nil
}

// MarkActive moves a waiting session to active. It is a no-op on an active
// session and fails with chat.ErrInvalidTransition on a closed one. A
// non-empty agentID is recorded as the assigned agent only when the session
// actually moves; an active session keeps the agent it has.
func (l *Lifecycle) MarkActive(ctx context.Context, id, agentID string) error {
	from, err := l.fire(ctx, id, ActionActivate)
	if err != nil {
		return err
	}
	if agentID != "" && from == models.StatusWaiting {
		if err := l.sessions.Assign(ctx, id, agentID); err != nil {
			return fmt.Errorf("lifecycle: assign: %w", err)
		}
	}
	return nil
}

// Close moves a waiting or active session to closed. Idempotent.
func (l *Lifecycle) Close(ctx context.Context, id string) error {
	_, err := l.fire(ctx, id, ActionClose)
	return err
}

// OnAgentMessage applies the activation policy after an agent message was
// stored. Closed sessions are left alone.
func (l *Lifecycle) OnAgentMessage(ctx context.Context, id, agentID string) error {
	if l.policy != PolicyFirstAgentMessage {
		return nil
	}
	sess, err := l.sessions.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("lifecycle: %w", err)
	}
	if sess.Status != models.StatusWaiting {
		return nil
	}
	return l.MarkActive(ctx, id, agentID)
}

// Permitted lists the actions a session currently accepts without error,
// including idempotent no-ops.
func (l *Lifecycle) Permitted(ctx context.Context, id string) ([]Action, error) {
	sm, err := l.machine(ctx, id)
	if err != nil {
		return nil, err
	}
	triggers, err := sm.PermittedTriggersCtx(ctx)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: permitted: %w", err)
	}
	actions := make([]Action, 0, len(triggers))
	for _, t := range triggers {
		actions = append(actions, t.(Action))
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions, nil
}

// fire applies action and returns the status the session had before it.
func (l *Lifecycle) fire(ctx context.Context, id string, action Action) (models.Status, error) {
	sm, err := l.machine(ctx, id)
	if err != nil {
		return "", err
	}
	state, err := sm.State(ctx)
	if err != nil {
		return "", fmt.Errorf("lifecycle: %s %s: %w", action, id, err)
	}
	from := state.(models.Status)
	ok, err := sm.CanFireCtx(ctx, action)
	if err != nil {
		return from, fmt.Errorf("lifecycle: %s %s: %w", action, id, err)
	}
	if !ok {
		return from, fmt.Errorf("lifecycle: cannot %s session %s in status %v: %w", action, id, from, chat.ErrInvalidTransition)
	}
	if err := sm.FireCtx(ctx, action); err != nil {
		return from, fmt.Errorf("lifecycle: %s %s: %w", action, id, err)
	}
	return from, nil
}

// machine builds a state machine whose state lives in the session store.
// The loaded status is cached for the machine's lifetime; writes go through
// SetStatus, which independently refuses to reopen a closed session.
func (l *Lifecycle) machine(ctx context.Context, id string) (*stateless.StateMachine, error) {
	sess, err := l.sessions.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: %w", err)
	}
	current := sess.Status

	sm := stateless.NewStateMachineWithExternalStorage(
		func(_ context.Context) (stateless.State, error) {
			return current, nil
		},
		func(ctx context.Context, s stateless.State) error {
			next := s.(models.Status)
			if err := l.sessions.SetStatus(ctx, id, next); err != nil {
				return err
			}
			l.log.Info().Str("session", id).Str("from", string(current)).Str("to", string(next)).Msg("session status changed")
			current = next
			return nil
		},
		stateless.FiringImmediate,
	)

	sm.Configure(models.StatusWaiting).
		Permit(ActionActivate, models.StatusActive).
		Permit(ActionClose, models.StatusClosed)

	sm.Configure(models.StatusActive).
		Ignore(ActionActivate).
		Permit(ActionClose, models.StatusClosed)

	sm.Configure(models.StatusClosed).
		Ignore(ActionClose)

	return sm, nil
}
