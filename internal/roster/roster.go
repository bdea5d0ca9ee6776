// Package roster keeps the agent dashboard's list of sessions: a periodic
// snapshot of the session store overlaid with the agent's own pending
// actions until the store reflects them.
package roster

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/zulandar/livedesk/internal/chat"
	"github.com/zulandar/livedesk/internal/models"
)

// DefaultInterval is the refresh period when none is configured.
const DefaultInterval = 3 * time.Second

// Item is one roster row.
type Item struct {
	models.Session
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
}

// Roster is safe for concurrent use.
type Roster struct {
	sessions chat.SessionStore
	interval time.Duration
	onChange func([]Item)
	log      zerolog.Logger

	mu        sync.Mutex
	items     []Item
	overrides map[string]models.Status
	touched   map[string]time.Time

	cron *cron.Cron
}

// Opts holds parameters for creating a Roster.
type Opts struct {
	Sessions chat.SessionStore
	Interval time.Duration
	OnChange func([]Item)
	Log      zerolog.Logger
}

// New creates a Roster. Call Start to begin periodic refresh.
func New(opts Opts) (*Roster, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("roster: sessions store is required")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Roster{
		sessions:  opts.Sessions,
		interval:  interval,
		onChange:  opts.OnChange,
		log:       opts.Log,
		overrides: make(map[string]models.Status),
		touched:   make(map[string]time.Time),
	}, nil
}

// Start loads the roster once and schedules a refresh every interval until
// ctx is cancelled or Stop is called. Overlapping refreshes are skipped.
func (r *Roster) Start(ctx context.Context) error {
	if err := r.Refresh(ctx); err != nil {
		return err
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	spec := "@every " + r.interval.String()
	if _, err := c.AddFunc(spec, func() {
		if err := r.Refresh(ctx); err != nil {
			r.log.Warn().Err(err).Msg("roster refresh failed")
		}
	}); err != nil {
		return fmt.Errorf("roster: schedule %q: %w", spec, err)
	}

	r.mu.Lock()
	r.cron = c
	r.mu.Unlock()
	c.Start()

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Stop halts periodic refresh and waits for a running one to finish.
func (r *Roster) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Refresh replaces the snapshot with the store's session list. Optimistic
// statuses that are still ahead of the store are kept; the rest are dropped.
func (r *Roster) Refresh(ctx context.Context) error {
	list, err := r.sessions.List(ctx)
	if err != nil {
		return fmt.Errorf("roster: refresh: %w: %w", chat.ErrStoreUnavailable, err)
	}

	r.mu.Lock()
	items := make([]Item, 0, len(list))
	for _, s := range list {
		if ov, ok := r.overrides[s.ID]; ok {
			if ov.Rank() > s.Status.Rank() {
				s.Status = ov
			} else {
				delete(r.overrides, s.ID)
			}
		}
		items = append(items, Item{Session: s, LastMessageAt: r.touched[s.ID]})
	}
	sortItems(items)
	r.items = items
	snap := r.snapshot()
	r.mu.Unlock()

	r.log.Debug().Int("sessions", len(items)).Msg("roster refreshed")
	r.changed(snap)
	return nil
}

// MarkActive shows a session as active ahead of the store.
func (r *Roster) MarkActive(id string) { r.override(id, models.StatusActive) }

// MarkClosed shows a session as closed ahead of the store.
func (r *Roster) MarkClosed(id string) { r.override(id, models.StatusClosed) }

// Touch records the time of the latest message in a session.
func (r *Roster) Touch(id string, at time.Time) {
	r.mu.Lock()
	if prev, ok := r.touched[id]; ok && !at.After(prev) {
		r.mu.Unlock()
		return
	}
	r.touched[id] = at
	for i := range r.items {
		if r.items[i].ID == id {
			r.items[i].LastMessageAt = at
		}
	}
	snap := r.snapshot()
	r.mu.Unlock()
	r.changed(snap)
}

// Upsert adds or replaces a session without waiting for the next refresh.
func (r *Roster) Upsert(s models.Session) {
	r.mu.Lock()
	if ov, ok := r.overrides[s.ID]; ok && ov.Rank() > s.Status.Rank() {
		s.Status = ov
	}
	replaced := false
	for i := range r.items {
		if r.items[i].ID == s.ID {
			r.items[i].Session = s
			replaced = true
		}
	}
	if !replaced {
		r.items = append(r.items, Item{Session: s, LastMessageAt: r.touched[s.ID]})
	}
	sortItems(r.items)
	snap := r.snapshot()
	r.mu.Unlock()
	r.changed(snap)
}

// Sessions returns a copy of the roster, newest created first.
func (r *Roster) Sessions() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Get returns one roster row.
func (r *Roster) Get(id string) (Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// Counts returns the number of sessions in each status.
func (r *Roster) Counts() map[models.Status]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[models.Status]int{
		models.StatusWaiting: 0,
		models.StatusActive:  0,
		models.StatusClosed:  0,
	}
	for _, it := range r.items {
		counts[it.Status]++
	}
	return counts
}

func (r *Roster) override(id string, status models.Status) {
	r.mu.Lock()
	if cur, ok := r.overrides[id]; ok && cur.Rank() >= status.Rank() {
		r.mu.Unlock()
		return
	}
	r.overrides[id] = status
	for i := range r.items {
		if r.items[i].ID == id && r.items[i].Status.Rank() < status.Rank() {
			r.items[i].Status = status
		}
	}
	snap := r.snapshot()
	r.mu.Unlock()
	r.changed(snap)
}

func (r *Roster) snapshot() []Item {
	out := make([]Item, len(r.items))
	copy(out, r.items)
	return out
}

func (r *Roster) changed(snap []Item) {
	if r.onChange != nil {
		r.onChange(snap)
	}
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
}
