package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/livedesk/internal/chat"
	"github.com/zulandar/livedesk/internal/db"
	"github.com/zulandar/livedesk/internal/models"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := db.ConnectSQLite(":memory:")
	if err != nil {
		t.Fatalf("ConnectSQLite: %v", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return gormDB
}

func createSession(t *testing.T, s *Sessions, name string) *models.Session {
	t.Helper()
	sess, err := s.Create(context.Background(), name, name+"@x.com")
	if err != nil {
		t.Fatalf("Create(%s): %v", name, err)
	}
	return sess
}

func appendBody(t *testing.T, m *Messages, sessionID string, role models.Role, body string) *models.Message {
	t.Helper()
	msg, err := m.Append(context.Background(), chat.NewMessage{SessionID: sessionID, Role: role, Body: body})
	if err != nil {
		t.Fatalf("Append(%q): %v", body, err)
	}
	return msg
}

// fixedClock returns a clock that yields the given instants in order and
// then repeats the last one.
func fixedClock(times ...time.Time) func() time.Time {
	var mu sync.Mutex
	i := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
}

var base = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func TestSessions_CreateGetList(t *testing.T) {
	ctx := context.Background()
	s := NewSessions(testDB(t))
	s.now = fixedClock(base, base.Add(time.Second), base.Add(2*time.Second))

	jane := createSession(t, s, "Jane")
	if jane.ID == "" {
		t.Error("expected generated session id")
	}
	if jane.Status != models.StatusWaiting {
		t.Errorf("Status = %q, want waiting", jane.Status)
	}
	bob := createSession(t, s, "Bob")

	got, err := s.Get(ctx, jane.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Jane" || got.Contact != "Jane@x.com" {
		t.Errorf("Get = %s/%s, want Jane/Jane@x.com", got.Name, got.Contact)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List returned %d sessions, want 2", len(list))
	}
	if list[0].ID != bob.ID || list[1].ID != jane.ID {
		t.Errorf("List order = [%s %s], want newest first [%s %s]", list[0].ID, list[1].ID, bob.ID, jane.ID)
	}
}

func TestSessions_GetUnknown(t *testing.T) {
	_, err := NewSessions(testDB(t)).Get(context.Background(), "missing")
	if !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSessions_SetStatus(t *testing.T) {
	ctx := context.Background()
	s := NewSessions(testDB(t))
	sess := createSession(t, s, "Jane")

	if err := s.SetStatus(ctx, sess.ID, models.StatusActive); err != nil {
		t.Fatalf("SetStatus(active): %v", err)
	}
	if got, _ := s.Get(ctx, sess.ID); got.Status != models.StatusActive {
		t.Errorf("Status = %q, want active", got.Status)
	}

	if err := s.SetStatus(ctx, sess.ID, models.StatusClosed); err != nil {
		t.Fatalf("SetStatus(closed): %v", err)
	}
	if err := s.SetStatus(ctx, sess.ID, models.StatusClosed); err != nil {
		t.Errorf("closing twice: %v", err)
	}

	for _, st := range []models.Status{models.StatusWaiting, models.StatusActive} {
		if err := s.SetStatus(ctx, sess.ID, st); !errors.Is(err, chat.ErrInvalidTransition) {
			t.Errorf("SetStatus(%s) on closed: err = %v, want ErrInvalidTransition", st, err)
		}
	}
	if got, _ := s.Get(ctx, sess.ID); got.Status != models.StatusClosed {
		t.Errorf("Status = %q, want closed", got.Status)
	}

	if err := s.SetStatus(ctx, "missing", models.StatusClosed); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("unknown session: err = %v, want ErrNotFound", err)
	}
	if err := s.SetStatus(ctx, sess.ID, models.Status("paused")); !errors.Is(err, chat.ErrValidation) {
		t.Errorf("unknown status: err = %v, want ErrValidation", err)
	}
}

func TestSessions_Assign(t *testing.T) {
	ctx := context.Background()
	s := NewSessions(testDB(t))
	sess := createSession(t, s, "Jane")

	if err := s.Assign(ctx, sess.ID, "agent-7"); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if got, _ := s.Get(ctx, sess.ID); got.AssignedAgent != "agent-7" {
		t.Errorf("AssignedAgent = %q, want agent-7", got.AssignedAgent)
	}
	if err := s.Assign(ctx, "missing", "agent-7"); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("unknown session: err = %v, want ErrNotFound", err)
	}
}

func TestMessages_AppendAssignsSeqAndPublishes(t *testing.T) {
	gormDB := testDB(t)
	sess := createSession(t, NewSessions(gormDB), "Jane")

	var events []chat.FeedEvent
	m := NewMessages(MessagesOpts{DB: gormDB, Publish: func(e chat.FeedEvent) { events = append(events, e) }})
	m.now = fixedClock(base, base.Add(time.Second))

	hi := appendBody(t, m, sess.ID, models.RoleVisitor, "Hi")
	there := appendBody(t, m, sess.ID, models.RoleVisitor, "There")

	if hi.Seq != 1 || there.Seq != 2 {
		t.Errorf("seqs = %d, %d, want 1, 2", hi.Seq, there.Seq)
	}
	if hi.CorrelationID == "" {
		t.Error("expected a generated correlation id")
	}
	if !there.Cursor().After(hi.Cursor()) {
		t.Errorf("cursor %s not after %s", there.Cursor(), hi.Cursor())
	}

	if len(events) != 2 {
		t.Fatalf("published %d events, want 2", len(events))
	}
	if events[0].SessionID != sess.ID {
		t.Errorf("event session = %q, want %q", events[0].SessionID, sess.ID)
	}
	if events[0].Message.Body != "Hi" || events[1].Message.Body != "There" {
		t.Errorf("event bodies = %q, %q, want Hi, There", events[0].Message.Body, events[1].Message.Body)
	}
}

func TestMessages_ClockSkewKeepsOrder(t *testing.T) {
	ctx := context.Background()
	gormDB := testDB(t)
	sess := createSession(t, NewSessions(gormDB), "Jane")

	m := NewMessages(MessagesOpts{DB: gormDB})
	m.now = fixedClock(base.Add(time.Minute), base)

	first := appendBody(t, m, sess.ID, models.RoleAgent, "first")
	second := appendBody(t, m, sess.ID, models.RoleAgent, "second")

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("second.CreatedAt = %v, want clamped to %v", second.CreatedAt, first.CreatedAt)
	}
	if !second.Cursor().After(first.Cursor()) {
		t.Error("id should break the timestamp tie")
	}

	msgs, err := m.Query(ctx, sess.ID, models.Cursor{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Body != "first" || msgs[1].Body != "second" {
		t.Errorf("Query = %+v, want first then second", msgs)
	}
}

func TestMessages_CorrelationIDIsIdempotent(t *testing.T) {
	ctx := context.Background()
	gormDB := testDB(t)
	sessions := NewSessions(gormDB)
	sess := createSession(t, sessions, "Jane")

	published := 0
	m := NewMessages(MessagesOpts{DB: gormDB, Publish: func(chat.FeedEvent) { published++ }})

	in := chat.NewMessage{SessionID: sess.ID, Role: models.RoleVisitor, Body: "Hi", CorrelationID: "corr-1"}
	a, err := m.Append(ctx, in)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	b, err := m.Append(ctx, in)
	if err != nil {
		t.Fatalf("Append retry: %v", err)
	}
	if a.ID != b.ID {
		t.Errorf("retry stored a new message: ids %d and %d", a.ID, b.ID)
	}
	if published != 1 {
		t.Errorf("published %d events, want 1", published)
	}

	msgs, err := m.Query(ctx, sess.ID, models.Cursor{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("Query returned %d messages, want 1", len(msgs))
	}

	other := createSession(t, sessions, "Bob")
	_, err = m.Append(ctx, chat.NewMessage{SessionID: other.ID, Role: models.RoleVisitor, Body: "Hi", CorrelationID: "corr-1"})
	if !errors.Is(err, chat.ErrValidation) {
		t.Errorf("correlation id reused across sessions: err = %v, want ErrValidation", err)
	}
}

func TestMessages_AppendUnknownSession(t *testing.T) {
	m := NewMessages(MessagesOpts{DB: testDB(t)})
	_, err := m.Append(context.Background(), chat.NewMessage{SessionID: "missing", Role: models.RoleVisitor, Body: "Hi"})
	if !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMessages_QueryAfterCursor(t *testing.T) {
	ctx := context.Background()
	gormDB := testDB(t)
	sessions := NewSessions(gormDB)
	sess := createSession(t, sessions, "Jane")
	other := createSession(t, sessions, "Bob")

	m := NewMessages(MessagesOpts{DB: gormDB})
	// Same timestamp for every message: ordering falls back to id.
	m.now = fixedClock(base)

	var appended []*models.Message
	for _, body := range []string{"a", "b", "c", "d"} {
		appended = append(appended, appendBody(t, m, sess.ID, models.RoleVisitor, body))
	}
	appendBody(t, m, other.ID, models.RoleVisitor, "elsewhere")

	all, err := m.Query(ctx, sess.ID, models.Cursor{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("Query returned %d messages, want 4", len(all))
	}

	rest, err := m.Query(ctx, sess.ID, appended[1].Cursor())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rest) != 2 || rest[0].Body != "c" || rest[1].Body != "d" {
		t.Errorf("Query after b = %+v, want c, d", rest)
	}

	none, err := m.Query(ctx, sess.ID, appended[3].Cursor())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Query after last returned %d messages, want 0", len(none))
	}
}
