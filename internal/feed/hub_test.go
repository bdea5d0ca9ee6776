package feed

import (
	"errors"
	"slices"
	"testing"

	"github.com/rs/zerolog"
	"github.com/zulandar/livedesk/internal/chat"
	"github.com/zulandar/livedesk/internal/models"
)

func event(session string, seq uint64) chat.FeedEvent {
	return chat.FeedEvent{SessionID: session, Message: models.Message{ID: uint(seq), SessionID: session, Seq: seq}}
}

func TestHub_PublishRoutesByTopic(t *testing.T) {
	h := NewHub(HubOpts{Log: zerolog.Nop()})

	var a, b []uint64
	if _, err := h.Subscribe("s-a", func(e chat.FeedEvent) { a = append(a, e.Message.Seq) }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := h.Subscribe("s-b", func(e chat.FeedEvent) { b = append(b, e.Message.Seq) }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	h.Publish(event("s-a", 1))
	h.Publish(event("s-b", 7))
	h.Publish(event("s-a", 2))
	h.Publish(event("s-c", 9))

	if !slices.Equal(a, []uint64{1, 2}) {
		t.Errorf("topic s-a got %v, want [1 2]", a)
	}
	if !slices.Equal(b, []uint64{7}) {
		t.Errorf("topic s-b got %v, want [7]", b)
	}
}

func TestHub_MultipleSubscribersSameTopic(t *testing.T) {
	h := NewHub(HubOpts{})
	count := 0
	for i := 0; i < 3; i++ {
		if _, err := h.Subscribe("s-a", func(chat.FeedEvent) { count++ }); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}
	if got := h.Subscribers("s-a"); got != 3 {
		t.Errorf("Subscribers = %d, want 3", got)
	}

	h.Publish(event("s-a", 1))
	if count != 3 {
		t.Errorf("callbacks run = %d, want 3", count)
	}
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	h := NewHub(HubOpts{})
	got := 0
	hd, err := h.Subscribe("s-a", func(chat.FeedEvent) { got++ })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	hd.Unsubscribe()
	hd.Unsubscribe()
	h.Publish(event("s-a", 1))

	if got != 0 {
		t.Errorf("callback ran %d times after unsubscribe", got)
	}
	if n := h.Subscribers("s-a"); n != 0 {
		t.Errorf("Subscribers = %d, want 0", n)
	}
}

func TestHub_ClosedRejectsSubscribers(t *testing.T) {
	h := NewHub(HubOpts{})
	got := 0
	if _, err := h.Subscribe("s-a", func(chat.FeedEvent) { got++ }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	h.Close()
	h.Publish(event("s-a", 1))
	if got != 0 {
		t.Errorf("callback ran %d times after close", got)
	}

	_, err := h.Subscribe("s-a", func(chat.FeedEvent) {})
	if !errors.Is(err, chat.ErrFeedUnavailable) {
		t.Errorf("Subscribe after close: err = %v, want ErrFeedUnavailable", err)
	}
}

func TestHub_SubscribeRequiresCallback(t *testing.T) {
	if _, err := NewHub(HubOpts{}).Subscribe("s-a", nil); err == nil {
		t.Error("expected error for nil callback")
	}
}
