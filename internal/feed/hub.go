// Package feed provides an in-process ChangeFeed: a topic-keyed fan-out of
// message insert notifications published by the store.
package feed

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/zulandar/livedesk/internal/chat"
)

// Hub fans FeedEvents out to subscribers of the event's session topic.
// Callbacks run on the publisher's goroutine and must not block.
type Hub struct {
	log zerolog.Logger

	mu     sync.RWMutex
	topics map[string]map[uint64]func(chat.FeedEvent)
	nextID uint64
	closed bool
}

// HubOpts holds parameters for creating a Hub.
type HubOpts struct {
	Log zerolog.Logger
}

// NewHub creates an open Hub.
func NewHub(opts HubOpts) *Hub {
	return &Hub{
		log:    opts.Log,
		topics: make(map[string]map[uint64]func(chat.FeedEvent)),
	}
}

// Subscribe registers onEvent for topic. Fails with chat.ErrFeedUnavailable
// once the hub is closed.
func (h *Hub) Subscribe(topic string, onEvent func(chat.FeedEvent)) (chat.FeedHandle, error) {
	if onEvent == nil {
		return nil, fmt.Errorf("feed: onEvent is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, fmt.Errorf("feed: subscribe %s: %w", topic, chat.ErrFeedUnavailable)
	}
	h.nextID++
	id := h.nextID
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[uint64]func(chat.FeedEvent))
		h.topics[topic] = subs
	}
	subs[id] = onEvent
	return &handle{hub: h, topic: topic, id: id}, nil
}

// Publish delivers e to every current subscriber of e.SessionID.
func (h *Hub) Publish(e chat.FeedEvent) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	subs := h.topics[e.SessionID]
	callbacks := make([]func(chat.FeedEvent), 0, len(subs))
	for _, cb := range subs {
		callbacks = append(callbacks, cb)
	}
	h.mu.RUnlock()

	for _, cb := range callbacks {
		cb(e)
	}
	h.log.Debug().Str("session", e.SessionID).Uint64("seq", e.Message.Seq).
		Int("subscribers", len(callbacks)).Msg("feed: published")
}

// Subscribers returns the number of live subscriptions on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Close drops every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.topics = make(map[string]map[uint64]func(chat.FeedEvent))
}

func (h *Hub) remove(topic string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

type handle struct {
	hub   *Hub
	topic string
	id    uint64
	once  sync.Once
}

// Unsubscribe is idempotent.
func (hd *handle) Unsubscribe() {
	hd.once.Do(func() { hd.hub.remove(hd.topic, hd.id) })
}
