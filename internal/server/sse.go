package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/livedesk/internal/chat"
	"github.com/zulandar/livedesk/internal/models"
)

// sseStream serializes writes from the subscription goroutine and the
// handler goroutine, and refuses writes once the handler has returned.
type sseStream struct {
	mu   sync.Mutex
	w    gin.ResponseWriter
	done bool
}

func (s *sseStream) send(id, event string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	writeSSE(s.w, id, event, data)
	s.w.Flush()
}

func (s *sseStream) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
}

// streamEvents subscribes to a session and streams each delivered message
// as a "message" event whose id is the message cursor. A reconnecting
// client resumes after Last-Event-ID (or ?since=).
func (h *handlers) streamEvents(c *gin.Context) {
	id := c.Param("id")
	since, err := resumeCursor(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	sess, err := h.desk.Session(ctx, id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	stream := &sseStream{w: c.Writer}
	defer stream.finish()

	onMessage := func(m models.Message) {
		stream.send(m.Cursor().String(), "message", m)
	}
	onError := func(err error) {
		_, kind := classify(err)
		stream.send("", "error", errorResponse{Error: err.Error(), Kind: kind})
	}

	stream.send("", "connected", gin.H{"session_id": id, "status": sess.Status})

	sub, err := h.desk.OpenSession(ctx, id, since, onMessage, onError)
	if err != nil {
		onError(err)
		return
	}
	defer h.desk.CloseSubscription(sub)

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			stream.send("", "closed", gin.H{"session_id": id})
			return
		case <-heartbeat.C:
			stream.send("", "heartbeat", gin.H{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		}
	}
}

// resumeCursor reads the resume point from Last-Event-ID or ?since=.
func resumeCursor(c *gin.Context) (*models.Cursor, error) {
	raw := strings.TrimSpace(c.GetHeader("Last-Event-ID"))
	if raw == "" {
		raw = strings.TrimSpace(c.Query("since"))
	}
	if raw == "" {
		return nil, nil
	}
	cur, err := models.ParseCursor(raw)
	if err != nil {
		return nil, fmt.Errorf("server: %v: %w", err, chat.ErrValidation)
	}
	return &cur, nil
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, id, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
