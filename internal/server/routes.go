package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/zulandar/livedesk/internal/chat"
	"github.com/zulandar/livedesk/internal/desk"
	"github.com/zulandar/livedesk/internal/models"
	"github.com/zulandar/livedesk/internal/syncengine"
)

type handlers struct {
	desk      *desk.Desk
	log       zerolog.Logger
	heartbeat time.Duration
}

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/sessions", h.listSessions)
	api.POST("/sessions", h.createSession)
	api.GET("/sessions/:id", h.getSession)
	api.POST("/sessions/:id/activate", h.activateSession)
	api.POST("/sessions/:id/close", h.closeSession)
	api.POST("/sessions/:id/messages", h.sendMessage)
	api.GET("/sessions/:id/events", h.streamEvents)
}

type createSessionRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

type activateRequest struct {
	AgentID string `json:"agent_id"`
}

type sendMessageRequest struct {
	Role          models.Role `json:"role"`
	Body          string      `json:"body"`
	CorrelationID string      `json:"correlation_id"`
	SenderID      string      `json:"sender_id"`
}

type sessionResponse struct {
	Session *models.Session `json:"session"`
	Actions []string        `json:"actions"`
}

func badJSON(c *gin.Context, err error) {
	abortWithError(c, fmt.Errorf("server: decode body: %v: %w", err, chat.ErrValidation))
}

// listSessions serves the roster: newest first, with optimistic statuses
// and per-status counts. ?source=store bypasses the roster.
func (h *handlers) listSessions(c *gin.Context) {
	if c.Query("source") == "store" {
		list, err := h.desk.ListSessions(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": list})
		return
	}
	r := h.desk.Roster()
	c.JSON(http.StatusOK, gin.H{"sessions": r.Sessions(), "counts": r.Counts()})
}

func (h *handlers) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c, err)
		return
	}
	sess, err := h.desk.CreateSession(c.Request.Context(), req.Name, req.Contact)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *handlers) getSession(c *gin.Context) {
	h.respondSession(c, http.StatusOK)
}

func (h *handlers) activateSession(c *gin.Context) {
	var req activateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badJSON(c, err)
			return
		}
	}
	if err := h.desk.ActivateSession(c.Request.Context(), c.Param("id"), req.AgentID); err != nil {
		abortWithError(c, err)
		return
	}
	h.respondSession(c, http.StatusOK)
}

func (h *handlers) closeSession(c *gin.Context) {
	if err := h.desk.CloseSession(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	h.respondSession(c, http.StatusOK)
}

func (h *handlers) respondSession(c *gin.Context, status int) {
	ctx := c.Request.Context()
	id := c.Param("id")
	sess, err := h.desk.Session(ctx, id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	actions, err := h.desk.Permitted(ctx, id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	resp := sessionResponse{Session: sess, Actions: make([]string, 0, len(actions))}
	for _, a := range actions {
		resp.Actions = append(resp.Actions, string(a))
	}
	c.JSON(status, resp)
}

func (h *handlers) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c, err)
		return
	}
	msg, err := h.desk.SendMessage(c.Request.Context(), syncengine.SendRequest{
		SessionID:     c.Param("id"),
		Role:          req.Role,
		Body:          req.Body,
		CorrelationID: req.CorrelationID,
		SenderID:      req.SenderID,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
