package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/livedesk/internal/chat"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// classify maps the chat error taxonomy to an HTTP status and a stable
// machine-readable kind.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, chat.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, chat.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, chat.ErrSendFailed):
		return http.StatusServiceUnavailable, "send_failed"
	case errors.Is(err, chat.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

func abortWithError(c *gin.Context, err error) {
	status, kind := classify(err)
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error(), Kind: kind})
}
