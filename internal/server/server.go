// Package server exposes the desk over HTTP: a JSON API for sessions and
// messages, and a Server-Sent Events stream per session subscription.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/zulandar/livedesk/internal/desk"
)

const defaultHeartbeat = 15 * time.Second

// StartOpts holds configuration for the HTTP server.
type StartOpts struct {
	Desk *desk.Desk
	Port int
	Out  io.Writer
	Log  zerolog.Logger
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Desk == nil {
		return fmt.Errorf("server: desk is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router := NewRouter(RouterOpts{Desk: opts.Desk, Log: opts.Log})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			opts.Log.Warn().Err(err).Msg("server shutdown")
		}
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "livedesk listening on http://localhost:%d\n", opts.Port)
	}
	opts.Log.Info().Int("port", opts.Port).Msg("http server started")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// RouterOpts configures NewRouter.
type RouterOpts struct {
	Desk      *desk.Desk
	Log       zerolog.Logger
	Heartbeat time.Duration // SSE keep-alive period, default 15s
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts RouterOpts) *gin.Engine {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = defaultHeartbeat
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(opts.Log))
	registerRoutes(router, &handlers{desk: opts.Desk, log: opts.Log, heartbeat: opts.Heartbeat})
	return router
}

// requestLogger logs each request once it completes. SSE streams log when
// the client disconnects.
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ev := log.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
