// Package api serves the chat endpoint over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chris/taskbot/internal/agent"
	"github.com/chris/taskbot/internal/db"
	"github.com/chris/taskbot/internal/domain"
	"github.com/chris/taskbot/internal/memory"
)

const shutdownTimeout = 10 * time.Second

// Server wires the router, conversation store and data store to HTTP.
type Server struct {
	router *agent.Router
	convs  *memory.Store
	db     *db.DB
	tokens map[string]string // bearer token -> username
	logger *slog.Logger
	engine *gin.Engine
}

func NewServer(router *agent.Router, convs *memory.Store, database *db.DB, tokens map[string]string, logger *slog.Logger) *Server {
	s := &Server{
		router: router,
		convs:  convs,
		db:     database,
		tokens: tokens,
		logger: logger,
	}

	engine := gin.New()
	engine.Use(s.requestID(), s.accessLog(), gin.CustomRecovery(s.recovered))
	engine.GET("/healthz", s.handleHealth)

	authed := engine.Group("/", s.auth())
	authed.POST("/chat", s.handleChat)
	authed.DELETE("/chat", s.handleReset)
	authed.GET("/chat/history", s.handleHistory)
	authed.GET("/tools", s.handleTools)

	s.engine = engine
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// --- Middleware ---

const requestIDHeader = "X-Request-ID"

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"request_id", c.GetString("request_id"),
		)
	}
}

func (s *Server) recovered(c *gin.Context, rec any) {
	s.logger.Error("handler panicked", "panic", rec, "request_id", c.GetString("request_id"))
	c.AbortWithStatusJSON(http.StatusInternalServerError, failure(domain.SafeMessage(domain.KindInternal), string(domain.KindInternal)))
}
