package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chris/taskbot/internal/db"
	"github.com/chris/taskbot/internal/domain"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type chatResponse struct {
	Response       string  `json:"response"`
	Success        bool    `json:"success"`
	Error          *string `json:"error"`
	Tool           string  `json:"tool,omitempty"`
	ConversationID string  `json:"conversation_id,omitempty"`
}

func failure(text, kind string) chatResponse {
	return chatResponse{Response: text, Success: false, Error: &kind}
}

// auth resolves the bearer token to a username.
func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		username, known := s.tokens[strings.TrimSpace(token)]
		if !ok || !known {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, failure("Not authenticated", "Unauthorized"))
			return
		}
		c.Set("username", username)
		c.Next()
	}
}

// currentUser loads the authenticated user. It writes the error response and
// returns nil when the user cannot be resolved.
func (s *Server) currentUser(c *gin.Context) *db.User {
	var user *db.User
	err := s.db.WithSession(c.Request.Context(), func(sess *db.Session) error {
		var err error
		user, err = sess.FindUserByUsername(c.Request.Context(), c.GetString("username"))
		return err
	})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, failure("User not found", string(domain.KindNotFound)))
		return nil
	case err != nil:
		s.logger.Error("loading user", "username", c.GetString("username"), "error", err)
		c.JSON(http.StatusInternalServerError, failure(domain.SafeMessage(domain.KindInternal), string(domain.KindInternal)))
		return nil
	}
	return user
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, failure("Invalid request body", string(domain.KindInvalidInput)))
		return
	}

	user := s.currentUser(c)
	if user == nil {
		return
	}

	convID := conversationID(user.Username, req.ConversationID)
	conv := s.convs.GetOrCreate(convID)
	q := domain.NewQuery(req.Message, user.ID, convID)

	answer, err := s.router.Handle(c.Request.Context(), q, conv)
	if k := domain.KindOf(err); k != domain.KindInvalidInput && k != domain.KindCanceled {
		s.persist(c.Request.Context(), user.ID, convID, q.Text, answer.Text)
	}

	resp := chatResponse{
		Response:       answer.Text,
		Success:        answer.Success,
		Tool:           answer.Tool,
		ConversationID: convID,
	}
	if answer.Kind != domain.KindNone {
		kind := string(answer.Kind)
		resp.Error = &kind
	}
	c.JSON(statusFor(answer.Kind), resp)
}

// persist records both sides of the exchange. Failures are logged only.
func (s *Server) persist(ctx context.Context, userID int64, convID, question, reply string) {
	ctx = context.WithoutCancel(ctx)
	err := s.db.WithSession(ctx, func(sess *db.Session) error {
		if _, err := sess.SaveChatMessage(ctx, userID, convID, question, false); err != nil {
			return err
		}
		_, err := sess.SaveChatMessage(ctx, userID, convID, reply, true)
		return err
	})
	if err != nil {
		s.logger.Warn("saving chat messages", "conversation", convID, "error", err)
	}
}

// handleReset forgets the in-memory conversation. Persisted messages stay.
func (s *Server) handleReset(c *gin.Context) {
	convID := conversationID(c.GetString("username"), c.Query("conversation_id"))
	c.JSON(http.StatusOK, gin.H{"conversation_id": convID, "cleared": s.convs.Delete(convID)})
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, failure("limit must be a positive integer", string(domain.KindInvalidInput)))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	user := s.currentUser(c)
	if user == nil {
		return
	}

	var msgs []db.ChatMessage
	err := s.db.WithSession(c.Request.Context(), func(sess *db.Session) error {
		var err error
		msgs, err = sess.ChatHistory(c.Request.Context(), user.ID, limit)
		return err
	})
	if err != nil {
		s.logger.Error("loading chat history", "user", user.ID, "error", err)
		c.JSON(http.StatusInternalServerError, failure(domain.SafeMessage(domain.KindInternal), string(domain.KindInternal)))
		return
	}
	if msgs == nil {
		msgs = []db.ChatMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (s *Server) handleTools(c *gin.Context) {
	type toolInfo struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	var out []toolInfo
	for _, t := range s.router.Registry().List() {
		out = append(out, toolInfo{Name: t.Name, Description: t.Description})
	}
	c.JSON(http.StatusOK, gin.H{"strategy": s.router.Strategy(), "tools": out})
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "conversations": s.convs.Len()})
}

// conversationID scopes conversations to their owner so one user cannot read
// another's history.
func conversationID(username, requested string) string {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return "api:" + username
	}
	return "api:" + username + ":" + requested
}

// statusFor maps an answer's error kind to an HTTP status.
func statusFor(k domain.Kind) int {
	switch k {
	case domain.KindNone, domain.KindNoMatch:
		return http.StatusOK
	case domain.KindInvalidInput, domain.KindToolExecution, domain.KindMissingContext:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindRateLimit:
		return http.StatusTooManyRequests
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	case domain.KindService:
		return http.StatusBadGateway
	case domain.KindCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
