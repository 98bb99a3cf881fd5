package domain

import (
	"context"
	"strings"
	"time"
)

// NoMatchMessage is returned when no tool can handle a question.
const NoMatchMessage = "I don't understand your question. Try asking about projects, tasks, team members, or documents."

// Query is one user question. UserID 0 means the asker is unknown.
type Query struct {
	Text           string
	UserID         int64
	ConversationID string
	At             time.Time
}

func NewQuery(text string, userID int64, conversationID string) Query {
	return Query{Text: text, UserID: userID, ConversationID: conversationID, At: time.Now()}
}

// Blank reports whether the query has no content.
func (q Query) Blank() bool {
	return strings.TrimSpace(q.Text) == ""
}

func (q Query) HasUser() bool { return q.UserID != 0 }

// Answer is the reply to exactly one Query.
type Answer struct {
	Text    string
	Success bool
	Kind    Kind
	Tool    string
}

func Success(text, tool string) Answer {
	return Answer{Text: text, Success: true, Tool: tool}
}

// Turn is one Query/Answer exchange.
type Turn struct {
	Query  Query
	Answer Answer
}

// ToolHandler answers a question. It returns an explicit "nothing found"
// sentence rather than an empty string, and never calls back into routing.
type ToolHandler func(ctx context.Context, text string, userID int64) (string, error)

// ToolDescriptor is a registered capability. Description drives selection.
type ToolDescriptor struct {
	Name        string
	Description string
	Handler     ToolHandler
}
