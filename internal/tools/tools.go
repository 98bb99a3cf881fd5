// Package tools holds the question handlers the router dispatches to.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/chris/taskbot/internal/db"
	"github.com/chris/taskbot/internal/domain"
)

// Tool names. Registration order is ProjectQuery, TaskQuery, UserQuery,
// DocumentQuery, WebSearch.
const (
	ProjectQuery  = "ProjectQuery"
	TaskQuery     = "TaskQuery"
	UserQuery     = "UserQuery"
	DocumentQuery = "DocumentQuery"
	WebSearch     = "WebSearch"
)

// DataTools answers questions from the team's data store. Each call acquires
// its own session and releases it before returning.
type DataTools struct {
	db     *db.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewDataTools(database *db.DB, logger *slog.Logger) *DataTools {
	return &DataTools{db: database, logger: logger, now: time.Now}
}

// Descriptors returns the data-store tools in registration order.
func (t *DataTools) Descriptors() []domain.ToolDescriptor {
	return []domain.ToolDescriptor{
		{
			Name:        ProjectQuery,
			Description: "Useful for answering questions about projects, like 'What projects are active?' or 'Who is working on project X?'",
			Handler:     t.Projects,
		},
		{
			Name:        TaskQuery,
			Description: "Useful for answering questions about tasks, like 'What tasks are assigned to user X?' or 'What is the status of task Y?'",
			Handler:     t.Tasks,
		},
		{
			Name:        UserQuery,
			Description: "Useful for answering questions about team members, like 'Who is Jagasri?' or 'What is Jagasri working on?'",
			Handler:     t.Users,
		},
		{
			Name:        DocumentQuery,
			Description: "Useful for answering questions about project documents",
			Handler:     t.Documents,
		},
	}
}

// withSession runs fn on a request-scoped session, mapping store failures to
// a user-facing tool error.
func (t *DataTools) withSession(ctx context.Context, op string, fn func(*db.Session) (string, error)) (string, error) {
	s, err := t.db.Session(ctx)
	if err != nil {
		return "", t.storeError(ctx, op, err)
	}
	defer s.Close()
	out, err := fn(s)
	if err != nil {
		return "", t.storeError(ctx, op, err)
	}
	return out, nil
}

func (t *DataTools) storeError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if domain.KindOf(err) != domain.KindInternal {
		return err
	}
	t.logger.Error("tool query failed", "op", op, "error", err)
	return domain.NewError(op, domain.ErrToolExecution, "I couldn't reach the team database just now. Please try again.")
}

// personalRe spots questions about the asker's own records: "my tasks",
// "projects I'm on".
var personalRe = regexp.MustCompile(`(?i)\b(?:my|mine|i)\b`)

func personal(text string) bool {
	return personalRe.MatchString(text)
}

func missingUser(op, what string) error {
	return domain.NewError(op, domain.ErrMissingContext, fmt.Sprintf("I need to know who you are to look up your %s.", what))
}

// contains reports whether q (already lower-cased) contains any of the words.
func contains(q string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}

// capture returns the first group of re applied to text, trimmed of quotes and punctuation.
func capture(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return cleanName(m[1])
}

func cleanName(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'?.!,`)
}

func dueLabel(date string) string {
	if date == "" {
		return "not set"
	}
	return date
}
