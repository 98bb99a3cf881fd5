package tools

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/chris/taskbot/internal/db"
	"github.com/chris/taskbot/internal/domain"
)

const noUserInfo = "I couldn't understand your question about team members."

var (
	// leadIn strips question openers ahead of a name: "What is Jagasri working on".
	leadIn   = regexp.MustCompile(`(?i)^\s*(?:(?:what|who|which)\b(?:'s|\s+is|\s+are)?|tell me\b|can you tell me\b|do you know\b)?\s*(?:what\s+)?(?:is\s+)?(?:currently\s+)?`)
	whoIsRe  = regexp.MustCompile(`(?i)\bwho\s+is\s+(.+?)\s*\??$`)
	selfRefs = map[string]bool{"i": true, "am i": true, "me": true, "i am": true}
)

// Users answers questions about team members: what someone is working on and who someone is.
func (t *DataTools) Users(ctx context.Context, text string, userID int64) (string, error) {
	q := strings.ToLower(text)

	return t.withSession(ctx, "tools.users", func(s *db.Session) (string, error) {
		switch {
		case strings.Contains(q, "working on"):
			name := nameBefore(text, "working on")
			if selfRefs[strings.ToLower(name)] || strings.HasPrefix(strings.ToLower(name), "am i") {
				if userID == 0 {
					return "", missingUser("tools.users", "work")
				}
				return workFor(ctx, s, func() (*db.User, error) { return s.GetUser(ctx, userID) },
					"I couldn't find your account in the team directory.")
			}
			if name == "" {
				return noUserInfo, nil
			}
			return workFor(ctx, s, func() (*db.User, error) { return s.FindUserByName(ctx, name) },
				fmt.Sprintf("I couldn't find a user named %s", name))

		case whoIsRe.MatchString(text):
			return whoIs(ctx, s, capture(whoIsRe, text))
		}
		return noUserInfo, nil
	})
}

// nameBefore returns the words ahead of phrase with question openers removed,
// keeping the caller's capitalization.
func nameBefore(text, phrase string) string {
	idx := strings.Index(strings.ToLower(text), phrase)
	if idx < 0 {
		return ""
	}
	return cleanName(leadIn.ReplaceAllString(text[:idx], ""))
}

// workFor lists the found user's tasks; missing is the reply when find comes up empty.
func workFor(ctx context.Context, s *db.Session, find func() (*db.User, error), missing string) (string, error) {
	u, err := find()
	if errors.Is(err, domain.ErrNotFound) {
		return missing, nil
	}
	if err != nil {
		return "", err
	}
	tasks, err := s.TasksForUser(ctx, u.ID)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return fmt.Sprintf("%s isn't working on any tasks right now.", u.FullName), nil
	}
	titles := make([]string, len(tasks))
	for i, task := range tasks {
		titles[i] = task.Title
	}
	return fmt.Sprintf("%s is working on:\n%s", u.FullName, strings.Join(titles, "\n")), nil
}

func whoIs(ctx context.Context, s *db.Session, name string) (string, error) {
	if name == "" {
		return noUserInfo, nil
	}
	u, err := s.FindUserByName(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Sprintf("I couldn't find a user named %s", name), nil
	}
	if err != nil {
		return "", err
	}
	role := u.RoleName
	if role == "" {
		role = "no role"
	}
	return fmt.Sprintf("%s (@%s) - %s, %s", u.FullName, u.Username, role, u.Email), nil
}
