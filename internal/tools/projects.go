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

const noProjectInfo = "I couldn't find information about projects matching your query."

var projectNameRe = regexp.MustCompile(`(?i)\bproject\s+(.+?)\s*\??$`)

// Projects answers project questions: active or completed lists, the asker's
// own projects, and who is on a named project.
func (t *DataTools) Projects(ctx context.Context, text string, userID int64) (string, error) {
	q := strings.ToLower(text)

	return t.withSession(ctx, "tools.projects", func(s *db.Session) (string, error) {
		switch {
		case personal(q):
			if userID == 0 {
				return "", missingUser("tools.projects", "projects")
			}
			return t.myProjects(ctx, s, userID, statusFilter(q))

		case contains(q, "who is", "who's", "working on", "members", "member of", "team on", "team for"):
			if name := capture(projectNameRe, text); name != "" {
				return projectTeam(ctx, s, name)
			}

		case statusFilter(q) != "":
			return projectsByStatus(ctx, s, statusFilter(q))
		}
		return noProjectInfo, nil
	})
}

func statusFilter(q string) string {
	switch {
	case contains(q, "active", "ongoing", "current"):
		return "active"
	case contains(q, "completed", "finished", "done"):
		return "completed"
	case contains(q, "paused", "on hold"):
		return "paused"
	}
	return ""
}

func projectsByStatus(ctx context.Context, s *db.Session, status string) (string, error) {
	projects, err := s.ProjectsByStatus(ctx, status)
	if err != nil {
		return "", err
	}
	if len(projects) == 0 {
		return fmt.Sprintf("There are no %s projects.", status), nil
	}
	lines := make([]string, len(projects))
	for i, p := range projects {
		lines[i] = fmt.Sprintf("%s (Due: %s)", p.Name, dueLabel(p.EndDate))
	}
	return strings.Join(lines, "\n"), nil
}

func (t *DataTools) myProjects(ctx context.Context, s *db.Session, userID int64, status string) (string, error) {
	projects, err := s.ProjectsForUser(ctx, userID)
	if err != nil {
		return "", err
	}
	var names []string
	for _, p := range projects {
		if status != "" && p.Status != status {
			continue
		}
		names = append(names, p.Name)
	}
	if len(names) == 0 {
		if status != "" {
			return fmt.Sprintf("You aren't a member of any %s projects.", status), nil
		}
		return "You aren't a member of any projects.", nil
	}
	return strings.Join(names, "\n"), nil
}

func projectTeam(ctx context.Context, s *db.Session, name string) (string, error) {
	p, err := s.FindProjectByName(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Sprintf("I couldn't find a project named %s.", name), nil
	}
	if err != nil {
		return "", err
	}
	members, err := s.ProjectMembers(ctx, p.ID)
	if err != nil {
		return "", err
	}
	if len(members) == 0 {
		return fmt.Sprintf("No one is on %s yet.", p.Name), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s team:", p.Name)
	for _, m := range members {
		fmt.Fprintf(&b, "\n%s (%s)", m.FullName, m.Role)
	}
	return b.String(), nil
}
