package tools

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/chris/taskbot/internal/db"
	"github.com/chris/taskbot/internal/domain"
)

const (
	noTaskInfo    = "I couldn't find task information matching your query."
	deadlineLimit = 5
	dateLayout    = "2006-01-02"
)

var (
	taskStatusRe = regexp.MustCompile(`(?i)\bstatus of\s+(?:the\s+)?(?:task\s+)?(.+?)\s*\??$`)
	assignedToRe = regexp.MustCompile(`(?i)\bassigned to\s+(?:user\s+)?(.+?)\s*\??$`)
)

// Tasks answers task questions: the asker's tasks, deadlines, overdue work,
// a named task's status, and tasks assigned to someone.
func (t *DataTools) Tasks(ctx context.Context, text string, userID int64) (string, error) {
	q := strings.ToLower(text)
	assignee := capture(assignedToRe, text)
	if strings.EqualFold(assignee, "me") {
		q, assignee = "my tasks", ""
	}

	return t.withSession(ctx, "tools.tasks", func(s *db.Session) (string, error) {
		switch {
		case personal(q):
			if userID == 0 {
				return "", missingUser("tools.tasks", "tasks")
			}
			switch {
			case contains(q, "overdue", "past due"):
				return t.myDue(ctx, s, userID, true)
			case contains(q, "deadline", "due"):
				return t.myDue(ctx, s, userID, false)
			}
			return myTasks(ctx, s, userID)

		case contains(q, "overdue", "past due"):
			return t.overdue(ctx, s)

		case contains(q, "deadline", "due"):
			return t.deadlines(ctx, s)

		case contains(q, "status of"):
			if name := capture(taskStatusRe, text); name != "" {
				return taskStatus(ctx, s, name)
			}

		case assignee != "":
			return tasksForName(ctx, s, assignee)
		}
		return noTaskInfo, nil
	})
}

func myTasks(ctx context.Context, s *db.Session, userID int64) (string, error) {
	tasks, err := s.TasksForUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "You don't have any tasks assigned.", nil
	}
	lines := make([]string, len(tasks))
	for i, task := range tasks {
		lines[i] = fmt.Sprintf("%s (%s)", task.Title, task.Status)
	}
	return strings.Join(lines, "\n"), nil
}

// myDue lists the user's unfinished dated tasks, either overdue or upcoming.
func (t *DataTools) myDue(ctx context.Context, s *db.Session, userID int64, overdue bool) (string, error) {
	tasks, err := s.TasksForUser(ctx, userID)
	if err != nil {
		return "", err
	}
	today := t.now().Format(dateLayout)
	var due []db.Task
	for _, task := range tasks {
		if task.Status == "done" || task.DueDate == "" {
			continue
		}
		if (task.DueDate < today) == overdue {
			due = append(due, task)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].DueDate < due[j].DueDate })

	switch {
	case len(due) == 0 && overdue:
		return "None of your tasks are overdue.", nil
	case len(due) == 0:
		return "You have no upcoming deadlines.", nil
	case len(due) > deadlineLimit:
		due = due[:deadlineLimit]
	}
	return t.formatDue(due), nil
}

func (t *DataTools) deadlines(ctx context.Context, s *db.Session) (string, error) {
	tasks, err := s.UpcomingDeadlines(ctx, deadlineLimit)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "There are no upcoming deadlines.", nil
	}
	return t.formatDue(tasks), nil
}

func (t *DataTools) overdue(ctx context.Context, s *db.Session) (string, error) {
	tasks, err := s.OverdueTasks(ctx, t.now().Format(dateLayout))
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "No tasks are overdue.", nil
	}
	return t.formatDue(tasks), nil
}

// formatDue renders "Title - Due: 2026-03-04 (2 days from now)".
func (t *DataTools) formatDue(tasks []db.Task) string {
	today := t.now().Truncate(24 * time.Hour)
	lines := make([]string, len(tasks))
	for i, task := range tasks {
		line := fmt.Sprintf("%s - Due: %s", task.Title, task.DueDate)
		if due, err := time.Parse(dateLayout, task.DueDate); err == nil {
			line += fmt.Sprintf(" (%s)", humanize.RelTime(due, today, "ago", "from now"))
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

func taskStatus(ctx context.Context, s *db.Session, name string) (string, error) {
	task, err := s.FindTaskByTitle(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Sprintf("I couldn't find a task called %s.", name), nil
	}
	if err != nil {
		return "", err
	}
	comments, err := s.TaskComments(ctx, task.ID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s (%s) is %s. Priority: %s. Due: %s. Comments: %d.",
		task.Title, task.ProjectName, strings.ReplaceAll(task.Status, "_", " "),
		task.Priority, dueLabel(task.DueDate), len(comments)), nil
}

func tasksForName(ctx context.Context, s *db.Session, name string) (string, error) {
	u, err := s.FindUserByName(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Sprintf("I couldn't find a user named %s", name), nil
	}
	if err != nil {
		return "", err
	}
	tasks, err := s.TasksForUser(ctx, u.ID)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return fmt.Sprintf("%s has no tasks assigned.", u.FullName), nil
	}
	lines := make([]string, len(tasks))
	for i, task := range tasks {
		lines[i] = fmt.Sprintf("%s (%s)", task.Title, task.Status)
	}
	return fmt.Sprintf("Tasks assigned to %s:\n%s", u.FullName, strings.Join(lines, "\n")), nil
}
