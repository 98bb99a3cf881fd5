package db

import (
	"context"
	"fmt"
)

const taskColumns = `t.id, t.project_id, p.name, t.title, COALESCE(t.description,''), t.status,
	t.priority, COALESCE(t.due_date,''), t.created_at
	FROM tasks t JOIN projects p ON p.id = t.project_id`

// NewTask holds the fields for CreateTask.
type NewTask struct {
	ProjectID   int64
	Title       string
	Description string
	Status      string
	Priority    string
	DueDate     string
}

// CreateTask creates a task and returns its ID.
func (s *Session) CreateTask(ctx context.Context, t NewTask) (int64, error) {
	if t.Status == "" {
		t.Status = "todo"
	}
	if t.Priority == "" {
		t.Priority = "medium"
	}
	id, err := s.insert(ctx,
		"INSERT INTO tasks (project_id, title, description, status, priority, due_date) VALUES (?, ?, ?, ?, ?, ?)",
		t.ProjectID, t.Title, nullStr(t.Description), t.Status, t.Priority, nullStr(t.DueDate),
	)
	if err != nil {
		return 0, fmt.Errorf("creating task: %w", err)
	}
	return id, nil
}

// UpdateTask updates fields on a task by ID.
func (s *Session) UpdateTask(ctx context.Context, id int64, fields map[string]any) error {
	return s.updateRow(ctx, "tasks", id, fields)
}

// AssignTask assigns a task to a user.
func (s *Session) AssignTask(ctx context.Context, taskID, userID int64) error {
	_, err := s.exec(ctx, "INSERT INTO task_assignments (task_id, user_id) VALUES (?, ?)", taskID, userID)
	if err != nil {
		return fmt.Errorf("assigning task: %w", err)
	}
	return nil
}

// AddComment adds a comment to a task and returns its ID.
func (s *Session) AddComment(ctx context.Context, taskID, userID int64, content string) (int64, error) {
	id, err := s.insert(ctx,
		"INSERT INTO task_comments (task_id, user_id, content) VALUES (?, ?, ?)",
		taskID, userID, content,
	)
	if err != nil {
		return 0, fmt.Errorf("adding comment: %w", err)
	}
	return id, nil
}

// TasksForUser lists tasks assigned to the user, open tasks first.
func (s *Session) TasksForUser(ctx context.Context, userID int64) ([]Task, error) {
	return s.scanTasks(ctx,
		"SELECT "+taskColumns+`
			JOIN task_assignments ta ON ta.task_id = t.id
			WHERE ta.user_id = ?
			ORDER BY CASE t.status WHEN 'in_progress' THEN 0 WHEN 'todo' THEN 1 ELSE 2 END, t.id`,
		userID)
}

// UpcomingDeadlines returns the limit tasks with the nearest due dates.
func (s *Session) UpcomingDeadlines(ctx context.Context, limit int) ([]Task, error) {
	return s.scanTasks(ctx,
		"SELECT "+taskColumns+`
			WHERE t.due_date IS NOT NULL AND t.status != 'done'
			ORDER BY t.due_date LIMIT ?`,
		limit)
}

// OverdueTasks lists unfinished tasks due before today (YYYY-MM-DD).
func (s *Session) OverdueTasks(ctx context.Context, today string) ([]Task, error) {
	return s.scanTasks(ctx,
		"SELECT "+taskColumns+`
			WHERE t.due_date IS NOT NULL AND t.due_date < ? AND t.status != 'done'
			ORDER BY t.due_date`,
		today)
}

// FindTaskByTitle returns the first task whose title contains title, case-insensitively.
func (s *Session) FindTaskByTitle(ctx context.Context, title string) (*Task, error) {
	tasks, err := s.scanTasks(ctx,
		"SELECT "+taskColumns+` WHERE LOWER(t.title) LIKE ?
			ORDER BY CASE WHEN LOWER(t.title) = LOWER(?) THEN 0 ELSE 1 END, t.id LIMIT 1`,
		likeTerm(title), title)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, notFound("finding task", errNoRows, title)
	}
	return &tasks[0], nil
}

// TaskComments lists comments on a task, oldest first.
func (s *Session) TaskComments(ctx context.Context, taskID int64) ([]TaskComment, error) {
	rows, err := s.query(ctx,
		"SELECT id, task_id, user_id, content, created_at FROM task_comments WHERE task_id = ? ORDER BY id",
		taskID)
	if err != nil {
		return nil, fmt.Errorf("querying comments: %w", err)
	}
	defer rows.Close()
	var comments []TaskComment
	for rows.Next() {
		var c TaskComment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.UserID, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *Session) scanTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()
	var tasks []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.ProjectName, &t.Title, &t.Description, &t.Status, &t.Priority, &t.DueDate, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
