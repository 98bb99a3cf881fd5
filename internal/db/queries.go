package db

import (
	"context"
	"fmt"
)

type Role struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	IsActive  bool   `json:"is_active"`
	RoleName  string `json:"role,omitempty"`
	CreatedAt string `json:"created_at"`
}

type Project struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

type ProjectMember struct {
	ProjectID int64  `json:"project_id"`
	UserID    int64  `json:"user_id"`
	FullName  string `json:"full_name"`
	Role      string `json:"role"`
	JoinedAt  string `json:"joined_at"`
}

type Task struct {
	ID          int64  `json:"id"`
	ProjectID   int64  `json:"project_id"`
	ProjectName string `json:"project_name,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	DueDate     string `json:"due_date,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type TaskComment struct {
	ID        int64  `json:"id"`
	TaskID    int64  `json:"task_id"`
	UserID    int64  `json:"user_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type Document struct {
	ID          int64  `json:"id"`
	ProjectID   int64  `json:"project_id"`
	ProjectName string `json:"project_name,omitempty"`
	Name        string `json:"name"`
	FilePath    string `json:"file_path"`
	UploaderID  int64  `json:"uploader_id"`
	UploadedAt  string `json:"uploaded_at"`
}

type ChatMessage struct {
	ID             int64  `json:"id"`
	UserID         int64  `json:"user_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content"`
	IsBot          bool   `json:"is_bot"`
	CreatedAt      string `json:"created_at"`
}

// Summary is a headcount of the store, used by health checks and the CLI banner.
type Summary struct {
	Users          int `json:"users"`
	ActiveProjects int `json:"active_projects"`
	OpenTasks      int `json:"open_tasks"`
	Documents      int `json:"documents"`
}

// GetSummary returns a high-level count of current state.
func (s *Session) GetSummary(ctx context.Context) (*Summary, error) {
	sum := &Summary{}
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM users WHERE is_active = TRUE", &sum.Users},
		{"SELECT COUNT(*) FROM projects WHERE status = 'active'", &sum.ActiveProjects},
		{"SELECT COUNT(*) FROM tasks WHERE status != 'done'", &sum.OpenTasks},
		{"SELECT COUNT(*) FROM project_documents", &sum.Documents},
	}
	for _, c := range counts {
		if err := s.queryRow(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("building summary: %w", err)
		}
	}
	return sum, nil
}
