package db

import (
	"context"
	"fmt"
	"time"
)

// SeedDemo fills an empty store with a small team, projects, tasks and documents.
// It does nothing if any user already exists.
func (s *Session) SeedDemo(ctx context.Context, now time.Time) error {
	var n int
	if err := s.queryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return fmt.Errorf("checking existing users: %w", err)
	}
	if n > 0 {
		return nil
	}

	day := func(offset int) string { return now.AddDate(0, 0, offset).Format("2006-01-02") }

	adminRole, err := s.CreateRole(ctx, "admin", "Full access", []string{"read", "write", "manage"})
	if err != nil {
		return err
	}
	memberRole, err := s.CreateRole(ctx, "member", "Team member", []string{"read", "write"})
	if err != nil {
		return err
	}

	users := map[string]int64{}
	for _, u := range []NewUser{
		{Username: "testuser", Email: "test@example.com", FullName: "Test User", Password: "password", RoleID: memberRole},
		{Username: "asha", Email: "asha@example.com", FullName: "Asha Raman", Password: "password", RoleID: adminRole},
		{Username: "marco", Email: "marco@example.com", FullName: "Marco Ruiz", Password: "password", RoleID: memberRole},
	} {
		id, err := s.CreateUser(ctx, u)
		if err != nil {
			return err
		}
		users[u.Username] = id
	}

	website, err := s.CreateProject(ctx, "Website Redesign", "New marketing site", day(-30), day(45))
	if err != nil {
		return err
	}
	mobile, err := s.CreateProject(ctx, "Mobile App", "iOS and Android client", day(-10), day(90))
	if err != nil {
		return err
	}
	legacy, err := s.CreateProject(ctx, "Legacy Migration", "Move off the old CRM", day(-200), day(-20))
	if err != nil {
		return err
	}
	if err := s.UpdateProject(ctx, legacy, map[string]any{"status": "completed"}); err != nil {
		return err
	}

	members := []struct {
		project int64
		user    string
		role    string
	}{
		{website, "asha", "lead"},
		{website, "testuser", "member"},
		{mobile, "marco", "lead"},
		{mobile, "testuser", "member"},
		{legacy, "asha", "lead"},
	}
	for _, m := range members {
		if err := s.AddProjectMember(ctx, m.project, users[m.user], m.role); err != nil {
			return err
		}
	}

	tasks := []struct {
		task     NewTask
		assignee string
	}{
		{NewTask{ProjectID: website, Title: "Design homepage", Status: "in_progress", Priority: "high", DueDate: day(3)}, "testuser"},
		{NewTask{ProjectID: website, Title: "Write copy", Priority: "medium", DueDate: day(10)}, "asha"},
		{NewTask{ProjectID: website, Title: "Set up analytics", Priority: "low", DueDate: day(-2)}, "testuser"},
		{NewTask{ProjectID: mobile, Title: "Login screen", Status: "in_progress", Priority: "high", DueDate: day(7)}, "marco"},
		{NewTask{ProjectID: mobile, Title: "Push notifications", Priority: "medium", DueDate: day(21)}, "testuser"},
		{NewTask{ProjectID: legacy, Title: "Export contacts", Status: "done", Priority: "high", DueDate: day(-40)}, "asha"},
	}
	for _, t := range tasks {
		id, err := s.CreateTask(ctx, t.task)
		if err != nil {
			return err
		}
		if err := s.AssignTask(ctx, id, users[t.assignee]); err != nil {
			return err
		}
		if t.task.Status == "in_progress" {
			if _, err := s.AddComment(ctx, id, users[t.assignee], "Started on this."); err != nil {
				return err
			}
		}
	}

	docs := []struct {
		project  int64
		uploader string
		name     string
		path     string
	}{
		{website, "asha", "Brand guidelines", "docs/website/brand.pdf"},
		{website, "testuser", "Homepage wireframes", "docs/website/wireframes.fig"},
		{mobile, "marco", "API contract", "docs/mobile/api.yaml"},
	}
	for _, d := range docs {
		if _, err := s.CreateDocument(ctx, d.project, users[d.uploader], d.name, d.path); err != nil {
			return err
		}
	}
	return nil
}
