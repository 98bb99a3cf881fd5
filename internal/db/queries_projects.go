package db

import (
	"context"
	"fmt"
)

const projectColumns = `p.id, p.name, COALESCE(p.description,''), COALESCE(p.start_date,''),
	COALESCE(p.end_date,''), p.status, p.created_at`

// CreateProject creates a project and returns its ID. Dates are YYYY-MM-DD.
func (s *Session) CreateProject(ctx context.Context, name, description, startDate, endDate string) (int64, error) {
	id, err := s.insert(ctx,
		"INSERT INTO projects (name, description, start_date, end_date) VALUES (?, ?, ?, ?)",
		name, nullStr(description), nullStr(startDate), nullStr(endDate),
	)
	if err != nil {
		return 0, fmt.Errorf("creating project: %w", err)
	}
	return id, nil
}

// UpdateProject updates fields on a project by ID.
func (s *Session) UpdateProject(ctx context.Context, id int64, fields map[string]any) error {
	return s.updateRow(ctx, "projects", id, fields)
}

// AddProjectMember adds userID to a project with the given role (member or lead).
func (s *Session) AddProjectMember(ctx context.Context, projectID, userID int64, role string) error {
	if role == "" {
		role = "member"
	}
	_, err := s.exec(ctx,
		"INSERT INTO project_members (project_id, user_id, role) VALUES (?, ?, ?)",
		projectID, userID, role,
	)
	if err != nil {
		return fmt.Errorf("adding project member: %w", err)
	}
	return nil
}

// ProjectsByStatus lists projects with the given status, soonest end date first.
func (s *Session) ProjectsByStatus(ctx context.Context, status string) ([]Project, error) {
	return s.scanProjects(ctx,
		"SELECT "+projectColumns+` FROM projects p WHERE p.status = ?
			ORDER BY CASE WHEN p.end_date IS NULL THEN 1 ELSE 0 END, p.end_date, p.name`,
		status)
}

// ProjectsForUser lists projects the user is a member of.
func (s *Session) ProjectsForUser(ctx context.Context, userID int64) ([]Project, error) {
	return s.scanProjects(ctx,
		"SELECT "+projectColumns+` FROM projects p
			JOIN project_members pm ON pm.project_id = p.id
			WHERE pm.user_id = ? ORDER BY p.name`,
		userID)
}

// FindProjectByName returns the first project whose name contains name, case-insensitively.
func (s *Session) FindProjectByName(ctx context.Context, name string) (*Project, error) {
	projects, err := s.scanProjects(ctx,
		"SELECT "+projectColumns+` FROM projects p WHERE LOWER(p.name) LIKE ?
			ORDER BY CASE WHEN LOWER(p.name) = LOWER(?) THEN 0 ELSE 1 END, p.id LIMIT 1`,
		likeTerm(name), name)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, notFound("finding project", errNoRows, name)
	}
	return &projects[0], nil
}

// ProjectMembers lists a project's members, leads first.
func (s *Session) ProjectMembers(ctx context.Context, projectID int64) ([]ProjectMember, error) {
	rows, err := s.query(ctx,
		`SELECT pm.project_id, pm.user_id, u.full_name, pm.role, pm.joined_at
			FROM project_members pm JOIN users u ON u.id = pm.user_id
			WHERE pm.project_id = ?
			ORDER BY CASE pm.role WHEN 'lead' THEN 0 ELSE 1 END, u.full_name`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("querying project members: %w", err)
	}
	defer rows.Close()
	var members []ProjectMember
	for rows.Next() {
		var m ProjectMember
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.FullName, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scanning project member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Session) scanProjects(ctx context.Context, query string, args ...any) ([]Project, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()
	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.StartDate, &p.EndDate, &p.Status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
