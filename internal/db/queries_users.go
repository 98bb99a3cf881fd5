package db

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// NewUser holds the fields for CreateUser. Password is hashed before storage.
type NewUser struct {
	Username string
	Email    string
	FullName string
	Password string
	RoleID   int64
}

// CreateRole creates a role with a JSON-encoded permission list.
func (s *Session) CreateRole(ctx context.Context, name, description string, permissions []string) (int64, error) {
	if permissions == nil {
		permissions = []string{}
	}
	perms, _ := json.Marshal(permissions)
	id, err := s.insert(ctx,
		"INSERT INTO roles (name, description, permissions) VALUES (?, ?, ?)",
		name, nullStr(description), string(perms),
	)
	if err != nil {
		return 0, fmt.Errorf("creating role: %w", err)
	}
	return id, nil
}

// GetRole returns a role by ID.
func (s *Session) GetRole(ctx context.Context, id int64) (*Role, error) {
	var r Role
	var perms string
	err := s.queryRow(ctx,
		"SELECT id, name, COALESCE(description,''), permissions FROM roles WHERE id = ?", id,
	).Scan(&r.ID, &r.Name, &r.Description, &perms)
	if err != nil {
		return nil, notFound("getting role", err, fmt.Sprintf("role %d", id))
	}
	_ = json.Unmarshal([]byte(perms), &r.Permissions)
	return &r, nil
}

// CreateUser creates a user and returns its ID.
func (s *Session) CreateUser(ctx context.Context, u NewUser) (int64, error) {
	var hashed string
	if u.Password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return 0, fmt.Errorf("hashing password: %w", err)
		}
		hashed = string(h)
	}
	id, err := s.insert(ctx,
		"INSERT INTO users (username, email, hashed_password, full_name, role_id) VALUES (?, ?, ?, ?, ?)",
		u.Username, u.Email, hashed, u.FullName, nullID(u.RoleID),
	)
	if err != nil {
		return 0, fmt.Errorf("creating user: %w", err)
	}
	return id, nil
}

// CheckPassword reports whether password matches the stored hash.
func (s *Session) CheckPassword(ctx context.Context, username, password string) (bool, error) {
	var hashed string
	err := s.queryRow(ctx, "SELECT hashed_password FROM users WHERE username = ?", username).Scan(&hashed)
	if err != nil {
		return false, notFound("checking password", err, username)
	}
	if hashed == "" {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil, nil
}

const userColumns = `u.id, u.username, u.email, u.full_name, u.is_active, COALESCE(r.name,''), u.created_at
	FROM users u LEFT JOIN roles r ON r.id = u.role_id`

// GetUser returns a user by ID.
func (s *Session) GetUser(ctx context.Context, id int64) (*User, error) {
	users, err := s.scanUsers(ctx, "SELECT "+userColumns+" WHERE u.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, notFound("getting user", errNoRows, fmt.Sprintf("user %d", id))
	}
	return &users[0], nil
}

// FindUserByUsername returns an active user by exact username.
func (s *Session) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	users, err := s.scanUsers(ctx,
		"SELECT "+userColumns+" WHERE u.username = ? AND u.is_active = TRUE", username)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, notFound("finding user", errNoRows, username)
	}
	return &users[0], nil
}

// FindUserByName returns the first user whose full name contains name, case-insensitively.
// Exact matches sort first.
func (s *Session) FindUserByName(ctx context.Context, name string) (*User, error) {
	users, err := s.scanUsers(ctx,
		"SELECT "+userColumns+` WHERE LOWER(u.full_name) LIKE ?
			ORDER BY CASE WHEN LOWER(u.full_name) = LOWER(?) THEN 0 ELSE 1 END, u.id LIMIT 1`,
		likeTerm(name), name)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, notFound("finding user", errNoRows, name)
	}
	return &users[0], nil
}

func (s *Session) scanUsers(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.IsActive, &u.RoleName, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
