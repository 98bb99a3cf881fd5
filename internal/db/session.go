package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chris/taskbot/internal/domain"
)

// Session is a request-scoped connection. It is not safe for concurrent use.
type Session struct {
	conn   *sql.Conn
	driver string
}

func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.conn.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Session) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.conn.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Session) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.conn.QueryRowContext(ctx, s.rebind(query), args...)
}

// insert runs an INSERT ... RETURNING id and returns the new id.
func (s *Session) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := s.queryRow(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres.
func (s *Session) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var allowedColumns = map[string]map[string]bool{
	"projects": {"name": true, "description": true, "start_date": true, "end_date": true, "status": true},
	"tasks":    {"title": true, "description": true, "status": true, "priority": true, "due_date": true},
}

// updateRow is a generic helper for updating a row's fields.
func (s *Session) updateRow(ctx context.Context, table string, id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	allowed, ok := allowedColumns[table]
	if !ok {
		return fmt.Errorf("unknown table: %s", table)
	}
	var setClauses []string
	var args []any
	for col, val := range fields {
		if !allowed[col] {
			return fmt.Errorf("disallowed column %q for table %s", col, table)
		}
		setClauses = append(setClauses, col+" = ?")
		args = append(args, val)
	}
	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.DateTime), id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(setClauses, ", "))
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating %s %d: %w", table, id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewError("db.update", domain.ErrNotFound, fmt.Sprintf("%s %d", table, id))
	}
	return nil
}

var errNoRows = sql.ErrNoRows

// notFound converts sql.ErrNoRows into domain.ErrNotFound.
func notFound(op string, err error, detail string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewError(op, domain.ErrNotFound, detail)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullStr(s string) any {
	if s == "" || s == "null" {
		return nil
	}
	return s
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// likeTerm builds a case-insensitive contains pattern.
func likeTerm(s string) string {
	return "%" + strings.ToLower(strings.TrimSpace(s)) + "%"
}
