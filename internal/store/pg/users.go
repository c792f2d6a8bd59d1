package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"corpsite.org/internal/auth"
	"corpsite.org/internal/ids"
)

const userColumns = `id, username, email, password_hash, role, status, last_login_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u         auth.User
		role      string
		status    string
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &status, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	u.Status = auth.Status(status)
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		u.LastLoginAt = &t
	}
	return &u, nil
}

func (s *Store) Create(ctx context.Context, u *auth.User) error {
	if u == nil {
		return fmt.Errorf("create user: nil user")
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, username, email, password_hash, role, status, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, u.ID, u.Username, strings.ToLower(u.Email), u.PasswordHash, string(u.Role), string(u.Status), u.CreatedAt, u.UpdatedAt)
	return mapError(err)
}

func (s *Store) FindByID(ctx context.Context, id string) (*auth.User, error) {
	return s.findOne(ctx, `select `+userColumns+` from users where id=$1`, id)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findOne(ctx, `select `+userColumns+` from users where lower(email)=lower($1)`, email)
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	return s.findOne(ctx, `select `+userColumns+` from users where lower(username)=lower($1)`, username)
}

func (s *Store) findOne(ctx context.Context, query string, args ...any) (*auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

func (s *Store) List(ctx context.Context, f auth.ListFilter) ([]auth.User, error) {
	var (
		where []string
		args  []any
	)
	if f.Role != "" {
		args = append(args, string(f.Role))
		where = append(where, fmt.Sprintf("role=$%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	query := `select ` + userColumns + ` from users`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += ` order by created_at desc, id desc`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" limit $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" offset $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]auth.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status auth.Status) (*auth.User, error) {
	return s.findOne(ctx, `
		update users set status=$2, updated_at=now()
		where id=$1
		returning `+userColumns, id, string(status))
}

func (s *Store) UpdateRole(ctx context.Context, id string, role auth.Role) (*auth.User, error) {
	return s.findOne(ctx, `
		update users set role=$2, updated_at=now()
		where id=$1
		returning `+userColumns, id, string(role))
}

func (s *Store) UpdatePassword(ctx context.Context, id, hash string) error {
	return s.execOne(ctx, `update users set password_hash=$2, updated_at=now() where id=$1`, id, hash)
}

func (s *Store) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, `update users set last_login_at=$2 where id=$1`, id, at.UTC())
}

func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
