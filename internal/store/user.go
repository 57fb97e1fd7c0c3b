package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavelanni/examgen/internal/model"
)

const userColumns = `id, email, name, school, password_hash, plan, role, quota_total, quota_used, created_at`

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.School, &u.PasswordHash, &u.Plan, &u.Role, &u.QuotaTotal, &u.QuotaUsed, &u.CreatedAt)
	return u, err
}

// CreateUser inserts a new user and returns its ID.
func (s *Store) CreateUser(ctx context.Context, u model.User) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (email, name, school, password_hash, plan, role, quota_total, quota_used, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		u.Email, u.Name, u.School, u.PasswordHash, u.Plan, u.Role, u.QuotaTotal, u.QuotaUsed, now(),
	).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrDuplicateEmail
	}
	if err != nil {
		slog.Error("failed to create user", "email", u.Email, "error", err)
		return 0, err
	}
	slog.Info("created user", "id", id, "email", u.Email, "plan", u.Plan, "role", u.Role)
	return id, nil
}

// GetUserByEmail returns a user by email, or nil if none exists.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByID returns a user by ID, or nil if none exists.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns all users, newest first.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetUserPlan changes a user's plan and quota ceiling.
func (s *Store) SetUserPlan(ctx context.Context, id int64, plan model.Plan, quotaTotal int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET plan = $1, quota_total = $2 WHERE id = $3`, plan, quotaTotal, id)
	if err != nil {
		return err
	}
	return expectOne(res, "user", id)
}

// SetUserRole changes a user's access level.
func (s *Store) SetUserRole(ctx context.Context, id int64, role model.UserRole) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET role = $1 WHERE id = $2`, role, id)
	if err != nil {
		return err
	}
	if err := expectOne(res, "user", id); err != nil {
		return err
	}
	slog.Info("changed user role", "id", id, "role", role)
	return nil
}

// ApproveUser moves a pending account to the free plan.
func (s *Store) ApproveUser(ctx context.Context, id int64, quotaTotal int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET plan = $1, quota_total = $2 WHERE id = $3 AND plan = $4`,
		model.PlanFree, quotaTotal, id, model.PlanPending)
	if err != nil {
		return err
	}
	return expectOne(res, "pending user", id)
}

// AddQuotaUsed adds n generated questions to the user's usage.
func (s *Store) AddQuotaUsed(ctx context.Context, id int64, n int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET quota_used = quota_used + $1 WHERE id = $2`, n, id)
	return err
}

// SetPassword replaces a user's password hash.
func (s *Store) SetPassword(ctx context.Context, id int64, hash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, hash, id)
	if err != nil {
		return err
	}
	return expectOne(res, "user", id)
}

// UserCount returns the total number of users.
func (s *Store) UserCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

func expectOne(res sql.Result, what string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", what, id, ErrNotFound)
	}
	return nil
}
