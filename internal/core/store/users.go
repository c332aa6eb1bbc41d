package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/padillasconcrete/siteapi/internal/core"
)

const userColumns = `id, username, password_hash, role, must_change_password, created_at, updated_at`

// CreateUser inserts a user. Usernames are unique case-insensitively.
func (s *Store) CreateUser(ctx context.Context, user *core.User) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return errors.New("user id is required")
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	taken, err := s.usernameTaken(ctx, user.Username, "")
	if err != nil {
		return err
	}
	if taken {
		return ErrConflict
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, user.ID, user.Username, user.PasswordHash, string(user.Role),
		boolToInt(user.MustChangePassword), user.CreatedAt.Unix(), user.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UpdateUser saves username, password hash, role and the password-change flag.
func (s *Store) UpdateUser(ctx context.Context, user *core.User) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if user == nil {
		return errors.New("user is required")
	}

	taken, err := s.usernameTaken(ctx, user.Username, user.ID)
	if err != nil {
		return err
	}
	if taken {
		return ErrConflict
	}

	user.UpdatedAt = time.Now().UTC()
	result, err := s.DB.ExecContext(ctx, `
		UPDATE users
		SET username = ?, password_hash = ?, role = ?, must_change_password = ?, updated_at = ?
		WHERE id = ?
	`, user.Username, user.PasswordHash, string(user.Role),
		boolToInt(user.MustChangePassword), user.UpdatedAt.Unix(), user.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*core.User, error) {
	return s.getUser(ctx, `WHERE id = ?`, id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*core.User, error) {
	return s.getUser(ctx, `WHERE username = ? COLLATE NOCASE`, strings.TrimSpace(username))
}

// ListUsers returns all users ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]core.User, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	users := []core.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan users: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// CountUsers is used to decide whether the first admin must be bootstrapped.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var count int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*core.User, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	row := s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users `+where, arg)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	return user, nil
}

func (s *Store) usernameTaken(ctx context.Context, username, exceptID string) (bool, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM users
		WHERE username = ? COLLATE NOCASE AND id != ?
	`, strings.TrimSpace(username), exceptID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return count > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*core.User, error) {
	var (
		user       core.User
		role       string
		mustChange int
		createdAt  int64
		updatedAt  int64
	)
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &role, &mustChange, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	user.Role = core.Role(role)
	user.MustChangePassword = mustChange != 0
	user.CreatedAt = time.Unix(createdAt, 0).UTC()
	user.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &user, nil
}
