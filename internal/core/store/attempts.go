package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/padillasconcrete/siteapi/internal/core"
	"github.com/padillasconcrete/siteapi/internal/core/engine"
)

// LoadAttempts returns the raw attempt log for key, or nil when none exists.
func (s *Store) LoadAttempts(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("storage key is required")
	}

	var attempts string
	row := s.DB.QueryRowContext(ctx, `
		SELECT attempts
		FROM attempt_logs
		WHERE storage_key = ?
	`, key)
	if err := row.Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch attempt log: %w", err)
	}
	return []byte(attempts), nil
}

// SaveAttempts replaces the attempt log for key.
func (s *Store) SaveAttempts(ctx context.Context, key string, data []byte) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("storage key is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO attempt_logs (storage_key, attempts, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(storage_key) DO UPDATE SET
			attempts = excluded.attempts,
			updated_at = excluded.updated_at
	`, key, string(data), time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("store attempt log: %w", err)
	}
	return nil
}

// ClearAttempts deletes the attempt log for key. Missing keys are not an error.
func (s *Store) ClearAttempts(ctx context.Context, key string) error {
	_, err := s.ResetAttemptLogs(ctx, AttemptQuery{Key: key})
	return err
}

// AttemptQuery selects attempt logs for admin listing and reset.
type AttemptQuery struct {
	All    bool
	Key    string
	Prefix string
}

func (q AttemptQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Key) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --key, or --prefix")
}

func (q AttemptQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	if key := strings.TrimSpace(q.Key); key != "" {
		return "WHERE storage_key = ?", []any{key}, nil
	}
	prefix := escapeLike(strings.TrimSpace(q.Prefix))
	return `WHERE storage_key LIKE ? ESCAPE '\'`, []any{prefix + "%"}, nil
}

// ListAttemptLogs returns matching logs with their stored timestamps. Logs
// that fail to decode are listed with no attempts.
func (s *Store) ListAttemptLogs(ctx context.Context, q AttemptQuery) ([]core.AttemptLog, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT storage_key, attempts, updated_at
		FROM attempt_logs
		%s
		ORDER BY storage_key
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list attempt logs: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	logs := []core.AttemptLog{}
	for rows.Next() {
		var (
			key       string
			raw       string
			updatedAt int64
		)
		if err := rows.Scan(&key, &raw, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt logs: %w", err)
		}

		entry := core.AttemptLog{Key: key, UpdatedAt: time.Unix(updatedAt, 0).UTC()}
		if attempts, err := engine.DecodeAttempts([]byte(raw)); err == nil {
			for _, ms := range attempts {
				entry.Attempts = append(entry.Attempts, time.UnixMilli(ms).UTC())
			}
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list attempt logs: %w", err)
	}

	return logs, nil
}

func (s *Store) CountAttemptLogs(ctx context.Context, q AttemptQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM attempt_logs
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count attempt logs: %w", err)
	}
	return count, nil
}

func (s *Store) ResetAttemptLogs(ctx context.Context, q AttemptQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM attempt_logs
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset attempt logs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset attempt logs: %w", err)
	}
	return affected, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
