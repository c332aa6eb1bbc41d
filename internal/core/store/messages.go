package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/padillasconcrete/siteapi/internal/core"
)

// InsertContactMessage persists a delivered contact submission.
func (s *Store) InsertContactMessage(ctx context.Context, msg *core.ContactMessage) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if msg == nil || strings.TrimSpace(msg.ID) == "" {
		return errors.New("contact message id is required")
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO contact_messages (
			id, name, email, phone, service, message,
			user_agent, language, client_ip, submitted_at, received_at, notified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.Name, msg.Email, msg.Phone, msg.Service, msg.Message,
		msg.UserAgent, msg.Language, msg.ClientIP, msg.Timestamp,
		msg.ReceivedAt.UTC().UnixMilli(), boolToInt(msg.Notified))
	if err != nil {
		return fmt.Errorf("insert contact message: %w", err)
	}
	return nil
}

// MarkContactMessageNotified records that the owner was notified.
func (s *Store) MarkContactMessageNotified(ctx context.Context, id string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `UPDATE contact_messages SET notified = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark contact message notified: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListContactMessages returns the newest messages first. A limit <= 0
// returns all.
func (s *Store) ListContactMessages(ctx context.Context, limit int) ([]core.ContactMessage, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, email, phone, service, message,
			COALESCE(user_agent, ''), COALESCE(language, ''), COALESCE(client_ip, ''),
			submitted_at, received_at, notified
		FROM contact_messages
		ORDER BY received_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list contact messages: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	messages := []core.ContactMessage{}
	for rows.Next() {
		var (
			msg        core.ContactMessage
			receivedAt int64
			notified   int
		)
		if err := rows.Scan(&msg.ID, &msg.Name, &msg.Email, &msg.Phone, &msg.Service, &msg.Message,
			&msg.UserAgent, &msg.Language, &msg.ClientIP, &msg.Timestamp, &receivedAt, &notified); err != nil {
			return nil, fmt.Errorf("scan contact messages: %w", err)
		}
		msg.ReceivedAt = time.UnixMilli(receivedAt).UTC()
		msg.Notified = notified != 0
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list contact messages: %w", err)
	}
	return messages, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
