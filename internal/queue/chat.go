package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// BindSession points a chat at the transcript of the given item. Subsequent
// conversation turns for the chat are recorded against that item.
func (s *Store) BindSession(ctx context.Context, chatID, itemID int64) error {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (chat_id, item_id, updated_at) VALUES (?, ?, ?)
         ON CONFLICT (chat_id) DO UPDATE SET item_id = excluded.item_id, updated_at = excluded.updated_at`,
		chatID, itemID, timestamp,
	)
	if err != nil {
		return fmt.Errorf("bind session: %w", err)
	}
	return nil
}

// SessionItem returns the item currently bound to the chat, if any.
func (s *Store) SessionItem(ctx context.Context, chatID int64) (*Item, bool, error) {
	var itemID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT item_id FROM chat_sessions WHERE chat_id = ?", chatID,
	).Scan(&itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("session item: %w", err)
	}
	item, err := s.GetByID(ctx, itemID)
	if err != nil {
		return nil, false, err
	}
	return item, true, nil
}

// AppendMessage records one conversation turn for the chat's bound item.
func (s *Store) AppendMessage(ctx context.Context, chatID, itemID int64, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chat_messages (chat_id, item_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
		chatID, itemID, role, content, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// History returns the most recent conversation turns for the chat and item in
// chronological order, capped at limit.
func (s *Store) History(ctx context.Context, chatID, itemID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 40
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM (
            SELECT id, role, content, created_at FROM chat_messages
            WHERE chat_id = ? AND item_id = ?
            ORDER BY id DESC LIMIT ?
        ) ORDER BY id ASC`,
		chatID, itemID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var createdAt string
		if err := rows.Scan(&msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, err
		}
		msg.CreatedAt = parseTimestamp(createdAt)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ClearSession drops the chat's session binding and its conversation history.
func (s *Store) ClearSession(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chat_messages WHERE chat_id = ?", chatID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chat_sessions WHERE chat_id = ?", chatID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
