package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ActiveChatSession returns the caller's active therapy session id, opening a
// new session when none exists.
func (s *sqlxStore) ActiveChatSession(ctx context.Context, username string, now time.Time) (int64, error) {
	var id int64
	err := s.withTx(ctx, "active_chat_session", func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &id, tx.Rebind(`
			SELECT id FROM chat_sessions WHERE username = ? AND is_active = TRUE
			ORDER BY id DESC LIMIT 1`), username)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to find chat session: %w", err)
		}
		if err := tx.GetContext(ctx, &id, tx.Rebind(`
			INSERT INTO chat_sessions (username, is_active, created_at) VALUES (?, TRUE, ?)
			RETURNING id`), username, NewMillis(now)); err != nil {
			return fmt.Errorf("failed to open chat session: %w", err)
		}
		return nil
	})
	return id, err
}

// RecentChatHistory returns the last limit entries of a session, oldest first.
func (s *sqlxStore) RecentChatHistory(ctx context.Context, sessionID int64, limit int) ([]ChatEntry, error) {
	var entries []ChatEntry
	query := s.rebind(`
		SELECT * FROM chat_history WHERE session_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &entries, query, sessionID, limit); err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// AppendChatHistory stores chat turns atomically, in order.
func (s *sqlxStore) AppendChatHistory(ctx context.Context, entries ...*ChatEntry) error {
	return s.withTx(ctx, "append_chat_history", func(tx *sqlx.Tx) error {
		query := tx.Rebind(`
			INSERT INTO chat_history (session_id, username, sender, message, created_at)
			VALUES (?, ?, ?, ?, ?)
			RETURNING id`)
		for _, e := range entries {
			if err := tx.GetContext(ctx, &e.ID, query, e.SessionID, e.Username, e.Sender, e.Message, e.CreatedAt); err != nil {
				return fmt.Errorf("failed to save chat entry: %w", err)
			}
		}
		return nil
	})
}

// ListChatHistory returns the caller's most recent chat turns across sessions,
// oldest first.
func (s *sqlxStore) ListChatHistory(ctx context.Context, username string, limit int) ([]ChatEntry, error) {
	var entries []ChatEntry
	query := s.rebind(`
		SELECT * FROM chat_history WHERE username = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &entries, query, username, limit); err != nil {
		return nil, fmt.Errorf("failed to list chat history: %w", err)
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// CreateAlert records a safety alert.
func (s *sqlxStore) CreateAlert(ctx context.Context, alert *Alert) error {
	query := s.rebind(`
		INSERT INTO alerts (username, alert_type, details, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`)
	if err := s.db.GetContext(ctx, &alert.ID, query, alert.Username, alert.AlertType, alert.Details, alert.CreatedAt); err != nil {
		s.logger.ErrorContext(ctx, "Error saving alert", "username", alert.Username, "error", err)
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}
