package database

import (
	"context"
	"fmt"
)

// ListNotifications returns the caller's notifications, newest first.
func (s *sqlxStore) ListNotifications(ctx context.Context, username string, unreadOnly bool, limit int) ([]Notification, error) {
	query := `
		SELECT n.*, COALESCE(m.sender_username, '') AS sender_username
		FROM message_notifications n
		LEFT JOIN messages m ON m.id = n.message_id
		WHERE n.recipient_username = ?`
	if unreadOnly {
		query += ` AND n.is_read = FALSE`
	}
	query += ` ORDER BY n.created_at DESC, n.id DESC LIMIT ?`

	var notifications []Notification
	if err := s.db.SelectContext(ctx, &notifications, s.rebind(query), username, limit); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

// CountUnreadNotifications counts the caller's unread notifications.
func (s *sqlxStore) CountUnreadNotifications(ctx context.Context, username string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, s.rebind(`
		SELECT COUNT(*) FROM message_notifications WHERE recipient_username = ? AND is_read = FALSE`), username)
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead marks one of the caller's notifications read.
func (s *sqlxStore) MarkNotificationRead(ctx context.Context, id int64, username string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE message_notifications SET is_read = TRUE WHERE id = ? AND recipient_username = ?`), id, username)
	if err != nil {
		return fmt.Errorf("failed to mark notification %d read: %w", id, err)
	}
	return expectAffected(res)
}
