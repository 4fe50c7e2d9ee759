package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// deliveredStates limits every read path to messages the recipient can see.
const deliveredStates = `delivery_status IN ('sent', 'delivered')`

// visibleToUser matches messages username sent or received and has not
// deleted. It takes the username twice.
const visibleToUser = deliveredStates + ` AND (
	(sender_username = ? AND is_deleted_by_sender = FALSE) OR
	(recipient_username = ? AND is_deleted_by_recipient = FALSE))`

// betweenUsers matches the thread between username and counterpart as seen by
// username. It takes (username, counterpart, counterpart, username).
const betweenUsers = deliveredStates + ` AND (
	(sender_username = ? AND recipient_username = ? AND is_deleted_by_sender = FALSE) OR
	(sender_username = ? AND recipient_username = ? AND is_deleted_by_recipient = FALSE))`

// SendMessage delivers msg immediately in a single transaction.
func (s *sqlxStore) SendMessage(ctx context.Context, msg *Message) error {
	if msg == nil {
		return fmt.Errorf("cannot send nil message")
	}
	if msg.SenderUsername == "" || msg.RecipientUsername == "" {
		return fmt.Errorf("message must have a sender and a recipient")
	}
	if msg.Content == "" {
		return fmt.Errorf("message must have non-empty content")
	}

	return s.withTx(ctx, "send_message", func(tx *sqlx.Tx) error {
		return s.deliverTx(ctx, tx, msg, false)
	})
}

// SendBroadcast delivers one copy of template to every recipient atomically.
func (s *sqlxStore) SendBroadcast(ctx context.Context, template Message, recipients []string) (int, error) {
	sent := 0
	err := s.withTx(ctx, "send_broadcast", func(tx *sqlx.Tx) error {
		for _, recipient := range recipients {
			msg := template
			msg.RecipientUsername = recipient
			if err := s.deliverTx(ctx, tx, &msg, false); err != nil {
				return err
			}
			sent++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return sent, nil
}

// SendGroupMessage opens a group conversation between the sender and every
// recipient and delivers one copy of template to each recipient in it. It
// returns the conversation id.
func (s *sqlxStore) SendGroupMessage(ctx context.Context, template Message, subject string, recipients []string) (int64, error) {
	if len(recipients) == 0 {
		return 0, fmt.Errorf("group message requires at least one recipient")
	}
	now := template.SentAt.Time
	if !template.SentAt.Valid {
		now = time.Now()
		template.SentAt = NewNullMillis(now)
	}

	var conversationID int64
	err := s.withTx(ctx, "send_group_message", func(tx *sqlx.Tx) error {
		participants := append([]string{template.SenderUsername}, recipients...)
		query := tx.Rebind(`
			INSERT INTO conversations (type, subject, created_by, created_at, participant_count, is_archived)
			VALUES (?, ?, ?, ?, ?, FALSE)
			RETURNING id`)
		if err := tx.GetContext(ctx, &conversationID, query,
			ConversationGroup, subject, template.SenderUsername, NewMillis(now), len(participants)); err != nil {
			return fmt.Errorf("failed to create group conversation: %w", err)
		}
		for _, username := range participants {
			if _, err := tx.ExecContext(ctx, tx.Rebind(`
				INSERT INTO conversation_participants (conversation_id, username, joined_at, is_muted)
				VALUES (?, ?, ?, FALSE)`), conversationID, username, NewMillis(now)); err != nil {
				return fmt.Errorf("failed to add participant %s: %w", username, err)
			}
		}

		for _, recipient := range recipients {
			msg := template
			msg.RecipientUsername = recipient
			msg.MessageType = MessageTypeGroup
			msg.ConversationID = &conversationID
			if err := s.deliverTx(ctx, tx, &msg, false); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error sending group message", "sender", template.SenderUsername, "error", err)
		return 0, err
	}
	return conversationID, nil
}

// deliverTx inserts (or, for a previously scheduled message, releases) msg and
// keeps the conversation, receipts, search index and notifications in step.
func (s *sqlxStore) deliverTx(ctx context.Context, tx *sqlx.Tx, msg *Message, scheduled bool) error {
	now := msg.SentAt.Time
	if !msg.SentAt.Valid {
		now = time.Now()
		msg.SentAt = NewNullMillis(now)
	}
	msg.DeliveryStatus = DeliverySent
	msg.UpdatedAt = NewMillis(now)

	var conversationID int64
	if msg.ConversationID != nil {
		conversationID = *msg.ConversationID
	} else {
		id, err := s.directConversationTx(ctx, tx, msg.SenderUsername, msg.RecipientUsername, now)
		if err != nil {
			return err
		}
		conversationID = id
		msg.ConversationID = &conversationID
	}

	if scheduled {
		query := tx.Rebind(`
			UPDATE messages
			SET conversation_id = ?, delivery_status = ?, sent_at = ?, updated_at = ?
			WHERE id = ? AND delivery_status = 'scheduled'`)
		res, err := tx.ExecContext(ctx, query, conversationID, DeliverySent, msg.SentAt, msg.UpdatedAt, msg.ID)
		if err != nil {
			return fmt.Errorf("failed to release scheduled message %d: %w", msg.ID, err)
		}
		if err := expectAffected(res); err != nil {
			return err
		}
	} else {
		if msg.MessageType == "" {
			msg.MessageType = MessageTypeDirect
		}
		msg.CreatedAt = NewMillis(now)
		query := tx.Rebind(`
			INSERT INTO messages (conversation_id, sender_username, recipient_username, message_type,
				subject, content, is_read, sent_at, delivery_status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, FALSE, ?, ?, ?, ?)
			RETURNING id`)
		err := tx.GetContext(ctx, &msg.ID, query,
			conversationID, msg.SenderUsername, msg.RecipientUsername, msg.MessageType,
			msg.Subject, msg.Content, msg.SentAt, msg.DeliveryStatus, msg.CreatedAt, msg.UpdatedAt)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error inserting message",
				"sender", msg.SenderUsername, "recipient", msg.RecipientUsername, "error", err)
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE conversations SET last_message_at = ? WHERE id = ?`),
		msg.SentAt, conversationID); err != nil {
		return fmt.Errorf("failed to refresh conversation %d: %w", conversationID, err)
	}

	if err := insertReceiptTx(ctx, tx, msg.ID, msg.RecipientUsername, ReceiptDelivered, now); err != nil {
		return err
	}

	body := searchBody(msg.Subject, msg.Content)
	for _, username := range []string{msg.SenderUsername, msg.RecipientUsername} {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO message_search_index (message_id, username, body) VALUES (?, ?, ?)`),
			msg.ID, username, body); err != nil {
			return fmt.Errorf("failed to index message %d: %w", msg.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO message_notifications (recipient_username, message_id, notification_type, is_read, created_at)
		VALUES (?, ?, ?, FALSE, ?)`),
		msg.RecipientUsername, msg.ID, NotificationInApp, NewMillis(now)); err != nil {
		return fmt.Errorf("failed to create notification for message %d: %w", msg.ID, err)
	}

	return nil
}

// findDirectConversationTx looks up the direct conversation between a and b.
func findDirectConversationTx(ctx context.Context, tx *sqlx.Tx, a, b string) (*Conversation, error) {
	query := tx.Rebind(`
		SELECT c.* FROM conversations c
		JOIN conversation_participants pa ON pa.conversation_id = c.id AND pa.username = ?
		JOIN conversation_participants pb ON pb.conversation_id = c.id AND pb.username = ?
		WHERE c.type = 'direct'
		ORDER BY c.id
		LIMIT 1`)
	var conv Conversation
	if err := tx.GetContext(ctx, &conv, query, a, b); err != nil {
		return nil, notFoundOr(err, "failed to find conversation between %s and %s", a, b)
	}
	return &conv, nil
}

// directConversationTx returns the direct conversation between sender and
// recipient, creating it with both participants when missing.
func (s *sqlxStore) directConversationTx(ctx context.Context, tx *sqlx.Tx, sender, recipient string, now time.Time) (int64, error) {
	conv, err := findDirectConversationTx(ctx, tx, sender, recipient)
	if err == nil {
		return conv.ID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	var id int64
	query := tx.Rebind(`
		INSERT INTO conversations (type, subject, created_by, created_at, participant_count, is_archived)
		VALUES (?, '', ?, ?, 2, FALSE)
		RETURNING id`)
	if err := tx.GetContext(ctx, &id, query, ConversationDirect, sender, NewMillis(now)); err != nil {
		return 0, fmt.Errorf("failed to create conversation: %w", err)
	}

	for _, username := range []string{sender, recipient} {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO conversation_participants (conversation_id, username, joined_at, is_muted)
			VALUES (?, ?, ?, FALSE)`), id, username, NewMillis(now)); err != nil {
			return 0, fmt.Errorf("failed to add participant %s: %w", username, err)
		}
	}

	s.logger.DebugContext(ctx, "Created direct conversation", "conversation_id", id, "sender", sender, "recipient", recipient)
	return id, nil
}

func insertReceiptTx(ctx context.Context, tx *sqlx.Tx, messageID int64, username, receiptType string, now time.Time) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO message_receipts (message_id, username, receipt_type, created_at)
		VALUES (?, ?, ?, ?)`), messageID, username, receiptType, NewMillis(now))
	if err != nil {
		return fmt.Errorf("failed to record %s receipt for message %d: %w", receiptType, messageID, err)
	}
	return nil
}

func searchBody(subject, content string) string {
	return strings.ToLower(strings.TrimSpace(subject + " " + content))
}

// ScheduleMessage stores msg for later delivery. It stays invisible to the
// recipient until DeliverDueMessages releases it.
func (s *sqlxStore) ScheduleMessage(ctx context.Context, msg *Message) error {
	if msg == nil || !msg.ScheduledFor.Valid {
		return fmt.Errorf("scheduled message requires a delivery time")
	}
	now := msg.CreatedAt.Time
	if now.IsZero() {
		now = time.Now()
	}
	msg.CreatedAt = NewMillis(now)
	msg.UpdatedAt = msg.CreatedAt
	msg.DeliveryStatus = DeliveryScheduled
	if msg.MessageType == "" {
		msg.MessageType = MessageTypeDirect
	}

	query := s.rebind(`
		INSERT INTO messages (sender_username, recipient_username, message_type, subject, content,
			is_read, scheduled_for, delivery_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, FALSE, ?, ?, ?, ?)
		RETURNING id`)
	err := s.db.GetContext(ctx, &msg.ID, query,
		msg.SenderUsername, msg.RecipientUsername, msg.MessageType, msg.Subject, msg.Content,
		msg.ScheduledFor, msg.DeliveryStatus, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error scheduling message", "sender", msg.SenderUsername, "error", err)
		return fmt.Errorf("failed to schedule message: %w", err)
	}
	return nil
}

// DeliverDueMessages releases every scheduled message due at or before now.
// Messages whose recipient has since blocked the sender are marked failed.
// One failing message does not stop the others.
func (s *sqlxStore) DeliverDueMessages(ctx context.Context, now time.Time) (int, error) {
	var due []Message
	query := s.rebind(`
		SELECT * FROM messages
		WHERE delivery_status = 'scheduled' AND scheduled_for <= ? AND is_deleted_by_sender = FALSE
		ORDER BY scheduled_for, id`)
	if err := s.db.SelectContext(ctx, &due, query, toMillis(now)); err != nil {
		return 0, fmt.Errorf("failed to list due messages: %w", err)
	}

	delivered := 0
	var errs []error
	for i := range due {
		msg := &due[i]
		msg.SentAt = NewNullMillis(now)
		err := s.withTx(ctx, "deliver_scheduled", func(tx *sqlx.Tx) error {
			blocked, err := isBlockedTx(ctx, tx, msg.RecipientUsername, msg.SenderUsername)
			if err != nil {
				return err
			}
			if blocked {
				_, err := tx.ExecContext(ctx, tx.Rebind(`
					UPDATE messages SET delivery_status = ?, updated_at = ? WHERE id = ?`),
					DeliveryFailed, NewMillis(now), msg.ID)
				if err != nil {
					return fmt.Errorf("failed to mark message %d failed: %w", msg.ID, err)
				}
				msg.DeliveryStatus = DeliveryFailed
				return nil
			}
			return s.deliverTx(ctx, tx, msg, true)
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to deliver scheduled message", "message_id", msg.ID, "error", err)
			errs = append(errs, fmt.Errorf("message %d: %w", msg.ID, err))
			continue
		}
		if msg.DeliveryStatus == DeliverySent {
			delivered++
		}
	}
	return delivered, errors.Join(errs...)
}

// GetMessage retrieves a message by id. Returns ErrNotFound if absent.
func (s *sqlxStore) GetMessage(ctx context.Context, id int64) (*Message, error) {
	var msg Message
	if err := s.db.GetContext(ctx, &msg, s.rebind(`SELECT * FROM messages WHERE id = ?`), id); err != nil {
		return nil, notFoundOr(err, "failed to get message %d", id)
	}
	return &msg, nil
}

// ListInbox groups the caller's visible messages by counterpart, most recent
// first. With unreadOnly only counterparts with unread messages are listed.
func (s *sqlxStore) ListInbox(ctx context.Context, username string, unreadOnly bool, limit, offset int) ([]InboxEntry, error) {
	const unreadExpr = `SUM(CASE WHEN incoming = 1 AND is_read = FALSE THEN 1 ELSE 0 END)`
	having := ""
	if unreadOnly {
		having = "HAVING " + unreadExpr + " > 0"
	}
	query := s.rebind(`
		SELECT with_user, MAX(sent_at) AS last_at, ` + unreadExpr + ` AS unread_count
		FROM (
			SELECT CASE WHEN sender_username = ? THEN recipient_username ELSE sender_username END AS with_user,
				CASE WHEN recipient_username = ? THEN 1 ELSE 0 END AS incoming,
				is_read, sent_at
			FROM messages
			WHERE ` + visibleToUser + `
		) thread
		GROUP BY with_user
		` + having + `
		ORDER BY last_at DESC, with_user ASC
		LIMIT ? OFFSET ?`)

	var entries []InboxEntry
	if err := s.db.SelectContext(ctx, &entries, query, username, username, username, username, limit, offset); err != nil {
		s.logger.ErrorContext(ctx, "Error listing inbox", "username", username, "error", err)
		return nil, fmt.Errorf("failed to list inbox for %s: %w", username, err)
	}

	lastQuery := s.rebind(`
		SELECT content, sender_username FROM messages
		WHERE ` + betweenUsers + `
		ORDER BY sent_at DESC, id DESC
		LIMIT 1`)
	for i := range entries {
		e := &entries[i]
		row := s.db.QueryRowxContext(ctx, lastQuery, username, e.WithUser, e.WithUser, username)
		if err := row.Scan(&e.LastMessage, &e.LastMessageFrom); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to load last message with %s: %w", e.WithUser, err)
		}
	}
	return entries, nil
}

// InboxTotals counts the caller's distinct counterparts, the counterparts
// with unread messages, and the unread messages themselves.
func (s *sqlxStore) InboxTotals(ctx context.Context, username string) (InboxTotals, error) {
	const unreadWhere = `recipient_username = ? AND is_read = FALSE AND is_deleted_by_recipient = FALSE AND ` + deliveredStates
	query := s.rebind(`
		SELECT
			(SELECT COUNT(DISTINCT CASE WHEN sender_username = ? THEN recipient_username ELSE sender_username END)
				FROM messages WHERE ` + visibleToUser + `) AS total_conversations,
			(SELECT COUNT(DISTINCT sender_username) FROM messages WHERE ` + unreadWhere + `) AS unread_conversations,
			(SELECT COUNT(*) FROM messages WHERE ` + unreadWhere + `) AS total_unread`)
	var totals InboxTotals
	if err := s.db.GetContext(ctx, &totals, query, username, username, username, username, username); err != nil {
		return InboxTotals{}, fmt.Errorf("failed to count inbox for %s: %w", username, err)
	}
	return totals, nil
}

// OpenConversation marks counterpart's unread messages to username as read and
// returns the visible thread oldest first, plus the participant count.
func (s *sqlxStore) OpenConversation(ctx context.Context, username, counterpart string, now time.Time) ([]Message, int, error) {
	var (
		messages     []Message
		participants = 2
	)
	err := s.withTx(ctx, "open_conversation", func(tx *sqlx.Tx) error {
		var unread []int64
		err := tx.SelectContext(ctx, &unread, tx.Rebind(`
			SELECT id FROM messages
			WHERE sender_username = ? AND recipient_username = ? AND is_read = FALSE
			AND is_deleted_by_recipient = FALSE AND `+deliveredStates),
			counterpart, username)
		if err != nil {
			return fmt.Errorf("failed to find unread messages: %w", err)
		}

		if len(unread) > 0 {
			query, args, err := sqlx.In(`UPDATE messages SET is_read = TRUE, read_at = ?, updated_at = ? WHERE id IN (?)`,
				NewNullMillis(now), NewMillis(now), unread)
			if err != nil {
				return fmt.Errorf("failed to build read update: %w", err)
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
				return fmt.Errorf("failed to mark messages read: %w", err)
			}
			for _, id := range unread {
				if err := insertReceiptTx(ctx, tx, id, username, ReceiptRead, now); err != nil {
					return err
				}
			}
		}

		conv, err := findDirectConversationTx(ctx, tx, username, counterpart)
		switch {
		case err == nil:
			participants = conv.ParticipantCount
			if _, err := tx.ExecContext(ctx, tx.Rebind(`
				UPDATE conversation_participants SET last_read_at = ? WHERE conversation_id = ? AND username = ?`),
				NewMillis(now), conv.ID, username); err != nil {
				return fmt.Errorf("failed to update last read time: %w", err)
			}
		case !errors.Is(err, ErrNotFound):
			return err
		}

		err = tx.SelectContext(ctx, &messages, tx.Rebind(`
			SELECT * FROM messages WHERE `+betweenUsers+`
			ORDER BY sent_at ASC, id ASC`),
			username, counterpart, counterpart, username)
		if err != nil {
			return fmt.Errorf("failed to load conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error opening conversation", "username", username, "with", counterpart, "error", err)
		return nil, 0, err
	}
	return messages, participants, nil
}

// MarkMessageRead marks a message read for its recipient. Already-read
// messages are left untouched.
func (s *sqlxStore) MarkMessageRead(ctx context.Context, id int64, recipient string, now time.Time) error {
	return s.withTx(ctx, "mark_read", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE messages SET is_read = TRUE, read_at = ?, updated_at = ?
			WHERE id = ? AND recipient_username = ? AND is_read = FALSE`),
			NewNullMillis(now), NewMillis(now), id, recipient)
		if err != nil {
			return fmt.Errorf("failed to mark message %d read: %w", id, err)
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return err
		}
		return insertReceiptTx(ctx, tx, id, recipient, ReceiptRead, now)
	})
}

// SetMessageArchived sets the archive flag for one side of the message.
func (s *sqlxStore) SetMessageArchived(ctx context.Context, id int64, side Side, archived bool, now time.Time) error {
	query := s.rebind(`UPDATE messages SET ` + side.archivedColumn() + ` = ?, updated_at = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, archived, NewMillis(now), id)
	if err != nil {
		return fmt.Errorf("failed to archive message %d: %w", id, err)
	}
	return expectAffected(res)
}

// DeleteMessage hides the message from one party. Once both parties have
// deleted it the row is stamped with deleted_at; it is never removed.
func (s *sqlxStore) DeleteMessage(ctx context.Context, id int64, side Side, username string, now time.Time) error {
	partyColumn := "recipient_username"
	if side == SideSender {
		partyColumn = "sender_username"
	}

	return s.withTx(ctx, "delete_message", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE messages SET `+side.deletedColumn()+` = TRUE, updated_at = ?
			WHERE id = ? AND `+partyColumn+` = ?`),
			NewMillis(now), id, username)
		if err != nil {
			return fmt.Errorf("failed to delete message %d: %w", id, err)
		}
		if err := expectAffected(res); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE messages SET deleted_at = ?
			WHERE id = ? AND is_deleted_by_sender = TRUE AND is_deleted_by_recipient = TRUE AND deleted_at IS NULL`),
			NewMillis(now), id); err != nil {
			return fmt.Errorf("failed to stamp deletion of message %d: %w", id, err)
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			DELETE FROM message_search_index WHERE message_id = ? AND username = ?`), id, username); err != nil {
			return fmt.Errorf("failed to unindex message %d: %w", id, err)
		}
		return nil
	})
}

// ListSentMessages returns delivered messages sent by username, newest first.
func (s *sqlxStore) ListSentMessages(ctx context.Context, username string, limit, offset int) ([]Message, error) {
	var messages []Message
	query := s.rebind(`
		SELECT * FROM messages
		WHERE sender_username = ? AND is_deleted_by_sender = FALSE AND ` + deliveredStates + `
		ORDER BY sent_at DESC, id DESC
		LIMIT ? OFFSET ?`)
	if err := s.db.SelectContext(ctx, &messages, query, username, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list sent messages for %s: %w", username, err)
	}
	return messages, nil
}

// ListScheduledMessages returns username's pending scheduled messages, soonest first.
func (s *sqlxStore) ListScheduledMessages(ctx context.Context, username string) ([]Message, error) {
	var messages []Message
	query := s.rebind(`
		SELECT * FROM messages
		WHERE sender_username = ? AND delivery_status = 'scheduled' AND is_deleted_by_sender = FALSE
		ORDER BY scheduled_for ASC, id ASC`)
	if err := s.db.SelectContext(ctx, &messages, query, username); err != nil {
		return nil, fmt.Errorf("failed to list scheduled messages for %s: %w", username, err)
	}
	return messages, nil
}

// SearchMessages finds username's visible messages whose subject or content
// contains query, case-insensitively.
func (s *sqlxStore) SearchMessages(ctx context.Context, username, query string, limit int) ([]Message, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	var messages []Message
	q := s.rebind(`
		SELECT m.* FROM message_search_index si
		JOIN messages m ON m.id = si.message_id
		WHERE si.username = ? AND si.body LIKE ? ESCAPE '\'
		ORDER BY m.sent_at DESC, m.id DESC
		LIMIT ?`)
	if err := s.db.SelectContext(ctx, &messages, q, username, pattern, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error searching messages", "username", username, "error", err)
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	return messages, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
