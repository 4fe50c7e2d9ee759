package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// CreateTemplate stores a new template. Names are unique per creator.
func (s *sqlxStore) CreateTemplate(ctx context.Context, tmpl *MessageTemplate) error {
	query := s.rebind(`
		INSERT INTO message_templates (creator_username, name, content, category, is_public, usage_count, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		RETURNING id`)
	if err := s.db.GetContext(ctx, &tmpl.ID, query,
		tmpl.CreatorUsername, tmpl.Name, tmpl.Content, tmpl.Category, tmpl.IsPublic, tmpl.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		s.logger.ErrorContext(ctx, "Error creating template", "creator", tmpl.CreatorUsername, "error", err)
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// ListTemplates returns the caller's own templates plus every public one,
// most used first.
func (s *sqlxStore) ListTemplates(ctx context.Context, username string) ([]MessageTemplate, error) {
	var templates []MessageTemplate
	query := s.rebind(`
		SELECT * FROM message_templates
		WHERE creator_username = ? OR is_public = TRUE
		ORDER BY usage_count DESC, name ASC, id ASC`)
	if err := s.db.SelectContext(ctx, &templates, query, username); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

// UseTemplate increments the usage counter of a template the caller may see
// and returns it.
func (s *sqlxStore) UseTemplate(ctx context.Context, id int64, username string) (*MessageTemplate, error) {
	var tmpl MessageTemplate
	err := s.withTx(ctx, "use_template", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE message_templates SET usage_count = usage_count + 1
			WHERE id = ? AND (creator_username = ? OR is_public = TRUE)`), id, username)
		if err != nil {
			return fmt.Errorf("failed to use template %d: %w", id, err)
		}
		if err := expectAffected(res); err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &tmpl, tx.Rebind(`SELECT * FROM message_templates WHERE id = ?`), id); err != nil {
			return notFoundOr(err, "failed to load template %d", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// BlockUser records a block. Returns ErrAlreadyExists for a duplicate pair.
func (s *sqlxStore) BlockUser(ctx context.Context, block *BlockedUser) error {
	query := s.rebind(`
		INSERT INTO blocked_users (blocker_username, blocked_username, reason, blocked_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`)
	if err := s.db.GetContext(ctx, &block.ID, query,
		block.BlockerUsername, block.BlockedUsername, block.Reason, block.BlockedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to block user: %w", err)
	}
	return nil
}

// UnblockUser removes a block. Returns ErrNotFound when no block exists.
func (s *sqlxStore) UnblockUser(ctx context.Context, blocker, blocked string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		DELETE FROM blocked_users WHERE blocker_username = ? AND blocked_username = ?`), blocker, blocked)
	if err != nil {
		return fmt.Errorf("failed to unblock user: %w", err)
	}
	return expectAffected(res)
}

// ListBlockedUsers returns the users blocker has blocked, newest first.
func (s *sqlxStore) ListBlockedUsers(ctx context.Context, blocker string) ([]BlockedUser, error) {
	var blocks []BlockedUser
	query := s.rebind(`
		SELECT * FROM blocked_users WHERE blocker_username = ?
		ORDER BY blocked_at DESC, id DESC`)
	if err := s.db.SelectContext(ctx, &blocks, query, blocker); err != nil {
		return nil, fmt.Errorf("failed to list blocked users: %w", err)
	}
	return blocks, nil
}

// IsBlocked reports whether blocker has blocked blocked.
func (s *sqlxStore) IsBlocked(ctx context.Context, blocker, blocked string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, s.rebind(`
		SELECT COUNT(*) FROM blocked_users WHERE blocker_username = ? AND blocked_username = ?`), blocker, blocked)
	if err != nil {
		return false, fmt.Errorf("failed to check block: %w", err)
	}
	return count > 0, nil
}

func isBlockedTx(ctx context.Context, tx *sqlx.Tx, blocker, blocked string) (bool, error) {
	var count int
	err := tx.GetContext(ctx, &count, tx.Rebind(`
		SELECT COUNT(*) FROM blocked_users WHERE blocker_username = ? AND blocked_username = ?`), blocker, blocked)
	if err != nil {
		return false, fmt.Errorf("failed to check block: %w", err)
	}
	return count > 0, nil
}
