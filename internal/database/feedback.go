package database

import (
	"context"
	"fmt"
)

// CreateFeedback stores a feedback entry.
func (s *sqlxStore) CreateFeedback(ctx context.Context, fb *Feedback) error {
	query := s.rebind(`
		INSERT INTO feedback (username, category, message, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`)
	if err := s.db.GetContext(ctx, &fb.ID, query, fb.Username, fb.Category, fb.Message, fb.CreatedAt); err != nil {
		s.logger.ErrorContext(ctx, "Error saving feedback", "username", fb.Username, "error", err)
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}

// ListFeedback returns the most recent feedback entries.
func (s *sqlxStore) ListFeedback(ctx context.Context, limit int) ([]Feedback, error) {
	var entries []Feedback
	query := s.rebind(`SELECT * FROM feedback ORDER BY created_at DESC, id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	return entries, nil
}
