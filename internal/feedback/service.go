// Package feedback collects product feedback from users and exposes it to
// staff.
package feedback

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/healingspace/healingspace/internal/apperrors"
	"github.com/healingspace/healingspace/internal/database"
)

const (
	MaxMessageLength  = 2000
	MaxCategoryLength = 50
	DefaultCategory   = "general"
	DefaultListLimit  = 50
	MaxListLimit      = 500
)

// Service stores and lists feedback.
type Service struct {
	store  database.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a feedback service.
func NewService(store database.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{store: store, logger: logger.With("component", "feedback"), now: time.Now}
}

// Submit records feedback from username.
func (s *Service) Submit(ctx context.Context, username, category, message string) (*database.Feedback, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apperrors.InvalidArg("message is required")
	}
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return nil, apperrors.InvalidArg(fmt.Sprintf("message must be %d characters or fewer", MaxMessageLength))
	}
	if category == "" {
		category = DefaultCategory
	}
	if utf8.RuneCountInString(category) > MaxCategoryLength {
		return nil, apperrors.InvalidArg(fmt.Sprintf("category must be %d characters or fewer", MaxCategoryLength))
	}

	fb := &database.Feedback{
		Username:  username,
		Category:  category,
		Message:   message,
		CreatedAt: database.NewMillis(s.now()),
	}
	if err := s.store.CreateFeedback(ctx, fb); err != nil {
		return nil, apperrors.Internal("failed to save feedback", err)
	}
	s.logger.InfoContext(ctx, "Feedback submitted", "id", fb.ID, "username", username, "category", category)
	return fb, nil
}

// All returns the most recent feedback, newest first.
func (s *Service) All(ctx context.Context, limit int) ([]database.Feedback, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	items, err := s.store.ListFeedback(ctx, limit)
	if err != nil {
		return nil, apperrors.Internal("failed to load feedback", err)
	}
	if items == nil {
		items = []database.Feedback{}
	}
	return items, nil
}
