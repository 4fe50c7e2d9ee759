package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/healingspace/healingspace/internal/apperrors"
	"github.com/healingspace/healingspace/internal/database"
)

const defaultTemplateCategory = "general"

// TemplateRequest describes a new template.
type TemplateRequest struct {
	Name     string
	Content  string
	Category string
	IsPublic bool
}

// CreateTemplate stores a template owned by username.
func (s *Service) CreateTemplate(ctx context.Context, username string, req TemplateRequest) (*database.MessageTemplate, error) {
	name := strings.TrimSpace(req.Name)
	content := strings.TrimSpace(req.Content)
	category := strings.TrimSpace(req.Category)
	if name == "" {
		return nil, apperrors.InvalidArg("name is required")
	}
	if utf8.RuneCountInString(name) > MaxTemplateNameLength {
		return nil, apperrors.InvalidArg(fmt.Sprintf("name must be %d characters or fewer", MaxTemplateNameLength))
	}
	if err := validateContent(content, s.cfg.MaxContentLength); err != nil {
		return nil, err
	}
	if category == "" {
		category = defaultTemplateCategory
	}

	tmpl := &database.MessageTemplate{
		CreatorUsername: username,
		Name:            name,
		Content:         content,
		Category:        category,
		IsPublic:        req.IsPublic,
		CreatedAt:       database.NewMillis(s.now()),
	}
	if err := s.store.CreateTemplate(ctx, tmpl); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			return nil, apperrors.AlreadyExists("a template with this name already exists")
		}
		return nil, apperrors.Internal("failed to create template", err)
	}
	return tmpl, nil
}

// Templates lists the caller's templates together with public ones.
func (s *Service) Templates(ctx context.Context, username string) ([]database.MessageTemplate, error) {
	templates, err := s.store.ListTemplates(ctx, username)
	if err != nil {
		return nil, apperrors.Internal("failed to load templates", err)
	}
	if templates == nil {
		templates = []database.MessageTemplate{}
	}
	return templates, nil
}

// UseTemplate counts a use of the template and returns it.
func (s *Service) UseTemplate(ctx context.Context, username string, id int64) (*database.MessageTemplate, error) {
	tmpl, err := s.store.UseTemplate(ctx, id, username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperrors.NotFound("template not found")
		}
		return nil, apperrors.Internal("failed to use template", err)
	}
	return tmpl, nil
}

// Block stops target from messaging username.
func (s *Service) Block(ctx context.Context, username, target, reason string) (*database.BlockedUser, error) {
	target = strings.TrimSpace(target)
	reason = strings.TrimSpace(reason)
	if target == "" {
		return nil, apperrors.InvalidArg("username is required")
	}
	if target == username {
		return nil, apperrors.InvalidArg("you cannot block yourself")
	}
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return nil, apperrors.InvalidArg(fmt.Sprintf("reason must be %d characters or fewer", MaxReasonLength))
	}
	if _, err := s.store.GetUser(ctx, target); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperrors.NotFound("user not found")
		}
		return nil, apperrors.Internal("failed to look up user", err)
	}

	block := &database.BlockedUser{
		BlockerUsername: username,
		BlockedUsername: target,
		Reason:          reason,
		BlockedAt:       database.NewMillis(s.now()),
	}
	if err := s.store.BlockUser(ctx, block); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			return nil, apperrors.AlreadyExists("user is already blocked")
		}
		return nil, apperrors.Internal("failed to block user", err)
	}
	s.logger.InfoContext(ctx, "User blocked", "blocker", username, "blocked", target)
	return block, nil
}

// Unblock lifts a block set by username.
func (s *Service) Unblock(ctx context.Context, username, target string) error {
	if err := s.store.UnblockUser(ctx, username, strings.TrimSpace(target)); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return apperrors.NotFound("user is not blocked")
		}
		return apperrors.Internal("failed to unblock user", err)
	}
	return nil
}

// Blocked lists the users the caller has blocked.
func (s *Service) Blocked(ctx context.Context, username string) ([]database.BlockedUser, error) {
	blocks, err := s.store.ListBlockedUsers(ctx, username)
	if err != nil {
		return nil, apperrors.Internal("failed to load blocked users", err)
	}
	if blocks == nil {
		blocks = []database.BlockedUser{}
	}
	return blocks, nil
}

// Notifications returns the caller's notifications and the unread total.
func (s *Service) Notifications(ctx context.Context, username string, unreadOnly bool, limit int) ([]database.Notification, int, error) {
	p := resolvePage(1, limit, s.cfg.DefaultPageSize, s.cfg.MaxPageSize)
	notifications, err := s.store.ListNotifications(ctx, username, unreadOnly, p.Size)
	if err != nil {
		return nil, 0, apperrors.Internal("failed to load notifications", err)
	}
	unread, err := s.store.CountUnreadNotifications(ctx, username)
	if err != nil {
		return nil, 0, apperrors.Internal("failed to count notifications", err)
	}
	if notifications == nil {
		notifications = []database.Notification{}
	}
	return notifications, unread, nil
}

// MarkNotificationRead marks one of the caller's notifications read.
func (s *Service) MarkNotificationRead(ctx context.Context, username string, id int64) error {
	if err := s.store.MarkNotificationRead(ctx, id, username); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return apperrors.NotFound("notification not found")
		}
		return apperrors.Internal("failed to mark notification read", err)
	}
	return nil
}
