package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// CreateUser inserts a new directory entry. Returns ErrAlreadyExists when the
// username is taken.
func (s *sqlxStore) CreateUser(ctx context.Context, user *User) error {
	if user == nil || user.Username == "" {
		return fmt.Errorf("cannot create user without a username")
	}

	query := s.rebind(`
		INSERT INTO users (username, role, password_hash, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`)
	if err := s.db.GetContext(ctx, &user.ID, query, user.Username, user.Role, user.PasswordHash, user.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		s.logger.ErrorContext(ctx, "Error creating user", "username", user.Username, "error", err)
		return fmt.Errorf("failed to create user %s: %w", user.Username, err)
	}
	return nil
}

// GetUser retrieves a user by username. Returns ErrNotFound if absent.
func (s *sqlxStore) GetUser(ctx context.Context, username string) (*User, error) {
	var user User
	err := s.db.GetContext(ctx, &user, s.rebind(`SELECT * FROM users WHERE username = ?`), username)
	if err != nil {
		return nil, notFoundOr(err, "failed to get user %s", username)
	}
	if user.Role == RoleLegacyUser {
		user.Role = RolePatient
	}
	return &user, nil
}

// ListBroadcastRecipients returns every user holding one of roles, except
// sender and those who blocked sender. The legacy "user" role counts as patient.
func (s *sqlxStore) ListBroadcastRecipients(ctx context.Context, sender string, roles []string) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	for _, role := range roles {
		if role == RolePatient {
			roles = append(roles[:len(roles):len(roles)], RoleLegacyUser)
			break
		}
	}
	query, args, err := sqlx.In(`
		SELECT username FROM users
		WHERE username <> ? AND role IN (?)
		  AND username NOT IN (SELECT blocker_username FROM blocked_users WHERE blocked_username = ?)
		ORDER BY username`, sender, roles, sender)
	if err != nil {
		return nil, fmt.Errorf("failed to build recipient query: %w", err)
	}
	var usernames []string
	if err := s.db.SelectContext(ctx, &usernames, s.rebind(query), args...); err != nil {
		s.logger.ErrorContext(ctx, "Error listing broadcast recipients", "sender", sender, "error", err)
		return nil, fmt.Errorf("failed to list broadcast recipients: %w", err)
	}
	return usernames, nil
}
