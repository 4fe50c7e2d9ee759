// Package auth registers accounts, issues session tokens and guards HTTP
// routes by role.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/healingspace/healingspace/internal/apperrors"
	"github.com/healingspace/healingspace/internal/config"
	"github.com/healingspace/healingspace/internal/database"
)

const (
	minPasswordLength = 8
	// bcrypt ignores input beyond 72 bytes.
	maxPasswordBytes = 72
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,50}$`)

// Accounts registers users and authenticates them.
type Accounts struct {
	store      database.Store
	tokens     *Tokens
	allowStaff bool
	cost       int
	logger     *slog.Logger
	now        func() time.Time
}

// NewAccounts creates the account service.
func NewAccounts(store database.Store, tokens *Tokens, cfg config.AuthConfig, logger *slog.Logger) *Accounts {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Accounts{
		store:      store,
		tokens:     tokens,
		allowStaff: cfg.AllowStaffSignup,
		cost:       bcrypt.DefaultCost,
		logger:     logger.With("component", "auth"),
		now:        time.Now,
	}
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	Username  string
	Role      string
	ExpiresAt time.Time
}

// Register creates a new account. Role defaults to patient; staff roles
// require AllowStaffSignup.
func (a *Accounts) Register(ctx context.Context, username, password, role string) (*database.User, error) {
	username = strings.TrimSpace(username)
	role = strings.TrimSpace(role)
	if !usernamePattern.MatchString(username) {
		return nil, apperrors.InvalidArg("username must be 3-50 letters, digits, '.', '_' or '-'")
	}
	if len(password) < minPasswordLength {
		return nil, apperrors.InvalidArg(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordBytes {
		return nil, apperrors.InvalidArg(fmt.Sprintf("password must be %d bytes or fewer", maxPasswordBytes))
	}

	switch role {
	case "", database.RolePatient:
		role = database.RolePatient
	case database.RoleClinician, database.RoleDeveloper:
		if !a.allowStaff {
			return nil, apperrors.Forbidden("staff accounts cannot be self-registered")
		}
	default:
		return nil, apperrors.InvalidArg("role must be patient, clinician or developer")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, apperrors.Internal("failed to hash password", err)
	}

	user := &database.User{
		Username:     username,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    database.NewMillis(a.now()),
	}
	if err := a.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			return nil, apperrors.AlreadyExists("username is already taken")
		}
		return nil, apperrors.Internal("failed to create user", err)
	}
	a.logger.InfoContext(ctx, "User registered", "username", username, "role", role)
	return user, nil
}

// Login verifies the password and issues a session token.
func (a *Accounts) Login(ctx context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperrors.InvalidArg("username and password are required")
	}

	user, err := a.store.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperrors.Unauthenticated("invalid username or password")
		}
		return nil, apperrors.Internal("failed to load user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		a.logger.WarnContext(ctx, "Failed login", "username", username)
		return nil, apperrors.Unauthenticated("invalid username or password")
	}

	token, expires, err := a.tokens.Issue(user.Username)
	if err != nil {
		return nil, apperrors.Internal("failed to issue token", err)
	}
	return &Session{Token: token, Username: user.Username, Role: NormalizeRole(user.Role), ExpiresAt: expires}, nil
}
