package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/healingspace/healingspace/internal/apperrors"
	"github.com/healingspace/healingspace/internal/database"
)

// UserLookup resolves a username to its directory entry.
type UserLookup interface {
	GetUser(ctx context.Context, username string) (*database.User, error)
}

// ErrorWriter renders an error response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Guard authenticates requests and checks the caller's role against a scope.
type Guard struct {
	tokens   *Tokens
	users    UserLookup
	writeErr ErrorWriter
}

// NewGuard creates a guard. writeErr renders 401 and 403 responses.
func NewGuard(tokens *Tokens, users UserLookup, writeErr ErrorWriter) *Guard {
	return &Guard{tokens: tokens, users: users, writeErr: writeErr}
}

// Require wraps next so that it only runs for authenticated callers whose
// role is allowed into scope. The role is read from the user directory on
// every request so that role changes apply immediately.
func (g *Guard) Require(scope Scope, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := g.authenticate(r)
		if err != nil {
			g.writeErr(w, r, err)
			return
		}
		if !Allowed(scope, p.Role) {
			g.writeErr(w, r, apperrors.Forbidden("you do not have access to this resource"))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func (g *Guard) authenticate(r *http.Request) (Principal, error) {
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return Principal{}, apperrors.Unauthenticated("authentication required")
	}
	username, err := g.tokens.Parse(token)
	if err != nil {
		return Principal{}, err
	}
	user, err := g.users.GetUser(r.Context(), username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return Principal{}, apperrors.Unauthenticated("account no longer exists")
		}
		return Principal{}, apperrors.Internal("failed to load caller", err)
	}
	return Principal{Username: user.Username, Role: NormalizeRole(user.Role)}, nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
