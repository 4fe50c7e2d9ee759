// Package httpapi exposes the Healing Space JSON API over net/http.
package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/healingspace/healingspace/internal/auth"
	"github.com/healingspace/healingspace/internal/feedback"
	"github.com/healingspace/healingspace/internal/logger"
	"github.com/healingspace/healingspace/internal/messaging"
	"github.com/healingspace/healingspace/internal/metrics"
	"github.com/healingspace/healingspace/internal/therapy"
	"github.com/healingspace/healingspace/internal/wellness"
)

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the API is built on. Metrics may be nil.
type Deps struct {
	Accounts  *auth.Accounts
	Guard     *auth.Guard
	Messaging *messaging.Service
	Feedback  *feedback.Service
	Therapy   *therapy.Service
	Wellness  *wellness.Service
	Health    Pinger
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

type server struct {
	Deps
	log      *slog.Logger
	writeErr func(http.ResponseWriter, *http.Request, error)
}

// ErrorWriter returns the renderer used for API errors, for components such
// as the auth guard that respond on the API's behalf.
func ErrorWriter(log *slog.Logger) func(http.ResponseWriter, *http.Request, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return errorWriter(log)
}

// NewHandler builds the routed, instrumented and logged API handler.
func NewHandler(deps Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &server{Deps: deps, log: log.With("component", "http"), writeErr: ErrorWriter(log)}

	mux := http.NewServeMux()
	s.routes(mux)
	return logger.Middleware(s.log)(recoverPanic(s.log)(mux))
}

func (s *server) routes(mux *http.ServeMux) {
	public := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.Metrics.Instrument(pattern, h))
	}
	guarded := func(pattern string, scope auth.Scope, h http.HandlerFunc) {
		mux.Handle(pattern, s.Metrics.Instrument(pattern, s.Guard.Require(scope, h)))
	}

	public("GET /api/health", s.health)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics.Handler())
	}

	public("POST /api/auth/register", s.register)
	public("POST /api/auth/login", s.login)

	guarded("POST /api/messages/send", auth.ScopeMessaging, s.sendMessage)
	guarded("POST /api/messages/group", auth.ScopeMessaging, s.sendGroup)
	guarded("GET /api/messages/inbox", auth.ScopeMessaging, s.inbox)
	guarded("GET /api/messages/conversation/{username}", auth.ScopeMessaging, s.conversation)
	guarded("PATCH /api/messages/{id}/read", auth.ScopeMessaging, s.markRead)
	guarded("PATCH /api/messages/{id}/archive", auth.ScopeMessaging, s.archive)
	guarded("DELETE /api/messages/{id}", auth.ScopeMessaging, s.deleteMessage)
	guarded("GET /api/messages/sent", auth.ScopeMessaging, s.sent)
	guarded("GET /api/messages/search", auth.ScopeMessaging, s.search)
	guarded("POST /api/messages/broadcast", auth.ScopeDeveloper, s.broadcast)
	guarded("POST /api/messages/schedule", auth.ScopeMessaging, s.schedule)
	guarded("GET /api/messages/scheduled", auth.ScopeMessaging, s.scheduled)
	guarded("POST /api/messages/templates", auth.ScopeMessaging, s.createTemplate)
	guarded("GET /api/messages/templates", auth.ScopeMessaging, s.templates)
	guarded("POST /api/messages/templates/{id}/use", auth.ScopeMessaging, s.useTemplate)
	guarded("POST /api/messages/block", auth.ScopeMessaging, s.block)
	guarded("DELETE /api/messages/block/{username}", auth.ScopeMessaging, s.unblock)
	guarded("GET /api/messages/blocked", auth.ScopeMessaging, s.blocked)
	guarded("GET /api/messages/notifications", auth.ScopeMessaging, s.notifications)
	guarded("PATCH /api/messages/notifications/{id}/read", auth.ScopeMessaging, s.markNotificationRead)

	guarded("POST /api/feedback", auth.ScopeFeedback, s.submitFeedback)
	guarded("GET /api/feedback/all", auth.ScopeClinician, s.allFeedback)

	guarded("POST /api/therapy/chat", auth.ScopeTherapy, s.therapyChat)
	guarded("GET /api/therapy/history", auth.ScopeTherapy, s.therapyHistory)
	guarded("POST /api/safety/check", auth.ScopeMessaging, s.safetyCheck)

	guarded("POST /api/mood/log", auth.ScopePatient, s.logMood)
	guarded("GET /api/mood/history", auth.ScopePatient, s.moodHistory)
	guarded("POST /api/gratitude/log", auth.ScopePatient, s.logGratitude)
	guarded("GET /api/gratitude/history", auth.ScopePatient, s.gratitudeHistory)
}

// caller returns the authenticated username. Guarded routes always have one.
func caller(r *http.Request) string {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p.Username
}
