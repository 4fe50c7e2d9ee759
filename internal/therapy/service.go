// Package therapy runs the AI therapy chat and the crisis safety checks that
// guard it.
package therapy

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
	"github.com/healingspace/healingspace/internal/metrics"
)

// FallbackReply is stored and returned when the model cannot answer.
const FallbackReply = "I apologize, but I'm having trouble connecting right now. Please try again in a moment."

const (
	MaxChatMessageLength = 5000
	DefaultHistorySize   = 10
	defaultHistoryLimit  = 50
	maxHistoryLimit      = 500

	alertTypeCrisis = "crisis"
)

// Alert sources recorded with each alert.
const (
	SourceTherapyChat = "therapy_chat"
	SourceSafetyCheck = "safety_check"
)

// ReplyGenerator produces assistant replies.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, username string, history []database.ChatEntry, message string) (string, error)
}

// CrisisNotifier sends an out-of-band alert to staff.
type CrisisNotifier interface {
	SendCrisisAlert(ctx context.Context, username, source string, at time.Time) error
}

// Service coordinates chat history, replies and safety alerts.
type Service struct {
	store       database.Store
	monitor     *Monitor
	ai          ReplyGenerator
	notifier    CrisisNotifier
	metrics     *metrics.Metrics
	historySize int
	logger      *slog.Logger
	now         func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithReplyGenerator enables AI replies. Without one every reply is the
// fallback text.
func WithReplyGenerator(ai ReplyGenerator) Option {
	return func(s *Service) { s.ai = ai }
}

// WithNotifier sends crisis alerts through n in addition to storing them.
func WithNotifier(n CrisisNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithMetrics records safety and reply counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithHistorySize sets how many earlier turns are sent to the model.
func WithHistorySize(n int) Option {
	return func(s *Service) { s.historySize = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a therapy service.
func NewService(store database.Store, monitor *Monitor, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if monitor == nil {
		monitor = NewMonitor()
	}
	s := &Service{
		store:       store,
		monitor:     monitor,
		historySize: DefaultHistorySize,
		logger:      logger.With("component", "therapy"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reply is the assistant's answer to one chat message.
type Reply struct {
	Response        string
	Timestamp       time.Time
	HighRisk        bool
	CrisisResources string
}

// Chat records the user's message, obtains a reply and records it too.
func (s *Service) Chat(ctx context.Context, username, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apperrors.InvalidArg("message is required")
	}
	if utf8.RuneCountInString(message) > MaxChatMessageLength {
		return nil, apperrors.InvalidArg(fmt.Sprintf("message must be %d characters or fewer", MaxChatMessageLength))
	}

	highRisk := s.monitor.IsHighRisk(message)
	if highRisk {
		s.raiseAlert(ctx, username, SourceTherapyChat)
	}

	sessionID, err := s.store.ActiveChatSession(ctx, username, s.now())
	if err != nil {
		return nil, apperrors.Internal("failed to open chat session", err)
	}

	var history []database.ChatEntry
	if s.historySize > 0 {
		history, err = s.store.RecentChatHistory(ctx, sessionID, s.historySize)
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to load chat history, continuing without it", "username", username, "error", err)
			history = nil
		}
	}

	asked := s.now()
	response := s.generate(ctx, username, history, message)
	answered := s.now()

	userTurn := &database.ChatEntry{
		SessionID: sessionID, Username: username, Sender: database.ChatSenderUser,
		Message: message, CreatedAt: database.NewMillis(asked),
	}
	aiTurn := &database.ChatEntry{
		SessionID: sessionID, Username: username, Sender: database.ChatSenderAI,
		Message: response, CreatedAt: database.NewMillis(answered),
	}
	if err := s.store.AppendChatHistory(ctx, userTurn, aiTurn); err != nil {
		return nil, apperrors.Internal("failed to save chat history", err)
	}

	reply := &Reply{Response: response, Timestamp: answered, HighRisk: highRisk}
	if highRisk {
		reply.CrisisResources = CrisisResources
	}
	return reply, nil
}

func (s *Service) generate(ctx context.Context, username string, history []database.ChatEntry, message string) string {
	if s.ai == nil {
		s.metrics.TherapyReply("disabled")
		return FallbackReply
	}
	response, err := s.ai.GenerateReply(ctx, username, history, message)
	if err != nil || strings.TrimSpace(response) == "" {
		s.logger.ErrorContext(ctx, "AI reply failed, using fallback", "username", username, "error", err)
		s.metrics.TherapyReply("fallback")
		return FallbackReply
	}
	s.metrics.TherapyReply("ok")
	return strings.TrimSpace(response)
}

// History returns the caller's most recent chat turns, oldest first.
func (s *Service) History(ctx context.Context, username string, limit int) ([]database.ChatEntry, error) {
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}
	entries, err := s.store.ListChatHistory(ctx, username, limit)
	if err != nil {
		return nil, apperrors.Internal("failed to load chat history", err)
	}
	if entries == nil {
		entries = []database.ChatEntry{}
	}
	return entries, nil
}

// SafetyResult is the outcome of a standalone safety check.
type SafetyResult struct {
	HighRisk        bool
	CrisisResources string
}

// Check screens text and raises an alert for username when it is high risk.
func (s *Service) Check(ctx context.Context, username, text string) (*SafetyResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.InvalidArg("text is required")
	}
	if !s.monitor.IsHighRisk(text) {
		return &SafetyResult{}, nil
	}
	s.raiseAlert(ctx, username, SourceSafetyCheck)
	return &SafetyResult{HighRisk: true, CrisisResources: CrisisResources}, nil
}

// raiseAlert stores the alert and notifies staff. Failures are logged and do
// not block the caller's request.
func (s *Service) raiseAlert(ctx context.Context, username, source string) {
	now := s.now()
	s.metrics.SafetyAlert()

	alert := &database.Alert{
		Username:  username,
		AlertType: alertTypeCrisis,
		Details:   fmt.Sprintf("High risk language detected via %s", source),
		CreatedAt: database.NewMillis(now),
	}
	if err := s.store.CreateAlert(ctx, alert); err != nil {
		s.logger.ErrorContext(ctx, "Failed to record crisis alert", "username", username, "error", err)
	} else {
		s.logger.WarnContext(ctx, "Crisis alert raised", "username", username, "source", source, "alert_id", alert.ID)
	}

	if s.notifier != nil {
		if err := s.notifier.SendCrisisAlert(ctx, username, source, now); err != nil {
			s.logger.ErrorContext(ctx, "Failed to notify staff of crisis alert", "username", username, "error", err)
		}
	}
}
