// Package messaging implements messaging between users: direct, group and
// broadcast sends, inbox and conversation views, per-party read, archive and
// delete state, scheduling, templates, blocks and notifications.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/healingspace/healingspace/internal/apperrors"
	"github.com/healingspace/healingspace/internal/config"
	"github.com/healingspace/healingspace/internal/database"
	"github.com/healingspace/healingspace/internal/metrics"
)

// Service applies the messaging rules on top of the store.
type Service struct {
	store   database.Store
	cfg     config.MessagingConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithMetrics records delivery counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a messaging service.
func NewService(store database.Store, cfg config.MessagingConfig, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Service{
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "messaging"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send validates and delivers a direct message from sender.
func (s *Service) Send(ctx context.Context, sender string, req SendRequest) (*database.Message, error) {
	if err := req.normalize(sender, s.cfg.MaxContentLength); err != nil {
		return nil, err
	}
	if err := s.checkRecipient(ctx, sender, req.Recipient); err != nil {
		return nil, err
	}

	msg := &database.Message{
		SenderUsername:    sender,
		RecipientUsername: req.Recipient,
		MessageType:       database.MessageTypeDirect,
		Subject:           req.Subject,
		Content:           req.Content,
		SentAt:            database.NewNullMillis(s.now()),
	}
	if err := s.store.SendMessage(ctx, msg); err != nil {
		return nil, apperrors.Internal("failed to send message", err)
	}

	s.metrics.MessageSent(msg.MessageType, 1)
	s.logger.InfoContext(ctx, "Message sent", "message_id", msg.ID, "sender", sender, "recipient", req.Recipient)
	return msg, nil
}

// checkRecipient ensures recipient exists and accepts messages from sender.
func (s *Service) checkRecipient(ctx context.Context, sender, recipient string) error {
	if _, err := s.store.GetUser(ctx, recipient); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return apperrors.NotFound("recipient not found")
		}
		return apperrors.Internal("failed to look up recipient", err)
	}
	blocked, err := s.store.IsBlocked(ctx, recipient, sender)
	if err != nil {
		return apperrors.Internal("failed to check blocks", err)
	}
	if blocked {
		return apperrors.Forbidden("recipient is not accepting messages from you")
	}
	return nil
}

// InboxQuery selects one page of the inbox.
type InboxQuery struct {
	Page       int
	Limit      int
	UnreadOnly bool
}

// Inbox is one page of the caller's conversation partners.
type Inbox struct {
	Conversations      []database.InboxEntry
	TotalUnread        int
	TotalConversations int
	TotalPages         int
	Page               Page
}

// Inbox lists the caller's conversation partners, most recent activity first.
// TotalConversations and TotalPages describe the filtered listing.
func (s *Service) Inbox(ctx context.Context, username string, q InboxQuery) (*Inbox, error) {
	p := resolvePage(q.Page, q.Limit, s.cfg.DefaultPageSize, s.cfg.MaxPageSize)

	entries, err := s.store.ListInbox(ctx, username, q.UnreadOnly, p.Size, p.Offset())
	if err != nil {
		return nil, apperrors.Internal("failed to load inbox", err)
	}
	totals, err := s.store.InboxTotals(ctx, username)
	if err != nil {
		return nil, apperrors.Internal("failed to load inbox", err)
	}

	if entries == nil {
		entries = []database.InboxEntry{}
	}
	for i := range entries {
		entries[i].LastMessage = preview(entries[i].LastMessage)
	}
	total := totals.Conversations
	if q.UnreadOnly {
		total = totals.UnreadConversations
	}
	return &Inbox{
		Conversations:      entries,
		TotalUnread:        totals.Unread,
		TotalConversations: total,
		TotalPages:         (total + p.Size - 1) / p.Size,
		Page:               p,
	}, nil
}

// Thread is the visible history between the caller and one counterpart.
type Thread struct {
	WithUser         string
	Messages         []database.Message
	ParticipantCount int
}

// Conversation returns the thread with counterpart and marks the messages
// addressed to the caller as read.
func (s *Service) Conversation(ctx context.Context, username, counterpart string) (*Thread, error) {
	counterpart = strings.TrimSpace(counterpart)
	if counterpart == "" {
		return nil, apperrors.InvalidArg("username is required")
	}
	if counterpart == username {
		return nil, apperrors.InvalidArg("you cannot open a conversation with yourself")
	}
	if _, err := s.store.GetUser(ctx, counterpart); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperrors.NotFound("user not found")
		}
		return nil, apperrors.Internal("failed to look up user", err)
	}

	messages, participants, err := s.store.OpenConversation(ctx, username, counterpart, s.now())
	if err != nil {
		return nil, apperrors.Internal("failed to load conversation", err)
	}
	if messages == nil {
		messages = []database.Message{}
	}
	return &Thread{WithUser: counterpart, Messages: messages, ParticipantCount: participants}, nil
}

// visibleMessage loads a message the caller is a party to and has not
// deleted. Anything else is reported as not found so that existence is not
// disclosed.
func (s *Service) visibleMessage(ctx context.Context, username string, id int64) (*database.Message, database.Side, error) {
	msg, err := s.store.GetMessage(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, "", apperrors.NotFound("message not found")
		}
		return nil, "", apperrors.Internal("failed to load message", err)
	}
	if !msg.VisibleTo(username) {
		return nil, "", apperrors.NotFound("message not found")
	}
	side, _ := msg.SideOf(username)
	return msg, side, nil
}

// MarkRead marks the message read when the caller is its recipient. Repeated
// calls and calls by the sender leave it unchanged.
func (s *Service) MarkRead(ctx context.Context, username string, id int64) (*database.Message, error) {
	msg, side, err := s.visibleMessage(ctx, username, id)
	if err != nil {
		return nil, err
	}
	if side != database.SideRecipient || msg.IsRead {
		return msg, nil
	}

	now := s.now()
	if err := s.store.MarkMessageRead(ctx, id, username, now); err != nil {
		return nil, apperrors.Internal("failed to mark message read", err)
	}
	msg.IsRead = true
	msg.ReadAt = database.NewNullMillis(now)
	return msg, nil
}

// Archive sets or clears the caller's archive flag on a message.
func (s *Service) Archive(ctx context.Context, username string, id int64, archived bool) error {
	_, side, err := s.visibleMessage(ctx, username, id)
	if err != nil {
		return err
	}
	if err := s.store.SetMessageArchived(ctx, id, side, archived, s.now()); err != nil {
		return apperrors.Internal("failed to archive message", err)
	}
	return nil
}

// Delete hides the message from the caller only.
func (s *Service) Delete(ctx context.Context, username string, id int64) error {
	_, side, err := s.visibleMessage(ctx, username, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMessage(ctx, id, side, username, s.now()); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return apperrors.NotFound("message not found")
		}
		return apperrors.Internal("failed to delete message", err)
	}
	s.logger.InfoContext(ctx, "Message deleted for party", "message_id", id, "username", username, "side", side)
	return nil
}

// Sent lists messages the caller sent, newest first.
func (s *Service) Sent(ctx context.Context, username string, page, limit int) ([]database.Message, Page, error) {
	p := resolvePage(page, limit, s.cfg.DefaultPageSize, s.cfg.MaxPageSize)
	messages, err := s.store.ListSentMessages(ctx, username, p.Size, p.Offset())
	if err != nil {
		return nil, p, apperrors.Internal("failed to load sent messages", err)
	}
	if messages == nil {
		messages = []database.Message{}
	}
	return messages, p, nil
}

// Search finds the caller's visible messages containing query.
func (s *Service) Search(ctx context.Context, username, query string, limit int) ([]database.Message, error) {
	query = strings.TrimSpace(query)
	n := utf8.RuneCountInString(query)
	if n < MinSearchQueryLength {
		return nil, apperrors.InvalidArg(fmt.Sprintf("search query must be at least %d characters", MinSearchQueryLength))
	}
	if n > MaxSearchQueryLength {
		return nil, apperrors.InvalidArg(fmt.Sprintf("search query must be %d characters or fewer", MaxSearchQueryLength))
	}

	p := resolvePage(1, limit, s.cfg.DefaultPageSize, s.cfg.MaxPageSize)
	messages, err := s.store.SearchMessages(ctx, username, query, p.Size)
	if err != nil {
		return nil, apperrors.Internal("failed to search messages", err)
	}
	if messages == nil {
		messages = []database.Message{}
	}
	return messages, nil
}

// Broadcast sends content to every user in the requested audience who has not
// blocked the sender. Developers are never broadcast recipients.
func (s *Service) Broadcast(ctx context.Context, sender string, req BroadcastRequest) (int, error) {
	subject := strings.TrimSpace(req.Subject)
	content := strings.TrimSpace(req.Content)
	if err := validateContent(content, s.cfg.MaxContentLength); err != nil {
		return 0, err
	}
	if err := validateSubject(subject); err != nil {
		return 0, err
	}
	roles, err := req.roles()
	if err != nil {
		return 0, err
	}

	recipients, err := s.store.ListBroadcastRecipients(ctx, sender, roles)
	if err != nil {
		return 0, apperrors.Internal("failed to list recipients", err)
	}
	if len(recipients) == 0 {
		return 0, nil
	}

	sent, err := s.store.SendBroadcast(ctx, database.Message{
		SenderUsername: sender,
		MessageType:    database.MessageTypeBroadcast,
		Subject:        subject,
		Content:        content,
		SentAt:         database.NewNullMillis(s.now()),
	}, recipients)
	if err != nil {
		return 0, apperrors.Internal("failed to send broadcast", err)
	}

	s.metrics.MessageSent(database.MessageTypeBroadcast, sent)
	s.logger.InfoContext(ctx, "Broadcast sent", "sender", sender, "filter", req.RecipientFilter, "recipients", sent)
	return sent, nil
}

// GroupResult describes a delivered group message.
type GroupResult struct {
	ConversationID int64
	Recipients     []string
	SentAt         time.Time
}

// SendGroup opens a group conversation and delivers one copy of the message to
// each recipient. Every recipient must exist and accept messages from sender;
// otherwise nothing is sent.
func (s *Service) SendGroup(ctx context.Context, sender string, req GroupRequest) (*GroupResult, error) {
	if err := req.normalize(sender, s.cfg.MaxContentLength); err != nil {
		return nil, err
	}
	for _, recipient := range req.Recipients {
		if err := s.checkRecipient(ctx, sender, recipient); err != nil {
			if apperrors.CodeOf(err) == apperrors.CodeNotFound {
				return nil, apperrors.NotFound("one or more recipients not found")
			}
			return nil, err
		}
	}

	subject := req.Subject
	if subject == "" {
		subject = defaultGroupSubject
	}
	now := s.now()
	conversationID, err := s.store.SendGroupMessage(ctx, database.Message{
		SenderUsername: sender,
		MessageType:    database.MessageTypeGroup,
		Subject:        req.Subject,
		Content:        req.Content,
		SentAt:         database.NewNullMillis(now),
	}, subject, req.Recipients)
	if err != nil {
		return nil, apperrors.Internal("failed to send group message", err)
	}

	s.metrics.MessageSent(database.MessageTypeGroup, len(req.Recipients))
	s.logger.InfoContext(ctx, "Group message sent",
		"conversation_id", conversationID, "sender", sender, "recipients", len(req.Recipients))
	return &GroupResult{ConversationID: conversationID, Recipients: req.Recipients, SentAt: now}, nil
}

// Schedule queues a message for delivery at a future time.
func (s *Service) Schedule(ctx context.Context, sender string, req SendRequest, at time.Time) (*database.Message, error) {
	if err := req.normalize(sender, s.cfg.MaxContentLength); err != nil {
		return nil, err
	}
	now := s.now()
	if at.IsZero() {
		return nil, apperrors.InvalidArg("scheduled_for is required")
	}
	if !at.After(now) {
		return nil, apperrors.InvalidArg("scheduled_for must be in the future")
	}
	if err := s.checkRecipient(ctx, sender, req.Recipient); err != nil {
		return nil, err
	}

	msg := &database.Message{
		SenderUsername:    sender,
		RecipientUsername: req.Recipient,
		MessageType:       database.MessageTypeDirect,
		Subject:           req.Subject,
		Content:           req.Content,
		ScheduledFor:      database.NewNullMillis(at),
		CreatedAt:         database.NewMillis(now),
	}
	if err := s.store.ScheduleMessage(ctx, msg); err != nil {
		return nil, apperrors.Internal("failed to schedule message", err)
	}

	s.metrics.ScheduledEvent("queued", 1)
	s.logger.InfoContext(ctx, "Message scheduled", "message_id", msg.ID, "sender", sender, "scheduled_for", at)
	return msg, nil
}

// Scheduled lists the caller's messages still waiting for delivery.
func (s *Service) Scheduled(ctx context.Context, username string) ([]database.Message, error) {
	messages, err := s.store.ListScheduledMessages(ctx, username)
	if err != nil {
		return nil, apperrors.Internal("failed to load scheduled messages", err)
	}
	if messages == nil {
		messages = []database.Message{}
	}
	return messages, nil
}

// DeliverDue releases every scheduled message that has come due.
func (s *Service) DeliverDue(ctx context.Context) (int, error) {
	delivered, err := s.store.DeliverDueMessages(ctx, s.now())
	s.metrics.ScheduledEvent("delivered", delivered)
	s.metrics.MessageSent(database.MessageTypeDirect, delivered)
	if err != nil {
		return delivered, fmt.Errorf("deliver scheduled messages: %w", err)
	}
	return delivered, nil
}
