package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/healingspace/healingspace/internal/apperrors"
	"github.com/healingspace/healingspace/internal/database"
	"github.com/healingspace/healingspace/internal/messaging"
)

type sendRequest struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Content   string `json:"content"`
}

type sendResponse struct {
	MessageID int64  `json:"message_id"`
	Status    string `json:"status"`
	Recipient string `json:"recipient"`
}

func (s *server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	msg, err := s.Messaging.Send(r.Context(), caller(r), messaging.SendRequest(req))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sendResponse{MessageID: msg.ID, Status: msg.DeliveryStatus, Recipient: msg.RecipientUsername})
}

type inboxResponse struct {
	Conversations      []database.InboxEntry `json:"conversations"`
	TotalUnread        int                   `json:"total_unread"`
	TotalConversations int                   `json:"total_conversations"`
	TotalPages         int                   `json:"total_pages"`
	Page               int                   `json:"page"`
	PageSize           int                   `json:"page_size"`
	UnreadOnly         bool                  `json:"unread_only"`
}

func (s *server) inbox(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pageParams(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	unreadOnly, err := queryBool(r, "unread_only")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	inbox, err := s.Messaging.Inbox(r.Context(), caller(r), messaging.InboxQuery{Page: page, Limit: limit, UnreadOnly: unreadOnly})
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inboxResponse{
		Conversations:      inbox.Conversations,
		TotalUnread:        inbox.TotalUnread,
		TotalConversations: inbox.TotalConversations,
		TotalPages:         inbox.TotalPages,
		Page:               inbox.Page.Number,
		PageSize:           inbox.Page.Size,
		UnreadOnly:         unreadOnly,
	})
}

func pageParams(r *http.Request) (int, int, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return 0, 0, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

type conversationResponse struct {
	Messages         []database.Message `json:"messages"`
	WithUser         string             `json:"with_user"`
	ParticipantCount int                `json:"participant_count"`
}

func (s *server) conversation(w http.ResponseWriter, r *http.Request) {
	thread, err := s.Messaging.Conversation(r.Context(), caller(r), r.PathValue("username"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conversationResponse{
		Messages:         thread.Messages,
		WithUser:         thread.WithUser,
		ParticipantCount: thread.ParticipantCount,
	})
}

func (s *server) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	msg, err := s.Messaging.MarkRead(r.Context(), caller(r), id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message_id": msg.ID, "is_read": msg.IsRead})
}

type archiveRequest struct {
	Archived *bool `json:"archived"`
}

func (s *server) archive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	// An empty body archives; {"archived": false} restores.
	archived := true
	var req archiveRequest
	if _, err := decodeOptionalJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if req.Archived != nil {
		archived = *req.Archived
	}
	if err := s.Messaging.Archive(r.Context(), caller(r), id, archived); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message_id": id, "archived": archived})
}

func (s *server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if err := s.Messaging.Delete(r.Context(), caller(r), id); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message_id": id, "deleted": true})
}

func (s *server) sent(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pageParams(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	messages, p, err := s.Messaging.Sent(r.Context(), caller(r), page, limit)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages, "page": p.Number, "page_size": p.Size})
}

func (s *server) search(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	query := r.URL.Query().Get("q")
	messages, err := s.Messaging.Search(r.Context(), caller(r), query, limit)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": strings.TrimSpace(query), "results": messages, "count": len(messages)})
}

type broadcastRequest struct {
	Subject         string `json:"subject"`
	Content         string `json:"content"`
	RecipientFilter string `json:"recipient_filter"`
}

func (s *server) broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	sent, err := s.Messaging.Broadcast(r.Context(), caller(r), messaging.BroadcastRequest(req))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	filter := req.RecipientFilter
	if filter == "" {
		filter = messaging.FilterAll
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sent_count": sent, "recipient_filter": filter})
}

type groupRequest struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Content    string   `json:"content"`
}

type groupResponse struct {
	ConversationID int64     `json:"conversation_id"`
	Recipients     []string  `json:"recipients"`
	SentCount      int       `json:"sent_count"`
	Status         string    `json:"status"`
	SentAt         time.Time `json:"sent_at"`
}

func (s *server) sendGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	res, err := s.Messaging.SendGroup(r.Context(), caller(r), messaging.GroupRequest(req))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, groupResponse{
		ConversationID: res.ConversationID,
		Recipients:     res.Recipients,
		SentCount:      len(res.Recipients),
		Status:         database.DeliverySent,
		SentAt:         res.SentAt,
	})
}

type scheduleRequest struct {
	Recipient    string `json:"recipient"`
	Subject      string `json:"subject"`
	Content      string `json:"content"`
	ScheduledFor string `json:"scheduled_for"`
}

func (s *server) schedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	var at time.Time
	if raw := strings.TrimSpace(req.ScheduledFor); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeErr(w, r, apperrors.InvalidArg("scheduled_for must be an RFC3339 timestamp"))
			return
		}
		at = parsed
	}
	msg, err := s.Messaging.Schedule(r.Context(), caller(r), messaging.SendRequest{
		Recipient: req.Recipient,
		Subject:   req.Subject,
		Content:   req.Content,
	}, at)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message_id":    msg.ID,
		"status":        msg.DeliveryStatus,
		"recipient":     msg.RecipientUsername,
		"scheduled_for": msg.ScheduledFor,
	})
}

func (s *server) scheduled(w http.ResponseWriter, r *http.Request) {
	messages, err := s.Messaging.Scheduled(r.Context(), caller(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type templateRequest struct {
	Name     string `json:"name"`
	Content  string `json:"content"`
	Category string `json:"category"`
	IsPublic bool   `json:"is_public"`
}

func (s *server) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	tmpl, err := s.Messaging.CreateTemplate(r.Context(), caller(r), messaging.TemplateRequest(req))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tmpl)
}

func (s *server) templates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.Messaging.Templates(r.Context(), caller(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

func (s *server) useTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	tmpl, err := s.Messaging.UseTemplate(r.Context(), caller(r), id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"template_id": tmpl.ID, "content": tmpl.Content, "usage_count": tmpl.UsageCount})
}

type blockRequest struct {
	Username string `json:"username"`
	Reason   string `json:"reason"`
}

func (s *server) block(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	block, err := s.Messaging.Block(r.Context(), caller(r), req.Username, req.Reason)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, block)
}

func (s *server) unblock(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	if err := s.Messaging.Unblock(r.Context(), caller(r), username); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"username": username, "blocked": false})
}

func (s *server) blocked(w http.ResponseWriter, r *http.Request) {
	blocks, err := s.Messaging.Blocked(r.Context(), caller(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocked": blocks})
}

func (s *server) notifications(w http.ResponseWriter, r *http.Request) {
	unreadOnly, err := queryBool(r, "unread_only")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	list, unread, err := s.Messaging.Notifications(r.Context(), caller(r), unreadOnly, limit)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list, "unread_count": unread})
}

func (s *server) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if err := s.Messaging.MarkNotificationRead(r.Context(), caller(r), id); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notification_id": id, "is_read": true})
}
