package database

// Roles stored in users.role. RoleLegacyUser is read as RolePatient.
const (
	RolePatient    = "patient"
	RoleClinician  = "clinician"
	RoleDeveloper  = "developer"
	RoleLegacyUser = "user"
)

// Message delivery states.
const (
	DeliveryDraft     = "draft"
	DeliveryScheduled = "scheduled"
	DeliverySent      = "sent"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// Message kinds.
const (
	MessageTypeDirect    = "direct"
	MessageTypeGroup     = "group"
	MessageTypeSystem    = "system"
	MessageTypeBroadcast = "broadcast"
)

// Conversation kinds.
const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
	ConversationThread = "thread"
)

// Receipt kinds.
const (
	ReceiptDelivered = "delivered"
	ReceiptRead      = "read"
	ReceiptTyping    = "typing"
)

// Notification channels.
const (
	NotificationInApp  = "in_app"
	NotificationEmail  = "email"
	NotificationPush   = "push"
	NotificationDigest = "digest"
)

// Side identifies which party of a message a per-party flag belongs to.
type Side string

const (
	SideSender    Side = "sender"
	SideRecipient Side = "recipient"
)

func (s Side) deletedColumn() string {
	if s == SideSender {
		return "is_deleted_by_sender"
	}
	return "is_deleted_by_recipient"
}

func (s Side) archivedColumn() string {
	if s == SideSender {
		return "is_archived_by_sender"
	}
	return "is_archived_by_recipient"
}

// User is an entry of the user directory.
type User struct {
	ID           int64  `db:"id"            json:"-"`
	Username     string `db:"username"      json:"username"`
	Role         string `db:"role"          json:"role"`
	PasswordHash string `db:"password_hash" json:"-"`
	CreatedAt    Millis `db:"created_at"    json:"created_at"`
}

// Conversation groups the messages exchanged between participants.
type Conversation struct {
	ID               int64      `db:"id"                json:"id"`
	Type             string     `db:"type"              json:"type"`
	Subject          string     `db:"subject"           json:"subject,omitempty"`
	CreatedBy        string     `db:"created_by"        json:"created_by"`
	CreatedAt        Millis     `db:"created_at"        json:"created_at"`
	LastMessageAt    NullMillis `db:"last_message_at"   json:"last_message_at"`
	ParticipantCount int        `db:"participant_count" json:"participant_count"`
	IsArchived       bool       `db:"is_archived"       json:"is_archived"`
}

// Message is a single message between a sender and a recipient. Deletion and
// archiving are tracked per party.
type Message struct {
	ID                    int64      `db:"id"                       json:"id"`
	ConversationID        *int64     `db:"conversation_id"          json:"conversation_id,omitempty"`
	SenderUsername        string     `db:"sender_username"          json:"sender"`
	RecipientUsername     string     `db:"recipient_username"       json:"recipient"`
	MessageType           string     `db:"message_type"             json:"message_type"`
	Subject               string     `db:"subject"                  json:"subject,omitempty"`
	Content               string     `db:"content"                  json:"content"`
	IsRead                bool       `db:"is_read"                  json:"is_read"`
	ReadAt                NullMillis `db:"read_at"                  json:"read_at"`
	IsArchivedBySender    bool       `db:"is_archived_by_sender"    json:"-"`
	IsArchivedByRecipient bool       `db:"is_archived_by_recipient" json:"-"`
	IsDeletedBySender     bool       `db:"is_deleted_by_sender"     json:"-"`
	IsDeletedByRecipient  bool       `db:"is_deleted_by_recipient"  json:"-"`
	DeletedAt             NullMillis `db:"deleted_at"               json:"-"`
	ScheduledFor          NullMillis `db:"scheduled_for"            json:"scheduled_for,omitempty"`
	SentAt                NullMillis `db:"sent_at"                  json:"sent_at"`
	DeliveryStatus        string     `db:"delivery_status"          json:"delivery_status"`
	CreatedAt             Millis     `db:"created_at"               json:"created_at"`
	UpdatedAt             Millis     `db:"updated_at"               json:"-"`
}

// SideOf reports which party username is, or false if it is neither.
func (m *Message) SideOf(username string) (Side, bool) {
	switch username {
	case m.SenderUsername:
		return SideSender, true
	case m.RecipientUsername:
		return SideRecipient, true
	default:
		return "", false
	}
}

// VisibleTo reports whether username is a party that has not deleted the
// message and the message has been delivered to the recipient.
func (m *Message) VisibleTo(username string) bool {
	side, ok := m.SideOf(username)
	if !ok {
		return false
	}
	if side == SideSender {
		return !m.IsDeletedBySender
	}
	delivered := m.DeliveryStatus == DeliverySent || m.DeliveryStatus == DeliveryDelivered
	return delivered && !m.IsDeletedByRecipient
}

// InboxEntry summarises the conversation with one counterpart.
type InboxEntry struct {
	WithUser        string     `db:"with_user"    json:"with_user"`
	LastMessageAt   NullMillis `db:"last_at"      json:"last_message_time"`
	UnreadCount     int        `db:"unread_count" json:"unread_count"`
	LastMessage     string     `db:"-"            json:"last_message"`
	LastMessageFrom string     `db:"-"            json:"last_message_from"`
}

// InboxTotals are the caller-wide counters shown alongside the inbox page.
type InboxTotals struct {
	Conversations       int `db:"total_conversations"`
	UnreadConversations int `db:"unread_conversations"`
	Unread              int `db:"total_unread"`
}

// MessageTemplate is reusable message content owned by its creator.
type MessageTemplate struct {
	ID              int64  `db:"id"               json:"id"`
	CreatorUsername string `db:"creator_username" json:"creator"`
	Name            string `db:"name"             json:"name"`
	Content         string `db:"content"          json:"content"`
	Category        string `db:"category"         json:"category"`
	IsPublic        bool   `db:"is_public"        json:"is_public"`
	UsageCount      int    `db:"usage_count"      json:"usage_count"`
	CreatedAt       Millis `db:"created_at"       json:"created_at"`
}

// BlockedUser records that Blocker no longer receives messages from Blocked.
type BlockedUser struct {
	ID              int64  `db:"id"               json:"-"`
	BlockerUsername string `db:"blocker_username" json:"-"`
	BlockedUsername string `db:"blocked_username" json:"username"`
	Reason          string `db:"reason"           json:"reason,omitempty"`
	BlockedAt       Millis `db:"blocked_at"       json:"blocked_at"`
}

// Notification tells a recipient about a new message.
type Notification struct {
	ID                int64  `db:"id"                 json:"id"`
	RecipientUsername string `db:"recipient_username" json:"-"`
	MessageID         *int64 `db:"message_id"         json:"message_id,omitempty"`
	SenderUsername    string `db:"sender_username"    json:"sender,omitempty"`
	Type              string `db:"notification_type"  json:"type"`
	IsRead            bool   `db:"is_read"            json:"is_read"`
	CreatedAt         Millis `db:"created_at"         json:"created_at"`
}

// Feedback is free-form product feedback submitted by a user.
type Feedback struct {
	ID        int64  `db:"id"         json:"id"`
	Username  string `db:"username"   json:"username"`
	Category  string `db:"category"   json:"category"`
	Message   string `db:"message"    json:"message"`
	CreatedAt Millis `db:"created_at" json:"created_at"`
}

// MoodLog is a patient's daily wellness check-in. LogDate is the UTC day
// (YYYY-MM-DD) it counts towards; there is at most one per user and day.
type MoodLog struct {
	ID           int64   `db:"id"            json:"id"`
	Username     string  `db:"username"      json:"-"`
	MoodVal      int     `db:"mood_val"      json:"mood_val"`
	SleepVal     float64 `db:"sleep_val"     json:"sleep_val"`
	Meds         string  `db:"meds"          json:"meds"`
	Notes        string  `db:"notes"         json:"notes"`
	WaterPints   float64 `db:"water_pints"   json:"water_pints"`
	ExerciseMins int     `db:"exercise_mins" json:"exercise_mins"`
	OutsideMins  int     `db:"outside_mins"  json:"outside_mins"`
	LogDate      string  `db:"log_date"      json:"log_date"`
	CreatedAt    Millis  `db:"created_at"    json:"timestamp"`
}

// GratitudeEntry is one line of a patient's gratitude journal.
type GratitudeEntry struct {
	ID        int64  `db:"id"         json:"id"`
	Username  string `db:"username"   json:"-"`
	Entry     string `db:"entry"      json:"entry"`
	CreatedAt Millis `db:"created_at" json:"timestamp"`
}

// Chat history senders.
const (
	ChatSenderUser = "user"
	ChatSenderAI   = "ai"
)

// ChatEntry is one turn of a therapy chat session.
type ChatEntry struct {
	ID        int64  `db:"id"         json:"-"`
	SessionID int64  `db:"session_id" json:"session_id"`
	Username  string `db:"username"   json:"-"`
	Sender    string `db:"sender"     json:"sender"`
	Message   string `db:"message"    json:"message"`
	CreatedAt Millis `db:"created_at" json:"timestamp"`
}

// Alert is a safety event raised for staff follow-up.
type Alert struct {
	ID        int64  `db:"id"         json:"id"`
	Username  string `db:"username"   json:"username"`
	AlertType string `db:"alert_type" json:"alert_type"`
	Details   string `db:"details"    json:"details"`
	CreatedAt Millis `db:"created_at" json:"created_at"`
}
