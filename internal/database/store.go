package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrNotFound is returned when the requested row does not exist or is not
	// visible to the caller.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned when a uniqueness rule would be violated.
	ErrAlreadyExists = errors.New("record already exists")
)

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error
	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error

	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, username string) (*User, error)
	// ListBroadcastRecipients returns the users holding one of roles, except
	// sender and those who blocked sender.
	ListBroadcastRecipients(ctx context.Context, sender string, roles []string) ([]string, error)

	// SendMessage delivers msg immediately: it joins or creates the direct
	// conversation, inserts the message, and records receipt, index and
	// notification rows in one transaction.
	SendMessage(ctx context.Context, msg *Message) error
	// SendBroadcast delivers one copy of template to every recipient atomically.
	SendBroadcast(ctx context.Context, template Message, recipients []string) (int, error)
	// SendGroupMessage creates a group conversation and delivers a copy of
	// template to every recipient, returning the conversation id.
	SendGroupMessage(ctx context.Context, template Message, subject string, recipients []string) (int64, error)
	ScheduleMessage(ctx context.Context, msg *Message) error
	// DeliverDueMessages sends every scheduled message due at or before now.
	DeliverDueMessages(ctx context.Context, now time.Time) (int, error)
	GetMessage(ctx context.Context, id int64) (*Message, error)
	ListInbox(ctx context.Context, username string, unreadOnly bool, limit, offset int) ([]InboxEntry, error)
	InboxTotals(ctx context.Context, username string) (InboxTotals, error)
	// OpenConversation marks the counterpart's messages to username as read and
	// returns the visible thread in chronological order with the participant count.
	OpenConversation(ctx context.Context, username, counterpart string, now time.Time) ([]Message, int, error)
	MarkMessageRead(ctx context.Context, id int64, recipient string, now time.Time) error
	SetMessageArchived(ctx context.Context, id int64, side Side, archived bool, now time.Time) error
	DeleteMessage(ctx context.Context, id int64, side Side, username string, now time.Time) error
	ListSentMessages(ctx context.Context, username string, limit, offset int) ([]Message, error)
	ListScheduledMessages(ctx context.Context, username string) ([]Message, error)
	SearchMessages(ctx context.Context, username, query string, limit int) ([]Message, error)

	CreateTemplate(ctx context.Context, tmpl *MessageTemplate) error
	ListTemplates(ctx context.Context, username string) ([]MessageTemplate, error)
	UseTemplate(ctx context.Context, id int64, username string) (*MessageTemplate, error)

	BlockUser(ctx context.Context, block *BlockedUser) error
	UnblockUser(ctx context.Context, blocker, blocked string) error
	ListBlockedUsers(ctx context.Context, blocker string) ([]BlockedUser, error)
	IsBlocked(ctx context.Context, blocker, blocked string) (bool, error)

	ListNotifications(ctx context.Context, username string, unreadOnly bool, limit int) ([]Notification, error)
	CountUnreadNotifications(ctx context.Context, username string) (int, error)
	MarkNotificationRead(ctx context.Context, id int64, username string) error

	CreateFeedback(ctx context.Context, fb *Feedback) error
	ListFeedback(ctx context.Context, limit int) ([]Feedback, error)

	// CreateMoodLog returns ErrAlreadyExists when the user has already logged that day.
	CreateMoodLog(ctx context.Context, log *MoodLog) error
	ListMoodLogs(ctx context.Context, username string, limit int) ([]MoodLog, error)
	CreateGratitudeEntry(ctx context.Context, entry *GratitudeEntry) error
	ListGratitudeEntries(ctx context.Context, username string, limit int) ([]GratitudeEntry, error)

	// ActiveChatSession returns the caller's open therapy session, creating one if needed.
	ActiveChatSession(ctx context.Context, username string, now time.Time) (int64, error)
	// RecentChatHistory returns the last limit entries of a session, oldest first.
	RecentChatHistory(ctx context.Context, sessionID int64, limit int) ([]ChatEntry, error)
	AppendChatHistory(ctx context.Context, entries ...*ChatEntry) error
	ListChatHistory(ctx context.Context, username string, limit int) ([]ChatEntry, error)
	CreateAlert(ctx context.Context, alert *Alert) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	driver string
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		driver: driverOf(db),
		logger: logger.With("component", "store"),
	}
}

func driverOf(db *sqlx.DB) string {
	if db.DriverName() == "pgx" {
		return DriverPostgres
	}
	return DriverSQLite
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunSQLMaintenance reclaims space and refreshes planner statistics.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Running SQL maintenance", "driver", s.driver)
	statements := []string{"VACUUM", "ANALYZE"}
	if s.driver == DriverPostgres {
		statements = []string{"VACUUM ANALYZE"}
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.logger.ErrorContext(ctx, "SQL maintenance statement failed", "statement", stmt, "error", err)
			return fmt.Errorf("failed to run %s: %w", stmt, err)
		}
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success and rolling back
// on any error.
func (s *sqlxStore) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction", "op", op, "error", err)
		return fmt.Errorf("failed to begin transaction for %s: %w", op, err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			s.logger.WarnContext(ctx, "Error rolling back transaction", "op", op, "error", rollbackErr)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "op", op, "error", err)
		return fmt.Errorf("failed to commit transaction for %s: %w", op, err)
	}
	return nil
}

// rebind converts ? placeholders to the driver's bind style.
func (s *sqlxStore) rebind(query string) string {
	return s.db.Rebind(query)
}

// notFoundOr maps sql.ErrNoRows to ErrNotFound and wraps everything else.
func notFoundOr(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// expectAffected returns ErrNotFound when an update matched no rows.
func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
