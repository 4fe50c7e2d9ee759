package therapy

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/healingspace/healingspace/internal/apperrors"
	"github.com/healingspace/healingspace/internal/config"
	"github.com/healingspace/healingspace/internal/database"
	"github.com/healingspace/healingspace/internal/metrics"
)

type mockAI struct{ mock.Mock }

func (m *mockAI) GenerateReply(ctx context.Context, username string, history []database.ChatEntry, message string) (string, error) {
	args := m.Called(ctx, username, history, message)
	return args.String(0), args.Error(1)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) SendCrisisAlert(ctx context.Context, username, source string, at time.Time) error {
	return m.Called(ctx, username, source, at).Error(0)
}

func newTestStore(t *testing.T) database.Store {
	t.Helper()
	db, err := database.NewDB(config.DatabaseConfig{
		Driver:       database.DriverSQLite,
		DSN:          filepath.Join(t.TempDir(), "therapy.db"),
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	store := database.NewStore(db, nil)
	require.NoError(t, store.CreateUser(context.Background(), &database.User{
		Username: "alice", Role: database.RolePatient, CreatedAt: database.NewMillis(time.Now()),
	}))
	return store
}

func TestMonitor(t *testing.T) {
	m := NewMonitor("give up on everything")

	tests := []struct {
		text string
		want bool
	}{
		{"I had a nice day", false},
		{"Sometimes I think I'd be BETTER OFF DEAD", true},
		{"I don’t want to live like this", true},
		{"  i want to die ", true},
		{"I just want to give up on everything", true},
		{"thinking about suicidal ideation research", true},
		{"I have been feeling SUICIDAL lately", true},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.IsHighRisk(tt.text), tt.text)
	}
}

func TestChatWithAI(t *testing.T) {
	store := newTestStore(t)
	ai := new(mockAI)
	ai.On("GenerateReply", mock.Anything, "alice", mock.Anything, "Hello").Return("Hi alice, how are you?", nil).Once()
	ai.On("GenerateReply", mock.Anything, "alice", mock.MatchedBy(func(h []database.ChatEntry) bool {
		return len(h) == 2 && h[0].Sender == database.ChatSenderUser && h[1].Sender == database.ChatSenderAI
	}), "A bit anxious").Return("Let's try a breathing exercise.", nil).Once()

	svc := NewService(store, nil, nil, WithReplyGenerator(ai))
	ctx := context.Background()

	reply, err := svc.Chat(ctx, "alice", "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi alice, how are you?", reply.Response)
	assert.False(t, reply.HighRisk)
	assert.Empty(t, reply.CrisisResources)

	reply, err = svc.Chat(ctx, "alice", "A bit anxious")
	require.NoError(t, err)
	assert.Equal(t, "Let's try a breathing exercise.", reply.Response)

	history, err := svc.History(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "Hello", history[0].Message)
	assert.Equal(t, "Let's try a breathing exercise.", history[3].Message)
	ai.AssertExpectations(t)
}

func TestChatHistoryWindow(t *testing.T) {
	store := newTestStore(t)
	ai := new(mockAI)
	ai.On("GenerateReply", mock.Anything, "alice", mock.MatchedBy(func(h []database.ChatEntry) bool {
		return len(h) <= 3
	}), mock.Anything).Return("ok", nil)

	svc := NewService(store, nil, nil, WithReplyGenerator(ai), WithHistorySize(3))
	for range 4 {
		_, err := svc.Chat(context.Background(), "alice", "again")
		require.NoError(t, err)
	}
	ai.AssertNumberOfCalls(t, "GenerateReply", 4)
}

func TestChatFallsBackOnAIError(t *testing.T) {
	store := newTestStore(t)
	ai := new(mockAI)
	ai.On("GenerateReply", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("quota exceeded"))
	m := metrics.New()

	svc := NewService(store, nil, nil, WithReplyGenerator(ai), WithMetrics(m))
	reply, err := svc.Chat(context.Background(), "alice", "Hello")
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, reply.Response)

	history, err := svc.History(context.Background(), "alice", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, FallbackReply, history[1].Message)
	assert.Equal(t, database.ChatSenderAI, history[1].Sender)

	count, err := testutil.GatherAndCount(m.Registry(), "healingspace_therapy_replies_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestChatWithoutAIUsesFallback(t *testing.T) {
	svc := NewService(newTestStore(t), nil, nil)

	reply, err := svc.Chat(context.Background(), "alice", "Hello")
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, reply.Response)
}

func TestChatHighRiskAlerts(t *testing.T) {
	store := newTestStore(t)
	notifier := new(mockNotifier)
	notifier.On("SendCrisisAlert", mock.Anything, "alice", SourceTherapyChat, mock.Anything).Return(errors.New("telegram down")).Once()

	svc := NewService(store, nil, nil, WithNotifier(notifier))
	reply, err := svc.Chat(context.Background(), "alice", "I want to end my life")
	require.NoError(t, err)
	assert.True(t, reply.HighRisk)
	assert.Equal(t, CrisisResources, reply.CrisisResources)
	notifier.AssertExpectations(t)
}

func TestChatValidation(t *testing.T) {
	svc := NewService(newTestStore(t), nil, nil)

	_, err := svc.Chat(context.Background(), "alice", "   ")
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
}

func TestCheck(t *testing.T) {
	notifier := new(mockNotifier)
	notifier.On("SendCrisisAlert", mock.Anything, "alice", SourceSafetyCheck, mock.Anything).Return(nil).Once()
	svc := NewService(newTestStore(t), nil, nil, WithNotifier(notifier))
	ctx := context.Background()

	result, err := svc.Check(ctx, "alice", "Lovely weather")
	require.NoError(t, err)
	assert.False(t, result.HighRisk)
	assert.Empty(t, result.CrisisResources)

	result, err = svc.Check(ctx, "alice", "I keep having violent thoughts")
	require.NoError(t, err)
	assert.True(t, result.HighRisk)
	assert.Contains(t, result.CrisisResources, "988")

	_, err = svc.Check(ctx, "alice", "")
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
	notifier.AssertExpectations(t)
}
