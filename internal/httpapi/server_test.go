package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healingspace/healingspace/internal/auth"
	"github.com/healingspace/healingspace/internal/config"
	"github.com/healingspace/healingspace/internal/database"
	"github.com/healingspace/healingspace/internal/feedback"
	"github.com/healingspace/healingspace/internal/messaging"
	"github.com/healingspace/healingspace/internal/metrics"
	"github.com/healingspace/healingspace/internal/therapy"
	"github.com/healingspace/healingspace/internal/wellness"
)

type testAPI struct {
	t      *testing.T
	srv    *httptest.Server
	store  database.Store
	tokens *auth.Tokens
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db, err := database.NewDB(config.DatabaseConfig{
		Driver:       database.DriverSQLite,
		DSN:          filepath.Join(t.TempDir(), "api.db"),
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	store := database.NewStore(db, nil)
	authCfg := config.AuthConfig{
		JWTSecret:        "0123456789abcdef0123456789abcdef",
		Issuer:           "healing-space-test",
		TokenTTL:         time.Hour,
		AllowStaffSignup: true,
	}
	tokens := auth.NewTokens(authCfg, nil)
	m := metrics.New()

	handler := NewHandler(Deps{
		Accounts: auth.NewAccounts(store, tokens, authCfg, nil),
		Guard:    auth.NewGuard(tokens, store, ErrorWriter(nil)),
		Messaging: messaging.NewService(store, config.MessagingConfig{
			MaxContentLength: 5000, DefaultPageSize: 20, MaxPageSize: 100,
		}, nil, messaging.WithMetrics(m)),
		Feedback: feedback.NewService(store, nil),
		Therapy:  therapy.NewService(store, nil, nil, therapy.WithMetrics(m)),
		Wellness: wellness.NewService(store, nil),
		Health:   store,
		Metrics:  m,
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	api := &testAPI{t: t, srv: srv, store: store, tokens: tokens}
	for username, role := range map[string]string{
		"alice": database.RolePatient,
		"bob":   database.RoleClinician,
		"dev":   database.RoleDeveloper,
		"carol": database.RolePatient,
	} {
		require.NoError(t, store.CreateUser(context.Background(), &database.User{
			Username: username, Role: role, CreatedAt: database.NewMillis(time.Now()),
		}))
	}
	return api
}

func (a *testAPI) do(method, path, username string, body any) (int, map[string]any) {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, reader)
	require.NoError(a.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if username != "" {
		token, _, err := a.tokens.Issue(username)
		require.NoError(a.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.srv.Client().Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(a.t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestSendAndInboxFlow(t *testing.T) {
	api := newTestAPI(t)

	status, body := api.do(http.MethodPost, "/api/messages/send", "alice", map[string]string{"recipient": "bob", "content": "Hi"})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Greater(t, body["message_id"], float64(0))
	assert.Equal(t, "sent", body["status"])
	assert.Equal(t, "bob", body["recipient"])

	status, body = api.do(http.MethodGet, "/api/messages/inbox", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["total_unread"])
	assert.Equal(t, float64(1), body["total_conversations"])
	assert.Equal(t, float64(1), body["page"])
	assert.Equal(t, float64(20), body["page_size"])
	conversations := body["conversations"].([]any)
	require.Len(t, conversations, 1)
	entry := conversations[0].(map[string]any)
	assert.Equal(t, "alice", entry["with_user"])
	assert.Equal(t, "Hi", entry["last_message"])

	status, body = api.do(http.MethodGet, "/api/messages/conversation/alice", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", body["with_user"])
	messages := body["messages"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, true, messages[0].(map[string]any)["is_read"])

	status, body = api.do(http.MethodGet, "/api/messages/inbox", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["total_unread"])
}

func TestSendValidationErrors(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name     string
		body     map[string]string
		status   int
		contains string
	}{
		{"self", map[string]string{"recipient": "alice", "content": "hi"}, http.StatusBadRequest, "yourself"},
		{"too long", map[string]string{"recipient": "bob", "content": strings.Repeat("a", 5001)}, http.StatusBadRequest, "5000"},
		{"empty", map[string]string{"recipient": "bob", "content": "  "}, http.StatusBadRequest, "content"},
		{"no recipient", map[string]string{"content": "hi"}, http.StatusBadRequest, "recipient"},
		{"long subject", map[string]string{"recipient": "bob", "subject": strings.Repeat("s", 256), "content": "hi"}, http.StatusBadRequest, "subject"},
		{"unknown", map[string]string{"recipient": "ghost", "content": "hi"}, http.StatusNotFound, "recipient"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := api.do(http.MethodPost, "/api/messages/send", "alice", tt.body)
			assert.Equal(t, tt.status, status)
			assert.Contains(t, body["error"], tt.contains)
		})
	}

	status, body := api.do(http.MethodGet, "/api/messages/sent", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["messages"])
}

func TestMalformedBody(t *testing.T) {
	api := newTestAPI(t)
	token, _, err := api.tokens.Issue("alice")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, api.srv.URL+"/api/messages/send", strings.NewReader("{not json"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := api.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFeedbackAccess(t *testing.T) {
	api := newTestAPI(t)

	status, _ := api.do(http.MethodPost, "/api/feedback", "alice", map[string]string{"message": "Helpful app"})
	require.Equal(t, http.StatusCreated, status)

	status, body := api.do(http.MethodGet, "/api/feedback/all", "alice", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.NotEmpty(t, body["error"])

	status, body = api.do(http.MethodGet, "/api/feedback/all", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["feedback"], 1)

	status, _ = api.do(http.MethodGet, "/api/feedback/all", "dev", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestUnauthenticated(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/api/messages/inbox", "/api/feedback/all", "/api/therapy/history"} {
		status, body := api.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status, path)
		assert.NotEmpty(t, body["error"], path)
	}

	status, _ := api.do(http.MethodGet, "/api/messages/inbox", "ghost", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestMarkReadIdempotent(t *testing.T) {
	api := newTestAPI(t)

	_, body := api.do(http.MethodPost, "/api/messages/send", "alice", map[string]string{"recipient": "bob", "content": "ping"})
	id := int64(body["message_id"].(float64))
	path := "/api/messages/" + itoa(id) + "/read"

	for range 2 {
		status, body := api.do(http.MethodPatch, path, "bob", nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["is_read"])
	}

	status, body := api.do(http.MethodPatch, path, "alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["is_read"])

	status, _ = api.do(http.MethodPatch, path, "carol", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = api.do(http.MethodPatch, "/api/messages/99999/read", "bob", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = api.do(http.MethodPatch, "/api/messages/abc/read", "bob", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSenderDeleteHidesOnlyForSender(t *testing.T) {
	api := newTestAPI(t)

	_, body := api.do(http.MethodPost, "/api/messages/send", "alice", map[string]string{"recipient": "bob", "content": "secret"})
	id := int64(body["message_id"].(float64))

	status, body := api.do(http.MethodDelete, "/api/messages/"+itoa(id), "alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["deleted"])

	_, body = api.do(http.MethodGet, "/api/messages/conversation/bob", "alice", nil)
	assert.Empty(t, body["messages"])

	_, body = api.do(http.MethodGet, "/api/messages/conversation/alice", "bob", nil)
	assert.Len(t, body["messages"], 1)

	status, _ = api.do(http.MethodDelete, "/api/messages/"+itoa(id), "alice", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestBroadcastRequiresDeveloper(t *testing.T) {
	api := newTestAPI(t)
	payload := map[string]string{"subject": "Notice", "content": "Maintenance at 22:00"}

	status, _ := api.do(http.MethodPost, "/api/messages/broadcast", "bob", payload)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := api.do(http.MethodPost, "/api/messages/broadcast", "dev", payload)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, float64(3), body["sent_count"])
}

func TestBroadcastRecipientFilter(t *testing.T) {
	api := newTestAPI(t)

	status, body := api.do(http.MethodPost, "/api/messages/broadcast", "dev", map[string]string{"content": "Patients only", "recipient_filter": "patients"})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, float64(2), body["sent_count"])
	assert.Equal(t, "patients", body["recipient_filter"])

	status, body = api.do(http.MethodPost, "/api/messages/broadcast", "dev", map[string]string{"content": "Clinicians only", "recipient_filter": "clinicians"})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, float64(1), body["sent_count"])

	status, body = api.do(http.MethodPost, "/api/messages/broadcast", "dev", map[string]string{"content": "Everyone", "recipient_filter": "all"})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, float64(3), body["sent_count"])

	status, body = api.do(http.MethodPost, "/api/messages/broadcast", "dev", map[string]string{"content": "x", "recipient_filter": "developers"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "recipient_filter")

	_, body = api.do(http.MethodGet, "/api/messages/inbox", "bob", nil)
	assert.Equal(t, float64(2), body["total_unread"])
	_, body = api.do(http.MethodGet, "/api/messages/inbox", "carol", nil)
	assert.Equal(t, float64(2), body["total_unread"])
}

func TestGroupMessage(t *testing.T) {
	api := newTestAPI(t)

	status, body := api.do(http.MethodPost, "/api/messages/group", "bob", map[string]any{
		"recipients": []string{"alice", "carol"},
		"subject":    "Group session",
		"content":    "Tomorrow at 10",
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Greater(t, body["conversation_id"], float64(0))
	assert.Equal(t, []any{"alice", "carol"}, body["recipients"])
	assert.Equal(t, float64(2), body["sent_count"])
	assert.Equal(t, "sent", body["status"])

	for _, username := range []string{"alice", "carol"} {
		_, body = api.do(http.MethodGet, "/api/messages/conversation/bob", username, nil)
		messages := body["messages"].([]any)
		require.Len(t, messages, 1, username)
		msg := messages[0].(map[string]any)
		assert.Equal(t, "group", msg["message_type"])
		assert.Equal(t, "Tomorrow at 10", msg["content"])
	}

	status, _ = api.do(http.MethodPost, "/api/messages/group", "bob", map[string]any{"recipients": []string{}, "content": "hi"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = api.do(http.MethodPost, "/api/messages/group", "bob", map[string]any{"recipients": []string{"alice", "ghost"}, "content": "hi"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "one or more recipients not found", body["error"])

	status, _ = api.do(http.MethodPost, "/api/messages/group", "", map[string]any{"recipients": []string{"alice"}, "content": "hi"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestInboxUnreadOnlyAndPages(t *testing.T) {
	api := newTestAPI(t)

	for _, from := range []string{"alice", "carol", "dev"} {
		status, _ := api.do(http.MethodPost, "/api/messages/send", from, map[string]string{"recipient": "bob", "content": "hi from " + from})
		require.Equal(t, http.StatusCreated, status)
	}
	api.do(http.MethodGet, "/api/messages/conversation/carol", "bob", nil)

	status, body := api.do(http.MethodGet, "/api/messages/inbox?limit=2", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(3), body["total_conversations"])
	assert.Equal(t, float64(2), body["total_pages"])
	assert.Equal(t, false, body["unread_only"])

	status, body = api.do(http.MethodGet, "/api/messages/inbox?unread_only=true&limit=1", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["total_conversations"])
	assert.Equal(t, float64(2), body["total_pages"])
	assert.Equal(t, true, body["unread_only"])
	conversations := body["conversations"].([]any)
	require.Len(t, conversations, 1)
	assert.NotEqual(t, "carol", conversations[0].(map[string]any)["with_user"])

	status, _ = api.do(http.MethodGet, "/api/messages/inbox?unread_only=maybe", "bob", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestArchiveChunkedBody(t *testing.T) {
	api := newTestAPI(t)
	_, body := api.do(http.MethodPost, "/api/messages/send", "alice", map[string]string{"recipient": "bob", "content": "Hi"})
	id := int64(body["message_id"].(float64))

	token, _, err := api.tokens.Issue("bob")
	require.NoError(t, err)
	// A reader of unknown length makes the client send a chunked body.
	req, err := http.NewRequest(http.MethodPatch, api.srv.URL+"/api/messages/"+itoa(id)+"/archive",
		io.MultiReader(strings.NewReader(`{"archived": false}`)))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := api.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, false, out["archived"])

	status, body := api.do(http.MethodPatch, "/api/messages/"+itoa(id)+"/archive", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["archived"])
}

func TestScheduleTemplatesBlocksNotifications(t *testing.T) {
	api := newTestAPI(t)

	status, body := api.do(http.MethodPost, "/api/messages/schedule", "alice", map[string]string{
		"recipient": "bob", "content": "reminder", "scheduled_for": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "scheduled", body["status"])

	status, _ = api.do(http.MethodPost, "/api/messages/schedule", "alice", map[string]string{
		"recipient": "bob", "content": "reminder", "scheduled_for": "tomorrow",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	_, body = api.do(http.MethodGet, "/api/messages/scheduled", "alice", nil)
	assert.Len(t, body["messages"], 1)

	status, body = api.do(http.MethodPost, "/api/messages/templates", "bob", map[string]any{"name": "Welcome", "content": "Welcome aboard", "is_public": true})
	require.Equal(t, http.StatusCreated, status)
	templateID := int64(body["id"].(float64))
	status, _ = api.do(http.MethodPost, "/api/messages/templates", "bob", map[string]any{"name": "Welcome", "content": "again"})
	assert.Equal(t, http.StatusConflict, status)

	status, body = api.do(http.MethodPost, "/api/messages/templates/"+itoa(templateID)+"/use", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Welcome aboard", body["content"])
	_, body = api.do(http.MethodGet, "/api/messages/templates", "alice", nil)
	assert.Len(t, body["templates"], 1)

	status, _ = api.do(http.MethodPost, "/api/messages/block", "bob", map[string]string{"username": "carol"})
	require.Equal(t, http.StatusCreated, status)
	status, _ = api.do(http.MethodPost, "/api/messages/block", "bob", map[string]string{"username": "carol"})
	assert.Equal(t, http.StatusConflict, status)
	status, _ = api.do(http.MethodPost, "/api/messages/send", "carol", map[string]string{"recipient": "bob", "content": "hey"})
	assert.Equal(t, http.StatusForbidden, status)
	_, body = api.do(http.MethodGet, "/api/messages/blocked", "bob", nil)
	assert.Len(t, body["blocked"], 1)
	status, _ = api.do(http.MethodDelete, "/api/messages/block/carol", "bob", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = api.do(http.MethodDelete, "/api/messages/block/carol", "bob", nil)
	assert.Equal(t, http.StatusNotFound, status)

	api.do(http.MethodPost, "/api/messages/send", "alice", map[string]string{"recipient": "bob", "content": "note"})
	status, body = api.do(http.MethodGet, "/api/messages/notifications?unread_only=true", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["unread_count"])
	notification := body["notifications"].([]any)[0].(map[string]any)
	notificationID := int64(notification["id"].(float64))

	status, _ = api.do(http.MethodPatch, "/api/messages/notifications/"+itoa(notificationID)+"/read", "bob", nil)
	assert.Equal(t, http.StatusOK, status)
	_, body = api.do(http.MethodGet, "/api/messages/notifications?unread_only=true", "bob", nil)
	assert.Equal(t, float64(0), body["unread_count"])
}

func TestSearchAndArchive(t *testing.T) {
	api := newTestAPI(t)

	_, body := api.do(http.MethodPost, "/api/messages/send", "alice", map[string]string{"recipient": "bob", "content": "Sleep has been better"})
	id := int64(body["message_id"].(float64))

	status, body := api.do(http.MethodGet, "/api/messages/search?q=sleep", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])

	status, _ = api.do(http.MethodGet, "/api/messages/search?q=s", "bob", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = api.do(http.MethodPatch, "/api/messages/"+itoa(id)+"/archive", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["archived"])

	status, body = api.do(http.MethodPatch, "/api/messages/"+itoa(id)+"/archive", "bob", map[string]bool{"archived": false})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["archived"])
}

func TestAuthEndpoints(t *testing.T) {
	api := newTestAPI(t)

	status, body := api.do(http.MethodPost, "/api/auth/register", "", map[string]string{"username": "erin", "password": "s3cure-pass"})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "patient", body["role"])

	status, _ = api.do(http.MethodPost, "/api/auth/register", "", map[string]string{"username": "erin", "password": "s3cure-pass"})
	assert.Equal(t, http.StatusConflict, status)

	status, body = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "erin", "password": "s3cure-pass"})
	require.Equal(t, http.StatusOK, status)
	token := body["token"].(string)

	req, err := http.NewRequest(http.MethodGet, api.srv.URL+"/api/messages/inbox", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := api.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	status, _ = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "erin", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestTherapyAndSafety(t *testing.T) {
	api := newTestAPI(t)

	status, body := api.do(http.MethodPost, "/api/therapy/chat", "alice", map[string]string{"message": "I had a rough day"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, therapy.FallbackReply, body["response"])
	assert.NotEmpty(t, body["timestamp"])
	assert.NotContains(t, body, "crisis_resources")

	status, _ = api.do(http.MethodPost, "/api/therapy/chat", "bob", map[string]string{"message": "hello"})
	assert.Equal(t, http.StatusForbidden, status)

	_, body = api.do(http.MethodGet, "/api/therapy/history", "alice", nil)
	assert.Len(t, body["history"], 2)

	status, body = api.do(http.MethodPost, "/api/safety/check", "alice", map[string]string{"text": "I feel like I want to die"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["is_high_risk"])
	assert.Contains(t, body["crisis_resources"], "988")

	status, body = api.do(http.MethodPost, "/api/safety/check", "alice", map[string]string{"text": "Feeling fine"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["is_high_risk"])
}

func TestWellnessIsPatientOnly(t *testing.T) {
	api := newTestAPI(t)

	routes := []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, "/api/mood/log", map[string]any{"mood_val": 5}},
		{http.MethodGet, "/api/mood/history", nil},
		{http.MethodPost, "/api/gratitude/log", map[string]string{"entry": "tea"}},
		{http.MethodGet, "/api/gratitude/history", nil},
	}
	for _, rt := range routes {
		for _, username := range []string{"bob", "dev"} {
			status, _ := api.do(rt.method, rt.path, username, rt.body)
			assert.Equal(t, http.StatusForbidden, status, "%s %s as %s", rt.method, rt.path, username)
		}
		status, _ := api.do(rt.method, rt.path, "", rt.body)
		assert.Equal(t, http.StatusUnauthorized, status, "%s %s anonymous", rt.method, rt.path)
	}
}

func TestMoodAndGratitude(t *testing.T) {
	api := newTestAPI(t)

	status, body := api.do(http.MethodPost, "/api/mood/log", "alice", map[string]any{
		"mood_val":      7,
		"sleep_val":     8,
		"meds":          []map[string]any{{"name": "Sertraline", "strength": 50, "quantity": 1}},
		"notes":         "Went for a walk",
		"water_pints":   3,
		"exercise_mins": 30,
		"outside_mins":  45,
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Greater(t, body["log_id"], float64(0))

	status, body = api.do(http.MethodPost, "/api/mood/log", "alice", map[string]any{"mood_val": 4})
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, body["error"], "already logged")

	status, body = api.do(http.MethodPost, "/api/mood/log", "carol", map[string]any{"mood_val": 12})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "mood_val")

	status, body = api.do(http.MethodGet, "/api/mood/history", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])
	entry := body["logs"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(7), entry["mood_val"])
	assert.Equal(t, "Sertraline 50mg (x1)", entry["meds"])
	assert.NotContains(t, entry, "username")

	_, body = api.do(http.MethodGet, "/api/mood/history", "carol", nil)
	assert.Equal(t, float64(0), body["count"])

	status, body = api.do(http.MethodPost, "/api/gratitude/log", "alice", map[string]string{"entry": "Sunny morning"})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Greater(t, body["log_id"], float64(0))

	status, _ = api.do(http.MethodPost, "/api/gratitude/log", "alice", map[string]string{"entry": ""})
	assert.Equal(t, http.StatusBadRequest, status)

	_, body = api.do(http.MethodGet, "/api/gratitude/history?limit=5", "alice", nil)
	assert.Equal(t, float64(1), body["count"])
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	status, body := api.do(http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	resp, err := api.srv.Client().Get(api.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "healingspace_http_requests_total")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
