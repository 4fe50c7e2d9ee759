package gemini

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/healingspace/healingspace/internal/config"
	"github.com/healingspace/healingspace/internal/database"
)

type fakeModels struct {
	errs     []error
	resp     *genai.GenerateContentResponse
	calls    int
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, _ string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.contents = contents
	f.config = cfg
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.resp, nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      genai.NewContentFromText(text, genai.RoleModel),
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func newTestClient(models contentGenerator, retries int) *sdkClient {
	return newSDKClient(models, config.GeminiConfig{
		ModelName:         "test-model",
		Temperature:       0.5,
		MaxOutputTokens:   100,
		SystemInstruction: "Be kind.",
		MaxRetries:        retries,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGenerateReplyBuildsConversation(t *testing.T) {
	models := &fakeModels{resp: textResponse("  That sounds hard.  ")}
	client := newTestClient(models, 0)

	history := []database.ChatEntry{
		{Sender: database.ChatSenderUser, Message: "Hi"},
		{Sender: database.ChatSenderAI, Message: "Hello, how are you?"},
	}
	reply, err := client.GenerateReply(context.Background(), "alice", history, "I feel stressed")
	require.NoError(t, err)
	assert.Equal(t, "That sounds hard.", reply)

	require.Len(t, models.contents, 3)
	assert.Equal(t, string(genai.RoleUser), models.contents[0].Role)
	assert.Equal(t, string(genai.RoleModel), models.contents[1].Role)
	assert.Equal(t, "I feel stressed", models.contents[2].Parts[0].Text)

	instruction := models.config.SystemInstruction.Parts[0].Text
	assert.Contains(t, instruction, "alice")
	assert.Contains(t, instruction, "Be kind.")
	assert.Equal(t, int32(100), models.config.MaxOutputTokens)
}

func TestGenerateReplyRetriesServerErrors(t *testing.T) {
	models := &fakeModels{
		errs: []error{&genai.APIError{Code: 503}, &genai.APIError{Code: 500}},
		resp: textResponse("ok"),
	}
	client := newTestClient(models, 2)

	reply, err := client.GenerateReply(context.Background(), "alice", nil, "hello")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Equal(t, 3, models.calls)
}

func TestGenerateReplyStopsOnClientError(t *testing.T) {
	models := &fakeModels{errs: []error{&genai.APIError{Code: 400}}}
	client := newTestClient(models, 3)

	_, err := client.GenerateReply(context.Background(), "alice", nil, "hello")
	require.Error(t, err)
	assert.Equal(t, 1, models.calls)

	models = &fakeModels{errs: []error{errors.New("network down")}}
	_, err = newTestClient(models, 3).GenerateReply(context.Background(), "alice", nil, "hello")
	require.Error(t, err)
	assert.Equal(t, 1, models.calls)
}

func TestGenerateReplyBlocked(t *testing.T) {
	models := &fakeModels{resp: &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{
			BlockReason:        genai.BlockedReasonSafety,
			BlockReasonMessage: "unsafe",
		},
	}}

	_, err := newTestClient(models, 0).GenerateReply(context.Background(), "alice", nil, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsafe")
}

func TestGenerateReplyEmpty(t *testing.T) {
	models := &fakeModels{resp: &genai.GenerateContentResponse{}}

	_, err := newTestClient(models, 0).GenerateReply(context.Background(), "alice", nil, "hello")
	assert.Error(t, err)
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), config.GeminiConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
