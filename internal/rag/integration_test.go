package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raganything/ragserver/internal/config"
	"github.com/raganything/ragserver/internal/conversation"
	"github.com/raganything/ragserver/internal/document"
	"github.com/raganything/ragserver/internal/llm"
	"github.com/raganything/ragserver/internal/log"
	"github.com/raganything/ragserver/internal/testutil"
)

// constantEmbedder maps every text to the same unit vector so any
// stored chunk matches any query with cosine similarity 1. That keeps
// retrieval deterministic while the stores underneath are real.
type constantEmbedder struct {
	err error
}

func (e *constantEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, config.VectorDimension)
		vec[0] = 1
		vectors[i] = vec
	}
	return vectors, nil
}

type integrationEnv struct {
	svc      *Service
	docs     *document.Store
	convs    *conversation.Store
	embedder *constantEmbedder
	complete *mockCompleter
}

func setupIntegration(t *testing.T) *integrationEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := testutil.SetupTestDB(t)

	docs, err := document.NewStore(db.Pool, log.NewNop())
	require.NoError(t, err)
	convs, err := conversation.NewStore(db.Pool, log.NewNop())
	require.NoError(t, err)

	embedder := &constantEmbedder{}
	completer := &mockCompleter{response: llm.Completion{
		Content: "The sky is blue because air molecules scatter short wavelengths of sunlight.",
		Model:   "gpt-5-nano",
		Usage:   llm.Usage{PromptTokens: 40, CompletionTokens: 15, TotalTokens: 55},
	}}

	svc, err := NewService(embedder, completer, docs, convs, Config{
		TopK:           5,
		Threshold:      0.4,
		ChunkSize:      64,
		ChunkOverlap:   16,
		IncludeHistory: true,
	}, log.NewNop())
	require.NoError(t, err)

	return &integrationEnv{svc: svc, docs: docs, convs: convs, embedder: embedder, complete: completer}
}

func TestIntegration_IngestThenQuery(t *testing.T) {
	env := setupIntegration(t)
	ctx := context.Background()

	ingested, err := env.svc.Ingest(ctx, IngestRequest{
		Title: "Why the sky is blue",
		Content: "The sky appears blue because molecules in the atmosphere " +
			"scatter blue light from the sun more than they scatter red light. " +
			"This effect is called Rayleigh scattering and it grows stronger " +
			"as the wavelength of light gets shorter.",
		Metadata: map[string]any{"source": "physics-notes"},
	})
	require.NoError(t, err)
	assert.Greater(t, ingested.ChunkCount, 1)

	resp, err := env.svc.Query(ctx, QueryRequest{Query: "Why is the sky blue?"})
	require.NoError(t, err)

	assert.Equal(t, env.complete.response.Content, resp.Answer)
	assert.Equal(t, "gpt-5-nano", resp.Model)
	assert.Equal(t, 55, resp.Usage.TotalTokens)

	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, 1, resp.Sources[0].Number)
	assert.Equal(t, ingested.Document.ID, resp.Sources[0].DocumentID)
	assert.Equal(t, "Why the sky is blue", resp.Sources[0].DocumentTitle)
	assert.NotEqual(t, uuid.Nil, resp.Sources[0].ChunkID)
	assert.InDelta(t, 1.0, resp.Sources[0].Score, 1e-6)

	// The retrieved chunks must have reached the prompt.
	require.NotEmpty(t, env.complete.gotMsgs)
	var userMsg string
	for _, m := range env.complete.gotMsgs {
		if m.Role == llm.RoleUser {
			userMsg = m.Content
		}
	}
	assert.Contains(t, userMsg, "[Source 1]")
	assert.Contains(t, userMsg, "Why is the sky blue?")

	// The exchange was persisted: one user turn and one assistant turn.
	conv, err := env.convs.Get(ctx, resp.ConversationID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(conv.Title, "Why is the sky blue?"))

	messages, err := env.convs.GetMessages(ctx, resp.ConversationID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, conversation.RoleUser, messages[0].Role)
	assert.Equal(t, "Why is the sky blue?", messages[0].Content)
	assert.Equal(t, conversation.RoleAssistant, messages[1].Role)
	assert.Equal(t, resp.MessageID, messages[1].ID)
	assert.Equal(t, "gpt-5-nano", messages[1].Metadata["model"])
}

func TestIntegration_FollowUpContinuesConversation(t *testing.T) {
	env := setupIntegration(t)
	ctx := context.Background()

	_, err := env.svc.Ingest(ctx, IngestRequest{
		Title:   "Sky notes",
		Content: "Sunsets look red because sunlight passes through more atmosphere near the horizon.",
	})
	require.NoError(t, err)

	first, err := env.svc.Query(ctx, QueryRequest{Query: "Why is the sky blue?"})
	require.NoError(t, err)

	second, err := env.svc.Query(ctx, QueryRequest{
		Query:          "And why are sunsets red?",
		ConversationID: &first.ConversationID,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	messages, err := env.convs.GetMessages(ctx, first.ConversationID)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, "Why is the sky blue?", messages[0].Content)
	assert.Equal(t, "And why are sunsets red?", messages[2].Content)

	// The first exchange was replayed into the follow-up prompt.
	var sawHistory bool
	for _, m := range env.complete.gotMsgs {
		if m.Role == llm.RoleUser && m.Content == "Why is the sky blue?" {
			sawHistory = true
		}
	}
	assert.True(t, sawHistory, "prompt should carry the prior user turn")
}

func TestIntegration_UnknownConversationLeavesNoTrace(t *testing.T) {
	env := setupIntegration(t)
	ctx := context.Background()

	unknown := uuid.New()
	_, err := env.svc.Query(ctx, QueryRequest{Query: "q", ConversationID: &unknown})
	require.ErrorIs(t, err, conversation.ErrNotFound)

	_, err = env.convs.GetMessages(ctx, unknown)
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestIntegration_ProviderOutagePersistsNothing(t *testing.T) {
	env := setupIntegration(t)
	ctx := context.Background()

	env.embedder.err = errors.New("provider unavailable")

	_, err := env.svc.Ingest(ctx, IngestRequest{
		Title:   "Doomed",
		Content: "this content never reaches the store",
	})
	require.Error(t, err)

	count, err := env.docs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
