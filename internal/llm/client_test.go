package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/raganything/ragserver/internal/log"
)

// fakeProvider is a minimal OpenAI-compatible endpoint backed by
// httptest. Handlers inspect the decoded request body and can fail a
// fixed number of times before succeeding.
type fakeProvider struct {
	t            *testing.T
	embedDim     int
	failuresLeft int
	failStatus   int
	lastBody     map[string]any
}

func (f *fakeProvider) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			f.t.Errorf("decode request body: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		f.lastBody = body

		if f.failuresLeft > 0 {
			f.failuresLeft--
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.failStatus)
			fmt.Fprintf(w, `{"error":{"message":"induced failure","type":"server_error"}}`)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/embeddings"):
			inputs, _ := body["input"].([]any)
			data := make([]map[string]any, len(inputs))
			for i := range inputs {
				vec := make([]float64, f.embedDim)
				vec[0] = float64(i + 1)
				data[i] = map[string]any{"object": "embedding", "index": i, "embedding": vec}
			}
			json.NewEncoder(w).Encode(map[string]any{
				"object": "list",
				"data":   data,
				"model":  "text-embedding-3-small",
				"usage":  map[string]any{"prompt_tokens": 3, "total_tokens": 3},
			})
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			json.NewEncoder(w).Encode(map[string]any{
				"id":      "chatcmpl-test",
				"object":  "chat.completion",
				"created": time.Now().Unix(),
				"model":   body["model"],
				"choices": []map[string]any{{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": "generated answer"},
					"finish_reason": "stop",
				}},
				"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 4, "total_tokens": 14},
			})
		default:
			f.t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	})
}

func newFakeClient(t *testing.T, provider *fakeProvider, chatModel string) *Client {
	t.Helper()
	srv := httptest.NewServer(provider.handler())
	t.Cleanup(srv.Close)

	c, err := New(Config{
		APIKey:         "sk-test",
		ChatModel:      chatModel,
		EmbeddingModel: "text-embedding-3-small",
		Dimension:      provider.embedDim,
		Temperature:    0.0,
		MaxTokens:      2048,
		BaseURL:        srv.URL,
		Retry:          fastRetry(),
	}, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_MissingAPIKey(t *testing.T) {
	_, err := New(Config{ChatModel: "gpt-4o"}, log.NewNop())
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("got %v, want ErrMissingAPIKey", err)
	}
}

func TestEmbed_ReturnsVectorsInInputOrder(t *testing.T) {
	provider := &fakeProvider{t: t, embedDim: 4}
	c := newFakeClient(t, provider, "gpt-4o")

	vectors, err := c.Embed(context.Background(), []string{"first", "second", "third"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vectors))
	}
	for i, vec := range vectors {
		if len(vec) != 4 {
			t.Errorf("vector %d has dimension %d, want 4", i, len(vec))
		}
		if vec[0] != float32(i+1) {
			t.Errorf("vector %d out of order: marker %g", i, vec[0])
		}
	}
}

func TestEmbed_EmptyInput(t *testing.T) {
	provider := &fakeProvider{t: t, embedDim: 4}
	c := newFakeClient(t, provider, "gpt-4o")

	vectors, err := c.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vectors != nil {
		t.Errorf("got %v, want nil", vectors)
	}
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	provider := &fakeProvider{t: t, embedDim: 4}
	srv := httptest.NewServer(provider.handler())
	t.Cleanup(srv.Close)

	c, err := New(Config{
		APIKey:         "sk-test",
		ChatModel:      "gpt-4o",
		EmbeddingModel: "text-embedding-3-small",
		Dimension:      1536, // provider returns 4-dim vectors
		BaseURL:        srv.URL,
		Retry:          fastRetry(),
	}, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.Embed(context.Background(), []string{"text"})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if !strings.Contains(err.Error(), "dimension") {
		t.Errorf("error does not mention dimension: %v", err)
	}
}

func TestEmbed_RetriesTransientFailure(t *testing.T) {
	provider := &fakeProvider{t: t, embedDim: 4, failuresLeft: 2, failStatus: http.StatusServiceUnavailable}
	c := newFakeClient(t, provider, "gpt-4o")

	vectors, err := c.Embed(context.Background(), []string{"text"})
	if err != nil {
		t.Fatalf("Embed after retries: %v", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("got %d vectors, want 1", len(vectors))
	}
}

func TestEmbed_ExhaustedRetriesWrapErrProvider(t *testing.T) {
	provider := &fakeProvider{t: t, embedDim: 4, failuresLeft: 10, failStatus: http.StatusTooManyRequests}
	c := newFakeClient(t, provider, "gpt-4o")

	_, err := c.Embed(context.Background(), []string{"text"})
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("got %v, want ErrProvider", err)
	}
}

func TestComplete_ReturnsContentAndUsage(t *testing.T) {
	provider := &fakeProvider{t: t, embedDim: 4}
	c := newFakeClient(t, provider, "gpt-4o")

	completion, err := c.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "be helpful"},
		{Role: RoleUser, Content: "question"},
	}, CompletionOptions{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completion.Content != "generated answer" {
		t.Errorf("Content = %q", completion.Content)
	}
	if completion.Usage.TotalTokens != 14 {
		t.Errorf("TotalTokens = %d, want 14", completion.Usage.TotalTokens)
	}
	if completion.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop", completion.FinishReason)
	}
}

func TestComplete_NoMessages(t *testing.T) {
	provider := &fakeProvider{t: t, embedDim: 4}
	c := newFakeClient(t, provider, "gpt-4o")

	_, err := c.Complete(context.Background(), nil, CompletionOptions{})
	if !errors.Is(err, ErrNoMessages) {
		t.Fatalf("got %v, want ErrNoMessages", err)
	}
}

func TestComplete_WireParamsClassicModel(t *testing.T) {
	provider := &fakeProvider{t: t, embedDim: 4}
	c := newFakeClient(t, provider, "gpt-4o")

	if _, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, CompletionOptions{}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if _, ok := provider.lastBody["max_tokens"]; !ok {
		t.Error("request body missing max_tokens")
	}
	if _, ok := provider.lastBody["max_completion_tokens"]; ok {
		t.Error("request body must not contain max_completion_tokens")
	}
	if _, ok := provider.lastBody["temperature"]; !ok {
		t.Error("request body missing temperature")
	}
}

func TestComplete_WireParamsReasoningModel(t *testing.T) {
	provider := &fakeProvider{t: t, embedDim: 4}
	c := newFakeClient(t, provider, "gpt-5-nano")

	if _, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, CompletionOptions{}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if _, ok := provider.lastBody["max_completion_tokens"]; !ok {
		t.Error("request body missing max_completion_tokens")
	}
	if _, ok := provider.lastBody["max_tokens"]; ok {
		t.Error("request body must not contain max_tokens")
	}
	if _, ok := provider.lastBody["temperature"]; ok {
		t.Error("request body must not contain temperature")
	}
}

func TestTestConnection(t *testing.T) {
	provider := &fakeProvider{t: t, embedDim: 4}
	c := newFakeClient(t, provider, "gpt-4o")

	if err := c.TestConnection(context.Background()); err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
}
