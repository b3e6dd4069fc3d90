package rag

import (
	"strings"
	"testing"

	"github.com/raganything/ragserver/internal/conversation"
	"github.com/raganything/ragserver/internal/document"
	"github.com/raganything/ragserver/internal/llm"
)

func TestBuildPrompt_WithContext(t *testing.T) {
	hits := []document.ScoredChunk{
		{Chunk: document.Chunk{Text: "pgvector stores embeddings"}, Score: 0.9},
		{Chunk: document.Chunk{Text: "HNSW speeds up search"}, Score: 0.8},
	}

	messages := buildPrompt("what is pgvector?", hits, nil)

	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2 (system + user)", len(messages))
	}
	if messages[0].Role != llm.RoleSystem {
		t.Errorf("first message role = %q, want system", messages[0].Role)
	}
	if messages[0].Content != systemPrompt {
		t.Errorf("system message content changed")
	}

	user := messages[1]
	if user.Role != llm.RoleUser {
		t.Errorf("last message role = %q, want user", user.Role)
	}
	for _, want := range []string{
		"[Source 1]\npgvector stores embeddings",
		"[Source 2]\nHNSW speeds up search",
		"Question: what is pgvector?",
		"Context from knowledge base:",
		"Please answer based on the context provided above.",
	} {
		if !strings.Contains(user.Content, want) {
			t.Errorf("user message missing %q\ngot: %s", want, user.Content)
		}
	}
	if !strings.Contains(user.Content, sourceSeparator) {
		t.Error("source blocks not separated")
	}
}

func TestBuildPrompt_NoContext(t *testing.T) {
	messages := buildPrompt("what is pgvector?", nil, nil)

	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	user := messages[1]
	if !strings.Contains(user.Content, "No relevant context was found in the knowledge base") {
		t.Errorf("missing no-context note: %s", user.Content)
	}
	if strings.Contains(user.Content, "[Source") {
		t.Error("no-context prompt must not contain source blocks")
	}
}

func TestBuildPrompt_HistoryTail(t *testing.T) {
	var history []conversation.Message
	for i := 0; i < 8; i++ {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAssistant
		}
		history = append(history, conversation.Message{Role: role, Content: strings.Repeat("m", i+1)})
	}

	messages := buildPrompt("next question", nil, history)

	// system + last 5 history turns + user question
	if len(messages) != 7 {
		t.Fatalf("got %d messages, want 7", len(messages))
	}
	// The oldest retained turn is history[3] (length 4).
	if messages[1].Content != "mmmm" {
		t.Errorf("history not trimmed to the tail: first retained = %q", messages[1].Content)
	}
	if messages[len(messages)-1].Role != llm.RoleUser {
		t.Error("question must be the final message")
	}
}

func TestBuildPrompt_ReplaysHistoryRolesVerbatim(t *testing.T) {
	history := []conversation.Message{
		{Role: conversation.RoleSystem, Content: "stored system note"},
		{Role: conversation.RoleUser, Content: "earlier question"},
		{Role: conversation.RoleAssistant, Content: "earlier answer"},
	}

	messages := buildPrompt("q", nil, history)

	// system prompt + 3 history turns + user question
	if len(messages) != 5 {
		t.Fatalf("got %d messages, want 5", len(messages))
	}
	for i, want := range history {
		got := messages[i+1]
		if got.Role != want.Role || got.Content != want.Content {
			t.Errorf("history turn %d = {%q %q}, want {%q %q}",
				i, got.Role, got.Content, want.Role, want.Content)
		}
	}
}

func TestFormatContext_Empty(t *testing.T) {
	if got := formatContext(nil); got != "" {
		t.Errorf("formatContext(nil) = %q, want empty", got)
	}
}
