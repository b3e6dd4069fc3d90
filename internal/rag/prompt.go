package rag

import (
	"fmt"
	"strings"

	"github.com/raganything/ragserver/internal/conversation"
	"github.com/raganything/ragserver/internal/document"
	"github.com/raganything/ragserver/internal/llm"
)

// systemPrompt frames every completion request.
const systemPrompt = `You are a helpful AI assistant with access to a knowledge base.
Use the provided context to answer questions accurately and concisely.
If the context doesn't contain relevant information, say so clearly.
Always cite which parts of the context you used in your answer.`

// sourceSeparator joins the numbered context blocks.
const sourceSeparator = "\n\n---\n\n"

// maxHistoryMessages bounds how many prior turns are replayed to the
// model when history is enabled.
const maxHistoryMessages = 5

// formatContext renders retrieved chunks as numbered source blocks.
// Source numbers are 1-based and match the order of hits, so the model
// can cite "[Source 2]" and the caller can map it back.
func formatContext(hits []document.ScoredChunk) string {
	blocks := make([]string, len(hits))
	for i, hit := range hits {
		blocks[i] = fmt.Sprintf("[Source %d]\n%s", i+1, hit.Text)
	}
	return strings.Join(blocks, sourceSeparator)
}

// buildPrompt assembles the message sequence for the completion call:
// one system message, optionally the tail of the conversation history,
// then the user message carrying the retrieved context and question.
//
// With no retrieved context the user message says so explicitly and
// asks the model to flag that its answer is not grounded in the
// knowledge base.
func buildPrompt(query string, hits []document.ScoredChunk, history []conversation.Message) []llm.Message {
	messages := make([]llm.Message, 0, 2+maxHistoryMessages)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})

	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	// Each stored turn is replayed with its role and content verbatim.
	for _, msg := range history {
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}

	var userContent string
	if len(hits) > 0 {
		userContent = fmt.Sprintf(
			"Context from knowledge base:\n\n%s\n\n---\n\nQuestion: %s\n\nPlease answer based on the context provided above.",
			formatContext(hits), query)
	} else {
		userContent = fmt.Sprintf(
			"Question: %s\n\nNote: No relevant context was found in the knowledge base. Please answer based on your general knowledge and mention that this is not from the knowledge base.",
			query)
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userContent})

	return messages
}
