package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/raganything/ragserver/internal/conversation"
	"github.com/raganything/ragserver/internal/llm"
	"github.com/raganything/ragserver/internal/rag"
)

// querier answers questions against the knowledge base.
type querier interface {
	Query(ctx context.Context, req rag.QueryRequest) (*rag.QueryResponse, error)
}

// conversationStore is the slice of the conversation store the
// handlers need.
type conversationStore interface {
	Get(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error)
	GetMessages(ctx context.Context, id uuid.UUID) ([]conversation.Message, error)
}

type conversationHandler struct {
	rag    querier
	store  conversationStore
	logger *slog.Logger
}

type sendMessageRequest struct {
	Message        string     `json:"message"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	TopK           int        `json:"top_k,omitempty"`

	// IncludeSources defaults to true when omitted.
	IncludeSources *bool `json:"include_sources,omitempty"`
}

type sendMessageResponse struct {
	ConversationID uuid.UUID       `json:"conversation_id"`
	MessageID      uuid.UUID       `json:"message_id"`
	Query          string          `json:"query"`
	Response       string          `json:"response"`
	Sources        []rag.Source    `json:"sources,omitempty"`
	Metadata       messageMetadata `json:"metadata"`
}

type messageMetadata struct {
	Model        string    `json:"model"`
	Usage        llm.Usage `json:"usage"`
	SourcesCount int       `json:"sources_count"`
}

// sendMessage handles POST /api/v1/conversations/messages: the main
// RAG query operation. Omitting conversation_id starts a new
// conversation; the response carries the id to continue it.
func (h *conversationHandler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body", h.logger)
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "message is required", h.logger)
		return
	}
	if req.TopK < 0 {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "top_k must be positive", h.logger)
		return
	}

	resp, err := h.rag.Query(r.Context(), rag.QueryRequest{
		Query:          req.Message,
		ConversationID: req.ConversationID,
		TopK:           req.TopK,
	})
	if err != nil {
		h.logger.Error("answering query", "error", err)
		status, code := mapError(err)
		writeError(w, status, code, "failed to answer query", h.logger)
		return
	}

	out := sendMessageResponse{
		ConversationID: resp.ConversationID,
		MessageID:      resp.MessageID,
		Query:          req.Message,
		Response:       resp.Answer,
		Sources:        resp.Sources,
		Metadata: messageMetadata{
			Model:        resp.Model,
			Usage:        resp.Usage,
			SourcesCount: len(resp.Sources),
		},
	}
	if req.IncludeSources != nil && !*req.IncludeSources {
		out.Sources = nil
	}
	writeJSON(w, http.StatusOK, out, h.logger)
}

type conversationResponse struct {
	Conversation *conversation.Conversation `json:"conversation"`
	Messages     []conversation.Message     `json:"messages"`
}

// get handles GET /api/v1/conversations/{id}: the conversation with
// its full chronological message history.
func (h *conversationHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, h.logger)
	if !ok {
		return
	}

	conv, err := h.store.Get(r.Context(), id)
	if err != nil {
		status, code := mapError(err)
		writeError(w, status, code, "conversation not found", h.logger)
		return
	}

	messages, err := h.store.GetMessages(r.Context(), id)
	if err != nil {
		h.logger.Error("loading messages", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, codeInternalError, "failed to load messages", h.logger)
		return
	}
	if messages == nil {
		messages = []conversation.Message{}
	}

	writeJSON(w, http.StatusOK, conversationResponse{Conversation: conv, Messages: messages}, h.logger)
}
