package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/raganything/ragserver/internal/conversation"
	"github.com/raganything/ragserver/internal/document"
	"github.com/raganything/ragserver/internal/llm"
	"github.com/raganything/ragserver/internal/rag"
)

// documentStore is the slice of the document store the handlers need.
type documentStore interface {
	Get(ctx context.Context, id uuid.UUID) (*document.Document, error)
	List(ctx context.Context, limit, offset int) ([]document.Document, error)
	GetChunks(ctx context.Context, documentID uuid.UUID) ([]document.Chunk, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ingester indexes documents into the knowledge base.
type ingester interface {
	Ingest(ctx context.Context, req rag.IngestRequest) (*rag.IngestResult, error)
}

type documentHandler struct {
	store  documentStore
	rag    ingester
	logger *slog.Logger
}

type createDocumentRequest struct {
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type createDocumentResponse struct {
	Document   *document.Document `json:"document"`
	ChunkCount int                `json:"chunk_count"`
}

// create handles POST /api/v1/documents.
func (h *documentHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body", h.logger)
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "title is required", h.logger)
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "content is required", h.logger)
		return
	}

	result, err := h.rag.Ingest(r.Context(), rag.IngestRequest{
		Title:    req.Title,
		Content:  req.Content,
		Metadata: req.Metadata,
	})
	if err != nil {
		h.logger.Error("ingesting document", "error", err, "title", req.Title)
		status, code := mapError(err)
		writeError(w, status, code, "failed to ingest document", h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, createDocumentResponse{
		Document:   result.Document,
		ChunkCount: result.ChunkCount,
	}, h.logger)
}

type listDocumentsResponse struct {
	Documents []document.Document `json:"documents"`
	Count     int                 `json:"count"`
}

// list handles GET /api/v1/documents.
func (h *documentHandler) list(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.List(r.Context(), 100, 0)
	if err != nil {
		h.logger.Error("listing documents", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "failed to list documents", h.logger)
		return
	}
	if docs == nil {
		docs = []document.Document{}
	}
	writeJSON(w, http.StatusOK, listDocumentsResponse{Documents: docs, Count: len(docs)}, h.logger)
}

type getDocumentResponse struct {
	Document *document.Document `json:"document"`
	Chunks   []document.Chunk   `json:"chunks,omitempty"`
}

// get handles GET /api/v1/documents/{id}. With ?include_chunks=true
// the chunk rows are returned in document order.
func (h *documentHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, h.logger)
	if !ok {
		return
	}

	doc, err := h.store.Get(r.Context(), id)
	if err != nil {
		status, code := mapError(err)
		writeError(w, status, code, "document not found", h.logger)
		return
	}

	resp := getDocumentResponse{Document: doc}
	if r.URL.Query().Get("include_chunks") == "true" {
		chunks, err := h.store.GetChunks(r.Context(), id)
		if err != nil {
			h.logger.Error("loading chunks", "error", err, "document_id", id)
			writeError(w, http.StatusInternalServerError, codeInternalError, "failed to load chunks", h.logger)
			return
		}
		resp.Chunks = chunks
	}
	writeJSON(w, http.StatusOK, resp, h.logger)
}

// delete handles DELETE /api/v1/documents/{id}.
func (h *documentHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		status, code := mapError(err)
		writeError(w, status, code, "document not found", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseUUID extracts and validates the {id} path parameter.
func parseUUID(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid id", logger)
		return uuid.Nil, false
	}
	return id, true
}

// mapError translates pipeline errors to an HTTP status and error code.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, document.ErrNotFound), errors.Is(err, conversation.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, rag.ErrEmptyQuery), errors.Is(err, rag.ErrEmptyContent),
		errors.Is(err, document.ErrInvalidTopK), errors.Is(err, document.ErrInvalidThreshold):
		return http.StatusBadRequest, codeInvalidRequest
	case errors.Is(err, llm.ErrProvider):
		return http.StatusBadGateway, codeProviderError
	default:
		return http.StatusInternalServerError, codeInternalError
	}
}
