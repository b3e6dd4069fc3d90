// Package rag orchestrates the retrieval-augmented generation
// pipeline: ingesting documents into the vector store and answering
// queries by retrieving relevant chunks, building a grounded prompt
// and persisting the resulting exchange.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/raganything/ragserver/internal/chunker"
	"github.com/raganything/ragserver/internal/conversation"
	"github.com/raganything/ragserver/internal/document"
	"github.com/raganything/ragserver/internal/llm"
)

// Sentinel errors. Check with errors.Is.
var (
	// ErrEmptyQuery indicates Query was called without a question.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrEmptyContent indicates Ingest was called without document content.
	ErrEmptyContent = errors.New("document content must not be empty")
)

// Embedder turns texts into vectors, one per input in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer generates a chat completion for a message sequence.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, opts llm.CompletionOptions) (*llm.Completion, error)
}

// DocumentStore is the slice of the document store the pipeline needs.
type DocumentStore interface {
	CreateWithChunks(ctx context.Context, doc document.Document, chunks []document.Chunk) (*document.Document, error)
	SearchChunks(ctx context.Context, embedding []float32, params document.SearchParams) ([]document.ScoredChunk, error)
}

// ConversationStore is the slice of the conversation store the
// pipeline needs.
type ConversationStore interface {
	Get(ctx context.Context, id uuid.UUID) (*conversation.Conversation, error)
	GetMessages(ctx context.Context, id uuid.UUID) ([]conversation.Message, error)
	AppendExchange(ctx context.Context, id *uuid.UUID, ex conversation.Exchange) (uuid.UUID, *conversation.Message, error)
}

// Config holds the pipeline tuning knobs.
type Config struct {
	TopK           int     // default result limit for retrieval
	Threshold      float64 // minimum similarity for a chunk to be used
	ChunkSize      int     // chunk window size in bytes
	ChunkOverlap   int     // overlap between consecutive windows
	IncludeHistory bool    // replay prior turns into the prompt
}

// Service runs the RAG pipeline. It is safe for concurrent use.
type Service struct {
	embedder Embedder
	complete Completer
	docs     DocumentStore
	convs    ConversationStore
	cfg      Config
	logger   *slog.Logger
}

// NewService wires the pipeline.
func NewService(embedder Embedder, completer Completer, docs DocumentStore, convs ConversationStore, cfg Config, logger *slog.Logger) (*Service, error) {
	if embedder == nil || completer == nil || docs == nil || convs == nil {
		return nil, fmt.Errorf("embedder, completer and stores are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		embedder: embedder,
		complete: completer,
		docs:     docs,
		convs:    convs,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// IngestRequest is a document to index.
type IngestRequest struct {
	Title    string
	Content  string
	Metadata map[string]any
}

// IngestResult reports what was stored.
type IngestResult struct {
	Document   *document.Document
	ChunkCount int
}

// Ingest chunks the content, embeds every chunk and stores the
// document with its chunks in one transaction. Embedding happens
// before the transaction so no connection is held during provider
// calls; a provider failure therefore writes nothing at all.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.Content == "" {
		return nil, ErrEmptyContent
	}

	texts, err := chunker.Split(req.Content, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("chunking document: %w", err)
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding chunks: got %d vectors for %d chunks", len(vectors), len(texts))
	}

	chunks := make([]document.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = document.Chunk{Text: text, Embedding: vectors[i]}
	}

	created, err := s.docs.CreateWithChunks(ctx, document.Document{
		Title:    req.Title,
		Content:  req.Content,
		Metadata: req.Metadata,
	}, chunks)
	if err != nil {
		return nil, fmt.Errorf("storing document: %w", err)
	}

	s.logger.Info("ingested document",
		"id", created.ID, "title", created.Title, "chunks", len(chunks))
	return &IngestResult{Document: created, ChunkCount: len(chunks)}, nil
}

// QueryRequest is a question against the knowledge base.
type QueryRequest struct {
	Query string

	// ConversationID continues an existing conversation. Nil starts a
	// new one.
	ConversationID *uuid.UUID

	// TopK overrides the configured retrieval limit when positive.
	TopK int
}

// Source describes one retrieved chunk that grounded the answer.
// Number matches the "[Source N]" labels in the prompt.
type Source struct {
	Number        int            `json:"number"`
	DocumentID    uuid.UUID      `json:"document_id"`
	DocumentTitle string         `json:"document_title"`
	ChunkID       uuid.UUID      `json:"chunk_id"`
	ChunkIndex    int            `json:"chunk_index"`
	Text          string         `json:"text"`
	Score         float64        `json:"score"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// QueryResponse is the generated answer with its provenance.
type QueryResponse struct {
	Answer         string    `json:"answer"`
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
	Sources        []Source  `json:"sources,omitempty"`
	Model          string    `json:"model"`
	Usage          llm.Usage `json:"usage"`
}

// Query answers a question using the knowledge base.
//
// Pipeline: resolve the conversation, embed the question, retrieve the
// most similar chunks above the threshold, build the grounded prompt,
// generate the completion, then persist the user question and the
// assistant answer atomically. A failure at any step before the final
// persist leaves no trace in the conversation history.
func (s *Service) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}

	// Fail fast on an unknown conversation before spending provider
	// calls on it.
	var history []conversation.Message
	if req.ConversationID != nil {
		if _, err := s.convs.Get(ctx, *req.ConversationID); err != nil {
			return nil, err
		}
		if s.cfg.IncludeHistory {
			var err error
			history, err = s.convs.GetMessages(ctx, *req.ConversationID)
			if err != nil {
				return nil, err
			}
		}
	}

	vectors, err := s.embedder.Embed(ctx, []string{req.Query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding query: got %d vectors for 1 input", len(vectors))
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	hits, err := s.docs.SearchChunks(ctx, vectors[0], document.SearchParams{
		TopK:      topK,
		Threshold: s.cfg.Threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	messages := buildPrompt(req.Query, hits, history)

	completion, err := s.complete.Complete(ctx, messages, llm.CompletionOptions{})
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	convID, assistant, err := s.convs.AppendExchange(ctx, req.ConversationID, conversation.Exchange{
		UserContent:      req.Query,
		AssistantContent: completion.Content,
		AssistantMetadata: map[string]any{
			"model":         completion.Model,
			"sources_count": len(hits),
			"usage": map[string]any{
				"prompt_tokens":     completion.Usage.PromptTokens,
				"completion_tokens": completion.Usage.CompletionTokens,
				"total_tokens":      completion.Usage.TotalTokens,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("persisting exchange: %w", err)
	}

	sources := make([]Source, len(hits))
	for i, hit := range hits {
		sources[i] = Source{
			Number:        i + 1,
			DocumentID:    hit.DocumentID,
			DocumentTitle: hit.DocumentTitle,
			ChunkID:       hit.ID,
			ChunkIndex:    hit.Index,
			Text:          hit.Text,
			Score:         hit.Score,
			Metadata:      hit.Metadata,
		}
	}

	s.logger.Info("answered query",
		"conversation_id", convID,
		"sources", len(sources),
		"model", completion.Model,
		"total_tokens", completion.Usage.TotalTokens,
	)

	return &QueryResponse{
		Answer:         completion.Content,
		ConversationID: convID,
		MessageID:      assistant.ID,
		Sources:        sources,
		Model:          completion.Model,
		Usage:          completion.Usage,
	}, nil
}
