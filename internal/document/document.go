// Package document stores documents and their embedded chunks in
// PostgreSQL with pgvector, and serves cosine similarity search over
// the chunk vectors.
package document

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors. Check with errors.Is.
var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidTopK indicates a non-positive result limit.
	ErrInvalidTopK = errors.New("top_k must be positive")

	// ErrInvalidThreshold indicates a similarity threshold outside [0, 1].
	ErrInvalidThreshold = errors.New("similarity threshold must be in [0, 1]")
)

// Document is a stored source text. Content holds the full original
// text; the chunk rows hold the embedded fragments used for retrieval.
type Document struct {
	ID        uuid.UUID      `json:"id"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Chunk is one embedded fragment of a document. Index is the fragment's
// zero-based position within its document.
type Chunk struct {
	ID         uuid.UUID      `json:"id"`
	DocumentID uuid.UUID      `json:"document_id"`
	Text       string         `json:"text"`
	Index      int            `json:"index"`
	Embedding  []float32      `json:"-"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ScoredChunk is a search hit: the chunk, its document's title, and the
// cosine similarity score in [0, 1] (1 = identical direction).
type ScoredChunk struct {
	Chunk
	DocumentTitle string  `json:"document_title"`
	Score         float64 `json:"score"`
}

// SearchParams bounds a similarity search.
type SearchParams struct {
	TopK      int     // maximum hits to return
	Threshold float64 // minimum similarity, inclusive
}
