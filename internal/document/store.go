package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// documentCols is the standard SELECT column list for scanDocument.
const documentCols = `id, title, content, metadata, created_at, updated_at`

// chunkCols is the standard SELECT column list for scanChunks.
const chunkCols = `id, document_id, chunk_text, chunk_index, metadata, created_at`

// Store persists documents and chunks in PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a document Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// CreateWithChunks inserts a document and all of its chunks in a single
// transaction. Either the document and every chunk land together, or
// nothing is written; a partially indexed document is never visible.
//
// Chunks are assigned indexes 0..len(chunks)-1 in slice order; the
// caller supplies them in document order.
func (s *Store) CreateWithChunks(ctx context.Context, doc Document, chunks []Chunk) (*Document, error) {
	metadataJSON, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshaling document metadata: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	var created Document
	row := tx.QueryRow(ctx, `
		INSERT INTO documents (title, content, metadata)
		VALUES ($1, $2, $3)
		RETURNING `+documentCols,
		doc.Title, doc.Content, metadataJSON)
	if err := scanDocument(row, &created); err != nil {
		return nil, fmt.Errorf("inserting document: %w", err)
	}

	for i, chunk := range chunks {
		chunkMeta, err := marshalMetadata(chunk.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshaling chunk %d metadata: %w", i, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO document_chunks (document_id, chunk_text, chunk_index, embedding, metadata)
			VALUES ($1, $2, $3, $4, $5)`,
			created.ID, chunk.Text, i, pgvector.NewVector(chunk.Embedding), chunkMeta)
		if err != nil {
			return nil, fmt.Errorf("inserting chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing document transaction: %w", err)
	}

	s.logger.Debug("created document", "id", created.ID, "chunks", len(chunks))
	return &created, nil
}

// Get returns the document with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	var doc Document
	row := s.pool.QueryRow(ctx, `SELECT `+documentCols+` FROM documents WHERE id = $1`, id)
	if err := scanDocument(row, &doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying document: %w", err)
	}
	return &doc, nil
}

// List returns all documents, newest first. Chunk rows are not loaded.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+documentCols+` FROM documents
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := scanDocument(rows, &doc); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// GetChunks returns a document's chunks ordered by chunk index.
// Embeddings are not loaded; callers needing vectors go through search.
func (s *Store) GetChunks(ctx context.Context, documentID uuid.UUID) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+chunkCols+` FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// SearchChunks returns the chunks most similar to the query vector,
// best match first. Similarity is cosine: 1 - (embedding <=> query),
// so 1 means identical direction and 0 means orthogonal. Only hits
// with similarity >= params.Threshold are returned, at most
// params.TopK of them.
//
// Ties at equal similarity have no defined order between the tied rows.
func (s *Store) SearchChunks(ctx context.Context, embedding []float32, params SearchParams) ([]ScoredChunk, error) {
	if params.TopK <= 0 {
		return nil, ErrInvalidTopK
	}
	if params.Threshold < 0 || params.Threshold > 1 {
		return nil, ErrInvalidThreshold
	}

	vec := pgvector.NewVector(embedding)
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.chunk_text, c.chunk_index, c.metadata, c.created_at,
		       d.title,
		       1 - (c.embedding <=> $1) AS similarity
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE 1 - (c.embedding <=> $1) >= $2
		ORDER BY c.embedding <=> $1
		LIMIT $3`,
		vec, params.Threshold, params.TopK)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var hits []ScoredChunk
	for rows.Next() {
		var hit ScoredChunk
		var metadataJSON []byte
		if err := rows.Scan(&hit.ID, &hit.DocumentID, &hit.Text, &hit.Index,
			&metadataJSON, &hit.CreatedAt, &hit.DocumentTitle, &hit.Score); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		if err := unmarshalMetadata(metadataJSON, &hit.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling hit metadata: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search hits: %w", err)
	}

	s.logger.Debug("similarity search", "hits", len(hits),
		"top_k", params.TopK, "threshold", params.Threshold)
	return hits, nil
}

// Delete removes the document and, via ON DELETE CASCADE, all of its
// chunks. Returns ErrNotFound when no row matched.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.logger.Debug("deleted document", "id", id)
	return nil
}

// DeleteChunks removes a document's chunks without touching the
// document row. Used when re-indexing content in place.
func (s *Store) DeleteChunks(ctx context.Context, documentID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

func scanDocument(row pgx.Row, doc *Document) error {
	var metadataJSON []byte
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Content, &metadataJSON,
		&doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return err
	}
	return unmarshalMetadata(metadataJSON, &doc.Metadata)
}

func scanChunks(rows pgx.Rows) ([]Chunk, error) {
	var chunks []Chunk
	for rows.Next() {
		var chunk Chunk
		var metadataJSON []byte
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Text,
			&chunk.Index, &metadataJSON, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if err := unmarshalMetadata(metadataJSON, &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling chunk metadata: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func unmarshalMetadata(data []byte, m *map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, m)
}
