package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const conversationCols = `id, COALESCE(title, ''), COALESCE(user_id, ''), created_at, updated_at`

const messageCols = `id, conversation_id, role, content, metadata, created_at`

// Store persists conversations and messages.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a conversation Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Get returns the conversation with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	var conv Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE id = $1`, id).
		Scan(&conv.ID, &conv.Title, &conv.UserID, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return &conv, nil
}

// GetMessages returns a conversation's messages in chronological
// order. The conversation must exist; an unknown id yields ErrNotFound
// rather than an empty history.
func (s *Store) GetMessages(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	if _, err := s.Get(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+messageCols+` FROM messages
		WHERE conversation_id = $1
		ORDER BY seq`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var metadataJSON []byte
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role,
			&msg.Content, &metadataJSON, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling message metadata: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// AppendExchange persists a user turn and its assistant reply in a
// single transaction. When conversationID is nil a new conversation is
// created inside the same transaction, so a failure never leaves an
// empty conversation or a lone user message behind. Returns the
// conversation id and the stored assistant message.
func (s *Store) AppendExchange(ctx context.Context, conversationID *uuid.UUID, ex Exchange) (uuid.UUID, *Message, error) {
	assistantMeta, err := json.Marshal(orEmpty(ex.AssistantMetadata))
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("marshaling assistant metadata: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	var convID uuid.UUID
	if conversationID != nil {
		// Lock the conversation row so concurrent appends to the same
		// conversation serialize and updated_at moves monotonically.
		err := tx.QueryRow(ctx,
			`SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, *conversationID).
			Scan(&convID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return uuid.Nil, nil, ErrNotFound
			}
			return uuid.Nil, nil, fmt.Errorf("locking conversation: %w", err)
		}
	} else {
		err := tx.QueryRow(ctx,
			`INSERT INTO conversations (title) VALUES ($1) RETURNING id`,
			titleFromContent(ex.UserContent)).
			Scan(&convID)
		if err != nil {
			return uuid.Nil, nil, fmt.Errorf("creating conversation: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (conversation_id, role, content, metadata)
		VALUES ($1, $2, $3, '{}')`,
		convID, RoleUser, ex.UserContent)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("inserting user message: %w", err)
	}

	var assistant Message
	var metadataJSON []byte
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, role, content, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING `+messageCols,
		convID, RoleAssistant, ex.AssistantContent, assistantMeta).
		Scan(&assistant.ID, &assistant.ConversationID, &assistant.Role,
			&assistant.Content, &metadataJSON, &assistant.CreatedAt)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("inserting assistant message: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &assistant.Metadata); err != nil {
			return uuid.Nil, nil, fmt.Errorf("unmarshaling assistant metadata: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE conversations SET updated_at = now() WHERE id = $1`, convID)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("touching conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, nil, fmt.Errorf("committing exchange: %w", err)
	}

	s.logger.Debug("appended exchange", "conversation_id", convID)
	return convID, &assistant, nil
}

// Delete removes a conversation and, via ON DELETE CASCADE, its
// messages. Returns ErrNotFound when no row matched.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// titleFromContent derives a short conversation title from the first
// user message.
func titleFromContent(content string) string {
	const maxTitle = 80
	if len(content) <= maxTitle {
		return content
	}
	return content[:maxTitle]
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
