// Package conversation stores chat conversations and their message
// history in PostgreSQL.
package conversation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Message roles persisted with each turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ErrNotFound indicates the requested conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// Conversation groups an ordered message history.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one stored turn. Metadata carries per-turn provenance
// such as the generating model and retrieval source counts.
type Message struct {
	ID             uuid.UUID      `json:"id"`
	ConversationID uuid.UUID      `json:"conversation_id"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Exchange is one user turn plus the assistant reply generated for it.
// The two are persisted atomically.
type Exchange struct {
	UserContent       string
	AssistantContent  string
	AssistantMetadata map[string]any
}
