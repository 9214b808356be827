// Package store provides persistence for conversations, messages, memory
// items and knowledge-graph edges.
package store

import (
	"context"

	"github.com/loopline/mentor/internal/domain"
)

// Store defines the storage interface for the chat pipeline.
type Store interface {
	// CreateConversation creates a new conversation.
	CreateConversation(ctx context.Context, conv *domain.Conversation) error

	// GetConversation retrieves a conversation by id.
	// Returns domain.ErrNotFound if it does not exist.
	GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error)

	// FindConversation retrieves the conversation for a (subject, persona)
	// pair. Returns domain.ErrNotFound if none exists yet.
	FindConversation(ctx context.Context, subjectID string, persona domain.Persona) (*domain.Conversation, error)

	// AppendExchange atomically appends the user turn and the assistant turn
	// of one exchange. Readers never observe the user turn without the
	// assistant turn. Returns both persisted messages and the conversation's
	// new message count.
	AppendExchange(ctx context.Context, conversationID, userContent, assistantContent string) (*domain.Message, *domain.Message, int, error)

	// ListMessages returns messages in (created_at, seq) order. before, when
	// set, is an exclusive message-id cursor for paging backwards.
	ListMessages(ctx context.Context, conversationID string, limit int, before string) ([]domain.Message, error)

	// RecentMessages returns the last n messages in chronological order.
	RecentMessages(ctx context.Context, conversationID string, n int) ([]domain.Message, error)

	// UpdateMessageContent replaces the content of a user-authored message in
	// place. Ordering position is unaffected. Returns domain.ErrNotEditable
	// for assistant messages.
	UpdateMessageContent(ctx context.Context, messageID, content string) (*domain.Message, error)

	// ClearConversation removes all messages and resets counters and the
	// summary. The conversation row itself survives.
	ClearConversation(ctx context.Context, conversationID string) error

	// UpdateSummary replaces the rolling conversation summary.
	UpdateSummary(ctx context.Context, conversationID, summary string) error

	// InsertMemoryItem stores a new long-term memory item.
	InsertMemoryItem(ctx context.Context, item *domain.MemoryItem) error

	// ListMemoryItems returns all memory items for a subject.
	ListMemoryItems(ctx context.Context, subjectID string) ([]domain.MemoryItem, error)

	// RelatedEntities returns knowledge-graph neighbors of entity with weight
	// >= floor, strongest first, capped at max. Both edge directions count.
	RelatedEntities(ctx context.Context, entity string, floor float64, max int) ([]domain.KnowledgeGraphEdge, error)

	// Close closes the underlying database.
	Close() error
}
