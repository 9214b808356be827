// Package domain defines the core domain models for the mentor chat service.
package domain

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Persona selects which chat persona a conversation is bound to.
type Persona string

const (
	PersonaMentor Persona = "mentor"
	PersonaStaff  Persona = "staff"
)

// ValidPersonas are the personas a conversation can be created with.
var ValidPersonas = map[Persona]bool{
	PersonaMentor: true,
	PersonaStaff:  true,
}

// Conversation is the durable chat thread between a platform subject
// (a project, initiative, or user entity reference) and one persona.
// It is created on first use and never deleted, only cleared.
type Conversation struct {
	ConversationID string    `json:"conversation_id"`
	SubjectID      string    `json:"subject_id"`
	Persona        Persona   `json:"persona"`
	Summary        string    `json:"summary,omitempty"`
	MessageCount   int       `json:"message_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Message is a single turn in a conversation. Messages are immutable once
// persisted except for user-initiated edits to their own prior turns, which
// replace content in place without changing ordering.
type Message struct {
	MessageID      string     `json:"message_id"`
	ConversationID string     `json:"conversation_id"`
	Role           Role       `json:"role"`
	Content        string     `json:"content"`
	Seq            int        `json:"seq"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// MemoryItem is a long-term memory distilled from past conversation turns.
// Relevance at query time combines embedding similarity with temporal decay,
// so old items that were never reinforced rank below fresh ones.
type MemoryItem struct {
	MemoryID         string     `json:"memory_id"`
	SubjectID        string     `json:"subject_id"`
	ConversationID   string     `json:"conversation_id,omitempty"`
	Text             string     `json:"text"`
	Embedding        []float32  `json:"embedding,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	LastReinforcedAt *time.Time `json:"last_reinforced_at,omitempty"`
}

// KnowledgeGraphEdge is a typed relation between two platform entities.
// Edges are populated by an external indexing job and are read-only here.
type KnowledgeGraphEdge struct {
	FromEntity string  `json:"from_entity"`
	ToEntity   string  `json:"to_entity"`
	Relation   string  `json:"relation"`
	Weight     float64 `json:"weight"`
}
