package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/loopline/mentor/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			conversation_id TEXT PRIMARY KEY,
			subject_id TEXT NOT NULL,
			persona TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			message_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (subject_id, persona)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			seq INTEGER NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id),
			UNIQUE (conversation_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at, seq)`,
		`CREATE TABLE IF NOT EXISTS memory_items (
			memory_id TEXT PRIMARY KEY,
			subject_id TEXT NOT NULL,
			conversation_id TEXT,
			text TEXT NOT NULL,
			embedding TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_reinforced_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_subject ON memory_items(subject_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS entity_edges (
			from_entity TEXT NOT NULL,
			to_entity TEXT NOT NULL,
			relation TEXT NOT NULL,
			weight REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (from_entity, to_entity, relation)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_from ON entity_edges(from_entity, weight)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_to ON entity_edges(to_entity, weight)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateConversation creates a new conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (conversation_id, subject_id, persona, summary, message_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conv.ConversationID, conv.SubjectID, conv.Persona, conv.Summary, conv.MessageCount, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by id.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, subject_id, persona, summary, message_count, created_at, updated_at
		 FROM conversations WHERE conversation_id = ?`, conversationID)
	return scanConversation(row)
}

// FindConversation retrieves the conversation for a (subject, persona) pair.
func (s *SQLiteStore) FindConversation(ctx context.Context, subjectID string, persona domain.Persona) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, subject_id, persona, summary, message_count, created_at, updated_at
		 FROM conversations WHERE subject_id = ? AND persona = ?`, subjectID, persona)
	return scanConversation(row)
}

func scanConversation(row *sql.Row) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := row.Scan(&conv.ConversationID, &conv.SubjectID, &conv.Persona, &conv.Summary,
		&conv.MessageCount, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// AppendExchange atomically appends a user turn and its assistant turn.
func (s *SQLiteStore) AppendExchange(ctx context.Context, conversationID, userContent, assistantContent string) (*domain.Message, *domain.Message, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET message_count = message_count + 2, updated_at = ? WHERE conversation_id = ?`,
		now, conversationID)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to update conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil, 0, domain.ErrNotFound
	}

	var nextSeq int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?`, conversationID).Scan(&nextSeq)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to allocate sequence: %w", err)
	}

	userMsg := &domain.Message{
		MessageID:      ulid.Make().String(),
		ConversationID: conversationID,
		Role:           domain.RoleUser,
		Content:        userContent,
		Seq:            nextSeq,
		CreatedAt:      now,
	}
	assistantMsg := &domain.Message{
		MessageID:      ulid.Make().String(),
		ConversationID: conversationID,
		Role:           domain.RoleAssistant,
		Content:        assistantContent,
		Seq:            nextSeq + 1,
		CreatedAt:      now,
	}

	for _, msg := range []*domain.Message{userMsg, assistantMsg} {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO messages (message_id, conversation_id, role, content, seq, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			msg.MessageID, msg.ConversationID, msg.Role, msg.Content, msg.Seq, msg.CreatedAt)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("failed to insert %s message: %w", msg.Role, err)
		}
	}

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT message_count FROM conversations WHERE conversation_id = ?`, conversationID).Scan(&count)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to read message count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, 0, fmt.Errorf("failed to commit exchange: %w", err)
	}
	return userMsg, assistantMsg, count, nil
}

// ListMessages retrieves messages for a conversation in chronological order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, limit int, before string) ([]domain.Message, error) {
	query := `SELECT message_id, conversation_id, role, content, seq, created_at, updated_at
		FROM messages WHERE conversation_id = ?`
	args := []interface{}{conversationID}

	if before != "" {
		query += ` AND seq < (SELECT seq FROM messages WHERE message_id = ?)`
		args = append(args, before)
	}

	query += ` ORDER BY created_at ASC, seq ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecentMessages returns the last n messages in chronological order.
func (s *SQLiteStore) RecentMessages(ctx context.Context, conversationID string, n int) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, conversation_id, role, content, seq, created_at, updated_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY created_at DESC, seq DESC LIMIT ?`, conversationID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var updatedAt sql.NullTime
		if err := rows.Scan(&msg.MessageID, &msg.ConversationID, &msg.Role, &msg.Content,
			&msg.Seq, &msg.CreatedAt, &updatedAt); err != nil {
			return nil, err
		}
		if updatedAt.Valid {
			t := updatedAt.Time
			msg.UpdatedAt = &t
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// UpdateMessageContent replaces the content of a user-authored message.
func (s *SQLiteStore) UpdateMessageContent(ctx context.Context, messageID, content string) (*domain.Message, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET content = ?, updated_at = ? WHERE message_id = ? AND role = ?`,
		content, now, messageID, domain.RoleUser)
	if err != nil {
		return nil, fmt.Errorf("failed to update message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Distinguish missing from non-editable.
		var role string
		err := s.db.QueryRowContext(ctx, `SELECT role FROM messages WHERE message_id = ?`, messageID).Scan(&role)
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, domain.ErrNotEditable
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT message_id, conversation_id, role, content, seq, created_at, updated_at
		 FROM messages WHERE message_id = ?`, messageID)
	var msg domain.Message
	var updatedAt sql.NullTime
	if err := row.Scan(&msg.MessageID, &msg.ConversationID, &msg.Role, &msg.Content,
		&msg.Seq, &msg.CreatedAt, &updatedAt); err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		msg.UpdatedAt = &t
	}
	return &msg, nil
}

// ClearConversation removes all messages and resets counters and the summary.
func (s *SQLiteStore) ClearConversation(ctx context.Context, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET message_count = 0, summary = '', updated_at = ? WHERE conversation_id = ?`,
		time.Now().UTC(), conversationID)
	if err != nil {
		return fmt.Errorf("failed to reset conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return tx.Commit()
}

// UpdateSummary replaces the rolling conversation summary.
func (s *SQLiteStore) UpdateSummary(ctx context.Context, conversationID, summary string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET summary = ?, updated_at = ? WHERE conversation_id = ?`,
		summary, time.Now().UTC(), conversationID)
	if err != nil {
		return fmt.Errorf("failed to update summary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// InsertMemoryItem stores a new memory item. Embeddings are stored as JSON.
func (s *SQLiteStore) InsertMemoryItem(ctx context.Context, item *domain.MemoryItem) error {
	embedding, err := json.Marshal(item.Embedding)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memory_items (memory_id, subject_id, conversation_id, text, embedding, created_at, last_reinforced_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.MemoryID, item.SubjectID, item.ConversationID, item.Text, string(embedding),
		item.CreatedAt, item.LastReinforcedAt)
	if err != nil {
		return fmt.Errorf("failed to insert memory item: %w", err)
	}
	return nil
}

// ListMemoryItems returns all memory items for a subject.
func (s *SQLiteStore) ListMemoryItems(ctx context.Context, subjectID string) ([]domain.MemoryItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT memory_id, subject_id, conversation_id, text, embedding, created_at, last_reinforced_at
		 FROM memory_items WHERE subject_id = ? ORDER BY created_at ASC`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.MemoryItem
	for rows.Next() {
		var item domain.MemoryItem
		var conversationID, embedding sql.NullString
		var reinforced sql.NullTime
		if err := rows.Scan(&item.MemoryID, &item.SubjectID, &conversationID, &item.Text,
			&embedding, &item.CreatedAt, &reinforced); err != nil {
			return nil, err
		}
		if conversationID.Valid {
			item.ConversationID = conversationID.String
		}
		if embedding.Valid && embedding.String != "" {
			if err := json.Unmarshal([]byte(embedding.String), &item.Embedding); err != nil {
				return nil, fmt.Errorf("failed to decode embedding for %s: %w", item.MemoryID, err)
			}
		}
		if reinforced.Valid {
			t := reinforced.Time
			item.LastReinforcedAt = &t
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// RelatedEntities returns knowledge-graph neighbors of entity, strongest first.
func (s *SQLiteStore) RelatedEntities(ctx context.Context, entity string, floor float64, max int) ([]domain.KnowledgeGraphEdge, error) {
	if max <= 0 {
		max = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_entity, to_entity, relation, weight FROM entity_edges
		 WHERE (from_entity = ? OR to_entity = ?) AND weight >= ?
		 ORDER BY weight DESC LIMIT ?`, entity, entity, floor, max)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []domain.KnowledgeGraphEdge
	for rows.Next() {
		var e domain.KnowledgeGraphEdge
		if err := rows.Scan(&e.FromEntity, &e.ToEntity, &e.Relation, &e.Weight); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// SeedEdges inserts knowledge-graph edges. The graph is normally populated by
// the platform's indexing job; this exists for bootstrap and tests.
func (s *SQLiteStore) SeedEdges(ctx context.Context, edges []domain.KnowledgeGraphEdge) error {
	for _, e := range edges {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO entity_edges (from_entity, to_entity, relation, weight) VALUES (?, ?, ?, ?)`,
			e.FromEntity, e.ToEntity, e.Relation, e.Weight)
		if err != nil {
			return fmt.Errorf("failed to seed edge: %w", err)
		}
	}
	return nil
}
