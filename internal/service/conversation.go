package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/loopline/mentor/internal/domain"
)

// GetOrCreateConversation returns the conversation for a (subject, persona)
// pair, creating it on first use.
func (s *Service) GetOrCreateConversation(ctx context.Context, subjectID string, persona domain.Persona) (*domain.Conversation, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, fmt.Errorf("%w: subject_id is required", domain.ErrEmptyContent)
	}
	if !domain.ValidPersonas[persona] {
		return nil, domain.ErrInvalidPersona
	}

	conv, err := s.store.FindConversation(ctx, subjectID, persona)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}

	now := time.Now().UTC()
	conv = &domain.Conversation{
		ConversationID: ulid.Make().String(),
		SubjectID:      subjectID,
		Persona:        persona,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		// Lost a create race; the existing row wins.
		if existing, findErr := s.store.FindConversation(ctx, subjectID, persona); findErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// GetConversation retrieves a conversation by id.
func (s *Service) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	return s.store.GetConversation(ctx, conversationID)
}

// ClearConversation removes all messages and resets the summary and counters.
// The conversation itself survives. Rejected while a stream is active.
func (s *Service) ClearConversation(ctx context.Context, conversationID string) error {
	if _, err := s.sessions.acquire(conversationID); err != nil {
		return err
	}
	defer s.sessions.release(conversationID)
	return s.store.ClearConversation(ctx, conversationID)
}
