package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/loopline/mentor/internal/domain"
)

// ListMessages retrieves messages for a conversation in order.
func (s *Service) ListMessages(ctx context.Context, conversationID string, limit int, before string) ([]domain.Message, error) {
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, conversationID, limit, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// EditMessage replaces the content of a prior user-authored message in
// place. Ordering is unaffected; history is never deleted.
func (s *Service) EditMessage(ctx context.Context, messageID, content string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyContent
	}
	return s.store.UpdateMessageContent(ctx, messageID, content)
}
