package service

import (
	"context"
	"strings"

	"github.com/loopline/mentor/internal/domain"
	"github.com/loopline/mentor/internal/llm"
)

// EnqueueReply is the non-streaming fallback: same validation and the same
// per-conversation exclusion as StreamReply, but the call returns as soon as
// processing is queued. The assistant turn shows up via ListMessages once the
// exchange is persisted; failures are only visible operationally.
func (s *Service) EnqueueReply(ctx context.Context, conversationID, content string) error {
	if s.llm == nil {
		return domain.ErrChatDisabled
	}
	if strings.TrimSpace(content) == "" {
		return domain.ErrEmptyContent
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if _, err := s.sessions.acquire(conversationID); err != nil {
		return err
	}

	go func() {
		defer s.sessions.release(conv.ConversationID)

		log := s.log.WithField("conversation_id", conv.ConversationID)

		bgCtx, cancel := context.WithTimeout(context.Background(), s.cfg.LLMTimeout)
		defer cancel()

		payload, err := s.assembler.Assemble(bgCtx, conv, content)
		if err != nil {
			log.WithError(err).Error("context assembly failed for queued reply")
			return
		}

		resp, err := s.llm.CreateChatCompletion(bgCtx, &llm.ChatCompletionRequest{
			Model:    s.cfg.LLMModel,
			Messages: buildChatMessages(conv, payload),
		})
		if err != nil {
			log.WithError(err).Error("queued reply generation failed")
			return
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
			log.Error("queued reply generation returned no choices")
			return
		}

		persistCtx, cancelPersist := context.WithTimeout(context.Background(), persistTimeout)
		defer cancelPersist()

		_, _, count, err := s.store.AppendExchange(persistCtx, conv.ConversationID, content, resp.Choices[0].Message.Content)
		if err != nil {
			log.WithError(err).Error("failed to persist queued exchange")
			return
		}
		s.maybeTriggerExtraction(conv, count)
	}()
	return nil
}
