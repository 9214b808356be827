package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loopline/mentor/internal/contextwindow"
	"github.com/loopline/mentor/internal/domain"
	"github.com/loopline/mentor/internal/extraction"
	"github.com/loopline/mentor/internal/llm"
)

// persistTimeout bounds the final exchange write once generation finished.
const persistTimeout = 10 * time.Second

// StreamReply runs one streamed exchange. Validation and session acquisition
// happen synchronously so the transport can fail with an ordinary HTTP status
// before any event is written; after that, all outcomes arrive on the
// returned channel as token events followed by exactly one terminal event.
// The channel is closed when the stream is over.
func (s *Service) StreamReply(ctx context.Context, conversationID, content string) (<-chan domain.StreamEvent, error) {
	if s.llm == nil {
		return nil, domain.ErrChatDisabled
	}
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyContent
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if _, err := s.sessions.acquire(conversationID); err != nil {
		return nil, err
	}

	events := make(chan domain.StreamEvent, 32)
	go s.runStream(ctx, conv, content, events)
	return events, nil
}

// runStream owns the session for its whole lifetime and releases it on every
// exit path.
func (s *Service) runStream(ctx context.Context, conv *domain.Conversation, content string, events chan<- domain.StreamEvent) {
	defer close(events)
	defer s.sessions.release(conv.ConversationID)

	log := s.log.WithField("conversation_id", conv.ConversationID)

	streamCtx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()

	payload, err := s.assembler.Assemble(streamCtx, conv, content)
	if err != nil {
		log.WithError(err).Error("context assembly failed")
		s.emit(ctx, events, domain.ErrorEvent("failed to assemble conversation context"))
		return
	}
	if payload.Degraded {
		log.Warn("context assembled in degraded mode")
	}

	req := &llm.ChatCompletionRequest{
		Model:    s.cfg.LLMModel,
		Messages: buildChatMessages(conv, payload),
	}

	var generated strings.Builder
	err = s.llm.CreateChatCompletionStream(streamCtx, req, func(chunk *llm.StreamChunk) error {
		delta := chunk.DeltaContent()
		if delta == "" {
			return nil
		}
		generated.WriteString(delta)
		if !s.emit(ctx, events, domain.TokenEvent(delta)) {
			return context.Canceled
		}
		return nil
	})
	if err != nil {
		// Client disconnect: discard the partial text, there is nobody left
		// to report to. The deferred release frees the conversation for a
		// retry.
		if ctx.Err() != nil {
			log.WithField("accumulated_bytes", generated.Len()).Info("stream cancelled by client, partial output discarded")
			return
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(streamCtx.Err(), context.DeadlineExceeded) {
			log.WithError(err).Error("upstream model call timed out")
			s.emit(ctx, events, domain.ErrorEvent("upstream model timed out"))
			return
		}
		log.WithError(err).Error("upstream model call failed")
		s.emit(ctx, events, domain.ErrorEvent(fmt.Sprintf("upstream model call failed: %v", err)))
		return
	}

	// Persist on a detached context: a disconnect between the last chunk and
	// the commit must not tear the exchange apart.
	persistCtx, cancelPersist := context.WithTimeout(context.Background(), persistTimeout)
	defer cancelPersist()

	_, assistantMsg, count, err := s.store.AppendExchange(persistCtx, conv.ConversationID, content, generated.String())
	if err != nil {
		log.WithError(err).Error("failed to persist exchange")
		// The contract requires a durable pair; generation succeeded, so the
		// text must not vanish silently.
		s.emit(ctx, events, domain.ErrorEvent(fmt.Sprintf(
			"failed to persist exchange: %v; generated reply was: %s", err, generated.String())))
		return
	}

	s.emit(ctx, events, domain.DoneEvent(assistantMsg.MessageID))
	s.maybeTriggerExtraction(conv, count)
}

// emit delivers an event unless the caller is gone. Returns false when the
// request context is done.
func (s *Service) emit(ctx context.Context, events chan<- domain.StreamEvent, ev domain.StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// buildChatMessages renders the budgeted payload into the upstream wire
// shape: one system message carrying summary, memories and graph context,
// then the raw turns, newest last.
func buildChatMessages(conv *domain.Conversation, payload *contextwindow.Payload) []llm.ChatMessage {
	var system strings.Builder
	system.WriteString(personaPreamble(conv.Persona))

	var sections = []struct {
		source contextwindow.Source
		header string
	}{
		{contextwindow.SourceSummary, "Conversation so far:"},
		{contextwindow.SourceMemory, "Relevant long-term memory:"},
		{contextwindow.SourceGraph, "Related entities:"},
	}
	for _, sec := range sections {
		wrote := false
		for _, f := range payload.Fragments {
			if f.Source != sec.source {
				continue
			}
			if !wrote {
				system.WriteString("\n\n")
				system.WriteString(sec.header)
				wrote = true
			}
			system.WriteString("\n")
			system.WriteString(f.Text)
		}
	}

	messages := []llm.ChatMessage{{Role: "system", Content: system.String()}}
	for _, f := range payload.Fragments {
		if f.Source != contextwindow.SourceRecentTurns {
			continue
		}
		messages = append(messages, llm.ChatMessage{Role: string(f.Role), Content: f.Text})
	}
	return messages
}

func personaPreamble(persona domain.Persona) string {
	switch persona {
	case domain.PersonaStaff:
		return "You are a staff engineer helping the team plan and execute project work."
	default:
		return "You are a mentor guiding the user through their project."
	}
}

// maybeTriggerExtraction enqueues a memory-extraction job when the
// conversation crossed an interval boundary. Fire-and-forget: the exchange is
// already committed and acknowledged by the time this runs.
func (s *Service) maybeTriggerExtraction(conv *domain.Conversation, messageCount int) {
	if s.extractor == nil {
		return
	}
	interval := s.cfg.ExtractionInterval
	if interval <= 0 {
		interval = 10
	}
	if messageCount%interval != 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	window, err := s.store.RecentMessages(ctx, conv.ConversationID, interval)
	if err != nil {
		s.log.WithError(err).WithField("conversation_id", conv.ConversationID).
			Warn("failed to snapshot window for extraction")
		return
	}
	s.extractor.Enqueue(extraction.Job{
		ConversationID: conv.ConversationID,
		SubjectID:      conv.SubjectID,
		Summary:        conv.Summary,
		Messages:       window,
	})
}
