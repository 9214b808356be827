// Package summary maintains the rolling natural-language summary of a
// conversation's older turns.
package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/loopline/mentor/internal/domain"
	"github.com/loopline/mentor/internal/llm"
)

// SummaryWriter persists the refreshed summary.
type SummaryWriter interface {
	UpdateSummary(ctx context.Context, conversationID, summary string) error
}

// Summarizer folds a window of recent turns into the rolling summary.
type Summarizer struct {
	client llm.LLMClient
	store  SummaryWriter
	model  string
}

// NewSummarizer creates a summarizer.
func NewSummarizer(client llm.LLMClient, store SummaryWriter, model string) *Summarizer {
	return &Summarizer{client: client, store: store, model: model}
}

// Refresh folds window into the previous summary and persists the result.
// The previous summary may be empty for young conversations.
func (s *Summarizer) Refresh(ctx context.Context, conversationID, previous string, window []domain.Message) error {
	if len(window) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("Update the running summary of this conversation. ")
	b.WriteString("Keep it under 200 words, keep durable facts and decisions, drop chit-chat.\n\n")
	if previous != "" {
		b.WriteString("Current summary:\n")
		b.WriteString(previous)
		b.WriteString("\n\n")
	}
	b.WriteString("New turns:\n")
	for _, msg := range window {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}

	resp, err := s.client.CreateChatCompletion(ctx, &llm.ChatCompletionRequest{
		Model: s.model,
		Messages: []llm.ChatMessage{
			{Role: "system", Content: "You maintain concise rolling summaries of project conversations."},
			{Role: "user", Content: b.String()},
		},
	})
	if err != nil {
		return fmt.Errorf("summary generation failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return fmt.Errorf("summary generation returned no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil
	}
	return s.store.UpdateSummary(ctx, conversationID, text)
}
