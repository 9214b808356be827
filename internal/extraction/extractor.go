package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/loopline/mentor/internal/domain"
	"github.com/loopline/mentor/internal/llm"
)

// LLMExtractor derives memory texts by asking the chat model to distill the
// window into standalone facts.
type LLMExtractor struct {
	client llm.LLMClient
	model  string
}

// NewLLMExtractor creates an extractor backed by the chat model.
func NewLLMExtractor(client llm.LLMClient, model string) *LLMExtractor {
	return &LLMExtractor{client: client, model: model}
}

var _ Extractor = (*LLMExtractor)(nil)

// Extract returns candidate memory texts, one per line of model output.
func (e *LLMExtractor) Extract(ctx context.Context, msgs []domain.Message) ([]string, error) {
	if len(msgs) == 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString("Extract durable facts worth remembering from this conversation window. ")
	b.WriteString("One fact per line, plain statements, no numbering. ")
	b.WriteString("Return nothing if there is nothing worth keeping.\n\n")
	for _, msg := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}

	resp, err := e.client.CreateChatCompletion(ctx, &llm.ChatCompletionRequest{
		Model: e.model,
		Messages: []llm.ChatMessage{
			{Role: "system", Content: "You distill conversations into long-term memory for a project assistant."},
			{Role: "user", Content: b.String()},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return nil, nil
	}

	var texts []string
	for _, line := range strings.Split(resp.Choices[0].Message.Content, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "- "))
		if line == "" {
			continue
		}
		texts = append(texts, line)
	}
	return texts, nil
}
