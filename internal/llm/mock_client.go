package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MockClient is a scriptable implementation of LLMClient for tests and for
// running the service without an upstream credential (MENTOR_MODE=MOCK).
type MockClient struct {
	// Response overrides the generated reply when non-empty.
	Response string
	// Err, when set, is returned from every call.
	Err error
	// ChunkSize controls how the streamed reply is split. Defaults to 10.
	ChunkSize int
}

// NewMockClient creates a new mock chat model client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

var _ LLMClient = (*MockClient)(nil)

// CreateChatCompletion returns a mock response.
func (m *MockClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	content := m.reply(req)
	return &ChatCompletionResponse{
		ID:      fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []Choice{
			{
				Index:        0,
				Message:      &ChatMessage{Role: "assistant", Content: content},
				FinishReason: "stop",
			},
		},
		Usage: &Usage{
			CompletionTokens: len(content) / 4,
			TotalTokens:      len(content) / 4,
		},
	}, nil
}

// CreateChatCompletionStream simulates a streaming response.
func (m *MockClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) error {
	if m.Err != nil {
		return m.Err
	}
	content := m.reply(req)
	id := fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano())
	created := time.Now().Unix()

	size := m.ChunkSize
	if size <= 0 {
		size = 10
	}

	for i := 0; i < len(content); i += size {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		end := i + size
		if end > len(content) {
			end = len(content)
		}
		finishReason := ""
		if end == len(content) {
			finishReason = "stop"
		}
		chunk := &StreamChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   req.Model,
			Choices: []Choice{
				{
					Index:        0,
					Delta:        &ChatMessage{Role: "assistant", Content: content[i:end]},
					FinishReason: finishReason,
				},
			},
		}
		if err := callback(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockClient) reply(req *ChatCompletionRequest) string {
	if m.Response != "" {
		return m.Response
	}
	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = req.Messages[i].Content
			break
		}
	}
	return fmt.Sprintf("Mock reply to: %s", strings.TrimSpace(last))
}
