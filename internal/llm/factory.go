package llm

import (
	"os"
	"time"
)

const (
	// EnvMentorMode is the environment variable name for mode selection.
	EnvMentorMode = "MENTOR_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// NewLLMClient creates a chat model client. With MENTOR_MODE=MOCK a mock
// client is returned regardless of credentials. Without an API key it returns
// nil: streaming chat and memory extraction are disabled, everything else
// keeps working.
func NewLLMClient(baseURL, apiKey string, timeout time.Duration) LLMClient {
	if os.Getenv(EnvMentorMode) == ModeMock {
		return NewMockClient()
	}
	if apiKey == "" {
		return nil
	}
	return NewClient(baseURL, apiKey, timeout)
}
