package domain

import "errors"

var (
	// ErrNotFound indicates the referenced conversation or message does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmptyContent indicates a request with no usable message content.
	ErrEmptyContent = errors.New("message content is empty")

	// ErrInvalidPersona indicates a conversation create request with an unknown persona.
	ErrInvalidPersona = errors.New("invalid persona")

	// ErrStreamActive indicates a second stream was requested while one is in
	// flight for the same conversation. The request is rejected, never queued.
	ErrStreamActive = errors.New("a stream is already active for this conversation")

	// ErrChatDisabled indicates no upstream model credential is configured.
	// Streaming and memory extraction are unavailable; everything else keeps
	// working.
	ErrChatDisabled = errors.New("chat is disabled: no model API credential configured")

	// ErrNotEditable indicates an edit attempt on an assistant-authored message.
	ErrNotEditable = errors.New("only user-authored messages can be edited")
)
