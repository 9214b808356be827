package domain

// StreamEventType is the discriminator for stream events.
type StreamEventType string

const (
	StreamEventToken StreamEventType = "token"
	StreamEventDone  StreamEventType = "done"
	StreamEventError StreamEventType = "error"
)

// StreamEvent is one event emitted over a streaming reply. A stream carries
// zero or more token events followed by exactly one terminal event, which is
// either done or error, never both.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	Content   string          `json:"content,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	Detail    string          `json:"detail,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e StreamEvent) Terminal() bool {
	return e.Type == StreamEventDone || e.Type == StreamEventError
}

// TokenEvent wraps one chunk of incremental model output.
func TokenEvent(chunk string) StreamEvent {
	return StreamEvent{Type: StreamEventToken, Content: chunk}
}

// DoneEvent marks a successful stream carrying the persisted assistant
// message id.
func DoneEvent(messageID string) StreamEvent {
	return StreamEvent{Type: StreamEventDone, MessageID: messageID}
}

// ErrorEvent marks a failed stream.
func ErrorEvent(detail string) StreamEvent {
	return StreamEvent{Type: StreamEventError, Detail: detail}
}
