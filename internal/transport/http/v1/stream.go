package v1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// StreamMessage runs one streamed exchange over SSE. Failures before the
// stream starts are ordinary HTTP errors; once the event stream has begun,
// every outcome is delivered as an event, terminally either done or error.
// POST /v1/conversations/:conversation_id/messages/stream
func (h *Handler) StreamMessage(c echo.Context) error {
	var req postMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	events, err := h.service.StreamReply(c.Request().Context(), c.Param("conversation_id"), req.Content)
	if err != nil {
		return errorJSON(c, err)
	}

	resp := c.Response()
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
	}

	// No intermediary buffering: events must reach the client as produced.
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.Header().Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(resp.Writer, "data: %s\n\n", data); err != nil {
			// Client is gone; the producer notices via the request context.
			break
		}
		flusher.Flush()
	}
	return nil
}
