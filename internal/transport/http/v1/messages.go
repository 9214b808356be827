package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

type postMessageRequest struct {
	Content string `json:"content"`
}

// GetMessages retrieves messages for a conversation.
// GET /v1/conversations/:conversation_id/messages
func (h *Handler) GetMessages(c echo.Context) error {
	conversationID := c.Param("conversation_id")
	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	before := c.QueryParam("before")

	messages, err := h.service.ListMessages(c.Request().Context(), conversationID, limit, before)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": messages,
		"has_more": len(messages) == limit,
	})
}

// EnqueueMessage is the non-streaming fallback: the reply is generated in the
// background and appears via GetMessages once persisted.
// POST /v1/conversations/:conversation_id/messages
func (h *Handler) EnqueueMessage(c echo.Context) error {
	var req postMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	conversationID := c.Param("conversation_id")
	if err := h.service.EnqueueReply(c.Request().Context(), conversationID, req.Content); err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"status":          "pending",
		"conversation_id": conversationID,
	})
}

type editMessageRequest struct {
	Content string `json:"content"`
}

// EditMessage replaces the content of a prior user message in place.
// PATCH /v1/messages/:message_id
func (h *Handler) EditMessage(c echo.Context) error {
	var req editMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	msg, err := h.service.EditMessage(c.Request().Context(), c.Param("message_id"), req.Content)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, msg)
}
