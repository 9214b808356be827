package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/loopline/mentor/internal/domain"
)

type createConversationRequest struct {
	SubjectID string         `json:"subject_id"`
	Persona   domain.Persona `json:"persona"`
}

// CreateConversation returns the conversation for a (subject, persona) pair,
// creating it on first use.
// POST /v1/conversations
func (h *Handler) CreateConversation(c echo.Context) error {
	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Persona == "" {
		req.Persona = domain.PersonaMentor
	}

	conv, err := h.service.GetOrCreateConversation(c.Request().Context(), req.SubjectID, req.Persona)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// GetConversation retrieves a conversation.
// GET /v1/conversations/:conversation_id
func (h *Handler) GetConversation(c echo.Context) error {
	conv, err := h.service.GetConversation(c.Request().Context(), c.Param("conversation_id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// ClearConversation removes all messages; the conversation survives.
// DELETE /v1/conversations/:conversation_id/messages
func (h *Handler) ClearConversation(c echo.Context) error {
	if err := h.service.ClearConversation(c.Request().Context(), c.Param("conversation_id")); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
