// Package v1 provides the v1 HTTP handlers for the mentor chat service.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/loopline/mentor/internal/domain"
	"github.com/loopline/mentor/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/conversations", h.CreateConversation)
	e.GET("/v1/conversations/:conversation_id", h.GetConversation)
	e.DELETE("/v1/conversations/:conversation_id/messages", h.ClearConversation)

	e.POST("/v1/conversations/:conversation_id/messages/stream", h.StreamMessage)
	e.POST("/v1/conversations/:conversation_id/messages", h.EnqueueMessage)
	e.GET("/v1/conversations/:conversation_id/messages", h.GetMessages)
	e.PATCH("/v1/messages/:message_id", h.EditMessage)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// errorJSON maps a service error to an HTTP status with an {"error": ...}
// body. Only used before any stream output has been written.
func errorJSON(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrEmptyContent), errors.Is(err, domain.ErrInvalidPersona),
		errors.Is(err, domain.ErrNotEditable):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrStreamActive):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrChatDisabled):
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
