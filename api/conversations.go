package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/modalchat/server/domain"
)

// ListConversations returns all conversations.
// GET /api/conversations
func (h *Handler) ListConversations(c echo.Context) error {
	ctx := c.Request().Context()

	conversations, err := h.store.GetConversations(ctx)
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Error(err))
		return jsonError(c, http.StatusInternalServerError, "Failed to list conversations")
	}

	return c.JSON(http.StatusOK, conversations)
}

// CreateConversation creates a new conversation.
// POST /api/conversations
func (h *Handler) CreateConversation(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.CreateConversationRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request body")
	}
	if req.Title == "" {
		req.Title = "New Chat"
	}

	conversation, err := h.store.CreateConversation(ctx, req.Title)
	if err != nil {
		h.logger.Error("failed to create conversation", zap.Error(err))
		return jsonError(c, http.StatusInternalServerError, "Failed to create conversation")
	}

	return c.JSON(http.StatusCreated, conversation)
}

// GetConversation returns a conversation with its messages embedded in
// insertion order.
// GET /api/conversations/:id
func (h *Handler) GetConversation(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	conversation, err := h.store.GetConversation(ctx, id)
	if err != nil {
		h.logger.Error("failed to get conversation", zap.Error(err), zap.String("id", id))
		return jsonError(c, http.StatusInternalServerError, "Failed to get conversation")
	}
	if conversation == nil {
		return jsonError(c, http.StatusNotFound, "Conversation not found")
	}

	messages, err := h.store.GetMessages(ctx, id)
	if err != nil {
		h.logger.Error("failed to get messages", zap.Error(err), zap.String("id", id))
		return jsonError(c, http.StatusInternalServerError, "Failed to get messages")
	}

	return c.JSON(http.StatusOK, domain.ConversationWithMessages{
		Conversation: *conversation,
		Messages:     messages,
	})
}

// DeleteConversation removes a conversation and its messages. Deleting an
// unknown id still returns 204.
// DELETE /api/conversations/:id
func (h *Handler) DeleteConversation(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if err := h.store.DeleteConversation(ctx, id); err != nil {
		h.logger.Error("failed to delete conversation", zap.Error(err), zap.String("id", id))
		return jsonError(c, http.StatusInternalServerError, "Failed to delete conversation")
	}

	return c.NoContent(http.StatusNoContent)
}
