package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/modalchat/server/domain"
	"github.com/modalchat/server/relay"
	"github.com/modalchat/server/store"
)

// ragSnippetLimit bounds how many retrieval snippets are folded into the
// system instruction.
const ragSnippetLimit = 3

// SendMessage runs one chat turn: persist the user message, relay the full
// history to the completion provider, forward content deltas to the client
// as SSE events, and persist the assembled assistant message once the
// upstream stream ends.
// POST /api/conversations/:id/messages
func (h *Handler) SendMessage(c echo.Context) error {
	ctx := c.Request().Context()
	conversationID := c.Param("id")

	var req domain.CreateMessageRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request body")
	}

	if h.config.OpenRouterAPIKey == "" {
		return jsonError(c, http.StatusInternalServerError, "OPENROUTER_API_KEY is not configured")
	}

	// Persist the user message before any network call
	userMsg := &domain.Message{
		ConversationID: conversationID,
		Role:           domain.RoleUser,
		Content:        req.Content,
		ImageURL:       req.ImageURL,
	}
	if err := h.store.CreateMessage(ctx, userMsg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return jsonError(c, http.StatusNotFound, "Conversation not found")
		}
		h.logger.Error("failed to save user message", zap.Error(err))
		return jsonError(c, http.StatusInternalServerError, "Failed to save message")
	}

	history, err := h.store.GetMessages(ctx, conversationID)
	if err != nil {
		h.logger.Error("failed to load history", zap.Error(err))
		return jsonError(c, http.StatusInternalServerError, "Failed to load conversation history")
	}

	apiMessages, err := h.buildAPIMessages(history)
	if err != nil {
		h.logger.Error("failed to build provider request", zap.Error(err))
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}

	system := h.config.SystemPrompt
	if h.rag.Enabled() {
		// Best effort: a retrieval failure never fails the chat turn
		if ragContext := h.retrieveContext(ctx, req.Content); ragContext != "" {
			system += "\n\nRelevant context:\n" + ragContext
		}
	}
	shaped := relay.ShaperFor(h.config.Model).Shape(system, apiMessages)

	// Switch to event-stream mode; everything after this point reports
	// failures in-band.
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		h.logger.Error("response writer does not support streaming")
		return nil
	}

	upstream, err := h.relay.StreamChat(ctx, &relay.ChatRequest{
		Model:    h.config.Model,
		Messages: shaped,
	})
	if err != nil {
		h.streamError(c, flusher, conversationID, err)
		return nil
	}
	defer upstream.Close()

	final, err := relay.NewStreamDecoder(upstream).Run(ctx, func(delta string) error {
		return writeEvent(c, flusher, map[string]string{"content": delta})
	})
	if err != nil {
		h.logger.Error("streaming failed", zap.Error(err), zap.String("conversation_id", conversationID))
		writeEvent(c, flusher, map[string]string{"error": "Stream interrupted"})
		return nil
	}

	assistantMsg := &domain.Message{
		ConversationID: conversationID,
		Role:           domain.RoleAssistant,
		Content:        final,
	}
	if err := h.store.CreateMessage(ctx, assistantMsg); err != nil {
		h.logger.Error("failed to save assistant message", zap.Error(err))
		writeEvent(c, flusher, map[string]string{"error": "Failed to save response"})
		return nil
	}

	writeEvent(c, flusher, map[string]bool{"done": true})
	return nil
}

// streamError reports an upstream failure in-band. Rate-limit errors are
// additionally persisted as an assistant message so the conversation keeps a
// visible explanation across reloads.
func (h *Handler) streamError(c echo.Context, flusher http.Flusher, conversationID string, err error) {
	h.logger.Error("upstream request failed", zap.Error(err), zap.String("conversation_id", conversationID))

	message := "Failed to reach the completion provider"
	var upstreamErr *relay.UpstreamError
	if errors.As(err, &upstreamErr) {
		switch upstreamErr.Status {
		case http.StatusUnauthorized:
			message = "Invalid API key. Please check your OpenRouter credentials."
		case http.StatusPaymentRequired:
			message = "Payment required. Please top up your OpenRouter balance."
		case http.StatusTooManyRequests:
			message = "API rate limit exceeded. Please try again later."
			// Detached from the request: the notice must land even when
			// the client has already gone away.
			h.saveRateLimitNotice(context.WithoutCancel(c.Request().Context()), conversationID, message)
		default:
			if upstreamErr.Message != "" {
				message = upstreamErr.Message
			}
		}
	}

	writeEvent(c, flusher, map[string]string{"error": message})
}

// saveRateLimitNotice records a synthetic assistant message explaining the
// rate limit, so future loads of the conversation show why no answer came.
func (h *Handler) saveRateLimitNotice(ctx context.Context, conversationID, message string) {
	notice := &domain.Message{
		ConversationID: conversationID,
		Role:           domain.RoleAssistant,
		Content:        message,
	}
	if err := h.store.CreateMessage(ctx, notice); err != nil {
		h.logger.Warn("failed to save rate limit notice", zap.Error(err))
	}
}

// buildAPIMessages translates stored history into provider messages. User
// messages with an attached image become multi-part content; local image
// references are read back from disk and inlined as base64 data URIs.
func (h *Handler) buildAPIMessages(history []domain.Message) ([]relay.ChatMessage, error) {
	apiMessages := make([]relay.ChatMessage, 0, len(history))
	for _, msg := range history {
		if msg.Role == domain.RoleUser && msg.ImageURL != "" {
			imageURL, err := h.resolveImageURL(msg.ImageURL)
			if err != nil {
				return nil, err
			}
			apiMessages = append(apiMessages, relay.ChatMessage{
				Role: string(msg.Role),
				Content: []relay.ContentPart{
					relay.TextPart(msg.Content),
					relay.ImagePart(imageURL),
				},
			})
			continue
		}
		apiMessages = append(apiMessages, relay.ChatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return apiMessages, nil
}

// resolveImageURL passes external URLs through unchanged and re-encodes
// locally uploaded files as base64 data URIs.
func (h *Handler) resolveImageURL(imageURL string) (string, error) {
	if strings.HasPrefix(imageURL, "http") {
		return imageURL, nil
	}

	path := filepath.Join(h.config.UploadDir, filepath.Base(imageURL))
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read uploaded image: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// retrieveContext fetches retrieval snippets for the query. Failures are
// logged and swallowed.
func (h *Handler) retrieveContext(ctx context.Context, query string) string {
	if strings.TrimSpace(query) == "" {
		return ""
	}

	chunks, err := h.rag.SearchChunks(ctx, query, ragSnippetLimit)
	if err != nil {
		h.logger.Warn("retrieval failed", zap.Error(err))
		return ""
	}

	lines := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		lines = append(lines, "- "+chunk.Content)
	}
	return strings.Join(lines, "\n")
}
