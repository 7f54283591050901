package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// SearchKnowledgeRequest is the POST /api/rag/search body.
type SearchKnowledgeRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// SearchKnowledge returns retrieval snippets matching a query.
// POST /api/rag/search
func (h *Handler) SearchKnowledge(c echo.Context) error {
	ctx := c.Request().Context()

	var req SearchKnowledgeRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request body")
	}
	if req.Query == "" {
		return jsonError(c, http.StatusBadRequest, "Query is required")
	}
	if !h.rag.Enabled() {
		return jsonError(c, http.StatusInternalServerError, "Retrieval backend is not configured")
	}

	results, err := h.rag.SearchChunks(ctx, req.Query, req.Limit)
	if err != nil {
		h.logger.Error("retrieval search failed", zap.Error(err))
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"results": results,
		"query":   req.Query,
	})
}

// ListDocuments returns all retrieval documents.
// GET /api/documents
func (h *Handler) ListDocuments(c echo.Context) error {
	ctx := c.Request().Context()

	if !h.rag.Enabled() {
		return jsonError(c, http.StatusInternalServerError, "Retrieval backend is not configured")
	}

	documents, err := h.rag.Documents(ctx)
	if err != nil {
		h.logger.Error("failed to list documents", zap.Error(err))
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, documents)
}

// ListChunks returns all retrieval chunks.
// GET /api/chunks
func (h *Handler) ListChunks(c echo.Context) error {
	ctx := c.Request().Context()

	if !h.rag.Enabled() {
		return jsonError(c, http.StatusInternalServerError, "Retrieval backend is not configured")
	}

	chunks, err := h.rag.Chunks(ctx)
	if err != nil {
		h.logger.Error("failed to list chunks", zap.Error(err))
		return jsonError(c, http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, chunks)
}
