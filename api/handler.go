// Package api implements the HTTP surface of the chat server.
package api

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/modalchat/server/config"
	"github.com/modalchat/server/rag"
	"github.com/modalchat/server/relay"
	"github.com/modalchat/server/store"
)

// Handler handles HTTP requests.
type Handler struct {
	store  store.Store
	relay  *relay.Client
	rag    *rag.Client
	config *config.Config
	logger *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(cfg *config.Config, st store.Store, relayClient *relay.Client, ragClient *rag.Client, logger *zap.Logger) *Handler {
	return &Handler{
		store:  st,
		relay:  relayClient,
		rag:    ragClient,
		config: cfg,
		logger: logger,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/upload", h.UploadImage)

	e.GET("/api/conversations", h.ListConversations)
	e.POST("/api/conversations", h.CreateConversation)
	e.GET("/api/conversations/:id", h.GetConversation)
	e.DELETE("/api/conversations/:id", h.DeleteConversation)
	e.POST("/api/conversations/:id/messages", h.SendMessage)

	e.POST("/api/rag/search", h.SearchKnowledge)
	e.GET("/api/documents", h.ListDocuments)
	e.GET("/api/chunks", h.ListChunks)

	e.Static("/uploads", h.config.UploadDir)
}
