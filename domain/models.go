// Package domain defines the core domain models for the chat server.
package domain

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Conversation represents one chat thread.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message represents a single message inside a conversation. Messages are
// immutable after creation; the assistant message is written only once its
// full content has been assembled from the upstream stream.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ConversationWithMessages is the GET /api/conversations/:id payload.
type ConversationWithMessages struct {
	Conversation
	Messages []Message `json:"messages"`
}

// CreateConversationRequest is the POST /api/conversations body.
type CreateConversationRequest struct {
	Title string `json:"title"`
}

// CreateMessageRequest is the POST /api/conversations/:id/messages body.
type CreateMessageRequest struct {
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// FileUploadResponse is the POST /api/upload payload.
type FileUploadResponse struct {
	URL string `json:"url"`
}
