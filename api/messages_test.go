package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modalchat/server/domain"
	"github.com/modalchat/server/relay"
)

func postMessage(t *testing.T, h *Handler, conversationID, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/conversations/"+conversationID+"/messages", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	c, rec := newContext(req)
	c.SetParamNames("id")
	c.SetParamValues(conversationID)

	if err := h.SendMessage(c); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	return rec
}

func TestSendMessageStreamsAndPersists(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"He\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"llo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream.URL)
	conv, err := h.store.CreateConversation(context.Background(), "Demo")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	rec := postMessage(t, h, conv.ID, `{"content":"Hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := rec.Body.String()
	wantFrames := []string{
		`data: {"content":"He"}`,
		`data: {"content":"llo"}`,
		`data: {"done":true}`,
	}
	pos := 0
	for _, frame := range wantFrames {
		idx := strings.Index(body[pos:], frame)
		if idx < 0 {
			t.Fatalf("frame %q missing or out of order in body:\n%s", frame, body)
		}
		pos += idx + len(frame)
	}

	messages, err := h.store.GetMessages(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != domain.RoleUser || messages[0].Content != "Hi" {
		t.Fatalf("unexpected user message: %+v", messages[0])
	}
	if messages[1].Role != domain.RoleAssistant || messages[1].Content != "Hello" {
		t.Fatalf("unexpected assistant message: %+v", messages[1])
	}
}

func TestSendMessageRateLimited(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"Rate limit exceeded: free-models-per-day","code":429}}`)
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream.URL)
	conv, err := h.store.CreateConversation(context.Background(), "Demo")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	rec := postMessage(t, h, conv.ID, `{"content":"Hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with in-band error, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "API rate limit exceeded") {
		t.Fatalf("expected in-band rate limit error, got:\n%s", rec.Body.String())
	}

	// The limitation is also recorded as an assistant message so the
	// conversation keeps a visible explanation.
	messages, err := h.store.GetMessages(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected user + synthetic assistant message, got %d", len(messages))
	}
	if messages[1].Role != domain.RoleAssistant || !strings.Contains(messages[1].Content, "rate limit") {
		t.Fatalf("unexpected synthetic message: %+v", messages[1])
	}
}

func TestSendMessageUpstreamDiesMidStream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"par\"}}]}\n\n")
		w.(http.Flusher).Flush()

		// Kill the connection before the stream completes
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("hijack failed: %v", err)
			return
		}
		conn.Close()
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream.URL)
	conv, err := h.store.CreateConversation(context.Background(), "Demo")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	rec := postMessage(t, h, conv.ID, `{"content":"Hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with in-band error, got %d", rec.Code)
	}

	body := rec.Body.String()
	deltaIdx := strings.Index(body, `data: {"content":"par"}`)
	errIdx := strings.Index(body, `data: {"error":"Stream interrupted"}`)
	if deltaIdx < 0 {
		t.Fatalf("expected the delivered delta before the failure, got:\n%s", body)
	}
	if errIdx < deltaIdx {
		t.Fatalf("expected error frame after the delta, got:\n%s", body)
	}
	if strings.Contains(body, `"done"`) {
		t.Fatalf("error frame must be terminal, got:\n%s", body)
	}

	// Partial output is never persisted as an assistant message
	messages, err := h.store.GetMessages(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 1 || messages[0].Role != domain.RoleUser {
		t.Fatalf("expected only the user message, got %+v", messages)
	}
}

func TestSendMessageInvalidKeyAndPaymentRequired(t *testing.T) {
	for status, want := range map[int]string{
		http.StatusUnauthorized:    "Invalid API key",
		http.StatusPaymentRequired: "Payment required",
	} {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":{"message":"nope"}}`)
		}))

		h := newTestHandler(t, upstream.URL)
		conv, err := h.store.CreateConversation(context.Background(), "Demo")
		if err != nil {
			t.Fatalf("CreateConversation failed: %v", err)
		}

		rec := postMessage(t, h, conv.ID, `{"content":"Hi"}`)
		if !strings.Contains(rec.Body.String(), want) {
			t.Fatalf("status %d: expected %q in body, got:\n%s", status, want, rec.Body.String())
		}

		// Only the rate-limit case persists a synthetic message
		messages, _ := h.store.GetMessages(context.Background(), conv.ID)
		if len(messages) != 1 {
			t.Fatalf("status %d: expected only the user message, got %d", status, len(messages))
		}
		upstream.Close()
	}
}

func TestRateLimitNoticeSurvivesClientDisconnect(t *testing.T) {
	h := newTestHandler(t, "http://localhost:0")
	conv, err := h.store.CreateConversation(context.Background(), "Demo")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	// The client is gone: its request context is already cancelled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/", nil).WithContext(ctx)
	c, rec := newContext(req)

	h.streamError(c, rec, conv.ID, &relay.UpstreamError{Status: http.StatusTooManyRequests, Message: "slow down"})

	messages, err := h.store.GetMessages(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected the synthetic assistant message, got %d messages", len(messages))
	}
	if messages[0].Role != domain.RoleAssistant || !strings.Contains(messages[0].Content, "rate limit") {
		t.Fatalf("unexpected synthetic message: %+v", messages[0])
	}
}

func TestSendMessageMissingAPIKey(t *testing.T) {
	h := newTestHandler(t, "http://localhost:0")
	h.config.OpenRouterAPIKey = ""

	conv, err := h.store.CreateConversation(context.Background(), "Demo")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	rec := postMessage(t, h, conv.ID, `{"content":"Hi"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "OPENROUTER_API_KEY is not configured") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	// Nothing persisted before the credential check
	messages, _ := h.store.GetMessages(context.Background(), conv.ID)
	if len(messages) != 0 {
		t.Fatalf("expected no messages, got %d", len(messages))
	}
}

func TestSendMessageUnknownConversation(t *testing.T) {
	h := newTestHandler(t, "http://localhost:0")

	rec := postMessage(t, h, "conv_missing", `{"content":"Hi"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSendMessageInlinesLocalImage(t *testing.T) {
	var captured relay.ChatRequest
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode upstream request failed: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a cat\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream.URL)
	conv, err := h.store.CreateConversation(context.Background(), "Demo")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(h.config.UploadDir, "123-456.png"), []byte("fakepng"), 0o644); err != nil {
		t.Fatalf("write image failed: %v", err)
	}

	rec := postMessage(t, h, conv.ID, `{"content":"what is this","imageUrl":"/uploads/123-456.png"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if len(captured.Messages) != 2 {
		t.Fatalf("expected system + user message, got %d", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" {
		t.Fatalf("expected leading system message, got %+v", captured.Messages[0])
	}

	parts, ok := captured.Messages[1].Content.([]interface{})
	if !ok || len(parts) != 2 {
		t.Fatalf("expected 2 content parts, got %#v", captured.Messages[1].Content)
	}
	imagePart, ok := parts[1].(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected image part: %#v", parts[1])
	}
	imageURL, _ := imagePart["image_url"].(map[string]interface{})
	url, _ := imageURL["url"].(string)
	if !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Fatalf("expected base64 data URI, got %q", url)
	}
}

func TestSendMessageQuirkModelFoldsSystemPrompt(t *testing.T) {
	var captured relay.ChatRequest
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode upstream request failed: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer upstream.Close()

	h := newTestHandler(t, upstream.URL)
	h.config.Model = "google/gemma-3-27b-it:free"

	conv, err := h.store.CreateConversation(context.Background(), "Demo")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	postMessage(t, h, conv.ID, `{"content":"Hi"}`)

	for _, msg := range captured.Messages {
		if msg.Role == "system" {
			t.Fatalf("quirk model request must not carry a system message: %+v", captured.Messages)
		}
	}
	last := captured.Messages[len(captured.Messages)-1]
	content, _ := last.Content.(string)
	if !strings.Contains(content, "be helpful") || !strings.Contains(content, "Hi") {
		t.Fatalf("system prompt not folded into user message: %q", content)
	}
}
