package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/modalchat/server/config"
	"github.com/modalchat/server/rag"
	"github.com/modalchat/server/relay"
	"github.com/modalchat/server/tests/helpers"
)

// newTestHandler builds a handler backed by an in-memory store, a disabled
// retrieval client, and the given upstream URL.
func newTestHandler(t *testing.T, upstreamURL string) *Handler {
	t.Helper()

	cfg := &config.Config{
		OpenRouterURL:    upstreamURL,
		OpenRouterAPIKey: "test-key",
		Model:            "openai/gpt-4o",
		LLMTimeout:       time.Second,
		SystemPrompt:     "be helpful",
		UploadDir:        t.TempDir(),
	}

	return NewHandler(
		cfg,
		helpers.NewTestSQLiteStore(t),
		relay.NewClient(cfg.OpenRouterURL, cfg.OpenRouterAPIKey, cfg.LLMTimeout),
		rag.NewClient("", "", time.Second),
		zap.NewNop(),
	)
}

// newContext builds an echo context around a recorded request.
func newContext(req *http.Request) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	e := echo.New()
	return e.NewContext(req, rec), rec
}
