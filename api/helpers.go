package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// errorMessage is the JSON error body shared by all non-stream error paths.
type errorMessage struct {
	Message string `json:"message"`
}

// jsonError writes a non-stream error response.
func jsonError(c echo.Context, status int, message string) error {
	return c.JSON(status, errorMessage{Message: message})
}

// writeEvent writes one outbound SSE event frame and flushes it to the
// client immediately.
func writeEvent(c echo.Context, flusher http.Flusher, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response().Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
