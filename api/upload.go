package api

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/modalchat/server/domain"
)

// UploadImage stores a multipart image upload and returns its public URL.
// POST /api/upload
func (h *Handler) UploadImage(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "No file uploaded")
	}

	if err := os.MkdirAll(h.config.UploadDir, 0o755); err != nil {
		h.logger.Error("failed to create upload dir", zap.Error(err))
		return jsonError(c, http.StatusInternalServerError, "Failed to store file")
	}

	// Timestamp plus random suffix, same naming as the upload URL contract
	name := fmt.Sprintf("%d-%d%s", time.Now().UnixMilli(), rand.Intn(1_000_000_000), filepath.Ext(file.Filename))

	src, err := file.Open()
	if err != nil {
		h.logger.Error("failed to open upload", zap.Error(err))
		return jsonError(c, http.StatusInternalServerError, "Failed to store file")
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(h.config.UploadDir, name))
	if err != nil {
		h.logger.Error("failed to create upload file", zap.Error(err))
		return jsonError(c, http.StatusInternalServerError, "Failed to store file")
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		h.logger.Error("failed to write upload file", zap.Error(err))
		return jsonError(c, http.StatusInternalServerError, "Failed to store file")
	}

	return c.JSON(http.StatusCreated, domain.FileUploadResponse{URL: "/uploads/" + name})
}
