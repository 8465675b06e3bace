package handlers

import (
	"errors"
	"net/http"

	"github.com/File-Sharing-BondBridg/Document-Service/internal/storage"
	"github.com/gin-gonic/gin"
)

// statusFor maps a storage error onto an HTTP status and a client message.
// Messages are fixed strings so no filesystem detail reaches the client.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, "file exceeds the maximum upload size"
	case errors.Is(err, storage.ErrInvalidContentType):
		return http.StatusBadRequest, "unsupported content type"
	case errors.Is(err, storage.ErrEmptyUpload):
		return http.StatusBadRequest, "upload is empty"
	case errors.Is(err, storage.ErrUploadInterrupted):
		return http.StatusBadRequest, "upload was interrupted"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, storage.ErrInfectedUpload):
		return http.StatusUnprocessableEntity, "upload rejected by virus scan"
	case errors.Is(err, storage.ErrBusy):
		return http.StatusTooManyRequests, "too many uploads in progress, retry later"
	case errors.Is(err, storage.ErrProviderUnavailable):
		return http.StatusBadGateway, "storage provider unavailable"
	case errors.Is(err, storage.ErrLedgerCorruption):
		return http.StatusServiceUnavailable, "file catalogue is unavailable"
	case errors.Is(err, storage.ErrWriteFailure):
		return http.StatusInternalServerError, "failed to store file"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "status", status, "error", err)
	}
	c.JSON(status, gin.H{"error": msg})
}
