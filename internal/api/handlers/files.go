package handlers

import (
	"mime"
	"net/http"

	"github.com/File-Sharing-BondBridg/Document-Service/internal/storage"
	"github.com/gin-gonic/gin"
)

func (h *Handler) ListFiles(c *gin.Context) {
	files, err := h.router.List()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, files)
}

func (h *Handler) GetFile(c *gin.Context) {
	rec, err := h.router.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetFileContent streams local bytes or redirects to a pre-signed URL for
// remote files.
func (h *Handler) GetFileContent(c *gin.Context) {
	rec, err := h.router.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	content, err := h.router.Serve(c.Request.Context(), rec.StoragePath)
	if err != nil {
		h.fail(c, err)
		return
	}
	if content.RedirectURL != "" {
		c.Redirect(http.StatusTemporaryRedirect, content.RedirectURL)
		return
	}

	if disposition := mime.FormatMediaType("inline", map[string]string{"filename": rec.Name}); disposition != "" {
		c.Header("Content-Disposition", disposition)
	}
	c.Data(http.StatusOK, content.MimeType, content.Data)
}

// ServeUpload resolves a local locator of the form /uploads/<name>.
func (h *Handler) ServeUpload(c *gin.Context) {
	content, err := h.router.Serve(c.Request.Context(), storage.LocalPathPrefix+c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, content.MimeType, content.Data)
}

func (h *Handler) DeleteFile(c *gin.Context) {
	if err := h.router.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
