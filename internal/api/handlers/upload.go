package handlers

import (
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/File-Sharing-BondBridg/Document-Service/internal/storage"
	"github.com/gin-gonic/gin"
)

const (
	headerFileName = "X-File-Name"
	headerFileSize = "X-File-Size"
)

type completeRemoteRequest struct {
	UploadURL string `json:"upload_url" binding:"required"`
	Name      string `json:"name" binding:"required"`
	Size      int64  `json:"size" binding:"gte=0"`
}

// RequestUpload hands the client a target to push bytes to.
func (h *Handler) RequestUpload(c *gin.Context) {
	target, err := h.router.RequestUploadTarget(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, target)
}

// UploadLocal accepts the bytes for a local target, either as the raw request
// body or as the "file" part of a multipart form.
func (h *Handler) UploadLocal(c *gin.Context) {
	up := storage.LocalUpload{
		ID:           c.Param("id"),
		Body:         c.Request.Body,
		DeclaredSize: declaredSize(c),
		Name:         fileName(c),
		ContentType:  c.GetHeader("Content-Type"),
	}

	if mediaType, _, err := mime.ParseMediaType(up.ContentType); err == nil && mediaType == "multipart/form-data" {
		if err := h.router.PrecheckLocalUpload(c.Request.Context(), up.ID, up.DeclaredSize, up.Name); err != nil {
			h.fail(c, err)
			return
		}

		part, err := filePart(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "multipart request has no file part"})
			return
		}
		defer part.Close()

		up.Body = part
		up.ContentType = part.Header.Get("Content-Type")
		if up.Name == "" {
			up.Name = part.FileName()
		}
		if c.GetHeader(headerFileSize) == "" {
			up.DeclaredSize = -1
		}
	}

	if strings.TrimSpace(up.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file name is required"})
		return
	}

	rec, err := h.router.CompleteLocalUpload(c.Request.Context(), up)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// CompleteRemote records an upload the client pushed straight to the
// object store.
func (h *Handler) CompleteRemote(c *gin.Context) {
	var req completeRemoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "upload_url, name and a non-negative size are required"})
		return
	}

	rec, err := h.router.CompleteRemoteUpload(c.Request.Context(), req.UploadURL, req.Name, req.Size)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// declaredSize prefers X-File-Size and falls back to Content-Length. -1 means
// the client did not say.
func declaredSize(c *gin.Context) int64 {
	if raw := c.GetHeader(headerFileSize); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	return c.Request.ContentLength
}

func fileName(c *gin.Context) string {
	name := c.GetHeader(headerFileName)
	if name == "" {
		name = c.Query("name")
	}
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	return name
}

// filePart streams the first "file" part without buffering the form.
func filePart(c *gin.Context) (*multipart.Part, error) {
	mr, err := c.Request.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}
