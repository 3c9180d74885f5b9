package media

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mediastore/internal/domain/ingest"
	"mediastore/internal/domain/ledger"
	"mediastore/internal/domain/registry"
	"mediastore/internal/pkg/response"
)

// Handler serves the authenticated uploads API and the public retrieval
// endpoints. Stored content is immutable, so /shared responses carry
// long-lived cache headers.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Upload(c *gin.Context) {
	userID := mustUserID(c)
	if userID == 0 {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "no file provided")
		return
	}

	own, err := h.service.Upload(c.Request.Context(), userID, fileHeader)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, ownershipJSON(own))
}

func (h *Handler) GetByID(c *gin.Context) {
	userID := mustUserID(c)
	if userID == 0 {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid media id")
		return
	}

	own, err := h.service.Get(c.Request.Context(), id)
	if err != nil || own.UserID != userID {
		// Someone else's file and a nonexistent one look the same.
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "file not found")
		return
	}

	response.Success(c, http.StatusOK, ownershipJSON(own))
}

func (h *Handler) ListMy(c *gin.Context) {
	userID := mustUserID(c)
	if userID == 0 {
		return
	}

	records, err := h.service.ListByUser(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "INTERNAL", "failed to list files")
		return
	}

	items := make([]gin.H, 0, len(records))
	for i := range records {
		items = append(items, ownershipJSON(&records[i]))
	}
	response.Success(c, http.StatusOK, items)
}

func (h *Handler) Delete(c *gin.Context) {
	userID := mustUserID(c)
	if userID == 0 {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid media id")
		return
	}

	if err := h.service.Delete(c.Request.Context(), id, userID); err != nil {
		switch err {
		case ledger.ErrOwnershipNotFound, ledger.ErrNotOwner:
			response.Error(c, http.StatusNotFound, "NOT_FOUND", "file not found")
		default:
			response.Error(c, http.StatusInternalServerError, "INTERNAL", "delete failed")
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) Shared(c *gin.Context) {
	hash := c.Query("data")
	rec, path, err := h.service.Shared(c.Request.Context(), hash)
	if err != nil {
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "file not found")
		return
	}

	c.Header("Content-Type", rec.MimeType)
	c.Header("ETag", `"`+rec.Hash+`"`)
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Header("Accept-Ranges", "bytes")
	c.File(path)
}

func (h *Handler) Thumbnail(c *gin.Context) {
	hash := c.Query("data")
	kind := c.DefaultQuery("type", "image")

	path, err := h.service.Thumbnail(c.Request.Context(), hash, kind)
	if err != nil {
		switch err {
		case ErrBadThumbnailType:
			response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		case registry.ErrInvalidHash, registry.ErrHashNotFound:
			response.Error(c, http.StatusNotFound, "NOT_FOUND", "file not found")
		default:
			response.Error(c, http.StatusInternalServerError, "INTERNAL", "thumbnail failed")
		}
		return
	}

	c.Header("Content-Type", "image/jpeg")
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.File(path)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch err {
	case ingest.ErrEmptyFile:
		response.Error(c, http.StatusBadRequest, "EMPTY_FILE", err.Error())
	case ingest.ErrPayloadTooLarge:
		response.Error(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", err.Error())
	case ingest.ErrUnsupportedMediaType:
		response.Error(c, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, "INTERNAL", "upload failed")
	}
}

func ownershipJSON(own *ledger.OwnershipRecord) gin.H {
	return gin.H{
		"id":         own.ID,
		"name":       own.OriginalUserFilename,
		"hash":       own.Hash,
		"url":        "/shared?data=" + own.Hash,
		"created_at": own.CreatedAt,
	}
}

func mustUserID(c *gin.Context) int64 {
	id, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": gin.H{"code": "UNAUTHORIZED", "message": "unauthorized"}})
		return 0
	}
	v, ok := id.(int64)
	if !ok || v == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": gin.H{"code": "UNAUTHORIZED", "message": "invalid user id"}})
		return 0
	}
	return v
}
