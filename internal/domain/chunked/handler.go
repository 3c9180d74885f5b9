package chunked

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mediastore/internal/domain/ingest"
	"mediastore/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type initRequest struct {
	Filename    string `json:"filename" binding:"required"`
	TotalSize   int64  `json:"total_size_bytes" binding:"required"`
	TotalChunks int    `json:"total_chunks" binding:"required"`
}

func (h *Handler) Init(c *gin.Context) {
	userID := mustUserID(c)
	if userID == 0 {
		return
	}

	var req initRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "filename, total_size_bytes and total_chunks are required")
		return
	}

	sessionID, err := h.service.Init(c.Request.Context(), userID, req.Filename, req.TotalSize, req.TotalChunks)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"upload_id": sessionID})
}

func (h *Handler) PutChunk(c *gin.Context) {
	userID := mustUserID(c)
	if userID == 0 {
		return
	}

	sessionID := c.PostForm("upload_id")
	if sessionID == "" {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "upload_id is required")
		return
	}
	index, ok := formInt(c, "chunk_index")
	if !ok {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "chunk_index must be a non-negative integer")
		return
	}

	fileHeader, err := c.FormFile("chunk")
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "no chunk provided")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "unreadable chunk")
		return
	}
	defer file.Close()

	if err := h.service.PutChunk(c.Request.Context(), sessionID, userID, index, file); err != nil {
		h.writeError(c, err)
		return
	}

	session, err := h.service.Progress(c.Request.Context(), sessionID, userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"upload_id":       session.ID,
		"uploaded_chunks": session.UploadedChunks,
		"total_chunks":    session.TotalChunks,
		"status":          session.Status,
	})
}

func (h *Handler) Progress(c *gin.Context) {
	userID := mustUserID(c)
	if userID == 0 {
		return
	}

	sessionID := c.Query("upload_id")
	if sessionID == "" {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "upload_id is required")
		return
	}

	session, err := h.service.Progress(c.Request.Context(), sessionID, userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"upload_id":       session.ID,
		"uploaded_chunks": session.UploadedChunks,
		"total_chunks":    session.TotalChunks,
		"status":          session.Status,
	})
}

type sessionRequest struct {
	UploadID string `json:"upload_id" binding:"required"`
}

func (h *Handler) Complete(c *gin.Context) {
	userID := mustUserID(c)
	if userID == 0 {
		return
	}

	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "upload_id is required")
		return
	}

	rec, err := h.service.Complete(c.Request.Context(), req.UploadID, userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"hash":       rec.Hash,
		"size_bytes": rec.SizeBytes,
		"mime_type":  rec.MimeType,
	})
}

func (h *Handler) Cancel(c *gin.Context) {
	userID := mustUserID(c)
	if userID == 0 {
		return
	}

	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "upload_id is required")
		return
	}

	if err := h.service.Cancel(c.Request.Context(), req.UploadID, userID); err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"cancelled": true})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch err {
	case ErrSessionNotFound:
		response.Error(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case ErrSessionClosed:
		response.Error(c, http.StatusConflict, "SESSION_CLOSED", err.Error())
	case ErrChunkOutOfRange, ErrInvalidRequest:
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case ErrChunkConflict:
		response.Error(c, http.StatusConflict, "CHUNK_CONFLICT", err.Error())
	case ErrIncompleteUpload:
		response.Error(c, http.StatusConflict, "INCOMPLETE_UPLOAD", err.Error())
	case ingest.ErrPayloadTooLarge:
		response.Error(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", err.Error())
	case ingest.ErrUnsupportedMediaType:
		response.Error(c, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, "INTERNAL", "chunked upload failed")
	}
}

func formInt(c *gin.Context, name string) (int, bool) {
	n, err := strconv.Atoi(c.PostForm(name))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
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
