package chunked

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	jwtsvc "mediastore/internal/pkg/jwt"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced by the HTTP layer's CORS policy for browser
	// clients; native resumable-upload clients connect directly.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler pushes live progress frames for one upload session.
//
// Endpoint: GET /upload/chunked/ws?upload_id=...&token=JWT
// Auth goes through a query parameter because websocket clients cannot
// set headers on the upgrade request.
type WSHandler struct {
	service    *Service
	jwtService *jwtsvc.Service
}

func NewWSHandler(service *Service, jwtService *jwtsvc.Service) *WSHandler {
	return &WSHandler{service: service, jwtService: jwtService}
}

type progressFrame struct {
	UploadID       string `json:"upload_id"`
	UploadedChunks int    `json:"uploaded_chunks"`
	TotalChunks    int    `json:"total_chunks"`
	Status         string `json:"status"`
}

func (h *WSHandler) HandleProgress(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token is required"})
		return
	}
	claims, err := h.jwtService.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}
	userID := claims.UserID

	sessionID := c.Query("upload_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "upload_id is required"})
		return
	}
	if _, err := h.service.Progress(c.Request.Context(), sessionID, userID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "upload session not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		session, err := h.service.Progress(c.Request.Context(), sessionID, userID)
		if err != nil {
			// Session cancelled or reaped mid-stream.
			_ = conn.WriteJSON(gin.H{"error": "upload session gone"})
			return
		}

		frame := progressFrame{
			UploadID:       session.ID,
			UploadedChunks: session.UploadedChunks,
			TotalChunks:    session.TotalChunks,
			Status:         session.Status,
		}
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
		if session.Status == StatusCompleted || session.Status == StatusCancelled {
			return
		}

		select {
		case <-ticker.C:
		case <-c.Request.Context().Done():
			return
		}
	}
}
