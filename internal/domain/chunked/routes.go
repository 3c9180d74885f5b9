package chunked

import "github.com/gin-gonic/gin"

// RegisterRoutes registers the chunked upload endpoints under the
// protected group. The websocket route authenticates on its own because
// upgrade requests carry the token as a query parameter.
func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	chunked := r.Group("/upload/chunked")
	{
		chunked.POST("/init", h.Init)
		chunked.POST("/chunk", h.PutChunk)
		chunked.GET("/progress", h.Progress)
		chunked.POST("/complete", h.Complete)
		chunked.POST("/cancel", h.Cancel)
	}
}

// RegisterWSRoutes registers the progress push endpoint on the public
// group; it does its own token validation.
func RegisterWSRoutes(r *gin.RouterGroup, h *WSHandler) {
	r.GET("/upload/chunked/ws", h.HandleProgress)
}
