package media

import "github.com/gin-gonic/gin"

// RegisterRoutes registers the authenticated uploads API.
func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	uploads := r.Group("/uploads")
	{
		uploads.POST("", h.Upload)
		uploads.GET("", h.ListMy)
		uploads.GET("/:id", h.GetByID)
		uploads.DELETE("/:id", h.Delete)
	}
}

// RegisterPublicRoutes registers the unauthenticated retrieval endpoints.
// Hashes are unguessable, which is the whole access model for /shared.
func RegisterPublicRoutes(r *gin.RouterGroup, h *Handler) {
	r.GET("/shared", h.Shared)
	r.GET("/thumbnail", h.Thumbnail)
}
