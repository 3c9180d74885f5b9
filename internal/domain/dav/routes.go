package dav

import "github.com/gin-gonic/gin"

var readMethods = []string{"OPTIONS", "GET", "HEAD", "PROPFIND"}

var writeMethods = []string{"PUT", "DELETE", "MKCOL", "PROPPATCH", "COPY", "MOVE", "LOCK", "UNLOCK"}

// RegisterRoutes mounts the adapter at /dav. Write verbs get an explicit
// 405 instead of gin's default 404.
func RegisterRoutes(r *gin.Engine, h *Handler) {
	for _, m := range readMethods {
		r.Handle(m, "/dav", h.Dispatch)
		r.Handle(m, "/dav/*path", h.Dispatch)
	}
	for _, m := range writeMethods {
		r.Handle(m, "/dav", h.MethodNotAllowed)
		r.Handle(m, "/dav/*path", h.MethodNotAllowed)
	}
}
