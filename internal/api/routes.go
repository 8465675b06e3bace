package api

import (
	"net/http"

	"github.com/File-Sharing-BondBridg/Document-Service/internal/api/handlers"
	"github.com/gin-gonic/gin"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"
)

type Options struct {
	// TraceService enables DataDog request tracing under this service name.
	TraceService string
	RateLimit    RateLimit
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-File-Name, X-File-Size")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func RegisterRoutes(r *gin.Engine, h *handlers.Handler, opts Options) {
	if opts.TraceService != "" {
		r.Use(gintrace.Middleware(opts.TraceService))
	}
	// Enable CORS for preflight requests
	r.Use(corsMiddleware())
	r.Use(newIPRateLimiter(opts.RateLimit).middleware())

	r.GET("/uploads/:name", h.ServeUpload)

	api := r.Group("/api")
	{
		api.GET("/health", h.HealthCheck)
		api.GET("/stats", h.GetStats)

		// Upload endpoints
		api.POST("/uploads", h.RequestUpload)                  // ask where to push bytes
		api.PUT("/uploads/local/:id", h.UploadLocal)           // push bytes for a local target
		api.POST("/uploads/remote/complete", h.CompleteRemote) // report a direct-to-store upload

		// File endpoints
		api.GET("/files", h.ListFiles)
		api.GET("/files/:id", h.GetFile)
		api.GET("/files/:id/content", h.GetFileContent)
		api.DELETE("/files/:id", h.DeleteFile)
	}
}
