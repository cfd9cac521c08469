package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vidyalabs/vidya/engine/convstore"
	"github.com/vidyalabs/vidya/engine/ingest"
	"github.com/vidyalabs/vidya/engine/memory"
	"github.com/vidyalabs/vidya/engine/retriever"
	"github.com/vidyalabs/vidya/pkg/logger"
)

const maxUploadBytes = 50 << 20

// Services carries everything the handlers need. Conversations is optional;
// without it the history endpoint serves the in-process memory.
type Services struct {
	Ingest        *ingest.Pipeline
	Retriever     *retriever.Service
	Memory        *memory.Store
	Conversations *convstore.Store
	UploadDir     string
	AudioDir      string
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(services *Services, log logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))
	router.MaxMultipartMemory = maxUploadBytes

	handler := &Handler{services: services}

	router.GET("/healthz", handler.Health)
	api := router.Group("/api")
	{
		api.POST("/upload/document", handler.UploadDocument)
		chat := api.Group("/chat")
		{
			chat.POST("/message", handler.ChatMessage)
			chat.POST("/suggestions", handler.Suggestions)
			chat.GET("/history/:session_id", handler.History)
		}
		api.GET("/audio/:filename", handler.Audio)
	}
	return router
}

// requestLogger attaches the service logger to every request context so the
// engine packages can pick it up via logger.FromContext.
func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := logger.ContextWithLogger(c.Request.Context(), log)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Health reports service liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "message": "AI Tutor API is running"})
}
