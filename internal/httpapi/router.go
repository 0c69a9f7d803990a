package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vaultchat/vaultchat/internal/blob"
	"github.com/vaultchat/vaultchat/internal/common"
	"github.com/vaultchat/vaultchat/internal/config"
	"github.com/vaultchat/vaultchat/internal/httpapi/handlers"
	"github.com/vaultchat/vaultchat/internal/httpapi/middleware"
	"github.com/vaultchat/vaultchat/internal/queue"
)

func NewRouter(cfg config.Config, blobs blob.Store, rabbit *queue.Publisher, log *zap.Logger) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	h := handlers.NewHandler(cfg, blobs, rabbit, log)

	r.GET("/ping", h.Ping)

	// relay to Anthropic
	r.POST("/api/messages", h.RelayMessages)

	// notes
	r.GET("/api/files", h.ListFiles)
	r.GET("/api/files/content", h.FileContent)

	// context attachments
	r.GET("/api/context", h.ListContext)
	r.POST("/api/context/attach", h.AttachContext)
	r.POST("/api/context/detach", h.DetachContext)

	// chats
	r.GET("/api/chats", h.ListChats)
	r.GET("/api/chat", h.ActiveChat)
	r.POST("/api/chat/new", h.NewChat)
	r.POST("/api/chat/select", h.SelectChat)
	r.DELETE("/api/chats/:id", h.DeleteChat)
	r.POST("/api/chat/stream", h.StreamChat)

	// async jobs
	r.POST("/api/chat/async", h.SendChatAsync)
	r.GET("/api/jobs/:job_id", h.GetJob)

	return r
}
