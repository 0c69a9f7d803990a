package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vaultchat/vaultchat/internal/ai"
	"github.com/vaultchat/vaultchat/internal/blob"
	"github.com/vaultchat/vaultchat/internal/chat"
	"github.com/vaultchat/vaultchat/internal/config"
	"github.com/vaultchat/vaultchat/internal/notes"
	"github.com/vaultchat/vaultchat/internal/queue"
)

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}

type Handler struct {
	Cfg      config.Config
	Client   *ai.AnthropicClient
	Library  *notes.Library
	Contexts *notes.ContextStore
	Session  *chat.Session
	Store    *chat.Store
	Index    *chat.Index
	Jobs     *chat.JobStore
	Rabbit   *queue.Publisher
	Log      *zap.Logger

	hub *renderHub
}

// NewHandler assembles the chat stack over the given blob store. rabbit may
// be nil when no queue is configured; the async endpoints then report 503.
func NewHandler(cfg config.Config, blobs blob.Store, rabbit *queue.Publisher, log *zap.Logger) *Handler {
	client := ai.NewAnthropicClient(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey, cfg.AnthropicVersion, cfg.Model, cfg.MaxTokens)
	library := notes.NewLibrary(blobs, cfg.BucketPrefix, cfg.ChatsPrefix(), cfg.JobsPrefix(), cfg.ObsidianVault, log)
	contexts := notes.NewContextStore()
	store := chat.NewStore(blobs, cfg.ChatsPrefix(), log)
	index := chat.NewIndex(store)
	jobs := chat.NewJobStore(blobs, cfg.JobsPrefix())

	hub := &renderHub{}
	session := chat.NewSession(client, store, index, contexts, hub, log)

	return &Handler{
		Cfg:      cfg,
		Client:   client,
		Library:  library,
		Contexts: contexts,
		Session:  session,
		Store:    store,
		Index:    index,
		Jobs:     jobs,
		Rabbit:   rabbit,
		Log:      log,
		hub:      hub,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	ok(c, gin.H{"pong": true})
}
