package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vaultchat/vaultchat/internal/blob"
	"github.com/vaultchat/vaultchat/internal/notes"
)

func (h *Handler) ListContext(c *gin.Context) {
	entries := h.Contexts.Snapshot()
	type entryOut struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	}
	out := make([]entryOut, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryOut{Key: e.Key, Name: e.DisplayName})
	}
	ok(c, gin.H{"context": out})
}

type contextReq struct {
	Key string `json:"key" binding:"required"`
}

// AttachContext loads a note's text and adds it to the attachment set used
// by the next conversation's opening turn.
func (h *Handler) AttachContext(c *gin.Context) {
	var req contextReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10030, "invalid json")
		return
	}

	text, err := h.Library.Content(c.Request.Context(), req.Key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			fail(c, http.StatusNotFound, 40430, "file not found")
			return
		}
		if errors.Is(err, notes.ErrInvalidKey) {
			fail(c, http.StatusBadRequest, 10031, "invalid key")
			return
		}
		h.Log.Error("context: attach failed", zap.String("key", req.Key), zap.Error(err))
		fail(c, http.StatusInternalServerError, 50030, "failed to read file")
		return
	}

	h.Contexts.Add(notes.Entry{
		Key:         req.Key,
		DisplayName: h.Library.DisplayName(req.Key),
		Text:        text,
	})
	ok(c, gin.H{"attached": req.Key, "count": h.Contexts.Len()})
}

func (h *Handler) DetachContext(c *gin.Context) {
	var req contextReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10030, "invalid json")
		return
	}
	if !h.Contexts.Remove(req.Key) {
		fail(c, http.StatusNotFound, 40431, "not attached")
		return
	}
	ok(c, gin.H{"detached": req.Key, "count": h.Contexts.Len()})
}
