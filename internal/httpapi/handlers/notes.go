package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vaultchat/vaultchat/internal/blob"
	"github.com/vaultchat/vaultchat/internal/notes"
)

func (h *Handler) ListFiles(c *gin.Context) {
	files, err := h.Library.List(c.Request.Context())
	if err != nil {
		h.Log.Error("notes: list failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, 50010, "failed to list files")
		return
	}

	if files == nil {
		files = []notes.File{}
	}
	ok(c, gin.H{"files": files})
}

func (h *Handler) FileContent(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		fail(c, http.StatusBadRequest, 10010, "key required")
		return
	}

	text, err := h.Library.Content(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			fail(c, http.StatusNotFound, 40410, "file not found")
			return
		}
		if errors.Is(err, notes.ErrInvalidKey) {
			fail(c, http.StatusBadRequest, 10011, "invalid key")
			return
		}
		h.Log.Error("notes: content failed", zap.String("key", key), zap.Error(err))
		fail(c, http.StatusInternalServerError, 50011, "failed to read file")
		return
	}

	name := h.Library.DisplayName(key)
	ok(c, gin.H{
		"key":     key,
		"name":    name,
		"content": text,
		"url":     h.Library.ObsidianURL(name),
	})
}
