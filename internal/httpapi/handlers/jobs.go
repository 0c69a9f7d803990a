package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vaultchat/vaultchat/internal/blob"
	"github.com/vaultchat/vaultchat/internal/chat"
)

type asyncReq struct {
	ChatID  string `json:"chat_id"`
	Message string `json:"message" binding:"required"`
}

// SendChatAsync queues a completion for background processing instead of
// streaming it. The reply lands in the job record and, once succeeded, in
// the referenced chat.
func (h *Handler) SendChatAsync(c *gin.Context) {
	if h.Rabbit == nil {
		fail(c, http.StatusServiceUnavailable, 50340, "job queue not configured")
		return
	}

	var req asyncReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10040, "invalid json")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		fail(c, http.StatusBadRequest, 10041, "message required")
		return
	}

	if req.ChatID != "" {
		if _, err := h.Store.Load(c.Request.Context(), req.ChatID); err != nil {
			if errors.Is(err, blob.ErrNotFound) {
				fail(c, http.StatusNotFound, 40440, "chat not found")
				return
			}
			h.Log.Error("jobs: chat lookup failed", zap.String("chat_id", req.ChatID), zap.Error(err))
			fail(c, http.StatusInternalServerError, 50040, "internal error")
			return
		}
	}

	j, err := h.Jobs.Create(c.Request.Context(), req.ChatID, req.Message)
	if err != nil {
		h.Log.Error("jobs: create failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, 50041, "internal error")
		return
	}

	if err := h.Rabbit.PublishJob(c.Request.Context(), j.ID); err != nil {
		h.Log.Error("jobs: enqueue failed", zap.String("job_id", j.ID), zap.Error(err))
		j.Status = chat.JobFailed
		j.Error = "enqueue failed"
		_ = h.Jobs.Update(c.Request.Context(), j)
		fail(c, http.StatusInternalServerError, 50042, "enqueue failed")
		return
	}

	ok(c, gin.H{"job_id": j.ID})
}

func (h *Handler) GetJob(c *gin.Context) {
	id := c.Param("job_id")
	if id == "" {
		fail(c, http.StatusBadRequest, 10042, "job_id required")
		return
	}

	j, err := h.Jobs.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			fail(c, http.StatusNotFound, 40441, "job not found")
			return
		}
		h.Log.Error("jobs: get failed", zap.String("job_id", id), zap.Error(err))
		fail(c, http.StatusInternalServerError, 50043, "internal error")
		return
	}
	ok(c, gin.H{"job": j})
}
