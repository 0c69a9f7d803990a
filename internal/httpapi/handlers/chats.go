package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vaultchat/vaultchat/internal/blob"
	"github.com/vaultchat/vaultchat/internal/chat"
)

// renderHub is the session's permanent listener. A streaming request binds
// itself as the target for the duration of its submit; outside of a stream
// the callbacks go nowhere. Single-flight submission means at most one
// binding is ever live.
type renderHub struct {
	mu     sync.Mutex
	target chat.Listener
}

func (h *renderHub) bind(l chat.Listener) {
	h.mu.Lock()
	h.target = l
	h.mu.Unlock()
}

func (h *renderHub) unbind() {
	h.mu.Lock()
	h.target = nil
	h.mu.Unlock()
}

func (h *renderHub) get() chat.Listener {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.target == nil {
		return chat.NopListener{}
	}
	return h.target
}

func (h *renderHub) StateChanged(s chat.State) { h.get().StateChanged(s) }

func (h *renderHub) UserTurn(t chat.Turn) { h.get().UserTurn(t) }

func (h *renderHub) AssistantPending() { h.get().AssistantPending() }

func (h *renderHub) AssistantDelta(frag, full string) { h.get().AssistantDelta(frag, full) }

func (h *renderHub) AssistantDone(full string) { h.get().AssistantDone(full) }

func (h *renderHub) TurnFailed(partial string, e error) { h.get().TurnFailed(partial, e) }

func (h *renderHub) PersistWarning(e error) { h.get().PersistWarning(e) }

func (h *Handler) ListChats(c *gin.Context) {
	entries, err := h.Index.Refresh(c.Request.Context())
	if err != nil {
		h.Log.Error("chat: index refresh failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, 50020, "failed to list chats")
		return
	}
	if entries == nil {
		entries = []chat.IndexEntry{}
	}
	ok(c, gin.H{"chats": entries})
}

func (h *Handler) ActiveChat(c *gin.Context) {
	t := h.Session.Transcript()
	ok(c, gin.H{
		"id":          t.ID,
		"title":       t.Title,
		"state":       h.Session.State().String(),
		"has_context": t.Context != "",
		"messages":    t.Turns,
	})
}

func (h *Handler) NewChat(c *gin.Context) {
	h.Session.NewChat()
	ok(c, gin.H{"state": h.Session.State().String()})
}

type selectChatReq struct {
	ID string `json:"id" binding:"required"`
}

func (h *Handler) SelectChat(c *gin.Context) {
	var req selectChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10020, "invalid json")
		return
	}
	if err := h.Session.Select(c.Request.Context(), req.ID); err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			fail(c, http.StatusNotFound, 40420, "chat not found")
			return
		}
		h.Log.Error("chat: select failed", zap.String("chat_id", req.ID), zap.Error(err))
		fail(c, http.StatusInternalServerError, 50021, "failed to load chat")
		return
	}
	h.ActiveChat(c)
}

func (h *Handler) DeleteChat(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		fail(c, http.StatusBadRequest, 10021, "id required")
		return
	}
	if err := h.Session.Remove(c.Request.Context(), id); err != nil {
		h.Log.Error("chat: delete failed", zap.String("chat_id", id), zap.Error(err))
		fail(c, http.StatusInternalServerError, 50022, "failed to delete chat")
		return
	}
	ok(c, gin.H{"deleted": id})
}

type streamReq struct {
	Message string `json:"message" binding:"required"`
}

// sseListener renders session callbacks straight onto the response stream.
// Callbacks arrive on the request goroutine, so no locking is needed.
type sseListener struct {
	chat.NopListener
	write func(event string, payload any)
}

func (l *sseListener) AssistantDelta(frag, full string) {
	l.write("chunk", gin.H{"type": "chunk", "delta": frag, "text": full})
}

func (l *sseListener) TurnFailed(partial string, err error) {
	l.write("error", gin.H{"type": "error", "message": err.Error(), "partial": partial})
}

func (l *sseListener) PersistWarning(err error) {
	l.write("warning", gin.H{"type": "warning", "message": "failed to save chat: " + err.Error()})
}

// StreamChat runs one turn against the hosted session, emitting SSE events
// as the assistant text arrives.
func (h *Handler) StreamChat(c *gin.Context) {
	var req streamReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10022, "invalid json")
		return
	}
	if h.Session.State() != chat.StateIdle {
		fail(c, http.StatusConflict, 40920, "a submission is already in flight")
		return
	}

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	flusher, okk := c.Writer.(http.Flusher)
	if !okk {
		fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"flusher not supported\"}\n\n")
		return
	}

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		if event != "" {
			fmt.Fprintf(c.Writer, "event: %s\n", event)
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", string(b))
		flusher.Flush()
	}

	h.hub.bind(&sseListener{write: writeJSON})
	defer h.hub.unbind()

	err := h.Session.Submit(c.Request.Context(), req.Message)
	switch {
	case errors.Is(err, chat.ErrBusy):
		writeJSON("error", gin.H{"type": "error", "message": "a submission is already in flight"})
	case errors.Is(err, chat.ErrEmptyMessage):
		writeJSON("error", gin.H{"type": "error", "message": "empty message"})
	case err != nil:
		// sseListener already rendered the error event.
	default:
		t := h.Session.Transcript()
		writeJSON("done", gin.H{"type": "done", "chat_id": t.ID, "title": t.Title})
	}
}
