package handlers

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// relayClient has no overall timeout: relayed responses may stream for
// minutes. Connection setup still times out.
var relayClient = &http.Client{
	Transport: &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
	},
}

// RelayMessages forwards the request body to the Anthropic messages
// endpoint untouched and streams the upstream response back, whatever its
// status. The caller supplies its own x-api-key; the server never injects
// its configured key here.
func (h *Handler) RelayMessages(c *gin.Context) {
	apiKey := c.GetHeader("x-api-key")
	if apiKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing x-api-key header"})
		return
	}

	url := strings.TrimRight(h.Cfg.AnthropicBaseURL, "/") + "/v1/messages"
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, url, c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build upstream request"})
		return
	}

	req.Header.Set("x-api-key", apiKey)
	if ct := c.GetHeader("Content-Type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	} else {
		req.Header.Set("Content-Type", "application/json")
	}
	version := c.GetHeader("anthropic-version")
	if version == "" {
		version = h.Cfg.AnthropicVersion
	}
	req.Header.Set("anthropic-version", version)
	if accept := c.GetHeader("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := relayClient.Do(req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to reach Anthropic API",
			"details": err.Error(),
		})
		return
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		c.Header("Content-Type", ct)
	}
	c.Status(resp.StatusCode)

	flusher, _ := c.Writer.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				// Client went away; nothing left to do.
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr != nil {
			if rerr != io.EOF {
				h.Log.Warn("relay: upstream read aborted", zap.Error(rerr))
			}
			return
		}
	}
}
