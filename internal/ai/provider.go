package ai

import (
	"context"
	"io"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider produces one complete assistant reply for a message list.
type Provider interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// StreamProvider is an optional interface. Providers may expose the raw
// event-stream body; callers decode it with a Decoder.
type StreamProvider interface {
	OpenStream(ctx context.Context, messages []Message) (io.ReadCloser, error)
}
