// Package chat holds the streaming chat session manager and the durable
// conversation records it maintains.
package chat

import (
	"time"

	"github.com/vaultchat/vaultchat/internal/ai"
)

// Turn is one role-tagged message in a conversation. Committed turns are
// never mutated; only the in-flight assistant turn grows, and it lives in
// the session's accumulator until commit.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"content"`
}

// Transcript is the ordered turn history plus persistence metadata for one
// conversation. ID stays empty until the first successful persist and is
// permanent afterwards.
type Transcript struct {
	ID      string
	Title   string
	Created time.Time // zero until first persist
	Updated time.Time
	Context string // rendered context block captured at the first user turn
	Turns   []Turn
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

func (t *Transcript) Append(role, text string) {
	t.Turns = append(t.Turns, Turn{Role: role, Text: text})
}

func (t *Transcript) HasUserTurn() bool {
	for _, turn := range t.Turns {
		if turn.Role == ai.RoleUser {
			return true
		}
	}
	return false
}

func (t *Transcript) firstUserText() string {
	for _, turn := range t.Turns {
		if turn.Role == ai.RoleUser {
			return turn.Text
		}
	}
	return ""
}

const titleLimit = 50

// deriveTitle takes the first user turn's text, truncated to 50 characters.
func (t *Transcript) deriveTitle() string {
	title := t.firstUserText()
	if r := []rune(title); len(r) > titleLimit {
		title = string(r[:titleLimit])
	}
	return title
}

const contextLeadIn = "Here are the files from my Obsidian vault that are relevant:\n\n"

// ProviderMessages renders the outbound message list from the whole
// history. The context block, when present, is folded into the first user
// turn so it anchors the opening question without being repeated per turn,
// while later submissions still replay it as part of history.
func (t *Transcript) ProviderMessages() []ai.Message {
	msgs := make([]ai.Message, 0, len(t.Turns))
	contextPending := t.Context != ""
	for _, turn := range t.Turns {
		content := turn.Text
		if contextPending && turn.Role == ai.RoleUser {
			content = contextLeadIn + t.Context + "\n\n---\n\nUser question: " + turn.Text
			contextPending = false
		}
		msgs = append(msgs, ai.Message{Role: turn.Role, Content: content})
	}
	return msgs
}

// Clone returns a deep copy safe to hand across goroutines.
func (t *Transcript) Clone() *Transcript {
	cp := *t
	cp.Turns = append([]Turn(nil), t.Turns...)
	return &cp
}
