package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/vaultchat/vaultchat/internal/ai"
	"github.com/vaultchat/vaultchat/internal/blob"
	"github.com/vaultchat/vaultchat/internal/notes"
)

// State identifies where the session is in the turn lifecycle.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateStreaming
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateStreaming:
		return "streaming"
	case StateCommitting:
		return "committing"
	default:
		return "unknown"
	}
}

var (
	// ErrBusy rejects a submit while another is still in flight.
	ErrBusy = errors.New("chat: a submission is already in flight")
	// ErrEmptyStream reports a stream that ended without any delta.
	ErrEmptyStream = errors.New("chat: no response received")
	// ErrEmptyMessage rejects blank user input.
	ErrEmptyMessage = errors.New("chat: empty message")
)

// Listener receives session lifecycle callbacks. Callbacks run on the
// submitting goroutine. A terminal callback (AssistantDone or TurnFailed)
// follows every AssistantPending unless the transcript was switched away
// mid-stream, in which case the abandoned turn goes silent.
type Listener interface {
	StateChanged(state State)
	UserTurn(turn Turn)
	AssistantPending()
	// AssistantDelta delivers the new fragment and the full accumulated
	// text so renderers can redraw idempotently.
	AssistantDelta(fragment, full string)
	AssistantDone(full string)
	// TurnFailed retains whatever partial text had streamed before the
	// failure; nothing is rolled back.
	TurnFailed(partial string, err error)
	// PersistWarning reports a non-fatal storage failure; the in-memory
	// transcript stays authoritative.
	PersistWarning(err error)
}

// NopListener discards every callback.
type NopListener struct{}

func (NopListener) StateChanged(State) {}
func (NopListener) UserTurn(Turn) {}
func (NopListener) AssistantPending() {}
func (NopListener) AssistantDelta(_, _ string) {}
func (NopListener) AssistantDone(string) {}
func (NopListener) TurnFailed(string, error) {}
func (NopListener) PersistWarning(error) {}

// Session owns the active transcript and drives one streaming turn at a
// time: it folds attached context into the provider request, decodes the
// event stream, commits the finished assistant turn and persists it.
//
// Switching transcripts while a stream is in flight bumps a generation
// counter; the stale submission notices and discards its output instead of
// mutating the newly active transcript.
type Session struct {
	mu         sync.Mutex
	state      State
	transcript *Transcript
	gen        uint64

	provider ai.StreamProvider
	store    *Store
	index    *Index
	contexts *notes.ContextStore
	listener Listener
	log      *zap.Logger
}

func NewSession(provider ai.StreamProvider, store *Store, index *Index, contexts *notes.ContextStore, listener Listener, log *zap.Logger) *Session {
	if listener == nil {
		listener = NopListener{}
	}
	return &Session{
		state:      StateIdle,
		transcript: NewTranscript(),
		provider:   provider,
		store:      store,
		index:      index,
		contexts:   contexts,
		listener:   listener,
		log:        log,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns a copy of the active transcript.
func (s *Session) Transcript() *Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Clone()
}

// Submit runs one full turn: append the user message, stream the assistant
// reply, commit and persist it. It blocks until the turn reaches a terminal
// state and refuses to interleave with an in-flight turn.
func (s *Session) Submit(ctx context.Context, userText string) error {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrBusy
	}
	gen := s.gen
	s.state = StateSubmitting
	tr := s.transcript

	// The context snapshot anchors the conversation's opening question:
	// captured once, at the first user turn, from whatever is attached at
	// submission time.
	if !tr.HasUserTurn() && s.contexts != nil && s.contexts.Len() > 0 {
		tr.Context = notes.Render(s.contexts.Snapshot())
	}
	tr.Append(ai.RoleUser, userText)
	userTurn := tr.Turns[len(tr.Turns)-1]
	msgs := tr.ProviderMessages()
	s.mu.Unlock()

	s.listener.StateChanged(StateSubmitting)
	s.listener.UserTurn(userTurn)
	s.listener.AssistantPending()

	body, err := s.provider.OpenStream(ctx, msgs)
	if err != nil {
		return s.finishFailed(gen, "", fmt.Errorf("chat: open stream: %w", err))
	}
	defer body.Close()

	if !s.toState(gen, StateStreaming) {
		return nil
	}
	s.listener.StateChanged(StateStreaming)

	var acc strings.Builder
	dec := &ai.Decoder{}
	buf := make([]byte, 4096)

	var streamErr error
readLoop:
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			for _, ev := range dec.Feed(buf[:n]) {
				switch ev.Kind {
				case ai.EventDelta:
					if !s.alive(gen) {
						// Abandoned mid-stream; drop everything.
						return nil
					}
					acc.WriteString(ev.Text)
					s.listener.AssistantDelta(ev.Text, acc.String())
				case ai.EventError:
					streamErr = fmt.Errorf("chat: provider error: %s", ev.Text)
					break readLoop
				}
			}
		}
		if rerr != nil {
			if rerr != io.EOF {
				// Transport failure, distinct from any malformed event the
				// decoder may have skipped.
				streamErr = fmt.Errorf("chat: read stream: %w", rerr)
			}
			break
		}
	}

	if streamErr != nil {
		return s.finishFailed(gen, acc.String(), streamErr)
	}
	if acc.Len() == 0 {
		return s.finishFailed(gen, "", ErrEmptyStream)
	}
	return s.commit(ctx, gen, acc.String())
}

// commit appends the assistant turn exactly once and persists the
// transcript. Persistence failure degrades to a warning.
func (s *Session) commit(ctx context.Context, gen uint64, full string) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil
	}
	s.state = StateCommitting
	tr := s.transcript
	tr.Append(ai.RoleAssistant, full)
	s.mu.Unlock()

	s.listener.StateChanged(StateCommitting)
	s.listener.AssistantDone(full)

	if err := s.store.Save(ctx, tr); err != nil {
		s.log.Warn("chat: persist failed", zap.String("chat_id", tr.ID), zap.Error(err))
		s.listener.PersistWarning(err)
	} else if s.index != nil {
		if _, err := s.index.Refresh(ctx); err != nil {
			s.log.Warn("chat: index refresh failed", zap.Error(err))
		}
	}

	s.toState(gen, StateIdle)
	s.listener.StateChanged(StateIdle)
	return nil
}

func (s *Session) finishFailed(gen uint64, partial string, err error) error {
	if !s.toState(gen, StateIdle) {
		return nil
	}
	s.listener.TurnFailed(partial, err)
	s.listener.StateChanged(StateIdle)
	return err
}

func (s *Session) alive(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

// toState moves to next only if the submission still owns the session.
func (s *Session) toState(gen uint64, next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.state = next
	return true
}

// NewChat replaces the active transcript with a fresh empty one. The
// previous transcript's last persisted form stays durable in storage.
func (s *Session) NewChat() {
	s.mu.Lock()
	s.gen++
	s.transcript = NewTranscript()
	s.state = StateIdle
	s.mu.Unlock()
	s.listener.StateChanged(StateIdle)
}

// Select loads a saved conversation and makes it the active transcript,
// replacing whatever was active. An in-flight stream for the previous
// transcript keeps running but its output is discarded.
func (s *Session) Select(ctx context.Context, id string) error {
	t, err := s.store.Load(ctx, id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.gen++
	s.transcript = t
	s.state = StateIdle
	s.mu.Unlock()
	s.listener.StateChanged(StateIdle)
	return nil
}

// Remove deletes a saved conversation. Removing the active one resets the
// session to a fresh empty transcript.
func (s *Session) Remove(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, blob.ErrNotFound) {
		return err
	}

	s.mu.Lock()
	if s.transcript.ID == id {
		s.gen++
		s.transcript = NewTranscript()
		s.state = StateIdle
	}
	s.mu.Unlock()

	if s.index != nil {
		if _, err := s.index.Refresh(ctx); err != nil {
			s.log.Warn("chat: index refresh failed", zap.Error(err))
		}
	}
	return nil
}
