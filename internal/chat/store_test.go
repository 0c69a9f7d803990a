package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vaultchat/vaultchat/internal/ai"
	"github.com/vaultchat/vaultchat/internal/blob"
)

// memStore is an in-memory blob.Store for tests.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	mods map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, mods: map[string]time.Time{}}
}

func (m *memStore) List(ctx context.Context, prefix string) ([]blob.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var objs []blob.Object
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			objs = append(objs, blob.Object{Key: k, Size: int64(len(v)), LastModified: m.mods[k]})
		}
	}
	sort.Slice(objs, func(a, b int) bool { return objs[a].Key < objs[b].Key })
	return objs, nil
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	m.mods[key] = time.Now()
	return nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return blob.ErrNotFound
	}
	delete(m.data, key)
	delete(m.mods, key)
	return nil
}

func TestStoreSave_AssignsIDAndCreatedOnce(t *testing.T) {
	blobs := newMemStore()
	s := NewStore(blobs, "chats/", zap.NewNop())

	tr := NewTranscript()
	tr.Append(ai.RoleUser, "first question")
	tr.Append(ai.RoleAssistant, "first answer")

	if err := s.Save(context.Background(), tr); err != nil {
		t.Fatalf("save: %v", err)
	}
	if tr.ID == "" {
		t.Fatal("expected id after first save")
	}
	if tr.Created.IsZero() {
		t.Fatal("expected created after first save")
	}
	id, created, updated := tr.ID, tr.Created, tr.Updated
	if tr.Title != "first question" {
		t.Fatalf("title = %q", tr.Title)
	}

	time.Sleep(5 * time.Millisecond)
	tr.Append(ai.RoleUser, "second question")
	tr.Append(ai.RoleAssistant, "second answer")
	if err := s.Save(context.Background(), tr); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if tr.ID != id {
		t.Fatalf("id changed: %q -> %q", id, tr.ID)
	}
	if !tr.Created.Equal(created) {
		t.Fatalf("created changed: %v -> %v", created, tr.Created)
	}
	if !tr.Updated.After(updated) {
		t.Fatalf("updated did not advance: %v -> %v", updated, tr.Updated)
	}
}

func TestStoreSave_SkipsEmptyTranscript(t *testing.T) {
	blobs := newMemStore()
	s := NewStore(blobs, "chats/", zap.NewNop())

	if err := s.Save(context.Background(), NewTranscript()); err != nil {
		t.Fatalf("save empty: %v", err)
	}
	objs, _ := blobs.List(context.Background(), "chats/")
	if len(objs) != 0 {
		t.Fatalf("expected nothing persisted, got %d objects", len(objs))
	}
}

func TestStore_LoadRoundTrip(t *testing.T) {
	blobs := newMemStore()
	s := NewStore(blobs, "chats/", zap.NewNop())

	tr := NewTranscript()
	tr.Context = "### note.md\n\nsome note"
	tr.Append(ai.RoleUser, "q")
	tr.Append(ai.RoleAssistant, "a")
	if err := s.Save(context.Background(), tr); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Load(context.Background(), tr.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ID != tr.ID || got.Title != tr.Title || got.Context != tr.Context {
		t.Fatalf("metadata mismatch: %+v", got)
	}
	if len(got.Turns) != 2 || got.Turns[0].Text != "q" || got.Turns[1].Text != "a" {
		t.Fatalf("turns mismatch: %+v", got.Turns)
	}
	if got.Created.IsZero() {
		t.Fatal("created lost on round trip")
	}
}

func TestStore_LoadMissing(t *testing.T) {
	blobs := newMemStore()
	s := NewStore(blobs, "chats/", zap.NewNop())
	if _, err := s.Load(context.Background(), "nope"); err != blob.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTitleDerivation_TruncatesRunes(t *testing.T) {
	tr := NewTranscript()
	long := strings.Repeat("日", 60)
	tr.Append(ai.RoleUser, long)

	title := tr.deriveTitle()
	if got := len([]rune(title)); got != 50 {
		t.Fatalf("title rune length = %d", got)
	}
	if !strings.HasPrefix(long, title) {
		t.Fatal("title is not a prefix of the source text")
	}
}

func TestIndexRefresh_SortsAndSkipsMalformed(t *testing.T) {
	blobs := newMemStore()
	s := NewStore(blobs, "chats/", zap.NewNop())
	idx := NewIndex(s)
	ctx := context.Background()

	older := NewTranscript()
	older.Append(ai.RoleUser, "older chat")
	if err := s.Save(ctx, older); err != nil {
		t.Fatalf("save older: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	newer := NewTranscript()
	newer.Append(ai.RoleUser, "newer chat")
	if err := s.Save(ctx, newer); err != nil {
		t.Fatalf("save newer: %v", err)
	}

	// A corrupt record and a stray non-json key must not break the listing.
	_ = blobs.Put(ctx, "chats/corrupt.json", []byte("{nope"), "application/json")
	_ = blobs.Put(ctx, "chats/readme.txt", []byte("not a chat"), "text/plain")

	entries, err := idx.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != newer.ID || entries[1].ID != older.ID {
		t.Fatalf("wrong order: %+v", entries)
	}
	if entries[0].Title != "newer chat" {
		t.Fatalf("title = %q", entries[0].Title)
	}

	snap := idx.Entries()
	if len(snap) != 2 || snap[0].ID != newer.ID {
		t.Fatalf("snapshot mismatch: %+v", snap)
	}
}

func TestProviderMessages_FoldsContextIntoFirstUserTurn(t *testing.T) {
	tr := NewTranscript()
	tr.Context = "### alpha.md\n\nalpha text"
	tr.Append(ai.RoleUser, "what is alpha?")
	tr.Append(ai.RoleAssistant, "alpha is...")
	tr.Append(ai.RoleUser, "and beta?")

	msgs := tr.ProviderMessages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	first := msgs[0].Content
	if !strings.HasPrefix(first, "Here are the files from my Obsidian vault that are relevant:\n\n") {
		t.Fatalf("missing lead-in: %q", first)
	}
	if !strings.Contains(first, "alpha text") || !strings.HasSuffix(first, "User question: what is alpha?") {
		t.Fatalf("context not folded correctly: %q", first)
	}
	if msgs[1].Content != "alpha is..." || msgs[2].Content != "and beta?" {
		t.Fatal("later turns must pass through untouched")
	}
}

func TestProviderMessages_NoContextPassThrough(t *testing.T) {
	tr := NewTranscript()
	tr.Append(ai.RoleUser, "plain question")
	msgs := tr.ProviderMessages()
	if msgs[0].Content != "plain question" {
		t.Fatalf("unexpected content: %q", msgs[0].Content)
	}
}
