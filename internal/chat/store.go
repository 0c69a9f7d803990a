package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vaultchat/vaultchat/internal/blob"
	"github.com/vaultchat/vaultchat/internal/common"
)

// record is the on-disk JSON shape: one document per conversation.
type record struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Created  *time.Time `json:"created,omitempty"`
	Updated  time.Time  `json:"updated"`
	Context  string     `json:"context,omitempty"`
	Messages []Turn     `json:"messages"`
}

// Store persists transcripts as blobs under the chat-records prefix.
type Store struct {
	blobs  blob.Store
	prefix string
	log    *zap.Logger
}

func NewStore(blobs blob.Store, prefix string, log *zap.Logger) *Store {
	return &Store{blobs: blobs, prefix: prefix, log: log}
}

func (s *Store) key(id string) string {
	return s.prefix + id + ".json"
}

// Save writes the transcript as one JSON record. The first save assigns a
// permanent sortable id and the created timestamp; every save bumps updated
// and re-derives the title. Empty transcripts are skipped.
func (s *Store) Save(ctx context.Context, t *Transcript) error {
	if len(t.Turns) == 0 {
		return nil
	}

	now := time.Now().UTC()
	if t.ID == "" {
		id, err := common.NewULID()
		if err != nil {
			return fmt.Errorf("chat: assign id: %w", err)
		}
		t.ID = id
	}
	if t.Created.IsZero() {
		t.Created = now
	}
	t.Updated = now
	t.Title = t.deriveTitle()

	rec := record{
		ID:       t.ID,
		Title:    t.Title,
		Updated:  t.Updated,
		Context:  t.Context,
		Messages: t.Turns,
	}
	created := t.Created
	rec.Created = &created

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return s.blobs.Put(ctx, s.key(t.ID), data, "application/json")
}

func (s *Store) Load(ctx context.Context, id string) (*Transcript, error) {
	data, err := s.blobs.Get(ctx, s.key(id))
	if err != nil {
		return nil, err
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("chat: record %s: %w", id, err)
	}

	t := &Transcript{
		ID:      rec.ID,
		Title:   rec.Title,
		Updated: rec.Updated,
		Context: rec.Context,
		Turns:   rec.Messages,
	}
	if t.ID == "" {
		t.ID = id
	}
	if rec.Created != nil {
		t.Created = *rec.Created
	}
	return t, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.blobs.Delete(ctx, s.key(id))
}

// IndexEntry is the read-only projection of one persisted conversation.
type IndexEntry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Index is the rebuildable listing of persisted conversations,
// most-recently-updated first.
type Index struct {
	mu      sync.Mutex
	store   *Store
	entries []IndexEntry
}

func NewIndex(store *Store) *Index {
	return &Index{store: store}
}

// Refresh rebuilds the index by re-reading every record's metadata. A
// record that fails to read or parse is skipped; the index is best-effort
// over whatever is readable.
func (i *Index) Refresh(ctx context.Context) ([]IndexEntry, error) {
	s := i.store
	objs, err := s.blobs.List(ctx, s.prefix)
	if err != nil {
		return nil, err
	}

	entries := make([]IndexEntry, 0, len(objs))
	for _, o := range objs {
		if !strings.HasSuffix(o.Key, ".json") {
			continue
		}
		data, err := s.blobs.Get(ctx, o.Key)
		if err != nil {
			s.log.Warn("chat index: unreadable record", zap.String("key", o.Key), zap.Error(err))
			continue
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			s.log.Warn("chat index: unparsable record", zap.String("key", o.Key), zap.Error(err))
			continue
		}
		id := rec.ID
		if id == "" {
			id = strings.TrimSuffix(strings.TrimPrefix(o.Key, s.prefix), ".json")
		}
		entries = append(entries, IndexEntry{ID: id, Title: rec.Title, UpdatedAt: rec.Updated})
	}

	sort.Slice(entries, func(a, b int) bool {
		return entries[a].UpdatedAt.After(entries[b].UpdatedAt)
	})

	i.mu.Lock()
	i.entries = entries
	i.mu.Unlock()
	return entries, nil
}

// Entries returns the last refreshed snapshot.
func (i *Index) Entries() []IndexEntry {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]IndexEntry(nil), i.entries...)
}
