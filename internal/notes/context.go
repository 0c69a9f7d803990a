package notes

import (
	"strings"
	"sync"
)

// Entry is one attached document anchoring the model's answer.
type Entry struct {
	Key         string `json:"key"`
	DisplayName string `json:"name"`
	Text        string `json:"-"`
}

// ContextStore holds the attached files in selection order. The order is
// the concatenation order: first selection wins, and re-attaching an
// already-selected key refreshes its content without moving it.
type ContextStore struct {
	mu      sync.Mutex
	order   []string
	entries map[string]Entry
}

func NewContextStore() *ContextStore {
	return &ContextStore{entries: make(map[string]Entry)}
}

func (c *ContextStore) Add(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[e.Key]; !ok {
		c.order = append(c.order, e.Key)
	}
	c.entries[e.Key] = e
}

func (c *ContextStore) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

func (c *ContextStore) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Snapshot returns the entries in selection order. Later mutations of the
// store do not affect the returned slice.
func (c *ContextStore) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.entries[k])
	}
	return out
}

// Render builds the labeled context block: one section per entry with its
// display name as a heading, sections separated by a rule.
func Render(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}
	sections := make([]string, 0, len(entries))
	for _, e := range entries {
		sections = append(sections, "### "+e.DisplayName+"\n\n"+e.Text)
	}
	return strings.Join(sections, "\n\n---\n\n")
}
