// Package notes exposes the markdown files stored in the bucket and the
// attachment state used to anchor chat turns.
package notes

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/vaultchat/vaultchat/internal/blob"
)

// ErrInvalidKey rejects content requests for keys outside the note space.
var ErrInvalidKey = errors.New("notes: key is not a note")

// File is one listable note.
type File struct {
	Key      string    `json:"key"`
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

type Library struct {
	store       blob.Store
	prefix      string
	chatsPrefix string
	jobsPrefix  string
	vault       string
	contents    *gocache.Cache
	log         *zap.Logger
}

func NewLibrary(store blob.Store, prefix, chatsPrefix, jobsPrefix, vault string, log *zap.Logger) *Library {
	return &Library{
		store:       store,
		prefix:      prefix,
		chatsPrefix: chatsPrefix,
		jobsPrefix:  jobsPrefix,
		vault:       vault,
		contents:    gocache.New(5*time.Minute, 10*time.Minute),
		log:         log,
	}
}

// List returns the markdown files under the bucket prefix. Chat and job
// records live under sub-prefixes of the same bucket and are excluded.
// Listing flushes the content cache, so List doubles as refresh.
func (l *Library) List(ctx context.Context) ([]File, error) {
	objs, err := l.store.List(ctx, l.prefix)
	if err != nil {
		return nil, err
	}

	files := make([]File, 0, len(objs))
	for _, o := range objs {
		if strings.HasSuffix(o.Key, "/") || !strings.HasSuffix(o.Key, ".md") {
			continue
		}
		if strings.HasPrefix(o.Key, l.chatsPrefix) || strings.HasPrefix(o.Key, l.jobsPrefix) {
			continue
		}
		files = append(files, File{
			Key:      o.Key,
			Name:     strings.TrimPrefix(o.Key, l.prefix),
			Size:     o.Size,
			Modified: o.LastModified,
		})
	}

	l.contents.Flush()
	return files, nil
}

// Content fetches one note's full text, serving repeat reads from cache
// until the next List.
func (l *Library) Content(ctx context.Context, key string) (string, error) {
	if !strings.HasPrefix(key, l.prefix) || !strings.HasSuffix(key, ".md") {
		return "", ErrInvalidKey
	}
	if v, ok := l.contents.Get(key); ok {
		return v.(string), nil
	}

	data, err := l.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	text := string(data)
	l.contents.SetDefault(key, text)
	return text, nil
}

// DisplayName strips the bucket prefix from a note key.
func (l *Library) DisplayName(key string) string {
	return strings.TrimPrefix(key, l.prefix)
}

// ObsidianURL builds the deep link opening a note in the configured vault.
// Pure string construction; empty when no vault is configured.
func (l *Library) ObsidianURL(name string) string {
	if l.vault == "" {
		return ""
	}
	path := strings.TrimSuffix(name, ".md")
	return "obsidian://open?vault=" + url.QueryEscape(l.vault) + "&file=" + url.QueryEscape(path)
}
