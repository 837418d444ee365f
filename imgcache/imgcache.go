// Package imgcache is the shared cache behind the image proxy. Entries are
// keyed by a digest of the upstream URL so hot thumbnails are fetched from
// the origin once and served from the edge afterwards.
package imgcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrNotFound is returned by Get when the key has no cached entry.
var ErrNotFound = errors.New("cache entry not found")

// Entry is a cached image body with its upstream content type.
type Entry struct {
	Data        []byte
	ContentType string
}

// Cache stores proxied images. Implementations must be safe for concurrent
// use.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, entry *Entry) error
}

// Key derives the cache key for an upstream image URL.
func Key(imageURL string) string {
	sum := sha256.Sum256([]byte(imageURL))
	return hex.EncodeToString(sum[:])
}
