package imgcache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Config contains filesystem cache configuration
type Config struct {
	BasePath string // Base directory for cached images
}

// DefaultConfig returns default filesystem cache configuration
func DefaultConfig() Config {
	return Config{
		BasePath: "./imgcache",
	}
}

// Filesystem stores cached images on local disk. The content type is kept in
// a sidecar file next to the body.
type Filesystem struct {
	config Config
}

// NewFilesystem creates a filesystem-backed cache rooted at the configured
// base path.
func NewFilesystem(config Config) (*Filesystem, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Filesystem{config: config}, nil
}

// Get reads a cached entry. Returns ErrNotFound when the key is absent.
func (f *Filesystem) Get(_ context.Context, key string) (*Entry, error) {
	data, err := os.ReadFile(f.dataPath(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached image: %w", err)
	}

	contentType, err := os.ReadFile(f.typePath(key))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read cached content type: %w", err)
	}

	return &Entry{Data: data, ContentType: string(contentType)}, nil
}

// Put writes an entry. The body lands before the sidecar so a crash between
// the two writes leaves a readable entry with a missing type, not a typed
// entry with no body.
func (f *Filesystem) Put(_ context.Context, key string, entry *Entry) error {
	dir := filepath.Dir(f.dataPath(key))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache subdirectory: %w", err)
	}

	if err := os.WriteFile(f.dataPath(key), entry.Data, 0644); err != nil {
		return fmt.Errorf("failed to write cached image: %w", err)
	}
	if err := os.WriteFile(f.typePath(key), []byte(entry.ContentType), 0644); err != nil {
		return fmt.Errorf("failed to write cached content type: %w", err)
	}
	return nil
}

// dataPath shards entries into two-character subdirectories so a large cache
// does not put every file in one directory.
func (f *Filesystem) dataPath(key string) string {
	shard := "00"
	if len(key) >= 2 {
		shard = key[:2]
	}
	return filepath.Join(f.config.BasePath, shard, key)
}

func (f *Filesystem) typePath(key string) string {
	return f.dataPath(key) + ".type"
}
