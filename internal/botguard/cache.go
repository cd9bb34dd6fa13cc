package botguard

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MemoryCache is an in-memory Cache.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]Output
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string]Output)}
}

func (c *MemoryCache) Get(key string) (Output, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *MemoryCache) Set(key string, value Output) {
	c.mu.Lock()
	c.data[key] = value
	c.mu.Unlock()
}

// FileCache stores outputs on disk, one JSON file per key.
// Expired entries are removed on read and reported as missing.
type FileCache struct {
	rootDir string
	mu      sync.Mutex
}

// NewFileCache creates a file-backed cache under rootDir, creating it if needed.
func NewFileCache(rootDir string) (*FileCache, error) {
	if rootDir == "" {
		return nil, errors.New("botguard: cache dir is required")
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, err
	}
	return &FileCache{rootDir: rootDir}, nil
}

func (c *FileCache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.rootDir, fmt.Sprintf("%x.json", sum[:]))
}

type fileEntry struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (c *FileCache) Get(key string) (Output, bool) {
	fn := c.path(key)
	b, err := os.ReadFile(fn)
	if err != nil {
		return Output{}, false
	}
	var e fileEntry
	if err := json.Unmarshal(b, &e); err != nil {
		_ = os.Remove(fn)
		return Output{}, false
	}
	out := Output{Token: e.Token, ExpiresAt: e.ExpiresAt, Metadata: e.Metadata}
	if out.Expired() {
		_ = os.Remove(fn)
		return Output{}, false
	}
	return out, true
}

func (c *FileCache) Set(key string, value Output) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn := c.path(key)
	b, err := json.Marshal(fileEntry{Token: value.Token, ExpiresAt: value.ExpiresAt, Metadata: value.Metadata})
	if err != nil {
		return
	}
	tmp := fn + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, fn)
}
