package driver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"gencheck/internal/diag"
	"gencheck/internal/project"
	"gencheck/internal/version"
)

// diskCacheSchemaVersion is bumped whenever DiskPayload changes shape.
const diskCacheSchemaVersion uint16 = 1

// DiskCache stores the diagnostics of checked model files keyed by content
// and options. It is safe for concurrent use.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// DiskPayload is the cached outcome of one model file.
type DiskPayload struct {
	Schema      uint16
	Path        string
	Diagnostics []diag.Diagnostic
}

// OpenDiskCache opens the cache at dir, or under the user cache directory
// when dir is empty.
func OpenDiskCache(dir string) (*DiskCache, error) {
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("locate user cache dir: %w", err)
		}
		dir = filepath.Join(base, "gencheck")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &DiskCache{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *DiskCache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *DiskCache) pathFor(key project.Digest) string {
	return filepath.Join(c.dir, "results", key.String()+".mp")
}

// Put writes payload atomically.
func (c *DiskCache) Put(key project.Digest, payload *DiskPayload) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	}()
	if err := msgpack.NewEncoder(f).Encode(payload); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get reads the payload for key. A missing entry is not an error.
func (c *DiskCache) Get(key project.Digest, out *DiskPayload) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	if err := msgpack.NewDecoder(f).Decode(out); err != nil {
		return false, err
	}
	return true, nil
}

// lookup returns a payload of the current schema, treating unreadable
// entries as misses.
func (c *DiskCache) lookup(key project.Digest) (*DiskPayload, bool) {
	var payload DiskPayload
	ok, err := c.Get(key, &payload)
	if err != nil || !ok || payload.Schema != diskCacheSchemaVersion {
		return nil, false
	}
	return &payload, true
}

// DropAll removes every cached entry.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.RemoveAll(filepath.Join(c.dir, "results"))
}

func newPayload(path string, bag *diag.Bag) *DiskPayload {
	return &DiskPayload{
		Schema:      diskCacheSchemaVersion,
		Path:        path,
		Diagnostics: append([]diag.Diagnostic(nil), bag.Items()...),
	}
}

// cacheKey covers the model bytes, every option that changes diagnostics,
// and the tool version.
func cacheKey(data []byte, opts Options) project.Digest {
	settings := fmt.Sprintf("schema=%d version=%s object-bound=%s max=%d",
		diskCacheSchemaVersion, version.Version, opts.ObjectBound, opts.MaxDiagnostics)
	return project.Combine(project.Sum(data), project.Sum([]byte(settings)))
}
