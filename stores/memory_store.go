package stores

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.gazette.dev/pagevfs/stores/common"
)

// MemoryStore is a Store of process memory, serving memory:// URLs.
// Its databases don't outlive the process. Content is exported for
// inspection and fault injection by tests, which must not modify it
// concurrently with Store operations.
type MemoryStore struct {
	URL     *url.URL
	Content map[string][]byte

	mu       sync.RWMutex
	modTimes map[string]time.Time
}

// NewMemoryStore returns an empty MemoryStore of the URL.
func NewMemoryStore(ep *url.URL) *MemoryStore {
	return &MemoryStore{
		URL:      ep,
		Content:  make(map[string][]byte),
		modTimes: make(map[string]time.Time),
	}
}

// NewMemory is the Constructor of memory:// URLs.
func NewMemory(ep *url.URL) (Store, error) { return NewMemoryStore(ep), nil }

func (m *MemoryStore) Provider() string { return "memory" }

func (m *MemoryStore) Exists(_ context.Context, path string) (bool, error) {
	m.mu.RLock()
	var _, ok = m.Content[path]
	m.mu.RUnlock()
	return ok, nil
}

func (m *MemoryStore) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.RLock()
	var b, ok = m.Content[path]
	m.mu.RUnlock()

	if !ok {
		return nil, NotFound(fmt.Errorf("%s does not exist in %s", path, m.URL))
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Put retains a copy of |content|, replacing any prior content of |path|.
func (m *MemoryStore) Put(_ context.Context, path string, content io.ReaderAt, contentLength int64) error {
	var b, err = common.ReadContent(content, contentLength)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.Content[path] = b
	m.modTimes[path] = time.Now()
	m.mu.Unlock()
	return nil
}

// List paths having |prefix| in lexicographic order, as object stores do.
func (m *MemoryStore) List(_ context.Context, prefix string, callback func(path string, modTime time.Time) error) error {
	type listed struct {
		path    string
		modTime time.Time
	}
	var out []listed

	m.mu.RLock()
	for path := range m.Content {
		if strings.HasPrefix(path, prefix) {
			out = append(out, listed{path, m.modTimes[path]})
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })

	// |callback| may call back into the MemoryStore.
	for _, l := range out {
		if err := callback(strings.TrimPrefix(l.path, prefix), l.modTime); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, path string) error {
	m.mu.Lock()
	delete(m.Content, path)
	delete(m.modTimes, path)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) IsAuthError(error) bool { return false }
