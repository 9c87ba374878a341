package stores

import (
	"context"
	"io"
	"time"
)

// ActiveStore is a Store built from a store URL, which records
// Prometheus metrics of each operation labeled by the URL.
type ActiveStore struct {
	Key   string // Store URL of the ActiveStore.
	Store Store
}

// NewActiveStore returns an ActiveStore of |store|, labeled by |key|.
// Get is preferred outside of tests, as it shares ActiveStores of a URL.
func NewActiveStore(key string, store Store) *ActiveStore {
	return &ActiveStore{Key: key, Store: store}
}

func (s *ActiveStore) Provider() string           { return s.Store.Provider() }
func (s *ActiveStore) IsAuthError(err error) bool { return s.Store.IsAuthError(err) }

func (s *ActiveStore) Exists(ctx context.Context, path string) (exists bool, err error) {
	defer s.observe("exists", time.Now(), &err)
	return s.Store.Exists(ctx, path)
}

func (s *ActiveStore) Get(ctx context.Context, path string) (rc io.ReadCloser, err error) {
	defer s.observe("get", time.Now(), &err)
	return s.Store.Get(ctx, path)
}

func (s *ActiveStore) Put(ctx context.Context, path string, content io.ReaderAt, contentLength int64) (err error) {
	defer s.observe("put", time.Now(), &err)

	if err = s.Store.Put(ctx, path, content, contentLength); err == nil {
		storePutBytesTotal.WithLabelValues(s.Key).Add(float64(contentLength))
	}
	return err
}

func (s *ActiveStore) List(ctx context.Context, prefix string, callback func(path string, modTime time.Time) error) (err error) {
	defer s.observe("list", time.Now(), &err)

	var count int
	err = s.Store.List(ctx, prefix, func(path string, modTime time.Time) error {
		count++
		return callback(path, modTime)
	})
	storeListItems.WithLabelValues(s.Key).Observe(float64(count))

	return err
}

func (s *ActiveStore) Remove(ctx context.Context, path string) (err error) {
	defer s.observe("remove", time.Now(), &err)
	return s.Store.Remove(ctx, path)
}

// observe an operation begun at |started|, of outcome |*err|.
// A missing path is its own status, distinct from failure.
func (s *ActiveStore) observe(operation string, started time.Time, err *error) {
	var status string
	switch {
	case *err == nil:
		status = "ok"
	case IsNotFound(*err):
		status = "not_found"
	default:
		status = "error"
	}
	storeOperationTotal.WithLabelValues(s.Key, operation, status).Inc()
	storeOperationDuration.WithLabelValues(s.Key, operation, status).Observe(time.Since(started).Seconds())
}
