// Package stores provides an abstraction over blob and key-value storage
// systems which persist the blocks of paged database files.
package stores

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// Store persists blocks under paths relative to the prefix of its URL.
// Paths are the block keys of pagefile, such as "main.db3.12.block".
// Implementations must be safe for concurrent use.
type Store interface {
	// Provider names the storage system, such as "s3" or "gcs".
	Provider() string
	// Exists is true if |path| has content.
	Exists(ctx context.Context, path string) (bool, error)
	// Get opens the content of |path|. Missing paths return an error
	// matching ErrNotFound.
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	// Put durably replaces the content of |path| with |contentLength|
	// bytes of |content|. Content is fully persisted when Put returns
	// without error, and otherwise isn't persisted or is partially so.
	Put(ctx context.Context, path string, content io.ReaderAt, contentLength int64) error
	// List calls |callback| with each path having |prefix|, less |prefix|
	// itself, and its modification time. An error of |callback| stops
	// the listing, and is returned.
	List(ctx context.Context, prefix string, callback func(path string, modTime time.Time) error) error
	// Remove the content of |path|.
	Remove(ctx context.Context, path string) error
	// IsAuthError is true of errors which denote missing permissions or
	// a missing bucket, rather than a transient failure.
	IsAuthError(error) bool
}

// Constructor builds the Store of a URL. Each scheme has one.
type Constructor func(*url.URL) (Store, error)

// ErrNotFound is matched by errors of Store.Get for paths which don't exist.
var ErrNotFound = errors.New("not found")

// NotFound wraps |err| such that it matches ErrNotFound,
// while retaining the message of |err|.
func NotFound(err error) error { return notFoundError{err} }

type notFoundError struct{ error }

func (e notFoundError) Is(target error) bool { return target == ErrNotFound }
func (e notFoundError) Unwrap() error        { return e.error }

// IsNotFound returns true if |err| matches ErrNotFound.
func IsNotFound(err error) bool { return err != nil && errors.Is(err, ErrNotFound) }
