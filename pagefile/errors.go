package pagefile

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUnsupportedSeek is returned by Seek for any whence other than io.SeekStart.
	ErrUnsupportedSeek = errors.New("only absolute seeks are supported")
	// ErrCorruptHeader is returned by Open if block 0 is present but too
	// short to hold the database header page count.
	ErrCorruptHeader = errors.New("corrupt database header")
	// ErrCorruptBlock is returned if a persisted block isn't exactly BlockSize bytes.
	ErrCorruptBlock = errors.New("corrupt block")
	// ErrOffsetRange is returned if an offset addresses a block index beyond MaxBlocks.
	ErrOffsetRange = errors.New("offset out of range")
	// ErrClosed is returned by operations of a closed File.
	ErrClosed = errors.New("file is closed")
)

// BackingStoreError is a failure of a Backend to get or put a block.
// It's never retried by the File: the Backend is responsible for any retries.
type BackingStoreError struct {
	Op    string // "get" or "put".
	Name  string // Logical file name.
	Index uint32 // Block index.
	Err   error  // Underlying Backend error.
}

func (e *BackingStoreError) Error() string {
	return fmt.Sprintf("backing store %s of %s: %s", e.Op, BlockKey(e.Name, e.Index), e.Err)
}

// Unwrap returns the underlying Backend error.
func (e *BackingStoreError) Unwrap() error { return e.Err }

// Cause returns the underlying Backend error (see github.com/pkg/errors).
func (e *BackingStoreError) Cause() error { return e.Err }

// PartialFlushError is returned by Flush when one or more dirty blocks failed
// to persist. Blocks which flushed prior to the failure are clean, and those
// which remain (including the failed block) are still dirty and will be
// retried by a future Flush.
type PartialFlushError struct {
	Flushed int   // Number of blocks flushed before the failure.
	Pending int   // Number of blocks which remain dirty.
	Err     error // First error encountered.
}

func (e *PartialFlushError) Error() string {
	return fmt.Sprintf("flushed %d blocks with %d still pending: %s", e.Flushed, e.Pending, e.Err)
}

// Unwrap returns the first error encountered.
func (e *PartialFlushError) Unwrap() error { return e.Err }

// Cause returns the first error encountered (see github.com/pkg/errors).
func (e *PartialFlushError) Cause() error { return e.Err }
