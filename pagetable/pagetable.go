// Package pagetable implements host-owned page tables: pagefile.PageHosts
// which exchange pages with a pagefile.PageTableBackend by copy.
//
// MemoryHost holds pages in process memory, as does a host environment
// which owns a database's pages and shares them with an embedded engine.
// FileHost holds pages in a single flat file, with page i at byte offset
// i*BlockSize, so that the file is itself a valid SQLite database.
package pagetable

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.gazette.dev/pagevfs/pagefile"
)

// MemoryHost is a PageHost of an in-memory table of pages.
type MemoryHost struct {
	mu    sync.Mutex
	pages [][]byte // Indexed on page index. Nil pages don't exist.
}

// NewMemoryHost returns an empty MemoryHost.
func NewMemoryHost() *MemoryHost { return new(MemoryHost) }

// GetPage copies page |index| into |dst|, if it exists.
func (h *MemoryHost) GetPage(index uint32, dst []byte) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if int64(index) >= int64(len(h.pages)) || h.pages[index] == nil {
		return false, nil
	}
	copy(dst, h.pages[index])
	return true, nil
}

// PutPage copies |src| into page |index|, growing the table as required.
func (h *MemoryHost) PutPage(index uint32, src []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for int64(index) >= int64(len(h.pages)) {
		h.pages = append(h.pages, nil)
	}
	if h.pages[index] == nil {
		h.pages[index] = make([]byte, pagefile.BlockSize)
	}
	copy(h.pages[index], src)
	return nil
}

// Pages returns the number of pages in the table, including any which were
// skipped over and don't exist.
func (h *MemoryHost) Pages() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pages)
}

// FileHost is a PageHost of a flat file. A page exists if the file
// extends through its end.
type FileHost struct {
	file afero.File
	sync bool
}

// OpenFileHost opens or creates the file at |path| of the afero.Fs as
// a FileHost. If |fsync|, each PutPage is synced to stable storage.
func OpenFileHost(fs afero.Fs, path string, fsync bool) (*FileHost, error) {
	var f, err = fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.WithMessagef(err, "opening page file %q", path)
	}
	if info, err := f.Stat(); err != nil {
		_ = f.Close()
		return nil, errors.WithMessagef(err, "stat of page file %q", path)
	} else if info.Size()%pagefile.BlockSize != 0 {
		log.WithFields(log.Fields{
			"path": path,
			"size": info.Size(),
		}).Warn("page file is not a whole number of pages")
	}
	return &FileHost{file: f, sync: fsync}, nil
}

// GetPage reads page |index| into |dst|. Pages beyond the end of the file
// don't exist.
func (h *FileHost) GetPage(index uint32, dst []byte) (bool, error) {
	var n, err = h.file.ReadAt(dst[:pagefile.BlockSize], int64(index)*pagefile.BlockSize)

	// A short read may return io.EOF, io.ErrUnexpectedEOF, or no error at
	// all, depending on the afero.Fs. Only its length is relied on.
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return false, err
	}
	switch n {
	case 0:
		return false, nil
	case pagefile.BlockSize:
		return true, nil
	default:
		return false, errors.Errorf("page %d is truncated (%d bytes)", index, n)
	}
}

// PutPage writes |src| as page |index|.
func (h *FileHost) PutPage(index uint32, src []byte) error {
	if _, err := h.file.WriteAt(src[:pagefile.BlockSize], int64(index)*pagefile.BlockSize); err != nil {
		return err
	}
	if h.sync {
		return h.file.Sync()
	}
	return nil
}

// Close the FileHost.
func (h *FileHost) Close() error { return h.file.Close() }
