package vfs

import (
	"io"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/psanford/sqlite3vfs"
	log "github.com/sirupsen/logrus"
	"go.gazette.dev/pagevfs/pagefile"
)

// adapter implements sqlite3vfs.VFS by dispatching to the VFS currently
// registered under its name.
type adapter struct {
	name string
}

func (a *adapter) vfs() (*VFS, error) {
	if v := Lookup(a.name); v != nil {
		return v, nil
	}
	return nil, errors.Errorf("VFS %q is not registered", a.name)
}

func (a *adapter) Open(name string, flags sqlite3vfs.OpenFlag) (sqlite3vfs.File, sqlite3vfs.OpenFlag, error) {
	var v, err = a.vfs()
	if err != nil {
		return nil, 0, err
	}

	// Only main databases are persisted. Everything else (journals,
	// temporary databases, and files SQLite opens without a name) is served
	// from a private in-memory Backend discarded on close.
	if name == "" || int(flags)&kSqliteOpenMainDB == 0 || IsCompanion(name) {
		var f, err = pagefile.Open(pagefile.NewMemoryBackend(), LogicalName(name))
		if err != nil {
			return nil, 0, err
		}
		transientFiles.Add(1)

		log.WithFields(log.Fields{
			"vfs":   v.Name,
			"name":  name,
			"flags": int(flags),
		}).Debug("opened transient file")

		return &file{f: f, transient: true}, flags, nil
	}

	f, err := v.Open(name)
	if err != nil {
		return nil, 0, err
	}
	return &file{f: f}, flags, nil
}

func (a *adapter) Delete(name string, _ bool) error {
	var v, err = a.vfs()
	if err != nil {
		return err
	}
	return v.Delete(name)
}

func (a *adapter) Access(name string, flags sqlite3vfs.AccessFlag) (bool, error) {
	var v, err = a.vfs()
	if err != nil {
		return false, err
	}
	if int(flags) == kSqliteAccessExists {
		return v.Exists(name)
	}
	// Files are always readable and writable.
	return true, nil
}

func (a *adapter) FullPathname(name string) string { return name }

// file implements sqlite3vfs.File over a *pagefile.File.
type file struct {
	f *pagefile.File
	// Transient files track their exact length, as SQLite relies on the
	// size of journals. Persisted files are always whole blocks.
	transient bool
	end       int64
}

func (f *file) size() int64 {
	if f.transient {
		return f.end
	}
	return f.f.Size()
}

// ReadAt reads |p| at |off| by reading each spanned block in turn.
// Reads beyond the size of the file return io.EOF, after which SQLite
// zero-fills the unread portion of |p|.
func (f *file) ReadAt(p []byte, off int64) (int, error) {
	var size = f.size()
	if off >= size {
		return 0, io.EOF
	}
	var eof bool
	if rem := size - off; int64(len(p)) > rem {
		p, eof = p[:rem], true
	}
	if _, err := f.f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}

	var n int
	for n != len(p) {
		var nn, err = f.f.Read(p[n:])
		if n += nn; err != nil {
			return n, err
		}
	}
	if eof {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt writes |p| at |off| by writing each spanned block in turn.
func (f *file) WriteAt(p []byte, off int64) (int, error) {
	if _, err := f.f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}

	var n int
	for n != len(p) {
		var nn, err = f.f.Write(p[n:])
		if n += nn; err != nil {
			return n, err
		}
	}
	if end := off + int64(n); end > f.end {
		f.end = end
	}
	return n, nil
}

// Truncate shortens a transient file, zeroing its truncated content.
// Persisted files never shrink, and Truncate of them is a no-op.
func (f *file) Truncate(size int64) error {
	if !f.transient {
		log.WithFields(log.Fields{
			"name": f.f.Name(),
			"size": size,
		}).Debug("ignoring truncate")
		return nil
	}
	if size >= f.end {
		return nil
	}
	var end = f.end
	if _, err := f.WriteAt(make([]byte, end-size), size); err != nil {
		return err
	}
	f.end = size
	return nil
}

func (f *file) Sync(_ sqlite3vfs.SyncType) error {
	var err = f.f.Flush()
	if err != nil {
		log.WithFields(log.Fields{
			"name": f.f.Name(),
			"err":  err,
		}).Error("failed to sync file")
	}
	return err
}

func (f *file) FileSize() (int64, error) { return f.size(), nil }

func (f *file) Close() error {
	if !f.transient {
		return f.f.Close()
	}
	// Flush into the private Backend, so that Close doesn't warn of
	// discarding blocks. The file is closed regardless.
	var err = f.f.Flush()
	if closeErr := f.f.Close(); closeErr != nil {
		return closeErr
	}
	transientFiles.Add(-1)
	return err
}

// The VFS assumes a single writing connection, and doesn't lock.
func (f *file) Lock(sqlite3vfs.LockType) error                         { return nil }
func (f *file) Unlock(sqlite3vfs.LockType) error                       { return nil }
func (f *file) CheckReservedLock() (bool, error)                       { return false, nil }
func (f *file) SectorSize() int64                                      { return pagefile.BlockSize }
func (f *file) DeviceCharacteristics() sqlite3vfs.DeviceCharacteristic { return 0 }

// TransientFiles returns the number of open transient files.
func TransientFiles() int64 { return transientFiles.Load() }

var transientFiles atomic.Int64

// Constants of sqlite3.h.
const (
	kSqliteAccessExists = 0x0
	kSqliteOpenMainDB   = 0x100
)
