// Package vfs presents a pagefile.Backend to SQLite as a virtual file system
// (https://www.sqlite.org/vfs.html).
//
// # Files
//
// SQLite guarantees reads and writes of the main database file are
// page-aligned and of page size. The main database file is thus an
// associative map of page indices and their current content, which is
// exactly the block structure of a pagefile.File. Each main database opened
// by SQLite is a pagefile.File of the VFS Backend, named by the base name of
// its path, and its blocks are persisted under that name.
//
// All other files (rollback journals, write-ahead logs and their shared
// memory, super-journals, and temporary databases) are "companions" of
// a main database. They're served from a private in-memory Backend and are
// discarded on close: they never reach the VFS Backend. Databases should
// therefore use journal_mode=MEMORY (see package pagedb), as a rollback
// journal isn't recoverable after a crash.
//
// # Durability
//
// Writes are buffered in the Block Cache of the pagefile.File, and reach the
// Backend only when SQLite syncs the file. Blocks which are dirty when SQLite
// closes the file are discarded, so the synchronous PRAGMA must not be OFF.
//
// # Locking
//
// The VFS doesn't lock. It assumes a single connection (see
// sql.DB.SetMaxOpenConns) within a single process writes each database.
package vfs

import (
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.gazette.dev/pagevfs/pagefile"
)

// DefaultName is the name under which a VFS is registered by default.
const DefaultName = "pagevfs"

// VFS opens SQLite databases as pagefile.Files of a Backend.
type VFS struct {
	// Name of the VFS, used to select it from a SQLite URI (as "?vfs=Name").
	Name string
	// Backend which persists the blocks of opened main database files.
	Backend pagefile.Backend
}

// New returns a VFS of the |name| and Backend.
func New(name string, backend pagefile.Backend) *VFS {
	return &VFS{Name: name, Backend: backend}
}

// Open the main database file of |path|, returning its pagefile.File.
// The File is named by the base name of |path|, and its block count is
// recovered from the database header of block 0 (if it exists).
func (v *VFS) Open(path string) (*pagefile.File, error) {
	var name = LogicalName(path)
	var f, err = pagefile.Open(v.Backend, name)

	if err != nil {
		log.WithFields(log.Fields{
			"vfs":  v.Name,
			"name": name,
			"err":  err,
		}).Error("failed to open database file")
		return nil, err
	}

	log.WithFields(log.Fields{
		"vfs":    v.Name,
		"name":   name,
		"blocks": f.BlockCount(),
	}).Debug("opened database file")

	return f, nil
}

// Delete |path|. Blocks are never removed from the Backend, and Delete is a
// no-op. SQLite deletes only companion files, which aren't persisted anyway.
func (v *VFS) Delete(path string) error {
	log.WithFields(log.Fields{
		"vfs":  v.Name,
		"path": path,
	}).Debug("ignoring delete")
	return nil
}

// Exists returns whether |path| exists. Companion files never exist, as
// they're never persisted. A main database file exists if and only if its
// block 0 has been persisted to the Backend.
func (v *VFS) Exists(path string) (bool, error) {
	if path == "" || IsCompanion(path) {
		return false, nil
	}
	var name = LogicalName(path)
	var _, ok, err = v.Backend.GetBlock(name, 0)

	if err != nil {
		return false, &pagefile.BackingStoreError{Op: "get", Name: name, Index: 0, Err: err}
	}

	log.WithFields(log.Fields{
		"vfs":    v.Name,
		"name":   name,
		"exists": ok,
	}).Debug("checked database existence")

	return ok, nil
}

// LogicalName maps a database |path| to the name of its pagefile.File.
func LogicalName(path string) string {
	return filepath.Base(filepath.FromSlash(path))
}

// IsCompanion returns true if |path| names a file which accompanies a main
// database, rather than being one: a rollback journal ("-journal"), a
// write-ahead log ("-wal") or its shared memory ("-shm"), or a super-journal
// ("-mj" followed by random characters).
func IsCompanion(path string) bool {
	var base = LogicalName(path)

	for _, suffix := range []string{"-journal", "-wal", "-shm"} {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	if ind := strings.LastIndex(base, "-mj"); ind > 0 && ind+3 < len(base) {
		return true
	}
	return false
}
