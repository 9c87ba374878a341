// Package fs implements a Store of a local (or afero-abstracted) filesystem,
// serving file:// URLs.
package fs

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.gazette.dev/pagevfs/stores"
	"go.gazette.dev/pagevfs/stores/common"
)

// StoreQueryArgs contains fields that are parsed from the query arguments
// of a file:// store URL.
type StoreQueryArgs struct {
	// Fsync each written file before it's renamed into place.
	Fsync bool
}

type store struct {
	fs     afero.Fs
	args   StoreQueryArgs
	prefix string // Root directory of the store, ending in '/'.
}

// New creates a new filesystem Store of the operating system filesystem,
// rooted at the path of the provided URL.
func New(ep *url.URL) (stores.Store, error) {
	return NewWithFs(afero.NewOsFs(), ep)
}

// NewWithFs creates a new filesystem Store of the afero.Fs.
func NewWithFs(fs afero.Fs, ep *url.URL) (stores.Store, error) {
	var s = &store{fs: fs, prefix: ep.Path}
	if err := common.ParseStoreArgs(ep, &s.args); err != nil {
		return nil, err
	}
	if !strings.HasSuffix(s.prefix, "/") {
		s.prefix += "/"
	}
	return s, nil
}

func (s *store) Provider() string { return "file" }

func (s *store) Exists(_ context.Context, path string) (bool, error) {
	if _, err := s.fs.Stat(s.fsPath(path)); os.IsNotExist(err) {
		return false, nil
	} else if err == nil {
		return true, nil
	} else {
		return false, err
	}
}

func (s *store) Get(_ context.Context, path string) (io.ReadCloser, error) {
	var f, err = s.fs.Open(s.fsPath(path))
	if os.IsNotExist(err) {
		return nil, stores.NotFound(err)
	}
	return f, err
}

func (s *store) Put(_ context.Context, path string, content io.ReaderAt, contentLength int64) error {
	var fsPath = s.fsPath(path)

	if err := s.fs.MkdirAll(filepath.Dir(fsPath), 0750); err != nil {
		return err
	}
	var f, err = afero.TempFile(s.fs, filepath.Dir(fsPath), ".partial-"+filepath.Base(fsPath))
	if err != nil {
		return err
	}

	defer func(name string) {
		if rmErr := s.fs.Remove(name); rmErr != nil && !os.IsNotExist(rmErr) {
			log.WithFields(log.Fields{"err": rmErr, "path": fsPath}).
				Warn("failed to cleanup temp file")
		}
	}(f.Name())

	// io.Copy only needs io.Reader, so we use io.NewSectionReader to adapt io.ReaderAt.
	_, err = io.Copy(f, io.NewSectionReader(content, 0, contentLength))

	if err == nil && s.args.Fsync {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = s.fs.Rename(f.Name(), fsPath)
	}
	return err
}

// List walks the directory which encloses |prefix|, and calls back with
// each contained file whose path has the prefix.
func (s *store) List(_ context.Context, prefix string, callback func(path string, modTime time.Time) error) error {
	var full = s.prefix + prefix
	var dir = full[:strings.LastIndexByte(full, '/')+1]

	if _, err := s.fs.Stat(filepath.FromSlash(dir)); os.IsNotExist(err) {
		return nil
	}
	return afero.Walk(s.fs, filepath.FromSlash(dir),
		func(name string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			} else if info.IsDir() {
				return nil // Descend into directory.
			} else if strings.HasPrefix(info.Name(), ".partial-") {
				return nil // In-progress Put.
			}

			var slashed = filepath.ToSlash(name)
			if !strings.HasPrefix(slashed, full) {
				return nil
			}
			return callback(strings.TrimPrefix(slashed, full), info.ModTime())
		})
}

func (s *store) Remove(_ context.Context, path string) error {
	return s.fs.Remove(s.fsPath(path))
}

func (s *store) IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrPermission) || os.IsPermission(err)
}

func (s *store) fsPath(path string) string {
	return filepath.FromSlash(s.prefix + path)
}
