package mainboilerplate

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.gazette.dev/pagevfs/async"
	"go.gazette.dev/pagevfs/pagefile"
	"go.gazette.dev/pagevfs/pagetable"
	"go.gazette.dev/pagevfs/stores"
	"go.gazette.dev/pagevfs/stores/azure"
	"go.gazette.dev/pagevfs/stores/common"
	"go.gazette.dev/pagevfs/stores/etcd"
	"go.gazette.dev/pagevfs/stores/fs"
	"go.gazette.dev/pagevfs/stores/gcs"
	"go.gazette.dev/pagevfs/stores/s3"
	"go.gazette.dev/pagevfs/vfs"
)

// BackendConfig configures the backing store of databases, and the VFS
// through which SQLite reaches it.
type BackendConfig struct {
	URL    string `long:"url" env:"URL" default:"memory://local/pagevfs/" description:"Backing store URL. One of memory://, file://, s3://, gs://, azure://, azure-ad://, etcd:// (a keyed store whose path ends in '/'), or pages:///path/to/file (a flat page table file)"`
	Bridge string `long:"bridge" env:"BRIDGE" default:"park" choice:"park" choice:"spin" description:"How asynchronous store operations are awaited"`
	VFS    string `long:"vfs" env:"VFS" default:"pagevfs" description:"Name under which the VFS is registered with SQLite"`
}

// PagesQueryArgs contains fields that are parsed from the query arguments
// of a pages:// URL.
type PagesQueryArgs struct {
	// Fsync each written page.
	Fsync bool
}

// RegisterStoreProviders registers every stores.Constructor by its URL scheme.
func RegisterStoreProviders() {
	stores.RegisterProviders(map[string]stores.Constructor{
		"memory":   stores.NewMemory,
		"file":     fs.New,
		"s3":       s3.New,
		"gs":       gcs.New,
		"azure":    azure.NewAccount,
		"azure-ad": azure.NewAD,
		"etcd":     etcd.New,
	})
}

// Backend builds the pagefile.Backend of the configured URL. Keyed stores
// issue their operations under |ctx|. The returned closure releases the
// Backend's resources.
func (c BackendConfig) Backend(ctx context.Context) (pagefile.Backend, *stores.ActiveStore, func() error, error) {
	var ep, err = url.Parse(c.URL)
	if err != nil {
		return nil, nil, nil, errors.WithMessage(err, "parsing backend URL")
	}

	if ep.Scheme == "pages" {
		var args PagesQueryArgs
		if err = common.ParseStoreArgs(ep, &args); err != nil {
			return nil, nil, nil, err
		} else if ep.Path == "" {
			return nil, nil, nil, errors.Errorf("pages URL %s is missing a path", c.URL)
		}
		host, err := pagetable.OpenFileHost(afero.NewOsFs(), ep.Path, args.Fsync)
		if err != nil {
			return nil, nil, nil, err
		}
		log.WithField("path", ep.Path).Debug("using page table file backend")
		return pagefile.NewPageTableBackend(host), nil, host.Close, nil
	}

	mode, err := async.ParseMode(c.Bridge)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := stores.Get(c.URL)
	if err != nil {
		return nil, nil, nil, err
	}

	log.WithFields(log.Fields{
		"url":      c.URL,
		"provider": store.Provider(),
		"bridge":   mode,
	}).Debug("using keyed store backend")

	var backend = pagefile.NewKeyedBackend(stores.NewKeyed(ctx, store), async.Bridge{Mode: mode})
	return backend, store, func() error { return nil }, nil
}

// MustVFS builds the configured Backend and a VFS of it, and registers the
// VFS with SQLite. It returns the VFS, the ActiveStore of a keyed Backend
// (or nil for page table files), and a closure releasing the Backend.
func (c BackendConfig) MustVFS(ctx context.Context) (*vfs.VFS, *stores.ActiveStore, func() error) {
	var backend, store, closeFn, err = c.Backend(ctx)
	Must(err, "failed to build backend", "url", c.URL)

	var v = vfs.New(c.VFS, backend)
	Must(vfs.Register(v), "failed to register VFS", "vfs", c.VFS)

	return v, store, closeFn
}
