package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	mbp "go.gazette.dev/pagevfs/mainboilerplate"
	"go.gazette.dev/pagevfs/pagefile"
	"go.gazette.dev/pagevfs/stores"
	"golang.org/x/sync/errgroup"
)

type cmdPurge struct {
	Database    string `long:"database" short:"d" required:"true" description:"Name of the database to purge"`
	DryRun      bool   `long:"dry-run" description:"List the blocks which would be removed, without removing them"`
	Parallelism int    `long:"parallelism" default:"16" description:"Maximum number of concurrent removals"`
}

func addCmdPurge(cmd *flags.Command) error {
	_, err := cmd.AddCommand("purge", "Remove every block of a database", `
Remove every persisted block of a database from a keyed backing store.

SQLite never deletes a database through the VFS, and purge is the means of
doing so. The database must not be open by any other process. Page table
files (pages:// URLs) hold a single database, and are simply deleted instead.

>    pagevfs purge --backend.url gs://my-bucket/dbs/ --database old.db3 --dry-run
`, &cmdPurge{})
	return err
}

func (cmd *cmdPurge) Execute([]string) error {
	defer startup()()

	var ctx = context.Background()
	var _, store, closeFn, err = baseCfg.Backend.Backend(ctx)
	mbp.Must(err, "failed to build backend", "url", baseCfg.Backend.URL)
	defer closeFn()

	if store == nil {
		return errors.New("purge requires a keyed backing store URL")
	}

	removed, err := purge(ctx, store, cmd.Database, cmd.DryRun, cmd.Parallelism)
	if err != nil {
		return err
	}

	if cmd.DryRun {
		fmt.Fprintf(os.Stdout, "would remove %d blocks of %q\n", len(removed), cmd.Database)
	} else {
		fmt.Fprintf(os.Stdout, "removed %d blocks of %q\n", len(removed), cmd.Database)
	}
	return nil
}

// purge removes every block of database |name| from the Store, returning
// the removed paths. If |dryRun|, blocks are listed but not removed.
func purge(ctx context.Context, store stores.Store, name string, dryRun bool, parallelism int) ([]string, error) {
	if parallelism < 1 {
		return nil, errors.Errorf("parallelism must be at least 1 (got %d)", parallelism)
	}
	var paths []string

	// The listing prefix also matches blocks of databases having |name| as
	// a dotted prefix of their own name. Keep only exact matches.
	var prefix = name + "."
	var err = store.List(ctx, prefix, func(path string, _ time.Time) error {
		if blockName, _, err := pagefile.ParseBlockKey(prefix + path); err == nil && blockName == name {
			paths = append(paths, prefix+path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "listing blocks of %q", name)
	} else if dryRun {
		return paths, nil
	}

	var group, groupCtx = errgroup.WithContext(ctx)
	group.SetLimit(parallelism)

	for _, path := range paths {
		group.Go(func() error {
			if err := store.Remove(groupCtx, path); err != nil {
				return errors.WithMessagef(err, "removing %s", path)
			}
			return nil
		})
	}
	if err = group.Wait(); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"database": name,
		"blocks":   len(paths),
	}).Info("purged database")

	return paths, nil
}
