package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	mbp "go.gazette.dev/pagevfs/mainboilerplate"
	"go.gazette.dev/pagevfs/pagefile"
	"go.gazette.dev/pagevfs/stores"
	"golang.org/x/sync/errgroup"
)

type cmdInspect struct {
	Database    string `long:"database" short:"d" default:"main.db3" description:"Name of the database within the backing store"`
	Parallelism int    `long:"parallelism" default:"16" description:"Maximum number of concurrent block fetches"`
}

func addCmdInspect(cmd *flags.Command) error {
	_, err := cmd.AddCommand("inspect", "Inspect the persisted blocks of a database", `
Inspect a database of the backing store, without opening it with SQLite.

The database header of block 0 is decoded, and every block within the page
count of the header is fetched and checked. Blocks which are missing or are
not exactly one page are reported. Keyed stores are also listed, to find
blocks beyond the header's page count.

>    pagevfs inspect --backend.url s3://my-bucket/dbs/ --database main.db3
`, &cmdInspect{})
	return err
}

func (cmd *cmdInspect) Execute([]string) error {
	defer startup()()

	var ctx = context.Background()
	var backend, store, closeFn, err = baseCfg.Backend.Backend(ctx)
	mbp.Must(err, "failed to build backend", "url", baseCfg.Backend.URL)
	defer closeFn()

	report, err := inspect(ctx, backend, store, cmd.Database, cmd.Parallelism)
	if err != nil {
		return err
	}
	return report.write(os.Stdout)
}

// inspection is the result of inspecting a database.
type inspection struct {
	name     string
	header   pagefile.Header
	present  int64 // Blocks within the page count which are persisted.
	missing  int64 // Blocks within the page count which are not.
	corrupt  int64 // Persisted blocks of the wrong size.
	stray    int64 // Blocks beyond the page count. -1 if not listed.
	duration time.Duration
}

// inspect the blocks of database |name| of the Backend. If |store| is
// non-nil, it's the store of a keyed Backend and is listed for stray blocks.
func inspect(ctx context.Context, backend pagefile.Backend, store *stores.ActiveStore, name string, parallelism int) (*inspection, error) {
	if parallelism < 1 {
		return nil, errors.Errorf("parallelism must be at least 1 (got %d)", parallelism)
	}
	var started = time.Now()

	var block0, ok, err = backend.GetBlock(name, 0)
	if err != nil {
		return nil, &pagefile.BackingStoreError{Op: "get", Name: name, Index: 0, Err: err}
	} else if !ok {
		return nil, errors.Errorf("database %q does not exist", name)
	}
	header, err := pagefile.ParseHeader(block0)
	if err != nil {
		return nil, errors.WithMessagef(err, "inspecting %q", name)
	}

	var out = &inspection{name: name, header: header, stray: -1}
	var group, groupCtx = errgroup.WithContext(ctx)
	group.SetLimit(parallelism)

	for index := uint32(0); index < header.PageCount; index++ {
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			var data, ok, err = backend.GetBlock(name, index)
			switch {
			case err != nil:
				return &pagefile.BackingStoreError{Op: "get", Name: name, Index: index, Err: err}
			case !ok:
				atomic.AddInt64(&out.missing, 1)
			case len(data) != pagefile.BlockSize:
				atomic.AddInt64(&out.corrupt, 1)
				fallthrough
			default:
				atomic.AddInt64(&out.present, 1)
			}
			return nil
		})
	}
	if err = group.Wait(); err != nil {
		return nil, err
	}

	if store != nil {
		out.stray = 0
		err = store.List(ctx, name+".", func(path string, _ time.Time) error {
			if blockName, index, err := pagefile.ParseBlockKey(name + "." + path); err == nil &&
				blockName == name && index >= header.PageCount {
				out.stray++
			}
			return nil
		})
		if err != nil {
			return nil, errors.WithMessagef(err, "listing blocks of %q", name)
		}
	}
	out.duration = time.Since(started)

	return out, nil
}

func (r *inspection) write(w io.Writer) error {
	var table = tablewriter.NewWriter(w)
	table.Header("Property", "Value")

	var stray = "n/a"
	if r.stray >= 0 {
		stray = humanize.Comma(r.stray)
	}
	for _, row := range [][]string{
		{"Database", r.name},
		{"Page Size", humanize.IBytes(uint64(r.header.PageSize))},
		{"Page Count", humanize.Comma(int64(r.header.PageCount))},
		{"Database Size", humanize.IBytes(uint64(r.header.PageCount) * uint64(r.header.PageSize))},
		{"Change Counter", fmt.Sprint(r.header.ChangeCounter)},
		{"Freelist Pages", humanize.Comma(int64(r.header.FreelistCount))},
		{"Persisted Blocks", humanize.Comma(r.present)},
		{"Missing Blocks", humanize.Comma(r.missing)},
		{"Corrupt Blocks", humanize.Comma(r.corrupt)},
		{"Stray Blocks", stray},
		{"Inspected In", r.duration.Round(time.Millisecond).String()},
	} {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}
