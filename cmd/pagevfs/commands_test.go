package main

import (
	"bytes"
	"context"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.gazette.dev/pagevfs/async"
	"go.gazette.dev/pagevfs/pagedb"
	"go.gazette.dev/pagevfs/pagefile"
	"go.gazette.dev/pagevfs/stores"
	"go.gazette.dev/pagevfs/vfs"
)

func TestQueryInspectAndPurge(t *testing.T) {
	var ctx = context.Background()
	var ep, _ = url.Parse("memory://bucket/cmd-test/")
	var memStore = stores.NewMemoryStore(ep)
	var store = stores.NewActiveStore(ep.String(), memStore)
	var backend = pagefile.NewKeyedBackend(stores.NewKeyed(ctx, store), async.Bridge{})

	// Create two databases, one of which has the other's name as a prefix.
	for _, name := range []string{"main.db3", "main.db3.old"} {
		var db, err = pagedb.Open(vfs.New("cmd-test", backend), name)
		require.NoError(t, err)

		for _, stmt := range []string{
			"CREATE TABLE t (k TEXT PRIMARY KEY, v INTEGER)",
			"INSERT INTO t VALUES ('one', 1), ('two', NULL)",
		} {
			require.NoError(t, runQuery(&bytes.Buffer{}, db, stmt))
		}

		var out bytes.Buffer
		require.NoError(t, runQuery(&out, db, "SELECT k, v FROM t ORDER BY k"))
		require.Contains(t, out.String(), "one")
		require.Contains(t, out.String(), "NULL")

		require.ErrorContains(t, runQuery(&out, db, "SELECT * FROM missing"), `running "SELECT * FROM missing"`)
		require.NoError(t, db.Close())
	}

	// Inspect the database, and place a stray block beyond its page count.
	report, err := inspect(ctx, backend, store, "main.db3", 4)
	require.NoError(t, err)
	require.Equal(t, pagefile.BlockSize, report.header.PageSize)
	require.Equal(t, int64(report.header.PageCount), report.present)
	require.Equal(t, int64(0), report.missing)
	require.Equal(t, int64(0), report.corrupt)
	require.Equal(t, int64(0), report.stray)

	require.NoError(t, backend.PutBlock("main.db3", report.header.PageCount+10, make([]byte, pagefile.BlockSize)))
	memStore.Content["main.db3.1.block"] = []byte("short")

	report, err = inspect(ctx, backend, store, "main.db3", 4)
	require.NoError(t, err)
	require.Equal(t, int64(1), report.stray)
	require.Equal(t, int64(1), report.corrupt)

	var out bytes.Buffer
	require.NoError(t, report.write(&out))
	require.Contains(t, out.String(), "main.db3")
	require.Contains(t, out.String(), "4.0 KiB")

	_, err = inspect(ctx, backend, store, "missing.db3", 4)
	require.EqualError(t, err, `database "missing.db3" does not exist`)

	// Purge of a dry run removes nothing.
	paths, err := purge(ctx, store, "main.db3", true, 4)
	require.NoError(t, err)
	require.Len(t, paths, int(report.header.PageCount)+1)
	require.Contains(t, memStore.Content, paths[0])

	paths, err = purge(ctx, store, "main.db3", false, 4)
	require.NoError(t, err)
	require.Len(t, paths, int(report.header.PageCount)+1)

	// Only blocks of main.db3.old remain.
	var remaining []string
	for key := range memStore.Content {
		remaining = append(remaining, key)
	}
	sort.Strings(remaining)
	require.NotEmpty(t, remaining)
	for _, key := range remaining {
		require.True(t, strings.HasPrefix(key, "main.db3.old."), key)
	}
}

func TestInspectWithoutStoreListing(t *testing.T) {
	var backend = pagefile.NewMemoryBackend()
	var db, err = pagedb.Open(vfs.New("cmd-inspect-memory", backend), "any.db")
	require.NoError(t, err)
	require.NoError(t, runQuery(&bytes.Buffer{}, db, "CREATE TABLE t (v BLOB)"))
	require.NoError(t, db.Close())

	report, err := inspect(context.Background(), backend, nil, "any.db", 1)
	require.NoError(t, err)
	require.Equal(t, int64(-1), report.stray)
	require.Equal(t, int64(report.header.PageCount), report.present)

	var out bytes.Buffer
	require.NoError(t, report.write(&out))
	require.Contains(t, out.String(), "n/a")
}

func TestRejectsInvalidParallelism(t *testing.T) {
	var ctx = context.Background()
	var ep, _ = url.Parse("memory://bucket/parallelism/")
	var store = stores.NewActiveStore(ep.String(), stores.NewMemoryStore(ep))

	_, err := inspect(ctx, pagefile.NewMemoryBackend(), store, "main.db3", 0)
	require.EqualError(t, err, "parallelism must be at least 1 (got 0)")
	_, err = purge(ctx, store, "main.db3", false, -1)
	require.EqualError(t, err, "parallelism must be at least 1 (got -1)")
}

func TestFormatValue(t *testing.T) {
	require.Equal(t, "NULL", formatValue(nil))
	require.Equal(t, "bytes", formatValue([]byte("bytes")))
	require.Equal(t, "42", formatValue(int64(42)))
	require.Equal(t, "1.5", formatValue(1.5))
}
