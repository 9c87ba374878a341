package vfs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/psanford/sqlite3vfs"
	"github.com/stretchr/testify/require"
	"go.gazette.dev/pagevfs/pagefile"
)

func TestLogicalNamesAndCompanions(t *testing.T) {
	require.Equal(t, "main.db3", LogicalName("/var/lib/dbs/main.db3"))
	require.Equal(t, "main.db3", LogicalName("main.db3"))

	for _, tc := range []struct {
		path      string
		companion bool
	}{
		{"main.db3", false},
		{"/a/b/main.db3-journal", true},
		{"main.db3-wal", true},
		{"main.db3-shm", true},
		{"main.db3-mj0A1B2C3D", true},
		{"main.db3-mj", false},
		{"-mjfoo", false},
		{"journal.db", false},
	} {
		require.Equal(t, tc.companion, IsCompanion(tc.path), tc.path)
	}
}

func TestOpenAndExists(t *testing.T) {
	var backend = pagefile.NewMemoryBackend()
	var v = New("test-open", backend)

	exists, err := v.Exists("/some/dir/main.db3")
	require.NoError(t, err)
	require.False(t, exists)

	// Opening a database which doesn't exist yields an empty File.
	f, err := v.Open("/some/dir/main.db3")
	require.NoError(t, err)
	require.Equal(t, "main.db3", f.Name())
	require.Equal(t, int64(0), f.Size())

	var page = makeHeaderPage(3)
	_, _ = f.Write(page)
	require.NoError(t, f.Flush())
	require.NoError(t, f.Close())

	// The database now exists, by its logical name, in any directory.
	for _, path := range []string{"main.db3", "/other/main.db3"} {
		exists, err = v.Exists(path)
		require.NoError(t, err)
		require.True(t, exists)
	}
	// Companions of an existing database never exist.
	exists, err = v.Exists("main.db3-journal")
	require.NoError(t, err)
	require.False(t, exists)

	// Re-opening recovers the block count from the header.
	f, err = v.Open("main.db3")
	require.NoError(t, err)
	require.Equal(t, int64(3), f.BlockCount())

	// Delete is a no-op.
	require.NoError(t, v.Delete("main.db3"))
	exists, _ = v.Exists("main.db3")
	require.True(t, exists)
}

func TestExistsPropagatesStoreErrors(t *testing.T) {
	var v = New("test-errors", errBackend{errors.New("unavailable")})

	var _, err = v.Exists("main.db3")
	require.EqualError(t, err, "backing store get of main.db3.0.block: unavailable")

	_, err = v.Open("main.db3")
	require.EqualError(t, err, "backing store get of main.db3.0.block: unavailable")
}

func TestAdapterDispatchesToRegisteredVFS(t *testing.T) {
	var first, second = pagefile.NewMemoryBackend(), pagefile.NewMemoryBackend()
	require.NoError(t, second.PutBlock("main.db3", 0, makeHeaderPage(1)))

	require.NoError(t, Register(New("test-dispatch", first)))
	var a = &adapter{name: "test-dispatch"}

	ok, err := a.Access("main.db3", sqlite3vfs.AccessFlag(kSqliteAccessExists))
	require.NoError(t, err)
	require.False(t, ok)

	// Re-registration of the name re-binds it.
	require.NoError(t, Register(New("test-dispatch", second)))
	require.Equal(t, second, Lookup("test-dispatch").Backend)

	ok, err = a.Access("main.db3", sqlite3vfs.AccessFlag(kSqliteAccessExists))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = a.Access("main.db3-journal", sqlite3vfs.AccessFlag(kSqliteAccessReadWrite))
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, "/a/main.db3", a.FullPathname("/a/main.db3"))
	require.NoError(t, a.Delete("main.db3", true))

	// Unknown names fail.
	_, err = (&adapter{name: "unknown"}).Access("main.db3", sqlite3vfs.AccessFlag(kSqliteAccessExists))
	require.EqualError(t, err, `VFS "unknown" is not registered`)

	require.EqualError(t, Register(&VFS{}), "VFS name is empty")
	require.EqualError(t, Register(&VFS{Name: "nil-backend"}), `VFS "nil-backend" has no Backend`)
}

func TestMainDatabaseReadsAndWrites(t *testing.T) {
	var backend = pagefile.NewMemoryBackend()
	require.NoError(t, Register(New("test-main", backend)))
	var a = &adapter{name: "test-main"}

	sf, outFlags, err := a.Open("main.db3", openMainRW)
	require.NoError(t, err)
	require.Equal(t, openMainRW, outFlags)

	// A fresh database is empty, and reads are EOF.
	var buf = make([]byte, 100)
	n, err := sf.ReadAt(buf, 0)
	require.Equal(t, io.EOF, err)
	require.Equal(t, 0, n)

	size, err := sf.FileSize()
	require.NoError(t, err)
	require.Equal(t, int64(0), size)

	// Write two pages with one call, which spans a block boundary.
	var pages = append(makeHeaderPage(2), bytes.Repeat([]byte{0xab}, pagefile.BlockSize)...)
	n, err = sf.WriteAt(pages, 0)
	require.NoError(t, err)
	require.Equal(t, len(pages), n)

	size, _ = sf.FileSize()
	require.Equal(t, int64(2*pagefile.BlockSize), size)

	// Reads which span blocks, and which run past the end.
	buf = make([]byte, 200)
	n, err = sf.ReadAt(buf, pagefile.BlockSize-100)
	require.NoError(t, err)
	require.Equal(t, 200, n)
	require.Equal(t, pages[pagefile.BlockSize-100:pagefile.BlockSize+100], buf)

	n, err = sf.ReadAt(buf, 2*pagefile.BlockSize-50)
	require.Equal(t, io.EOF, err)
	require.Equal(t, 50, n)

	// Nothing reaches the Backend until a Sync.
	require.Equal(t, 0, backend.Len())
	require.NoError(t, sf.Sync(sqlite3vfs.SyncType(kSqliteSyncNormal)))
	require.Equal(t, 2, backend.Len())

	// Truncation of persisted files is ignored.
	require.NoError(t, sf.Truncate(0))
	size, _ = sf.FileSize()
	require.Equal(t, int64(2*pagefile.BlockSize), size)

	require.NoError(t, sf.Lock(sqlite3vfs.LockType(kSqliteLockExclusive)))
	reserved, err := sf.CheckReservedLock()
	require.NoError(t, err)
	require.False(t, reserved)
	require.NoError(t, sf.Unlock(sqlite3vfs.LockType(kSqliteLockNone)))
	require.Equal(t, int64(pagefile.BlockSize), sf.SectorSize())
	require.NoError(t, sf.Close())

	// Re-opening reads back persisted content.
	sf, _, err = a.Open("main.db3", sqlite3vfs.OpenFlag(kSqliteOpenMainDB|kSqliteOpenReadwrite))
	require.NoError(t, err)
	size, _ = sf.FileSize()
	require.Equal(t, int64(2*pagefile.BlockSize), size)

	buf = make([]byte, pagefile.BlockSize)
	_, err = sf.ReadAt(buf, pagefile.BlockSize)
	require.NoError(t, err)
	require.Equal(t, pages[pagefile.BlockSize:], buf)
	require.NoError(t, sf.Close())
}

func TestTransientFiles(t *testing.T) {
	var backend = pagefile.NewMemoryBackend()
	require.NoError(t, Register(New("test-transient", backend)))
	var a = &adapter{name: "test-transient"}

	for _, tc := range []struct {
		name  string
		flags sqlite3vfs.OpenFlag
	}{
		{"main.db3-journal", sqlite3vfs.OpenFlag(kSqliteOpenMainJournal)},
		{"", sqlite3vfs.OpenFlag(kSqliteOpenTempDB)},
		{"main.db3-wal", sqlite3vfs.OpenFlag(kSqliteOpenWAL)},
	} {
		var before = TransientFiles()

		var sf, _, err = a.Open(tc.name, tc.flags|sqlite3vfs.OpenFlag(kSqliteOpenCreate|kSqliteOpenReadwrite))
		require.NoError(t, err)
		require.Equal(t, before+1, TransientFiles())

		// Transient files track their exact size.
		_, err = sf.WriteAt([]byte("hello, journal"), 10)
		require.NoError(t, err)
		size, _ := sf.FileSize()
		require.Equal(t, int64(24), size)

		var buf = make([]byte, 30)
		n, err := sf.ReadAt(buf, 0)
		require.Equal(t, io.EOF, err)
		require.Equal(t, 24, n)
		require.Equal(t, "hello, journal", string(buf[10:24]))

		// Truncation zeroes the truncated range.
		require.NoError(t, sf.Truncate(12))
		size, _ = sf.FileSize()
		require.Equal(t, int64(12), size)
		_, err = sf.WriteAt([]byte("!"), 19)
		require.NoError(t, err)

		n, err = sf.ReadAt(buf, 0)
		require.Equal(t, io.EOF, err)
		require.Equal(t, 20, n)
		require.Equal(t, append([]byte("he"), make([]byte, 7)...), buf[10:19])

		require.NoError(t, sf.Sync(sqlite3vfs.SyncType(kSqliteSyncFull)))
		require.NoError(t, sf.Close())
		require.Equal(t, before, TransientFiles())
	}
	// Nothing reached the VFS Backend.
	require.Equal(t, 0, backend.Len())
}

func TestTransientCloseCountsFailedFlush(t *testing.T) {
	var pf, err = pagefile.Open(putFailBackend{}, "temp")
	require.NoError(t, err)

	var before = TransientFiles()
	transientFiles.Add(1)
	var f = &file{f: pf, transient: true}

	_, err = f.WriteAt([]byte("spilled"), 0)
	require.NoError(t, err)

	// The flush fails, but the file is closed and no longer counted.
	require.Error(t, f.Close())
	require.Equal(t, before, TransientFiles())

	require.ErrorIs(t, f.Close(), pagefile.ErrClosed)
	require.Equal(t, before, TransientFiles())
}

func makeHeaderPage(pageCount uint32) []byte {
	var page = make([]byte, pagefile.BlockSize)
	copy(page, "SQLite format 3\x00")
	binary.BigEndian.PutUint16(page[16:18], pagefile.BlockSize)
	binary.BigEndian.PutUint32(page[28:32], pageCount)
	return page
}

const openMainRW = sqlite3vfs.OpenFlag(kSqliteOpenMainDB | kSqliteOpenCreate | kSqliteOpenReadwrite)

// Constants of sqlite3.h, used only in testing.
const (
	kSqliteAccessReadWrite = 0x1
	kSqliteOpenReadwrite   = 0x2
	kSqliteOpenCreate      = 0x4
	kSqliteOpenTempDB      = 0x200
	kSqliteOpenMainJournal = 0x800
	kSqliteOpenWAL         = 0x80000
	kSqliteLockNone        = 0
	kSqliteLockExclusive   = 4
	kSqliteSyncNormal      = 0x2
	kSqliteSyncFull        = 0x3
)

type errBackend struct{ err error }

func (b errBackend) GetBlock(string, uint32) ([]byte, bool, error) { return nil, false, b.err }
func (b errBackend) PutBlock(string, uint32, []byte) error          { return b.err }

// putFailBackend holds no blocks, and fails every put.
type putFailBackend struct{}

func (putFailBackend) GetBlock(string, uint32) ([]byte, bool, error) { return nil, false, nil }
func (putFailBackend) PutBlock(string, uint32, []byte) error          { return errors.New("disk full") }
