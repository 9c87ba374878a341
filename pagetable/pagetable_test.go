package pagetable

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.gazette.dev/pagevfs/pagefile"
)

func TestMemoryHost(t *testing.T) {
	var h = NewMemoryHost()
	var buf = make([]byte, pagefile.BlockSize)

	ok, err := h.GetPage(0, buf)
	require.NoError(t, err)
	require.False(t, ok)

	var page = bytes.Repeat([]byte{0x3c}, pagefile.BlockSize)
	require.NoError(t, h.PutPage(2, page))
	require.Equal(t, 3, h.Pages())

	// Skipped pages don't exist.
	ok, _ = h.GetPage(1, buf)
	require.False(t, ok)
	ok, _ = h.GetPage(2, buf)
	require.True(t, ok)
	require.Equal(t, page, buf)

	// Pages are exchanged by copy.
	page[0] = 0xff
	_, _ = h.GetPage(2, buf)
	require.Equal(t, byte(0x3c), buf[0])
	buf[1] = 0xff
	_, _ = h.GetPage(2, page)
	require.Equal(t, byte(0x3c), page[1])
}

func TestFileHost(t *testing.T) {
	var dir = t.TempDir()

	for _, fs := range []afero.Fs{afero.NewMemMapFs(), afero.NewOsFs()} {
		var path = filepath.Join(dir, "pages-"+fs.Name())

		var h, err = OpenFileHost(fs, path, true)
		require.NoError(t, err)

		var buf = make([]byte, pagefile.BlockSize)
		ok, err := h.GetPage(0, buf)
		require.NoError(t, err)
		require.False(t, ok)

		var one = bytes.Repeat([]byte{1}, pagefile.BlockSize)
		require.NoError(t, h.PutPage(1, one))

		// Page 0 is within the file, and reads as zeros. Page 5 is not.
		ok, err = h.GetPage(0, buf)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, make([]byte, pagefile.BlockSize), buf)

		ok, err = h.GetPage(5, buf)
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, h.Close())

		// Pages are at their natural offsets of a re-opened file.
		info, err := fs.Stat(path)
		require.NoError(t, err)
		require.Equal(t, int64(2*pagefile.BlockSize), info.Size())

		h, err = OpenFileHost(fs, path, false)
		require.NoError(t, err)
		ok, err = h.GetPage(1, buf)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, one, buf)

		require.NoError(t, h.Close())
	}
}

func TestFileHostTruncatedPage(t *testing.T) {
	// MemMapFs returns no error of a short read, and OsFs returns io.EOF.
	for _, fs := range []afero.Fs{afero.NewMemMapFs(), afero.NewBasePathFs(afero.NewOsFs(), t.TempDir())} {
		require.NoError(t, afero.WriteFile(fs, "short", make([]byte, pagefile.BlockSize+10), 0644))

		var h, err = OpenFileHost(fs, "short", false)
		require.NoError(t, err)

		var dst = make([]byte, pagefile.BlockSize)
		ok, err := h.GetPage(0, dst)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = h.GetPage(1, dst)
		require.EqualError(t, err, "page 1 is truncated (10 bytes)")
		require.False(t, ok)

		ok, err = h.GetPage(2, dst)
		require.NoError(t, err)
		require.False(t, ok)
		require.NoError(t, h.Close())
	}

	var _, err = OpenFileHost(afero.NewOsFs(), filepath.Join(t.TempDir(), "missing", "db"), false)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileHostBacksPageFiles(t *testing.T) {
	var fs = afero.NewMemMapFs()
	var h, err = OpenFileHost(fs, "db", false)
	require.NoError(t, err)

	var backend = pagefile.NewPageTableBackend(h)
	f, err := pagefile.Open(backend, "ignored")
	require.NoError(t, err)

	_, err = f.Seek(3*pagefile.BlockSize+7, io.SeekStart)
	require.NoError(t, err)
	_, err = f.Write([]byte("page three"))
	require.NoError(t, err)
	require.NoError(t, f.Flush())

	var content, _ = afero.ReadFile(fs, "db")
	require.Len(t, content, 4*pagefile.BlockSize)
	require.Equal(t, "page three", string(content[3*pagefile.BlockSize+7:3*pagefile.BlockSize+17]))
}
