package pagefile

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.gazette.dev/pagevfs/async"
)

func TestBlockKeyRoundTrip(t *testing.T) {
	require.Equal(t, "main.db3.0.block", BlockKey("main.db3", 0))
	require.Equal(t, "a/b.c.4294967295.block", BlockKey("a/b.c", 1<<32-1))

	for _, tc := range []struct {
		key   string
		name  string
		index uint32
	}{
		{"main.db3.0.block", "main.db3", 0},
		{"x.12.block", "x", 12},
		{"dotted.name.db.7.block", "dotted.name.db", 7},
	} {
		var name, index, err = ParseBlockKey(tc.key)
		require.NoError(t, err)
		require.Equal(t, tc.name, name)
		require.Equal(t, tc.index, index)
	}

	for _, key := range []string{
		"main.db3.0",         // Missing suffix.
		".0.block",           // Empty name.
		"main.db3.block",     // Missing index.
		"main.db3.-1.block",  // Negative index.
		"main.db3.x1.block",  // Non-numeric index.
		"f.4294967296.block", // Overflows uint32.
	} {
		var _, _, err = ParseBlockKey(key)
		require.Error(t, err, key)
	}
}

func TestKeyedBackendWithBridgeModes(t *testing.T) {
	for _, mode := range []async.Mode{async.Park, async.Spin} {
		var kv = newMapKeyValue()
		var backend = NewKeyedBackend(kv, async.Bridge{Mode: mode})

		var f, err = Open(backend, "main.db3")
		require.NoError(t, err)
		_, err = f.Write([]byte("hello"))
		require.NoError(t, err)
		require.NoError(t, f.Flush())

		// The block is stored under its key, as a raw BlockSize value.
		var value = kv.m["main.db3.0.block"]
		require.Len(t, value, BlockSize)
		require.Equal(t, []byte("hello"), value[:5])

		f, err = Open(backend, "main.db3")
		require.NoError(t, err)
		var buf = make([]byte, 5)
		_, err = io.ReadFull(f, buf)
		require.NoError(t, err)
		require.Equal(t, "hello", string(buf))
	}
}

func TestKeyedBackendErrorsAndCopies(t *testing.T) {
	var kv = newMapKeyValue()
	var backend = NewKeyedBackend(kv, async.Bridge{})

	var data, ok, err = backend.GetBlock("main.db3", 3)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, data)

	// PutBlock doesn't retain the caller's buffer.
	var buf = bytes.Repeat([]byte{'a'}, BlockSize)
	require.NoError(t, backend.PutBlock("main.db3", 3, buf))
	buf[0] = 'z'
	data, ok, err = backend.GetBlock("main.db3", 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, byte('a'), data[0])

	kv.err = errors.New("throttled")
	_, _, err = backend.GetBlock("main.db3", 3)
	require.EqualError(t, err, "throttled")
	require.EqualError(t, backend.PutBlock("main.db3", 3, buf), "throttled")
}

func TestPageTableBackend(t *testing.T) {
	var host = &slicePageHost{}
	var backend = NewPageTableBackend(host)

	var _, ok, err = backend.GetBlock("ignored", 0)
	require.NoError(t, err)
	require.False(t, ok)

	var page = make([]byte, BlockSize)
	copy(page, "page one")
	require.NoError(t, backend.PutBlock("ignored", 1, page))

	// Names are not part of a page's identity.
	data, ok, err := backend.GetBlock("other", 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, page, data)

	// The returned buffer is owned by the caller.
	data[0] = 'P'
	require.Equal(t, byte('p'), host.pages[1][0])

	require.EqualError(t, backend.PutBlock("ignored", 2, []byte("short")),
		"page 2 is 5 bytes (expected 4096)")
}

// mapKeyValue is a KeyValue which resolves each operation from a goroutine.
type mapKeyValue struct {
	mu  sync.Mutex
	m   map[string][]byte
	err error
}

func newMapKeyValue() *mapKeyValue { return &mapKeyValue{m: make(map[string][]byte)} }

func (kv *mapKeyValue) Get(key string) *async.Future[[]byte] {
	return async.Go(func() ([]byte, error) {
		kv.mu.Lock()
		defer kv.mu.Unlock()

		if kv.err != nil {
			return nil, kv.err
		}
		return kv.m[key], nil
	})
}

func (kv *mapKeyValue) Put(key string, value []byte) *async.Future[struct{}] {
	return async.Go(func() (struct{}, error) {
		kv.mu.Lock()
		defer kv.mu.Unlock()

		if kv.err != nil {
			return struct{}{}, kv.err
		}
		kv.m[key] = value
		return struct{}{}, nil
	})
}

// slicePageHost is a PageHost of a growable slice of pages.
type slicePageHost struct {
	pages [][]byte
}

func (h *slicePageHost) GetPage(index uint32, dst []byte) (bool, error) {
	if int(index) >= len(h.pages) || h.pages[index] == nil {
		return false, nil
	}
	copy(dst, h.pages[index])
	return true, nil
}

func (h *slicePageHost) PutPage(index uint32, src []byte) error {
	for int(index) >= len(h.pages) {
		h.pages = append(h.pages, nil)
	}
	h.pages[index] = append([]byte(nil), src...)
	return nil
}
