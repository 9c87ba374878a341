package etcd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	"go.gazette.dev/pagevfs/etcdtest"
	"go.gazette.dev/pagevfs/stores"
)

func TestStoreRoundTrip(t *testing.T) {
	var ctx = context.Background()
	var client = etcdtest.TestClient(t)
	var s = NewWithClient(client, "/pagevfs/test/", StoreQueryArgs{RequestTimeout: 5 * time.Second})

	require.Equal(t, "etcd", s.Provider())

	_, err := s.Get(ctx, "main.db3.0.block")
	require.True(t, stores.IsNotFound(err))

	exists, err := s.Exists(ctx, "main.db3.0.block")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, s.Put(ctx, "main.db3.0.block", strings.NewReader("zero"), 4))
	require.NoError(t, s.Put(ctx, "other.db.0.block", strings.NewReader("other"), 5))

	exists, err = s.Exists(ctx, "main.db3.0.block")
	require.NoError(t, err)
	require.True(t, exists)

	rc, err := s.Get(ctx, "main.db3.0.block")
	require.NoError(t, err)
	content, _ := io.ReadAll(rc)
	require.Equal(t, "zero", string(content))

	// The key is stored beneath the prefix.
	resp, err := client.Get(ctx, "/pagevfs/test/main.db3.0.block")
	require.NoError(t, err)
	require.Len(t, resp.Kvs, 1)

	require.NoError(t, s.Remove(ctx, "main.db3.0.block"))
	exists, err = s.Exists(ctx, "main.db3.0.block")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestStoreListPaginates(t *testing.T) {
	var ctx = context.Background()
	var s = NewWithClient(etcdtest.TestClient(t), "/pagevfs/list/", StoreQueryArgs{})

	var expect []string
	for i := 0; i != listPageSize+5; i++ {
		var key = fmt.Sprintf("main.db3.%d.block", i)
		require.NoError(t, s.Put(ctx, key, strings.NewReader("x"), 1))
		expect = append(expect, strings.TrimPrefix(key, "main.db3."))
	}
	require.NoError(t, s.Put(ctx, "main.db4.0.block", strings.NewReader("x"), 1))

	var listed []string
	require.NoError(t, s.List(ctx, "main.db3.", func(path string, modTime time.Time) error {
		require.True(t, modTime.IsZero())
		listed = append(listed, path)
		return nil
	}))
	require.ElementsMatch(t, expect, listed)

	// Callback errors halt the listing.
	var stopErr = errors.New("stop")
	var n int
	require.Equal(t, stopErr, s.List(ctx, "", func(string, time.Time) error {
		if n++; n == 3 {
			return stopErr
		}
		return nil
	}))
	require.Equal(t, 3, n)
}

func TestIsAuthError(t *testing.T) {
	var s = &store{}
	require.True(t, s.IsAuthError(rpctypes.ErrPermissionDenied))
	require.True(t, s.IsAuthError(fmt.Errorf("get: %w", rpctypes.ErrAuthFailed)))
	require.False(t, s.IsAuthError(rpctypes.ErrEmptyKey))
	require.False(t, s.IsAuthError(errors.New("timeout")))
	require.False(t, s.IsAuthError(nil))
}

func TestNewValidatesURL(t *testing.T) {
	var ep, _ = url.Parse("etcd:///prefix/")
	var _, err = New(ep)
	require.EqualError(t, err, "store URL etcd:///prefix/ is missing an Etcd host")

	ep, _ = url.Parse("etcd://localhost:2379/prefix/?DialTimeout=never")
	_, err = New(ep)
	require.ErrorContains(t, err, "parsing store URL arguments")
}

func TestMain(m *testing.M) { etcdtest.TestMainWithEtcd(m) }
