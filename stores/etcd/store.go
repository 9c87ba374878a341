// Package etcd implements a Store of an Etcd keyspace, serving etcd:// URLs.
// Each path is an Etcd key beneath the URL's path prefix, and values are
// stored without an envelope. Etcd's request size limit (1.5MB by default)
// bounds the size of values, which comfortably admits database blocks.
package etcd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.gazette.dev/pagevfs/stores"
	"go.gazette.dev/pagevfs/stores/common"
)

// StoreQueryArgs contains fields that are parsed from the query arguments
// of an etcd:// store URL.
type StoreQueryArgs struct {
	// DialTimeout bounds the initial connection to Etcd.
	DialTimeout time.Duration
	// RequestTimeout bounds each individual Etcd request. Zero is unbounded.
	RequestTimeout time.Duration
	// TLS dials Etcd with https, using the system's trusted roots.
	TLS bool
}

type store struct {
	client *clientv3.Client
	prefix string
	args   StoreQueryArgs
}

// listPageSize is the number of keys fetched by each List request.
const listPageSize = 1000

// New creates a new Etcd Store from a URL of the form
// etcd://[user:password@]host:port/prefix/.
func New(ep *url.URL) (stores.Store, error) {
	var args = StoreQueryArgs{DialTimeout: 5 * time.Second}
	if err := common.ParseStoreArgs(ep, &args); err != nil {
		return nil, err
	} else if ep.Host == "" {
		return nil, fmt.Errorf("store URL %s is missing an Etcd host", ep.Redacted())
	}

	var scheme = "http"
	if args.TLS {
		scheme = "https"
	}
	var config = clientv3.Config{
		Endpoints:   []string{scheme + "://" + ep.Host},
		DialTimeout: args.DialTimeout,
	}
	if ep.User != nil {
		config.Username = ep.User.Username()
		config.Password, _ = ep.User.Password()
	}

	var client, err = clientv3.New(config)
	if err != nil {
		return nil, fmt.Errorf("building Etcd client: %w", err)
	}

	log.WithFields(log.Fields{
		"endpoint": config.Endpoints[0],
		"prefix":   ep.Path,
		"user":     config.Username,
	}).Info("constructed new Etcd client")

	return NewWithClient(client, ep.Path, args), nil
}

// NewWithClient returns a Store of keys beneath |prefix|, using |client|.
func NewWithClient(client *clientv3.Client, prefix string, args StoreQueryArgs) stores.Store {
	return &store{client: client, prefix: prefix, args: args}
}

func (s *store) Provider() string { return "etcd" }

func (s *store) Exists(ctx context.Context, path string) (bool, error) {
	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	var resp, err = s.client.Get(ctx, s.prefix+path, clientv3.WithCountOnly())
	if err != nil {
		return false, err
	}
	return resp.Count != 0, nil
}

func (s *store) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	var resp, err = s.client.Get(ctx, s.prefix+path)
	if err != nil {
		return nil, err
	} else if len(resp.Kvs) == 0 {
		return nil, stores.NotFound(fmt.Errorf("key not found: %s", s.prefix+path))
	}
	return io.NopCloser(bytes.NewReader(resp.Kvs[0].Value)), nil
}

func (s *store) Put(ctx context.Context, path string, content io.ReaderAt, contentLength int64) error {
	var buf = make([]byte, contentLength)
	if _, err := content.ReadAt(buf, 0); err != nil && err != io.EOF {
		return fmt.Errorf("failed to read content: %w", err)
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	var _, err = s.client.Put(ctx, s.prefix+path, string(buf))
	return err
}

// List enumerates keys with the prefix in pages of listPageSize. Etcd doesn't
// track modification times, so each callback has a zero-valued time.
func (s *store) List(ctx context.Context, prefix string, callback func(path string, modTime time.Time) error) error {
	prefix = s.prefix + prefix
	var end = clientv3.GetPrefixRangeEnd(prefix)

	for key := prefix; ; {
		var reqCtx, cancel = s.requestContext(ctx)
		var resp, err = s.client.Get(reqCtx, key,
			clientv3.WithRange(end),
			clientv3.WithKeysOnly(),
			clientv3.WithLimit(listPageSize),
			clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
		)
		cancel()

		if err != nil {
			return err
		}
		for _, kv := range resp.Kvs {
			if err = callback(strings.TrimPrefix(string(kv.Key), prefix), time.Time{}); err != nil {
				return err
			}
		}
		if !resp.More || len(resp.Kvs) == 0 {
			return nil
		}
		// Resume from the key following the last one returned.
		key = string(resp.Kvs[len(resp.Kvs)-1].Key) + "\x00"
	}
}

func (s *store) Remove(ctx context.Context, path string) error {
	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	var _, err = s.client.Delete(ctx, s.prefix+path)
	return err
}

func (s *store) IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	for _, authErr := range []error{
		rpctypes.ErrPermissionDenied,
		rpctypes.ErrAuthFailed,
		rpctypes.ErrUserEmpty,
		rpctypes.ErrGRPCPermissionDenied,
		rpctypes.ErrGRPCAuthFailed,
	} {
		if errors.Is(err, authErr) {
			return true
		}
	}
	return false
}

func (s *store) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.args.RequestTimeout == 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.args.RequestTimeout)
}
