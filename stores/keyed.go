package stores

import (
	"bytes"
	"context"
	"io"

	"go.gazette.dev/pagevfs/async"
)

// Keyed adapts a Store into an asynchronous key-value interface. Each
// operation is started on its own goroutine and returns immediately with a
// Future of its result. Keys are Store paths, relative to the Store's prefix.
type Keyed struct {
	Ctx   context.Context
	Store Store
}

// NewKeyed returns a Keyed of the Store, which issues operations under |ctx|.
func NewKeyed(ctx context.Context, store Store) *Keyed {
	return &Keyed{Ctx: ctx, Store: store}
}

// Get resolves with the full content of |key|, or with a nil value if
// |key| doesn't exist. Present values are never nil, even if empty.
func (k *Keyed) Get(key string) *async.Future[[]byte] {
	return async.Go(func() ([]byte, error) {
		var rc, err = k.Store.Get(k.Ctx, key)
		if IsNotFound(err) {
			return nil, nil
		} else if err != nil {
			return nil, err
		}
		defer rc.Close()

		var buf bytes.Buffer
		if _, err = io.Copy(&buf, rc); err != nil {
			return nil, err
		}
		return append([]byte{}, buf.Bytes()...), nil
	})
}

// Put resolves when |value| is durably stored under |key|.
// |value| must not be modified until the Future resolves.
func (k *Keyed) Put(key string, value []byte) *async.Future[struct{}] {
	return async.Go(func() (struct{}, error) {
		return struct{}{}, k.Store.Put(k.Ctx, key, bytes.NewReader(value), int64(len(value)))
	})
}
