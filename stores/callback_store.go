package stores

import (
	"context"
	"io"
	"time"
)

// CallbackStore is a Store of callbacks, used to inject faults and observe
// block traffic in testing. Operations lacking a callback are delegated to
// Base if it's set. Otherwise they behave as an empty Store which accepts
// and discards writes.
type CallbackStore struct {
	Base Store

	OnProvider    func() string
	OnExists      func(ctx context.Context, path string) (bool, error)
	OnGet         func(ctx context.Context, path string) (io.ReadCloser, error)
	OnPut         func(ctx context.Context, path string, content io.ReaderAt, contentLength int64) error
	OnList        func(ctx context.Context, prefix string, callback func(path string, modTime time.Time) error) error
	OnRemove      func(ctx context.Context, path string) error
	OnIsAuthError func(error) bool
}

func (c *CallbackStore) Provider() string {
	switch {
	case c.OnProvider != nil:
		return c.OnProvider()
	case c.Base != nil:
		return c.Base.Provider()
	}
	return "callback"
}

func (c *CallbackStore) Exists(ctx context.Context, path string) (bool, error) {
	switch {
	case c.OnExists != nil:
		return c.OnExists(ctx, path)
	case c.Base != nil:
		return c.Base.Exists(ctx, path)
	}
	return false, nil
}

func (c *CallbackStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	switch {
	case c.OnGet != nil:
		return c.OnGet(ctx, path)
	case c.Base != nil:
		return c.Base.Get(ctx, path)
	}
	return nil, ErrNotFound
}

func (c *CallbackStore) Put(ctx context.Context, path string, content io.ReaderAt, contentLength int64) error {
	switch {
	case c.OnPut != nil:
		return c.OnPut(ctx, path, content, contentLength)
	case c.Base != nil:
		return c.Base.Put(ctx, path, content, contentLength)
	}
	return nil
}

func (c *CallbackStore) List(ctx context.Context, prefix string, callback func(path string, modTime time.Time) error) error {
	switch {
	case c.OnList != nil:
		return c.OnList(ctx, prefix, callback)
	case c.Base != nil:
		return c.Base.List(ctx, prefix, callback)
	}
	return nil
}

func (c *CallbackStore) Remove(ctx context.Context, path string) error {
	switch {
	case c.OnRemove != nil:
		return c.OnRemove(ctx, path)
	case c.Base != nil:
		return c.Base.Remove(ctx, path)
	}
	return nil
}

func (c *CallbackStore) IsAuthError(err error) bool {
	switch {
	case c.OnIsAuthError != nil:
		return c.OnIsAuthError(err)
	case c.Base != nil:
		return c.Base.IsAuthError(err)
	}
	return false
}
