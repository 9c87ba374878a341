// Package async implements futures for operations which complete on another
// goroutine, and a Bridge which drives a single pending future to completion
// from a call site which must remain synchronous.
//
// Backing stores which offer only an asynchronous API return a Future from
// each call. The SQLite VFS hooks which consume them cannot yield, so every
// call is collapsed through a Bridge:
//
//	var f = async.Go(func() ([]byte, error) { return fetch(key) })
//	var value, err = async.Await(bridge, f)
package async

// OpFuture represents an operation which is executing in the background. The
// operation has completed when Done selects. Err may be invoked to determine
// whether the operation succeeded or failed.
type OpFuture interface {
	// Done selects when operation background execution has finished.
	Done() <-chan struct{}
	// Err blocks until Done() and returns the final error of the OpFuture.
	Err() error
	// Poll returns true iff the operation has finished. It never blocks.
	Poll() bool
}

// Future is a minimal OpFuture which resolves with a value of type T.
type Future[T any] struct {
	doneCh chan struct{} // Closed to signal operation has completed.
	value  T             // Value on operation completion.
	err    error         // Error on operation completion.
}

// NewFuture returns a new, unresolved Future.
func NewFuture[T any]() *Future[T] { return &Future[T]{doneCh: make(chan struct{})} }

// Done selects when Resolve is called.
func (f *Future[T]) Done() <-chan struct{} { return f.doneCh }

// Err blocks until Resolve is called, then returns its error.
func (f *Future[T]) Err() error {
	<-f.doneCh
	return f.err
}

// Value blocks until Resolve is called, then returns its value and error.
func (f *Future[T]) Value() (T, error) {
	<-f.doneCh
	return f.value, f.err
}

// Poll returns true iff the Future has resolved. It never blocks.
func (f *Future[T]) Poll() bool {
	select {
	case <-f.doneCh:
		return true
	default:
		return false
	}
}

// Resolve marks the Future as completed with the given value and error.
// Resolve must be called exactly once.
func (f *Future[T]) Resolve(value T, err error) {
	f.value, f.err = value, err
	close(f.doneCh)
}

// Resolved is a convenience that returns an already-resolved Future.
func Resolved[T any](value T, err error) *Future[T] {
	var f = NewFuture[T]()
	f.Resolve(value, err)
	return f
}

// Go invokes |fn| on a new goroutine, returning a Future of its result.
func Go[T any](fn func() (T, error)) *Future[T] {
	var f = NewFuture[T]()
	go func() { f.Resolve(fn()) }()
	return f
}
