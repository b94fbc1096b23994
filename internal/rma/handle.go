package rma

import "context"

// Handle is a non-blocking completion handle for a single remote-memory
// operation, the Go analogue of upcxx::future<T>. An operation is issued
// synchronously (the Substrate method returns immediately with a *Handle)
// and its result is observed later by calling Wait, which is the only
// place a goroutine driving the hash table core may suspend.
//
// A *Handle must be resolved exactly once. Waiting on an already-resolved
// handle never blocks.
type Handle[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// NewHandle returns a fresh, unresolved handle together with the resolve
// function its issuer must call exactly once when the underlying operation
// completes.
func NewHandle[T any]() (*Handle[T], func(T, error)) {
	h := &Handle[T]{done: make(chan struct{})}
	resolved := false
	resolve := func(val T, err error) {
		if resolved {
			panic("rma: handle resolved more than once")
		}
		resolved = true
		h.val = val
		h.err = err
		close(h.done)
	}
	return h, resolve
}

// Resolved returns an already-completed handle wrapping val and err,
// useful for implementations (rma/inproc) whose fast path has no
// meaningful asynchrony to model.
func Resolved[T any](val T, err error) *Handle[T] {
	h := &Handle[T]{done: make(chan struct{}), val: val, err: err}
	close(h.done)
	return h
}

// Wait blocks until the operation completes or ctx is done, whichever
// happens first.
func (h *Handle[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-h.done:
		return h.val, h.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
