package zoho

import "context"

// Result carries the outcome of a call run by Go.
type Result[T any] struct {
	Value T
	Err   error
}

// Go runs fn on its own goroutine and delivers the outcome on the returned
// channel, which receives exactly one value and is then closed. Callers such
// as a UI loop select on it instead of blocking.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		defer close(ch)
		v, err := fn(ctx)
		ch <- Result[T]{Value: v, Err: err}
	}()
	return ch
}
