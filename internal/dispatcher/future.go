package dispatcher

import "sync"

// Future is the handle returned for one submitted job. It settles exactly
// once.
type Future[R any] struct {
	done   chan struct{}
	once   sync.Once
	result R
	err    error
}

func newFuture[R any]() *Future[R] {
	return &Future[R]{done: make(chan struct{})}
}

// Rejected returns a future that is already settled with err.
func Rejected[R any](err error) *Future[R] {
	f := newFuture[R]()
	var zero R
	f.settle(zero, err)
	return f
}

// settle records the outcome and reports whether this call won.
func (f *Future[R]) settle(result R, err error) bool {
	settled := false
	f.once.Do(func() {
		f.result = result
		f.err = err
		settled = true
		close(f.done)
	})
	return settled
}

// Done is closed once the job has settled.
func (f *Future[R]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the job settles.
func (f *Future[R]) Wait() (R, error) {
	<-f.done
	return f.result, f.err
}
