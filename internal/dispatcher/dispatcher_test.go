package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStarted[R any](t *testing.T, cfg Config) *Dispatcher[R] {
	t.Helper()
	d, err := New[R](cfg, zap.NewNop())
	require.NoError(t, err)
	d.Start(context.Background())
	t.Cleanup(func() {
		_ = d.Close(context.Background())
	})
	return d
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New[int](Config{Workers: 0}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers must be >= 1")

	_, err = New[int](Config{Workers: 1, JobTimeout: -time.Second}, nil)
	require.Error(t, err)

	d, err := New[int](Config{Workers: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Workers())
}

// TestConcurrencyNeverExceedsWorkers checks the pool bound for random sizes.
func TestConcurrencyNeverExceedsWorkers(t *testing.T) {
	t.Parallel()

	for round := range 8 {
		workers := 1 + rand.IntN(6)
		jobs := 1 + rand.IntN(40)
		t.Run(fmt.Sprintf("round%d_n%d_m%d", round, workers, jobs), func(t *testing.T) {
			t.Parallel()

			d := newStarted[int](t, Config{Workers: workers})
			var running, peak atomic.Int64
			futures := make([]*Future[int], 0, jobs)
			for i := range jobs {
				futures = append(futures, d.Submit(func(context.Context) (int, error) {
					now := running.Add(1)
					for {
						old := peak.Load()
						if now <= old || peak.CompareAndSwap(old, now) {
							break
						}
					}
					time.Sleep(time.Duration(rand.IntN(3)) * time.Millisecond)
					running.Add(-1)
					return i, nil
				}))
			}

			for i, f := range futures {
				got, err := f.Wait()
				require.NoError(t, err)
				assert.Equal(t, i, got)
			}
			assert.LessOrEqual(t, peak.Load(), int64(workers))
			assert.Zero(t, d.Active())
		})
	}
}

// TestEveryJobSettlesOnce covers successes, failures and panics together.
func TestEveryJobSettlesOnce(t *testing.T) {
	t.Parallel()

	d := newStarted[string](t, Config{Workers: 3})
	boom := errors.New("boom")
	const total = 30
	futures := make([]*Future[string], total)
	for i := range total {
		futures[i] = d.Submit(func(context.Context) (string, error) {
			switch i % 3 {
			case 0:
				return fmt.Sprintf("ok-%d", i), nil
			case 1:
				return "", boom
			default:
				panic(fmt.Sprintf("job %d exploded", i))
			}
		})
	}

	var ok, failed, panicked int
	for _, f := range futures {
		_, err := f.Wait()
		var panicErr *PanicError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &panicErr):
			panicked++
			assert.NotEmpty(t, panicErr.Stack)
		case errors.Is(err, boom):
			failed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 10, ok)
	assert.Equal(t, 10, failed)
	assert.Equal(t, 10, panicked)

	// Panicking jobs must not leak worker slots.
	got, err := d.Submit(func(context.Context) (string, error) { return "after", nil }).Wait()
	require.NoError(t, err)
	assert.Equal(t, "after", got)
}

func TestSingleWorkerIsFIFO(t *testing.T) {
	t.Parallel()

	d, err := New[int](Config{Workers: 1}, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int
	futures := make([]*Future[int], 0, 20)
	for i := range 20 {
		futures = append(futures, d.Submit(func(context.Context) (int, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		}))
	}
	assert.Equal(t, 20, d.Pending())

	d.Start(context.Background())
	for _, f := range futures {
		_, err := f.Wait()
		require.NoError(t, err)
	}
	require.NoError(t, d.Close(context.Background()))

	expected := make([]int, 20)
	for i := range expected {
		expected[i] = i
	}
	assert.Equal(t, expected, order)
}

func TestCloseRejectsQueuedJobs(t *testing.T) {
	t.Parallel()

	d := newStarted[int](t, Config{Workers: 1})
	release := make(chan struct{})
	started := make(chan struct{})
	running := d.Submit(func(context.Context) (int, error) {
		close(started)
		<-release
		return 1, nil
	})
	<-started
	queued := []*Future[int]{
		d.Submit(func(context.Context) (int, error) { return 2, nil }),
		d.Submit(func(context.Context) (int, error) { return 3, nil }),
	}

	closed := make(chan error, 1)
	go func() { closed <- d.Close(context.Background()) }()

	for _, f := range queued {
		_, err := f.Wait()
		assert.ErrorIs(t, err, ErrPoolClosed)
	}
	close(release)
	require.NoError(t, <-closed)

	got, err := running.Wait()
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	_, err = d.Submit(func(context.Context) (int, error) { return 4, nil }).Wait()
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestCloseHonorsContext(t *testing.T) {
	t.Parallel()

	d, err := New[int](Config{Workers: 1}, nil)
	require.NoError(t, err)
	d.Start(context.Background())
	release := make(chan struct{})
	started := make(chan struct{})
	f := d.Submit(func(context.Context) (int, error) {
		close(started)
		<-release
		return 0, nil
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = d.Close(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	_, err = f.Wait()
	require.NoError(t, err)
}

func TestJobTimeoutSeam(t *testing.T) {
	t.Parallel()

	d := newStarted[int](t, Config{Workers: 1, JobTimeout: 20 * time.Millisecond})
	_, err := d.Submit(func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}).Wait()
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestJobsIgnoreStartCancellationByDefault(t *testing.T) {
	t.Parallel()

	d, err := New[bool](Config{Workers: 1}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	cancel()

	got, err := d.Submit(func(jobCtx context.Context) (bool, error) {
		_, hasDeadline := jobCtx.Deadline()
		return jobCtx.Err() == nil && !hasDeadline, nil
	}).Wait()
	require.NoError(t, err)
	assert.True(t, got)
	require.NoError(t, d.Close(context.Background()))
}

func TestSubmitNilJob(t *testing.T) {
	t.Parallel()

	d := newStarted[int](t, Config{Workers: 1})
	_, err := d.Submit(nil).Wait()
	require.Error(t, err)
}
