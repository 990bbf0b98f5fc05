package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue[string]()
	result := make(chan string, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	require.NoError(t, q.Enqueue("job-1"))
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		assert.Equal(t, "job-1", got)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return job")
	}
}

func TestQueueIsFIFO(t *testing.T) {
	t.Parallel()

	q := NewQueue[int]()
	for i := range 100 {
		require.NoError(t, q.Enqueue(i))
	}
	assert.Equal(t, 100, q.Len())
	for i := range 100 {
		got, err := q.Dequeue(context.Background())
		require.NoError(t, err)
		require.Equal(t, i, got)
	}
	assert.Zero(t, q.Len())
}

func TestQueueDequeueCanceled(t *testing.T) {
	t.Parallel()

	q := NewQueue[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Dequeue(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, "dequeue canceled: context canceled", err.Error())
}

func TestQueueCloseReturnsRemainingAndWakesWaiters(t *testing.T) {
	t.Parallel()

	q := NewQueue[int]()
	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Dequeue(context.Background())
			errs <- err
		}()
	}
	time.Sleep(10 * time.Millisecond)

	// Waiters consume these before Close; the rest are returned.
	remaining := func() []int {
		for i := range 5 {
			require.NoError(t, q.Enqueue(i))
		}
		require.Eventually(t, func() bool { return q.Len() == 2 }, time.Second, time.Millisecond)
		return q.Close()
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, []int{3, 4}, remaining)

	_, err := q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, q.Enqueue(9), ErrClosed)
	assert.Nil(t, q.Close())
}
