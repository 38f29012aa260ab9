package media

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotPoolBoundsConcurrency(t *testing.T) {
	tests := map[string]struct {
		capacity int
		workers  int
	}{
		"Capacity one serializes callers": {capacity: 1, workers: 8},
		"Capacity two with many callers":  {capacity: 2, workers: 10},
		"Capacity above demand":           {capacity: 5, workers: 3},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			pool := NewSlotPool(test.capacity)

			var current, maxSeen atomic.Int64
			var wg sync.WaitGroup
			for range test.workers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := pool.WithSlot(context.Background(), func(context.Context) error {
						n := current.Add(1)
						for {
							m := maxSeen.Load()
							if n <= m || maxSeen.CompareAndSwap(m, n) {
								break
							}
						}
						time.Sleep(5 * time.Millisecond)
						current.Add(-1)
						return nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			assert.LessOrEqual(t, maxSeen.Load(), int64(test.capacity))
			assert.LessOrEqual(t, pool.Peak(), test.capacity)
			assert.Equal(t, min(test.capacity, test.workers), pool.Peak())
			assert.Equal(t, 0, pool.InUse())
		})
	}
}

func TestSlotPoolFIFO(t *testing.T) {
	pool := NewSlotPool(1)
	require.NoError(t, pool.Acquire(context.Background()))

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, pool.Acquire(context.Background()))
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			pool.Release()
		}()
		// Let waiter i enqueue before the next one.
		time.Sleep(20 * time.Millisecond)
	}

	pool.Release()
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3}, order)
}

func TestSlotPoolAcquireCancelled(t *testing.T) {
	pool := NewSlotPool(1)
	require.NoError(t, pool.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, pool.InUse())
	assert.False(t, pool.TryAcquire())

	pool.Release()
	assert.True(t, pool.TryAcquire())
	pool.Release()
	assert.Equal(t, 0, pool.InUse())
}

func TestSlotPoolWithSlotReleases(t *testing.T) {
	pool := NewSlotPool(1)
	boom := errors.New("boom")

	err := pool.WithSlot(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, pool.InUse())

	assert.Panics(t, func() {
		_ = pool.WithSlot(context.Background(), func(context.Context) error { panic("processor crashed") })
	})
	assert.Equal(t, 0, pool.InUse())
	assert.True(t, pool.TryAcquire())
}

func TestSlotPoolUnheldRelease(t *testing.T) {
	pool := NewSlotPool(2)

	assert.Panics(t, pool.Release)
	assert.Equal(t, 0, pool.InUse())

	require.True(t, pool.TryAcquire())
	pool.Release()
	assert.Panics(t, pool.Release)
	assert.Equal(t, 0, pool.InUse())

	// Capacity is intact after the rejected releases.
	assert.True(t, pool.TryAcquire())
	assert.True(t, pool.TryAcquire())
	assert.False(t, pool.TryAcquire())
	assert.Equal(t, 2, pool.InUse())
	assert.Equal(t, 2, pool.Peak())
}

func TestNewSlotPoolMinimumCapacity(t *testing.T) {
	assert.Equal(t, 1, NewSlotPool(0).Capacity())
	assert.Equal(t, 1, NewSlotPool(-3).Capacity())
	assert.Equal(t, 4, NewSlotPool(4).Capacity())
}
