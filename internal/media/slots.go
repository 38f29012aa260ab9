package media

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// SlotPool hands out at most capacity slots at a time.
type SlotPool struct {
	sem      *semaphore.Weighted
	capacity int64
	inUse    atomic.Int64
	peak     atomic.Int64
}

// NewSlotPool creates a pool with the given capacity, minimum 1.
func NewSlotPool(capacity int) *SlotPool {
	if capacity < 1 {
		capacity = 1
	}
	return &SlotPool{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}
}

// Acquire takes a slot, waiting in FIFO order while the pool is full.
// If ctx is done first it returns ctx.Err() and no slot is held.
func (p *SlotPool) Acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.track(p.inUse.Add(1))
	return nil
}

// TryAcquire takes a slot only if one is free.
func (p *SlotPool) TryAcquire() bool {
	if !p.sem.TryAcquire(1) {
		return false
	}
	p.track(p.inUse.Add(1))
	return true
}

// Release returns a slot, waking the earliest waiter. Releasing an unheld slot panics
// and leaves the pool unchanged.
func (p *SlotPool) Release() {
	for {
		cur := p.inUse.Load()
		if cur <= 0 {
			panic("media: release of unheld slot")
		}
		// Decrement before waking a waiter so in-use never exceeds capacity.
		if p.inUse.CompareAndSwap(cur, cur-1) {
			break
		}
	}
	p.sem.Release(1)
}

// WithSlot runs fn while holding a slot. The slot is returned even if fn panics.
func (p *SlotPool) WithSlot(ctx context.Context, fn func(context.Context) error) error {
	if err := p.Acquire(ctx); err != nil {
		return err
	}
	defer p.Release()
	return fn(ctx)
}

func (p *SlotPool) InUse() int    { return int(p.inUse.Load()) }
func (p *SlotPool) Capacity() int { return int(p.capacity) }

// Peak returns the highest in-use count observed.
func (p *SlotPool) Peak() int { return int(p.peak.Load()) }

func (p *SlotPool) track(n int64) {
	for {
		cur := p.peak.Load()
		if n <= cur || p.peak.CompareAndSwap(cur, n) {
			return
		}
	}
}
