package tasks

import "sync"

// ProgressSink receives progress updates. Publish must not block.
type ProgressSink interface {
	Publish(ProgressUpdate)
}

// ProgressFunc adapts a function to [ProgressSink].
type ProgressFunc func(ProgressUpdate)

func (f ProgressFunc) Publish(u ProgressUpdate) { f(u) }

// ChanSink delivers updates to a channel, dropping them when the channel is full.
type ChanSink chan<- ProgressUpdate

func (c ChanSink) Publish(u ProgressUpdate) { sendProgress(c, u) }

type nopSink struct{}

func (nopSink) Publish(ProgressUpdate) {}

// sendProgress sends a progress update without blocking if the channel is nil or full.
func sendProgress(prog chan<- ProgressUpdate, u ProgressUpdate) {
	if prog == nil {
		return
	}
	select {
	case prog <- u:
	default:
	}
}

// Broadcaster fans updates out to every subscriber. Slow subscribers miss updates.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[int]chan ProgressUpdate
	next   int
	buffer int
	closed bool
}

// NewBroadcaster creates a broadcaster whose subscriber channels hold buffer updates.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = 64
	}
	return &Broadcaster{subs: make(map[int]chan ProgressUpdate), buffer: buffer}
}

// Subscribe registers a subscriber. The returned func unsubscribes and closes the channel.
func (b *Broadcaster) Subscribe() (<-chan ProgressUpdate, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan ProgressUpdate, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

func (b *Broadcaster) Publish(u ProgressUpdate) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		sendProgress(ch, u)
	}
}

// Subscribers returns the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later subscribers receive a closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
