// Package media bounds access to external media tooling.
//
// [SlotPool] is a counting semaphore with FIFO hand-off: when the pool is full, callers
// queue and are served in arrival order as slots are released. In-use never exceeds capacity.
//
// [FFProbe] reads a media file's duration by running ffprobe. [SlotProber] wraps any
// [Processor] so each probe holds one slot for its whole lifetime, which keeps the number of
// concurrent external processes at the pool capacity no matter how many downloads run.
package media
