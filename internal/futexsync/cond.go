package futexsync

import "sync/atomic"

// Cond is a process-shared condition variable keyed on a uint32 sequence
// word inside a shared-memory Header, generalizing the data/space sequence
// counters used for single-producer/single-consumer wakeups in the
// grpc-go shared-memory transport to an arbitrary-waiter-count condition
// variable with POSIX-style Wait/Signal/Broadcast semantics.
//
// As with sync.Cond, the caller must hold L when calling Wait, Signal, or
// Broadcast, and must re-check its predicate in a loop after Wait returns
// (spurious wakes are possible and expected).
type Cond struct {
	L   *Mutex
	seq *uint32
}

// NewCond returns a Cond guarded by l and keyed on seq. seq must reside in
// the same shared memory as l's word and must be zeroed by the creator.
func NewCond(l *Mutex, seq *uint32) *Cond {
	return &Cond{L: l, seq: seq}
}

// Wait atomically unlocks L, blocks until Signal or Broadcast is called (or
// a spurious wake occurs), then reacquires L before returning.
func (c *Cond) Wait() {
	old := atomic.LoadUint32(c.seq)
	c.L.Unlock()
	futexWait(c.seq, old)
	c.L.Lock()
}

// Signal wakes one goroutine/process waiting on c, if any.
func (c *Cond) Signal() {
	atomic.AddUint32(c.seq, 1)
	futexWake(c.seq, 1)
}

// Broadcast wakes all goroutines/processes waiting on c.
func (c *Cond) Broadcast() {
	atomic.AddUint32(c.seq, 1)
	futexWake(c.seq, wakeAll)
}
