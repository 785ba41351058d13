// Package shmq implements a named, shared-memory interprocess message queue:
// unrelated processes on the same host exchange variable-length binary
// messages through a bounded ring buffer with blocking and non-blocking
// send/receive and an interruptible stopped mode.
//
// A Queue is the per-process handle onto a shared segment. It is safe for
// concurrent use by multiple goroutines for the data operations (Send,
// TrySend, Receive, TryReceive, Stop, Reset, Clear) but, like the contract it
// implements, Close is not safe to call concurrently with any in-flight
// operation on the same Queue — callers must externally ensure no operation
// is in flight before closing.
package shmq

import (
	"context"
	"sync/atomic"

	"gosuda.org/shmq/internal/diag"
	"gosuda.org/shmq/internal/futexsync"
	"gosuda.org/shmq/internal/ringhdr"
	"gosuda.org/shmq/internal/segment"
)

// Permissions is re-exported from internal/segment so callers never need to
// import an internal package to construct one.
type Permissions = segment.Permissions

// DefaultPermissions restricts a created segment to the creating user.
func DefaultPermissions() Permissions { return segment.DefaultPermissions() }

// Queue is a per-process handle on one named shared-memory segment. The
// zero value is not usable; obtain one from Create, OpenOrCreate, or Open.
type Queue struct {
	seg      *segment.Segment
	mu       *futexsync.Mutex
	notFull  *futexsync.Cond
	notEmpty *futexsync.Cond
	open     atomic.Bool
}

func newQueue(seg *segment.Segment) *Queue {
	q := &Queue{seg: seg}
	q.mu = futexsync.NewMutex(seg.Header.MutexWord())
	q.notFull = futexsync.NewCond(q.mu, seg.Header.NotFullSeqWord())
	q.notEmpty = futexsync.NewCond(q.mu, seg.Header.NotEmptySeqWord())
	q.open.Store(true)
	return q
}

// Create attempts exclusive creation of the named segment, failing if it
// already exists. maxQueueSize is the slot capacity; maxMessageSize bounds
// any single message's payload.
func Create(name string, maxQueueSize, maxMessageSize uint32, perms Permissions) (*Queue, error) {
	seg, err := segment.Create(name, maxQueueSize, maxMessageSize, perms)
	if err != nil {
		return nil, translateSegmentError("create", err)
	}
	return newQueue(seg), nil
}

// OpenOrCreate creates the named segment if absent, otherwise opens it. When
// an existing segment is opened, maxQueueSize/maxMessageSize are ignored in
// favor of the values recorded by its creator.
func OpenOrCreate(name string, maxQueueSize, maxMessageSize uint32, perms Permissions) (*Queue, error) {
	seg, err := segment.OpenOrCreate(context.Background(), name, maxQueueSize, maxMessageSize, perms)
	if err != nil {
		return nil, translateSegmentError("open-or-create", err)
	}
	return newQueue(seg), nil
}

// Open opens an existing segment only, failing if absent.
func Open(name string) (*Queue, error) {
	seg, err := segment.Open(name)
	if err != nil {
		return nil, translateSegmentError("open", err)
	}
	return newQueue(seg), nil
}

func translateSegmentError(op string, err error) error {
	if serr, ok := err.(*segment.Error); ok {
		switch serr.Code {
		case segment.ErrCodeInvalidName:
			return newLogicError(op, serr.Error())
		default:
			return newSystemError(op, serr)
		}
	}
	return newSystemError(op, err)
}

// Close decrements the segment's reference count, destroying and unlinking
// it when the count reaches zero, and always unmaps this handle's view.
// Not safe to call while any goroutine is inside a blocking call on q.
func (q *Queue) Close() error {
	if !q.open.CompareAndSwap(true, false) {
		return newLogicError("close", "queue is not open")
	}
	if err := q.seg.Close(); err != nil {
		return newSystemError("close", err)
	}
	diag.Debug("queue closed", "name", q.seg.Name)
	return nil
}

// IsOpen reports whether this handle has not yet been Closed.
func (q *Queue) IsOpen() bool { return q.open.Load() }

// Name returns the segment name this handle was created or opened with.
func (q *Queue) Name() string { return q.seg.Name }

// MaxQueueSize returns the slot capacity recorded in the segment header.
func (q *Queue) MaxQueueSize() uint32 { return q.seg.Header.MaxQueueSize() }

// MaxMessageSize returns the maximum single-message payload size recorded
// in the segment header.
func (q *Queue) MaxMessageSize() uint32 { return q.seg.Header.MaxMessageSize() }

// State reports this handle's current lifecycle state: StateUnopened once
// Closed, otherwise StateRunning or StateStopped depending on the shared
// stopped flag.
func (q *Queue) State() ringhdr.State {
	if !q.IsOpen() {
		return ringhdr.StateUnopened
	}
	if q.seg.Header.Stopped() {
		return ringhdr.StateStopped
	}
	return ringhdr.StateRunning
}

func (q *Queue) slot(index uint32) []byte {
	return ringhdr.SlotAt(q.seg.Mem, index, q.seg.Header.SlotStride())
}

func (q *Queue) requireOpen(op string) error {
	if !q.IsOpen() {
		return newLogicError(op, "operation on a closed queue")
	}
	return nil
}
