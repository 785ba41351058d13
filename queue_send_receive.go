package shmq

import (
	"fmt"

	"code.hybscloud.com/iox"

	"gosuda.org/shmq/internal/ringhdr"
)

// wouldBlock reports a non-blocking op's immediate full/empty finding as
// iox's ecosystem-standard would-block signal, wrapped with the op name the
// way every other error in this package is, then unwraps it back through
// iox.IsWouldBlock before it escapes: a Try* finding the queue full or empty
// is a successful non-completion per spec.md §6, not an error, so neither
// iox.ErrWouldBlock nor its wrapper ever reaches the caller.
func wouldBlock(op string) (bool, error) {
	err := fmt.Errorf("%s: %w", op, iox.ErrWouldBlock)
	if iox.IsWouldBlock(err) {
		return false, nil
	}
	return false, err
}

// Send copies data into the next free slot, blocking while the queue is
// full and running. It returns (true, nil) on success and (false, nil) if a
// concurrent Stop interrupted the wait — per spec.md §4.3 step 4, that is a
// successful non-completion, not an error.
func (q *Queue) Send(data []byte) (bool, error) {
	if err := q.requireOpen("send"); err != nil {
		return false, err
	}
	if uint32(len(data)) > q.MaxMessageSize() {
		return false, newLogicError("send", "message exceeds max_message_size")
	}

	hdr := q.seg.Header
	q.mu.Lock()
	for hdr.Count() == hdr.MaxQueueSize() && !hdr.Stopped() {
		q.notFull.Wait()
	}
	if hdr.Stopped() {
		q.mu.Unlock()
		return false, nil
	}

	q.writeSlot(hdr.Tail(), data)
	hdr.SetTail((hdr.Tail() + 1) % hdr.MaxQueueSize())
	hdr.SetCount(hdr.Count() + 1)

	q.notEmpty.Signal()
	q.mu.Unlock()
	return true, nil
}

// TrySend behaves like Send but never blocks: if the queue is full it
// returns (false, nil) immediately, regardless of stopped state, per
// spec.md §4.3.
func (q *Queue) TrySend(data []byte) (bool, error) {
	if err := q.requireOpen("try_send"); err != nil {
		return false, err
	}
	if uint32(len(data)) > q.MaxMessageSize() {
		return false, newLogicError("try_send", "message exceeds max_message_size")
	}

	hdr := q.seg.Header
	q.mu.Lock()
	if hdr.Count() == hdr.MaxQueueSize() {
		q.mu.Unlock()
		return wouldBlock("try_send")
	}

	q.writeSlot(hdr.Tail(), data)
	hdr.SetTail((hdr.Tail() + 1) % hdr.MaxQueueSize())
	hdr.SetCount(hdr.Count() + 1)

	q.notEmpty.Signal()
	q.mu.Unlock()
	return true, nil
}

// Receive blocks while the queue is empty and running, then copies the
// oldest message into buf. buf must be at least MaxMessageSize bytes; n
// reports the copied message's actual size. Returns (false, nil) if Stop
// interrupted the wait.
func (q *Queue) Receive(buf []byte) (n uint32, ok bool, err error) {
	if err := q.requireOpen("receive"); err != nil {
		return 0, false, err
	}
	if uint32(len(buf)) < q.MaxMessageSize() {
		return 0, false, newLogicError("receive", "buffer smaller than max_message_size")
	}

	hdr := q.seg.Header
	q.mu.Lock()
	for hdr.Count() == 0 && !hdr.Stopped() {
		q.notEmpty.Wait()
	}
	if hdr.Stopped() {
		q.mu.Unlock()
		return 0, false, nil
	}

	size := q.readSlot(hdr.Head(), buf)
	hdr.SetHead((hdr.Head() + 1) % hdr.MaxQueueSize())
	hdr.SetCount(hdr.Count() - 1)

	q.notFull.Signal()
	q.mu.Unlock()
	return size, true, nil
}

// TryReceive behaves like Receive but never blocks: if the queue is empty
// it returns (0, false, nil) immediately.
func (q *Queue) TryReceive(buf []byte) (n uint32, ok bool, err error) {
	if err := q.requireOpen("try_receive"); err != nil {
		return 0, false, err
	}
	if uint32(len(buf)) < q.MaxMessageSize() {
		return 0, false, newLogicError("try_receive", "buffer smaller than max_message_size")
	}

	hdr := q.seg.Header
	q.mu.Lock()
	if hdr.Count() == 0 {
		q.mu.Unlock()
		_, err := wouldBlock("try_receive")
		return 0, false, err
	}

	size := q.readSlot(hdr.Head(), buf)
	hdr.SetHead((hdr.Head() + 1) % hdr.MaxQueueSize())
	hdr.SetCount(hdr.Count() - 1)

	q.notFull.Signal()
	q.mu.Unlock()
	return size, true, nil
}

// Stop marks the queue interrupted: every currently blocked Send/Receive
// and every subsequent blocking call returns (false, nil) until Reset.
// Safe to call concurrently with senders and receivers; does not wait for
// waiters to wake.
func (q *Queue) Stop() error {
	if err := q.requireOpen("stop"); err != nil {
		return err
	}
	hdr := q.seg.Header
	q.mu.Lock()
	hdr.SetStopped(true)
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
	q.mu.Unlock()
	return nil
}

// Reset clears the stopped flag, re-enabling blocking sends and receives.
func (q *Queue) Reset() error {
	if err := q.requireOpen("reset"); err != nil {
		return err
	}
	hdr := q.seg.Header
	q.mu.Lock()
	hdr.SetStopped(false)
	q.mu.Unlock()
	return nil
}

// Clear empties the queue, resetting count/head/tail to zero and waking
// every blocked sender so it can retry against the now-empty queue.
func (q *Queue) Clear() error {
	if err := q.requireOpen("clear"); err != nil {
		return err
	}
	hdr := q.seg.Header
	q.mu.Lock()
	hdr.SetCount(0)
	hdr.SetHead(0)
	hdr.SetTail(0)
	q.notFull.Broadcast()
	q.mu.Unlock()
	return nil
}

func (q *Queue) writeSlot(index uint32, data []byte) {
	ringhdr.WriteSlot(q.slot(index), data)
}

func (q *Queue) readSlot(index uint32, dst []byte) uint32 {
	return ringhdr.ReadSlot(q.slot(index), dst)
}
