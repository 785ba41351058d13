//go:build !linux

package futexsync

import (
	"sync/atomic"

	"code.hybscloud.com/spin"
)

// wakeAll mirrors the Linux build's constant; unused directly here but
// kept so Mutex/Cond compile identically across platforms.
const wakeAll = 1<<31 - 1

// futexWait on non-Linux platforms has no process-shared kernel futex to
// fall back to, so it busy-polls the word with spin.Wait's adaptive
// backoff. This is a documented quality-of-implementation substitution
// (spec.md §9): correctness is preserved (the predicate is always
// re-checked by the caller in a loop) but a waiter burns CPU instead of
// truly blocking.
func futexWait(addr *uint32, val uint32) error {
	var sw spin.Wait
	for atomic.LoadUint32(addr) == val {
		sw.Once()
	}
	return nil
}

// futexWake is a no-op: there is nothing to notify directly, spinners in
// futexWait observe the new value on their own.
func futexWake(addr *uint32, n int) error {
	return nil
}
