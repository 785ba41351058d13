// Package mpmc implements a lock-free, in-process multi-producer
// multi-consumer ring buffer. cmd/shmqbench uses it as a same-process
// comparison baseline against the mutex-and-condvar shmq.Queue: both move
// fixed-size frames between goroutines, but this ring never blocks a waiter
// on the OS scheduler, trading that for busy-polling via runtime.Gosched.
package mpmc

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"
)

// MPMCRing is a lock-free MPMC ring buffer keyed on per-slot sequence
// numbers (the Vyukov algorithm). The header and element array live at a
// caller-supplied memory offset rather than as Go-managed fields, so the
// same layout works whether that memory is heap-allocated or mapped.
type MPMCRing[T any] struct {
	_mask uint64
	_size uint64
	_head uintptr
	_data uintptr
}

const mringHeaderSize = 256

// MPMCInit initializes a ring at h, sized for at least size elements
// (rounded up to a power of 2). Returns false if h was already initialized.
func MPMCInit[T any](h uintptr, size uint64) bool {
	size = _RoundUpPowerOf2(size)
	r := (*_mring)(unsafe.Pointer(h))

	magic := atomic.LoadUint64(&r._magic)
	if magic == _mpmcMagic {
		return false
	}
	if !atomic.CompareAndSwapUint64(&r._magic, magic, _mpmcMagic) {
		return false
	}

	atomic.StoreUint64(&r._size, size)
	data := h + mringHeaderSize
	for i := uint64(0); i < size; i++ {
		e := (*_melem[T])(unsafe.Pointer(data + unsafe.Sizeof(_melem[T]{})*uintptr(i)))
		e._data = *new(T)
		e._seq = i
	}
	atomic.StoreUint64(&r.r, 0)
	atomic.StoreUint64(&r.w, 0)
	atomic.StoreUint64(&r._flag, uint64(_mpmcInit))
	return true
}

// MPMCAttach waits for the ring at h to become initialized and returns a
// handle to it, or nil if timeout elapses first (0 means wait forever).
func MPMCAttach[T any](h uintptr, timeout time.Duration) *MPMCRing[T] {
	start := time.Now()
	r := (*_mring)(unsafe.Pointer(h))

	for {
		magic := atomic.LoadUint64(&r._magic)
		flag := atomic.LoadUint64(&r._flag)
		size := atomic.LoadUint64(&r._size)
		if magic == _mpmcMagic && flag&uint64(_mpmcInit) != 0 {
			return &MPMCRing[T]{_size: size, _mask: size - 1, _head: h, _data: h + mringHeaderSize}
		}
		if timeout > 0 && time.Since(start) >= timeout {
			return nil
		}
		runtime.Gosched()
	}
}

func (m *MPMCRing[T]) slot(i uint64) *_melem[T] {
	return (*_melem[T])(unsafe.Pointer(m._data + unsafe.Sizeof(_melem[T]{})*uintptr(i&m._mask)))
}

// EnqueueWithContext is Enqueue but returns false if ctx is cancelled
// before a slot can be claimed.
func (m *MPMCRing[T]) EnqueueWithContext(ctx context.Context, elem T) bool {
	h := (*_mring)(unsafe.Pointer(m._head))
	p := atomic.LoadUint64(&h.w)
	for {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		c := m.slot(p)
		switch diff := atomic.LoadUint64(&c._seq) - p; {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&h.w, p, p+1) {
				c._data = elem
				atomic.StoreUint64(&c._seq, p+1)
				return true
			}
		case diff > 0:
			p = atomic.LoadUint64(&h.w)
		default:
			panic("mpmc: corrupt ring sequence")
		}
		runtime.Gosched()
	}
}

// Enqueue adds elem to the ring, blocking (via busy-poll) until a slot is free.
func (m *MPMCRing[T]) Enqueue(elem T) {
	m.EnqueueWithContext(context.Background(), elem)
}

// EnqueueFunc constructs the claimed slot's element in place via fn,
// avoiding a copy for large T.
func (m *MPMCRing[T]) EnqueueFunc(fn func(*T)) {
	h := (*_mring)(unsafe.Pointer(m._head))
	p := atomic.LoadUint64(&h.w)
	for {
		c := m.slot(p)
		switch diff := atomic.LoadUint64(&c._seq) - p; {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&h.w, p, p+1) {
				fn(&c._data)
				atomic.StoreUint64(&c._seq, p+1)
				return
			}
		case diff > 0:
			p = atomic.LoadUint64(&h.w)
		default:
			panic("mpmc: corrupt ring sequence")
		}
		runtime.Gosched()
	}
}

// DequeueWithContext is Dequeue but returns ok=false if ctx is cancelled
// before an element becomes available.
func (m *MPMCRing[T]) DequeueWithContext(ctx context.Context) (elem T, ok bool) {
	h := (*_mring)(unsafe.Pointer(m._head))
	p := atomic.LoadUint64(&h.r)
	for {
		select {
		case <-ctx.Done():
			return elem, false
		default:
		}
		c := m.slot(p)
		switch diff := atomic.LoadUint64(&c._seq) - (p + 1); {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&h.r, p, p+1) {
				elem = c._data
				atomic.StoreUint64(&c._seq, p+m._mask+1)
				return elem, true
			}
		case diff > 0:
			p = atomic.LoadUint64(&h.r)
		default:
			panic("mpmc: corrupt ring sequence")
		}
		runtime.Gosched()
	}
}

// Dequeue removes and returns the oldest element, blocking (via busy-poll)
// until one is available.
func (m *MPMCRing[T]) Dequeue() T {
	elem, _ := m.DequeueWithContext(context.Background())
	return elem
}

// DequeueFunc processes the oldest element in place via fn, avoiding a
// copy for large T.
func (m *MPMCRing[T]) DequeueFunc(fn func(*T)) {
	h := (*_mring)(unsafe.Pointer(m._head))
	p := atomic.LoadUint64(&h.r)
	for {
		c := m.slot(p)
		switch diff := atomic.LoadUint64(&c._seq) - (p + 1); {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&h.r, p, p+1) {
				fn(&c._data)
				atomic.StoreUint64(&c._seq, p+m._mask+1)
				return
			}
		case diff > 0:
			p = atomic.LoadUint64(&h.r)
		default:
			panic("mpmc: corrupt ring sequence")
		}
		runtime.Gosched()
	}
}

const _mpmcMagic uint64 = 0xc9d8c1d43f096701

type _mpmcFlag uint64

const (
	_mpmcReserved = _mpmcFlag(1) << iota
	_mpmcInit
)

// cacheLine is sized in uint64 words to keep the read and write indices on
// separate cache lines and prevent false sharing between producers and
// consumers.
const cacheLine = 16

type _mring struct {
	_magic uint64
	_size  uint64
	_flag  uint64

	r   uint64
	_p0 [cacheLine - 4]uint64
	w   uint64
	_p1 [cacheLine - 1]uint64
}

type _melem[T any] struct {
	_data T
	_seq  uint64
}

// _RoundUpPowerOf2 rounds v up to the next power of 2.
func _RoundUpPowerOf2(v uint64) uint64 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	v++
	return v
}

// SizeMPMCRing returns the number of bytes a ring with capacity len requires.
func SizeMPMCRing[T any](len uintptr) uintptr {
	return mringHeaderSize + unsafe.Sizeof(_mring{}) + unsafe.Sizeof(_melem[T]{})*len
}
