// Package ringhdr defines the fixed-offset metadata block that sits at the
// start of every shmq shared-memory segment, and the fixed-stride slot array
// that follows it. It is a pure data contract: once the creator in
// internal/segment has initialized the fields and published the magic,
// Header fields are written only while holding the embedded mutex, except
// RefCount, which is a plain atomic counter.
package ringhdr

import (
	"encoding/binary"
	"unsafe"

	"code.hybscloud.com/atomix"
)

// MagicBytes identifies a shmq segment. Stored little-endian as a uint32.
var MagicBytes = [4]byte{'S', 'H', 'M', 'Q'}

// Version is the only binary layout version this package understands.
const Version = uint32(1)

// Alignment is the byte alignment of slots and of the header's own size.
// 8 bytes keeps every futex word (uint32) naturally aligned and keeps the
// 64-bit atomix counters from straddling a cache line, following the
// 64-byte-aligned RingHeader convention in the grpc-go shared-memory
// transport this package's synchronization strategy is grounded on.
const Alignment = 8

// HeaderSize is the fixed size of Header as placed in shared memory,
// rounded up to Alignment. Slots begin at this offset from the segment
// base.
var HeaderSize = alignUp(uint32(unsafe.Sizeof(Header{})), Alignment)

func alignUp(n, align uint32) uint32 {
	return (n + align - 1) &^ (align - 1)
}

// Header is the single metadata instance at offset 0 of a segment.
//
// Field order matches the table in spec.md §3. magic, version,
// maxQueueSize, maxMessageSize and slotStride are set once by the creator
// and never mutate again; every other field is read/written under mutex,
// except magic's one-shot release-store publication and refCount's
// standalone atomic increments/decrements.
type Header struct {
	magic          atomix.Uint64 // low 32 bits = MagicBytes as little-endian uint32; 0 until published
	version        uint32
	maxQueueSize   uint32
	maxMessageSize uint32
	slotStride     uint32
	_              [4]byte // pad to 8-byte boundary

	count atomix.Uint64
	head  atomix.Uint64
	tail  atomix.Uint64

	stopped  atomix.Bool
	refCount atomix.Uint64

	// mutexState, notFullSeq and notEmptySeq are raw uint32 futex words:
	// the Linux futex(2) syscall only ever addresses 32-bit values, so
	// they cannot be atomix-wrapped opaque types the way the pure
	// counters above are. internal/futexsync takes their addresses
	// directly.
	mutexState  uint32
	notFullSeq  uint32
	notEmptySeq uint32
	_           [4]byte // pad struct to 8-byte multiple
}

// MagicValue returns MagicBytes packed little-endian, matching the value
// Header.magic holds once published.
func MagicValue() uint64 {
	return uint64(binary.LittleEndian.Uint32(MagicBytes[:]))
}

// Magic loads the published magic value with acquire semantics. Zero means
// "not yet published" — a concurrent opener must spin until this becomes
// non-zero before touching any other field.
func (h *Header) Magic() uint64 { return h.magic.LoadAcquire() }

// PublishMagic performs the one-shot release-store of the magic value.
// Must be called only after every other field (including the embedded
// mutex/condvar state) has been initialized, so that any opener observing
// a non-zero magic sees a fully-constructed header.
func (h *Header) PublishMagic() { h.magic.StoreRelease(MagicValue()) }

func (h *Header) Version() uint32          { return h.version }
func (h *Header) SetVersion(v uint32)      { h.version = v }
func (h *Header) MaxQueueSize() uint32     { return h.maxQueueSize }
func (h *Header) SetMaxQueueSize(v uint32) { h.maxQueueSize = v }

func (h *Header) MaxMessageSize() uint32     { return h.maxMessageSize }
func (h *Header) SetMaxMessageSize(v uint32) { h.maxMessageSize = v }

func (h *Header) SlotStride() uint32     { return h.slotStride }
func (h *Header) SetSlotStride(v uint32) { h.slotStride = v }

func (h *Header) Count() uint32      { return uint32(h.count.LoadAcquire()) }
func (h *Header) SetCount(v uint32)  { h.count.StoreRelease(uint64(v)) }
func (h *Header) Head() uint32       { return uint32(h.head.LoadAcquire()) }
func (h *Header) SetHead(v uint32)   { h.head.StoreRelease(uint64(v)) }
func (h *Header) Tail() uint32       { return uint32(h.tail.LoadAcquire()) }
func (h *Header) SetTail(v uint32)   { h.tail.StoreRelease(uint64(v)) }
func (h *Header) Stopped() bool      { return h.stopped.LoadAcquire() }
func (h *Header) SetStopped(v bool)  { h.stopped.StoreRelease(v) }

// RefCount returns the current opener count.
func (h *Header) RefCount() uint32 { return uint32(h.refCount.LoadAcquire()) }

// IncRefCount atomically increments the opener count and returns the new value.
func (h *Header) IncRefCount() uint32 { return uint32(h.refCount.AddAcqRel(1)) }

// DecRefCount atomically decrements the opener count and returns the new value.
// The caller that observes a return value of 0 is responsible for destroying
// the segment.
func (h *Header) DecRefCount() uint32 { return uint32(h.refCount.AddAcqRel(^uint64(0))) }

// MutexWord returns the address of the embedded mutex's futex state word.
func (h *Header) MutexWord() *uint32 { return &h.mutexState }

// NotFullSeqWord returns the address of the not-full condition variable's
// futex sequence word.
func (h *Header) NotFullSeqWord() *uint32 { return &h.notFullSeq }

// NotEmptySeqWord returns the address of the not-empty condition variable's
// futex sequence word.
func (h *Header) NotEmptySeqWord() *uint32 { return &h.notEmptySeq }

// SlotAt returns a byte slice view of the slot at the given ring index,
// backed directly by the mapped segment memory (no copy). mem must be the
// full mapped segment (base at offset 0).
func SlotAt(mem []byte, index uint32, slotStride uint32) []byte {
	off := uintptr(HeaderSize) + uintptr(index)*uintptr(slotStride)
	return mem[off : off+uintptr(slotStride)]
}

// SegmentSize returns the total number of bytes a segment with the given
// capacity and slot stride requires.
func SegmentSize(maxQueueSize, slotStride uint32) uint64 {
	return uint64(HeaderSize) + uint64(maxQueueSize)*uint64(slotStride)
}

// SlotStride computes slot_stride = round_up(4 + max_message_size, Alignment),
// per spec.md §3.
func SlotStride(maxMessageSize uint32) uint32 {
	return alignUp(4+maxMessageSize, Alignment)
}

// HeaderAt returns a Header view over mem, which must be at least
// HeaderSize bytes and originate from a shared mapping (no copy: this is a
// pointer cast, not a deserialization).
func HeaderAt(mem []byte) *Header {
	return (*Header)(unsafe.Pointer(&mem[0]))
}
