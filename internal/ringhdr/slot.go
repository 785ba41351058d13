package ringhdr

import "encoding/binary"

// WriteSlot stores a message into a slot buffer: a 4-byte little-endian
// size prefix followed by the payload. Unused tail bytes are left
// untouched, per spec.md §6 ("unused tail bytes undefined").
func WriteSlot(slot []byte, data []byte) {
	binary.LittleEndian.PutUint32(slot[:4], uint32(len(data)))
	copy(slot[4:], data)
}

// ReadSlotSize reads the stored message size from a slot without copying
// the payload.
func ReadSlotSize(slot []byte) uint32 {
	return binary.LittleEndian.Uint32(slot[:4])
}

// ReadSlot copies a slot's payload (of its stored size) into dst, returning
// the number of bytes copied.
func ReadSlot(slot []byte, dst []byte) uint32 {
	size := ReadSlotSize(slot)
	n := copy(dst, slot[4:4+size])
	return uint32(n)
}
