package heap

import "encoding/binary"

// Header flag bits, packed alongside the payload/block sizes in the lower
// four bits of the 64-bit header word (the block size itself is always a
// multiple of Alignment, so it never sets any of these).
const (
	flagThisAlloc = 1 << 0
	flagPrevAlloc = 1 << 1
	flagInQuick   = 1 << 2
)

// header is the unobfuscated, decoded form of a block's packed header word:
//
//	bits 63..32  payload size (valid only while allocated)
//	bits 31..4   block size (always a multiple of 16)
//	bit 2        IN_QUICK_LIST
//	bit 1        PREV_BLOCK_ALLOCATED
//	bit 0        THIS_BLOCK_ALLOCATED
type header struct {
	payloadSize int
	blockSize   int
	inQuick     bool
	prevAlloc   bool
	thisAlloc   bool
}

func (h header) pack() uint64 {
	w := uint64(uint32(h.payloadSize))<<32 | uint64(h.blockSize)
	if h.inQuick {
		w |= flagInQuick
	}
	if h.prevAlloc {
		w |= flagPrevAlloc
	}
	if h.thisAlloc {
		w |= flagThisAlloc
	}
	return w
}

func unpack(w uint64) header {
	return header{
		payloadSize: int(int32(w >> 32)),
		blockSize:   int(w&0xFFFFFFFF) &^ 0xF,
		inQuick:     w&flagInQuick != 0,
		prevAlloc:   w&flagPrevAlloc != 0,
		thisAlloc:   w&flagThisAlloc != 0,
	}
}

// readWord/writeWord apply the magic XOR obfuscation that makes a raw
// memory dump of the header field unintelligible without the constant; it
// is a corruption tripwire, not a concurrency or security mechanism.
func readWord(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off:off+8]) ^ magic
}

func writeWord(b []byte, off int, w uint64) {
	binary.LittleEndian.PutUint64(b[off:off+8], w^magic)
}

func readHeader(b []byte, off int) header {
	return unpack(readWord(b, off))
}

func writeHeader(b []byte, off int, h header) {
	writeWord(b, off, h.pack())
}

// writeFooter mirrors h into the footer slot of a free block (the last 8
// bytes of the block), identical in content to its header.
func writeFooter(b []byte, blockOff int, h header) {
	writeWord(b, blockOff+h.blockSize-8, h.pack())
}

func readFooter(b []byte, footerOff int) header {
	return readHeader(b, footerOff)
}

// free-list pointers occupy the first 16 payload bytes of a free block
// (bytes [off+8, off+24)); they are plain offsets, not obfuscated, and
// sentinel (-1, declared in freelist.go) means nil.
func readLink(b []byte, off int) int {
	return int(binary.LittleEndian.Uint64(b[off : off+8]))
}

func writeLink(b []byte, off int, v int) {
	binary.LittleEndian.PutUint64(b[off:off+8], uint64(v))
}

func freePrevOff(blockOff int) int { return blockOff + 8 }
func freeNextOff(blockOff int) int { return blockOff + 16 }

// quick-list blocks are singly linked through the same first payload word.
func quickNextOff(blockOff int) int { return blockOff + 8 }

// alignUp16 rounds n up to the next multiple of Alignment.
func alignUp16(n int) int {
	return (n + Alignment - 1) &^ (Alignment - 1)
}
