package heap

import (
	"math"

	"modernc.org/mathutil"
)

const (
	padSize      = 8
	prologueSize = MinBlockSize
	// firstBlockOff is the offset of the first block a Heap ever manages,
	// immediately after the leading pad and the permanently-allocated
	// prologue sentinel.
	firstBlockOff = padSize + prologueSize
	maxBlockSize  = 0xFFFFFFF0
)

// Ptr is an opaque handle to an allocated payload: the offset, within the
// arena, of the first payload byte. Nil (zero) never refers to a live
// block — the lowest possible payload offset is firstBlockOff+8.
type Ptr int

// Nil is the null pointer malloc/realloc return on failure.
const Nil Ptr = 0

// Heap is a segregated-fit allocator over a single growable arena.
//
// A Heap is not safe for concurrent use.
type Heap struct {
	cfg Config
	a   *arena
	fl  *freeLists
	ql  *quickLists

	initialized bool
	epilogueOff int
	noMemory    bool

	liveAggPayload   int
	liveAggBlockSize int
	peakUtilization  float64

	lastErr *SizeError
}

// New returns a Heap. maxSize, if non-zero, caps the arena's growth and is
// used to deterministically exercise the "no memory" path in tests; the
// real allocator has no such ceiling.
func New(cfg Config, maxSize int) *Heap {
	cfg.populateDefaults()
	return &Heap{
		cfg: cfg,
		a:   newArena(cfg.PageSize, maxSize),
		fl:  newFreeLists(cfg.NumFreeLists),
		ql:  newQuickLists(cfg.NumQuickLists, cfg.QuickListMax),
	}
}

// NoMemory reports whether the most recent Malloc/Realloc failed because
// the arena could not be grown (as opposed to a size-overflow or
// zero-size rejection).
func (h *Heap) NoMemory() bool { return h.noMemory }

// LastError returns the reason the most recent Malloc/Realloc returned Nil
// because the request itself was unsatisfiable, or nil if the last call
// succeeded or failed only for want of memory (see NoMemory).
func (h *Heap) LastError() *SizeError { return h.lastErr }

func effectiveSize(size int) (int, bool) {
	if size <= 0 || size > math.MaxInt32-8 {
		return 0, false
	}
	eff := alignUp16(size + 8)
	if eff < MinBlockSize {
		eff = MinBlockSize
	}
	if eff > maxBlockSize {
		return 0, false
	}
	return eff, true
}

func (h *Heap) ensureInit() {
	if h.initialized {
		return
	}
	off := h.a.grow()
	if off != 0 {
		panic("heap: arena did not start at offset 0")
	}
	data := h.a.bytes()
	total := len(data)

	writeHeader(data, padSize, header{blockSize: prologueSize, thisAlloc: true, prevAlloc: true})

	freeOff := firstBlockOff
	freeSize := total - firstBlockOff - 8
	freeHdr := header{blockSize: freeSize, thisAlloc: false, prevAlloc: true}
	writeHeader(data, freeOff, freeHdr)
	writeFooter(data, freeOff, freeHdr)

	h.epilogueOff = total - 8
	writeHeader(data, h.epilogueOff, header{blockSize: 0, thisAlloc: true, prevAlloc: false})

	h.fl.insert(data, freeOff, freeSize)
	h.initialized = true
}

// growHeap extends the arena by one page, folds the old epilogue into a new
// free block, coalesces it with whatever precedes it, and installs a fresh
// epilogue. Reports whether growth succeeded.
func (h *Heap) growHeap() bool {
	oldEpilogueOff := h.epilogueOff
	start := h.a.grow()
	if start == -1 {
		h.noMemory = true
		return false
	}
	data := h.a.bytes()
	total := len(data)

	oldEpilogue := readHeader(data, oldEpilogueOff)
	freeOff := oldEpilogueOff
	freeSize := total - 8 - freeOff
	freeHdr := header{blockSize: freeSize, thisAlloc: false, prevAlloc: oldEpilogue.prevAlloc}
	writeHeader(data, freeOff, freeHdr)
	writeFooter(data, freeOff, freeHdr)

	h.epilogueOff = total - 8
	writeHeader(data, h.epilogueOff, header{blockSize: 0, thisAlloc: true, prevAlloc: false})

	h.coalesceAndInsert(data, freeOff)
	return true
}

// setPrevAlloc rewrites the PREV_BLOCK_ALLOCATED bit of the block at off
// (which may be a real block or the epilogue), keeping its footer mirror in
// sync when the block is free.
func (h *Heap) setPrevAlloc(data []byte, off int, alloc bool) {
	hdr := readHeader(data, off)
	hdr.prevAlloc = alloc
	writeHeader(data, off, hdr)
	if !hdr.thisAlloc && hdr.blockSize > 0 {
		writeFooter(data, off, hdr)
	}
}

// validate implements the pointer-validity checks spec.md §7 requires
// before Free/Realloc may touch a block; any violation aborts the process.
func (h *Heap) validate(off int) {
	if (off+8)%Alignment != 0 {
		abort(ErrMisaligned, off+8)
	}
	if off < firstBlockOff || off >= h.epilogueOff {
		abort(ErrOutOfRange, off+8)
	}
	data := h.a.bytes()
	hdr := readHeader(data, off)
	if hdr.blockSize < MinBlockSize || hdr.blockSize%Alignment != 0 || off+hdr.blockSize > h.epilogueOff {
		abort(ErrBadBlockSize, off)
	}
	if !hdr.thisAlloc {
		abort(ErrNotAllocated, off)
	}
	if !hdr.prevAlloc {
		footer := readFooter(data, off-8)
		if footer.thisAlloc {
			abort(ErrPrevAllocMismatch, off)
		}
	}
}

// Malloc allocates a block able to hold size bytes and returns a handle to
// its 16-byte-aligned payload, or Nil if size == 0, the effective size
// overflows the block-size field, or the heap cannot be grown further.
func (h *Heap) Malloc(size int) Ptr {
	h.noMemory = false
	h.lastErr = nil
	h.ensureInit()
	if size <= 0 {
		h.lastErr = &SizeError{Kind: ErrZeroSize, Size: size}
		return Nil
	}
	eff, ok := effectiveSize(size)
	if !ok {
		h.lastErr = &SizeError{Kind: ErrSizeOverflow, Size: size}
		return Nil
	}
	data := h.a.bytes()

	if cls, valid := h.ql.classFor(eff); valid && h.ql.heads[cls] != sentinel {
		off := h.ql.pop(data, cls)
		hdr := readHeader(data, off)
		hdr.payloadSize = size
		hdr.inQuick = false
		writeHeader(data, off, hdr)
		h.addLive(size, hdr.blockSize)
		return Ptr(off + 8)
	}

	for {
		off := h.fl.findFit(data, eff)
		if off != -1 {
			hdr := readHeader(data, off)
			h.fl.remove(data, off, hdr.blockSize)
			h.splitAndAllocate(data, off, hdr, size, eff)
			h.addLive(size, readHeader(data, off).blockSize)
			return Ptr(off + 8)
		}
		if !h.growHeap() {
			return Nil
		}
		data = h.a.bytes()
	}
}

// splitAndAllocate carves an effective-size allocated prefix out of the
// free block at off (whose header is hdr), spinning the remainder back
// into the free lists when it is big enough to stand alone on its own
// (spec.md §4.1 step 5).
func (h *Heap) splitAndAllocate(data []byte, off int, hdr header, payload, eff int) {
	remainder := hdr.blockSize - eff
	if remainder >= MinBlockSize {
		newHdr := header{payloadSize: payload, blockSize: eff, prevAlloc: hdr.prevAlloc, thisAlloc: true}
		writeHeader(data, off, newHdr)

		freeOff := off + eff
		freeHdr := header{blockSize: remainder, prevAlloc: true, thisAlloc: false}
		writeHeader(data, freeOff, freeHdr)
		writeFooter(data, freeOff, freeHdr)
		h.fl.insert(data, freeOff, remainder)
		return
	}

	newHdr := header{payloadSize: payload, blockSize: hdr.blockSize, prevAlloc: hdr.prevAlloc, thisAlloc: true}
	writeHeader(data, off, newHdr)
	h.setPrevAlloc(data, off+hdr.blockSize, true)
}

// Free releases a block obtained from Malloc/Realloc. Any violation of the
// pointer-validity contract aborts the process (see CorruptionError).
func (h *Heap) Free(ptr Ptr) {
	if ptr == Nil {
		abort(ErrNilPointer, 0)
	}
	off := int(ptr) - 8
	h.validate(off)
	data := h.a.bytes()
	hdr := readHeader(data, off)

	if cls, valid := h.ql.classFor(hdr.blockSize); valid {
		h.subLive(hdr.payloadSize, hdr.blockSize)
		if h.ql.full(cls) {
			h.ql.drain(data, cls, func(boff int) {
				bh := readHeader(data, boff)
				bh.inQuick = false
				bh.thisAlloc = false
				writeHeader(data, boff, bh)
				writeFooter(data, boff, bh)
				h.setPrevAlloc(data, boff+bh.blockSize, false)
				h.coalesceAndInsert(data, boff)
			})
			// The flush may have cleared this block's PREV_BLOCK_ALLOCATED.
			hdr = readHeader(data, off)
		}
		hdr.inQuick = true
		writeHeader(data, off, hdr)
		h.ql.push(data, cls, off)
		return
	}

	hdr.thisAlloc = false
	writeHeader(data, off, hdr)
	writeFooter(data, off, hdr)
	h.setPrevAlloc(data, off+hdr.blockSize, false)
	h.subLive(hdr.payloadSize, hdr.blockSize)
	h.coalesceAndInsert(data, off)
}

// coalesceAndInsert merges the free-but-unlinked block at off with any free
// physical neighbors, then inserts the surviving block into its free list.
func (h *Heap) coalesceAndInsert(data []byte, off int) {
	hdr := readHeader(data, off)
	mergedOff := off
	mergedSize := hdr.blockSize
	prevAlloc := hdr.prevAlloc

	if !hdr.prevAlloc {
		left := readFooter(data, off-8)
		if !left.thisAlloc {
			leftOff := off - left.blockSize
			h.fl.remove(data, leftOff, left.blockSize)
			mergedOff = leftOff
			mergedSize += left.blockSize
			prevAlloc = left.prevAlloc
		}
	}

	rightOff := off + hdr.blockSize
	if rightOff < h.epilogueOff {
		right := readHeader(data, rightOff)
		if !right.thisAlloc {
			h.fl.remove(data, rightOff, right.blockSize)
			mergedSize += right.blockSize
		}
	}

	mergedHdr := header{blockSize: mergedSize, prevAlloc: prevAlloc, thisAlloc: false}
	writeHeader(data, mergedOff, mergedHdr)
	writeFooter(data, mergedOff, mergedHdr)
	h.fl.insert(data, mergedOff, mergedSize)
}

// Realloc resizes the block ptr refers to, per spec.md §4.1's realloc
// algorithm: rsize == 0 frees and returns Nil; an unchanged effective size
// only rewrites the payload-size field; shrinking splits off a free suffix
// when possible; growing copies at most min(old payload, rsize) bytes into
// a freshly malloc'd block and frees the original.
func (h *Heap) Realloc(ptr Ptr, rsize int) Ptr {
	h.noMemory = false
	h.lastErr = nil
	if rsize == 0 {
		h.Free(ptr)
		return Nil
	}
	if ptr == Nil {
		abort(ErrNilPointer, 0)
	}
	off := int(ptr) - 8
	h.validate(off)
	data := h.a.bytes()
	hdr := readHeader(data, off)

	eff, ok := effectiveSize(rsize)
	if !ok {
		h.lastErr = &SizeError{Kind: ErrSizeOverflow, Size: rsize}
		return Nil
	}

	switch {
	case eff == hdr.blockSize:
		h.liveAdjust(rsize-hdr.payloadSize, 0)
		hdr.payloadSize = rsize
		writeHeader(data, off, hdr)
		return ptr

	case eff < hdr.blockSize:
		remainder := hdr.blockSize - eff
		if remainder >= MinBlockSize {
			newHdr := header{payloadSize: rsize, blockSize: eff, prevAlloc: hdr.prevAlloc, thisAlloc: true}
			writeHeader(data, off, newHdr)

			freeOff := off + eff
			freeHdr := header{blockSize: remainder, prevAlloc: true, thisAlloc: false}
			writeHeader(data, freeOff, freeHdr)
			writeFooter(data, freeOff, freeHdr)
			h.setPrevAlloc(data, freeOff+remainder, false)
			h.liveAdjust(rsize-hdr.payloadSize, eff-hdr.blockSize)
			h.coalesceAndInsert(data, freeOff)
		} else {
			h.liveAdjust(rsize-hdr.payloadSize, 0)
			hdr.payloadSize = rsize
			writeHeader(data, off, hdr)
		}
		return ptr

	default:
		newPtr := h.Malloc(rsize)
		if newPtr == Nil {
			return Nil
		}
		data = h.a.bytes()
		copyLen := mathutil.Min(hdr.payloadSize, rsize)
		copy(data[int(newPtr):int(newPtr)+copyLen], data[off+8:off+8+copyLen])
		h.Free(ptr)
		return newPtr
	}
}

func (h *Heap) addLive(payload, blockSize int) {
	h.liveAggPayload += payload
	h.liveAggBlockSize += blockSize
	h.bumpPeak()
}

func (h *Heap) subLive(payload, blockSize int) {
	h.liveAggPayload -= payload
	h.liveAggBlockSize -= blockSize
}

func (h *Heap) liveAdjust(payloadDelta, blockSizeDelta int) {
	h.liveAggPayload += payloadDelta
	h.liveAggBlockSize += blockSizeDelta
	h.bumpPeak()
}

// bumpPeak samples the current utilization ratio and keeps the running
// maximum. Sampling only here (addLive/liveAdjust, where live payload can
// grow) is sufficient: growHeap alone, or any subLive, can only ever lower
// the instantaneous ratio, never set a new peak.
func (h *Heap) bumpPeak() {
	if end := h.a.end(); end > 0 {
		if ratio := float64(h.liveAggPayload) / float64(end); ratio > h.peakUtilization {
			h.peakUtilization = ratio
		}
	}
}

// InternalFragmentation returns sum(payload)/sum(block-size) across
// currently allocated, non-quick-list blocks, or 0 when there are none.
func (h *Heap) InternalFragmentation() float64 {
	if h.liveAggBlockSize == 0 {
		return 0
	}
	return float64(h.liveAggPayload) / float64(h.liveAggBlockSize)
}

// PeakUtilization returns the running maximum, over the heap's lifetime, of
// live-payload / heap-size sampled after every allocation; it never
// decreases, even across arena growth.
func (h *Heap) PeakUtilization() float64 {
	if !h.initialized {
		return 0
	}
	return h.peakUtilization
}

// Payload returns a slice view onto ptr's live payload bytes, for reading
// or writing. The slice is backed by the arena directly: writes through it
// are visible to subsequent Payload calls and survive until Free/Realloc.
func (h *Heap) Payload(ptr Ptr) []byte {
	off := int(ptr) - 8
	hdr := readHeader(h.a.bytes(), off)
	return h.a.bytes()[int(ptr) : int(ptr)+hdr.payloadSize]
}

// PayloadSize reports the live payload size most recently recorded for ptr.
func (h *Heap) PayloadSize(ptr Ptr) int {
	return readHeader(h.a.bytes(), int(ptr)-8).payloadSize
}
