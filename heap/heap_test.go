package heap

import (
	"math/rand"
	"sort"
	"testing"

	"modernc.org/sortutil"
)

// walkBlocks traverses every physical block from the first real block
// through (but not including) the epilogue, verifying that they tile the
// arena exactly and that every free-successor's stored footer mirrors its
// physical predecessor's header when that predecessor is free. It returns
// the offsets of every block visited, in ascending order, plus a parallel
// slice reporting which are currently free and not quick-listed.
func (h *Heap) walkBlocks(t *testing.T) (offsets []int, free []bool) {
	t.Helper()
	data := h.a.bytes()
	off := firstBlockOff
	var prevFree bool
	var prevOff int
	for off < h.epilogueOff {
		hdr := readHeader(data, off)
		if hdr.blockSize < MinBlockSize || hdr.blockSize%Alignment != 0 {
			t.Fatalf("block at %d has invalid size %d", off, hdr.blockSize)
		}
		if prevOff != 0 {
			if hdr.prevAlloc != !prevFree {
				t.Fatalf("block at %d PREV_ALLOC=%v disagrees with predecessor free=%v", off, hdr.prevAlloc, prevFree)
			}
			if prevFree {
				footer := readFooter(data, off-8)
				prevHdr := readHeader(data, prevOff)
				if footer.pack() != prevHdr.pack() {
					t.Fatalf("footer at %d does not mirror header of free predecessor at %d", off-8, prevOff)
				}
			}
		}
		isFree := !hdr.thisAlloc
		if isFree && prevFree {
			t.Fatalf("two physically adjacent free blocks at %d and %d", prevOff, off)
		}
		offsets = append(offsets, off)
		free = append(free, isFree)
		prevFree = isFree
		prevOff = off
		off += hdr.blockSize
	}
	if off != h.epilogueOff {
		t.Fatalf("block walk landed at %d, expected epilogue at %d", off, h.epilogueOff)
	}
	return offsets, free
}

func TestQuickListRoundTrip(t *testing.T) {
	h := New(Config{}, 0)
	p := h.Malloc(16)
	if p == Nil {
		t.Fatal("malloc failed")
	}
	if int(p)%16 != 0 {
		t.Fatalf("payload %d not 16-byte aligned", p)
	}
	off := int(p) - 8
	if bs := readHeader(h.a.bytes(), off).blockSize; bs != 32 {
		t.Fatalf("expected 32-byte block, got %d", bs)
	}

	h.Free(p)
	cls, valid := h.ql.classFor(32)
	if !valid || h.ql.depth[cls] != 1 {
		t.Fatalf("expected quick list %d depth 1, got valid=%v depth=%v", cls, valid, h.ql.depth[cls])
	}

	p2 := h.Malloc(16)
	if p2 != p {
		t.Fatalf("expected malloc to reuse quick-listed block %d, got %d", p, p2)
	}
}

func TestCoalesceForwardAndBackward(t *testing.T) {
	h := New(Config{}, 0)
	// 200 bytes effective-sizes to 208, past the quick lists' 176-byte
	// ceiling, so frees land directly in the segregated free lists and
	// must coalesce rather than defer.
	a := h.Malloc(200)
	b := h.Malloc(200)
	c := h.Malloc(200)
	if a == Nil || b == Nil || c == Nil {
		t.Fatal("malloc failed")
	}
	offA, offB, offC := int(a)-8, int(b)-8, int(c)-8
	sizeA := readHeader(h.a.bytes(), offA).blockSize
	sizeB := readHeader(h.a.bytes(), offB).blockSize
	sizeC := readHeader(h.a.bytes(), offC).blockSize

	h.Free(b)
	h.Free(c)
	h.Free(a)

	h.walkBlocks(t)

	merged := readHeader(h.a.bytes(), offA)
	if merged.thisAlloc {
		t.Fatal("expected merged region to be free")
	}
	if want := sizeA + sizeB + sizeC; merged.blockSize < want {
		t.Fatalf("merged block size %d smaller than a+b+c=%d (did not absorb the prior free remainder)", merged.blockSize, want)
	}
}

func TestQuickListFlush(t *testing.T) {
	cfg := Config{QuickListMax: 5}
	h := New(cfg, 0)

	var ptrs []Ptr
	for i := 0; i < 6; i++ {
		p := h.Malloc(16)
		if p == Nil {
			t.Fatalf("malloc %d failed", i)
		}
		ptrs = append(ptrs, p)
	}
	for _, p := range ptrs {
		h.Free(p)
	}

	cls, valid := h.ql.classFor(32)
	if !valid {
		t.Fatal("expected size-32 quick list")
	}
	if got := h.ql.depth[cls]; got != 1 {
		t.Fatalf("expected quick list depth 1 after flush, got %d", got)
	}

	offsets, free := h.walkBlocks(t)
	freeCount := 0
	for i, f := range free {
		if f {
			freeCount++
			_ = offsets[i]
		}
	}
	if freeCount == 0 {
		t.Fatal("expected at least one free-list block after quick-list flush")
	}
}

func TestReallocShrinkWithoutCopy(t *testing.T) {
	h := New(Config{}, 0)
	p := h.Malloc(200)
	if p == Nil {
		t.Fatal("malloc failed")
	}
	payload := h.Payload(p)
	for i := range payload {
		payload[i] = byte(i)
	}

	q := h.Realloc(p, 40)
	if q != p {
		t.Fatalf("expected realloc-shrink to keep the same pointer, got old=%d new=%d", p, q)
	}
	shrunk := h.Payload(q)
	for i := 0; i < 40; i++ {
		if shrunk[i] != byte(i) {
			t.Fatalf("byte %d corrupted across shrink: got %d want %d", i, shrunk[i], byte(i))
		}
	}
	h.walkBlocks(t)
}

func TestReallocGrowCopiesMinOldNew(t *testing.T) {
	h := New(Config{}, 0)
	p := h.Malloc(10)
	payload := h.Payload(p)
	copy(payload, []byte("0123456789"))

	q := h.Realloc(p, 100)
	if q == Nil {
		t.Fatal("realloc-grow failed")
	}
	grown := h.Payload(q)
	if string(grown[:10]) != "0123456789" {
		t.Fatalf("realloc-grow did not preserve original payload: %q", grown[:10])
	}
	h.walkBlocks(t)
}

func TestInternalFragmentationBounds(t *testing.T) {
	h := New(Config{}, 0)
	if f := h.InternalFragmentation(); f != 0 {
		t.Fatalf("expected 0 fragmentation on empty heap, got %v", f)
	}
	for i := 1; i <= 20; i++ {
		p := h.Malloc(i * 3)
		if p == Nil {
			t.Fatalf("malloc %d failed", i)
		}
		f := h.InternalFragmentation()
		if f < 0 || f > 1 {
			t.Fatalf("fragmentation %v out of [0,1]", f)
		}
	}
}

func TestPeakUtilizationNonDecreasing(t *testing.T) {
	h := New(Config{}, 0)
	var last float64
	var ptrs []Ptr
	for i := 0; i < 50; i++ {
		p := h.Malloc(rand.Intn(300) + 1)
		if p != Nil {
			ptrs = append(ptrs, p)
		}
		u := h.PeakUtilization()
		if u < last {
			t.Fatalf("peak utilization decreased: %v -> %v", last, u)
		}
		last = u
		if i%3 == 0 && len(ptrs) > 0 {
			h.Free(ptrs[0])
			ptrs = ptrs[1:]
		}
	}
}

func TestMallocZeroReturnsNil(t *testing.T) {
	h := New(Config{}, 0)
	if p := h.Malloc(0); p != Nil {
		t.Fatalf("malloc(0) = %d, want Nil", p)
	}
}

func TestNoMemoryIndicator(t *testing.T) {
	h := New(Config{PageSize: PageSize}, PageSize) // cap growth at one page
	var last Ptr
	for {
		p := h.Malloc(64)
		if p == Nil {
			break
		}
		last = p
	}
	_ = last
	if !h.NoMemory() {
		t.Fatal("expected NoMemory() once the single-page arena is exhausted")
	}
}

func TestRandomizedMallocFreeInvariants(t *testing.T) {
	h := New(Config{}, 0)
	rng := rand.New(rand.NewSource(1))
	live := map[Ptr]int{}

	for i := 0; i < 2000; i++ {
		if len(live) > 0 && rng.Intn(2) == 0 {
			var keys []Ptr
			for k := range live {
				keys = append(keys, k)
			}
			k := keys[rng.Intn(len(keys))]
			h.Free(k)
			delete(live, k)
			continue
		}
		size := rng.Intn(500) + 1
		p := h.Malloc(size)
		if p == Nil {
			continue
		}
		live[p] = size
	}

	offsets, _ := h.walkBlocks(t)
	sorted := make(sortutil.Int64Slice, 0, len(offsets))
	for _, off := range offsets {
		sorted = append(sorted, int64(off))
	}
	sort.Sort(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] <= sorted[i-1] {
			t.Fatalf("block offsets not strictly increasing after sort: %v", sorted)
		}
	}

	for p, size := range live {
		b := h.Payload(p)
		if len(b) != size {
			t.Fatalf("payload length %d != requested %d for %d", len(b), size, p)
		}
		if int(p)%Alignment != 0 {
			t.Fatalf("pointer %d not aligned", p)
		}
	}
}
