package heap

// sentinel stands in for "points at the dummy head" in a free list's
// doubly-linked chain. The dummy heads themselves are bookkeeping kept
// outside the arena (Heap.free), the same way a teaching malloc lab keeps
// its free-list head array outside the heap it manages.
const sentinel = -1

// listHead is one segregated size class's dummy head: next/prev are block
// offsets, or sentinel when the class is empty (the "self-referential
// when empty" invariant spec.md requires).
type listHead struct {
	next, prev int
}

type freeLists struct {
	heads []listHead
}

func newFreeLists(numClasses int) *freeLists {
	fl := &freeLists{heads: make([]listHead, numClasses)}
	for i := range fl.heads {
		fl.heads[i] = listHead{next: sentinel, prev: sentinel}
	}
	return fl
}

// sizeClass maps a block size to its segregated class per spec.md §3.1:
// class 0 is exactly MinBlockSize; classes 1..n-2 are geometric doublings;
// the last class is unbounded.
func sizeClass(blockSize, numClasses int) int {
	if blockSize <= MinBlockSize {
		return 0
	}
	upper := MinBlockSize
	for c := 1; c <= numClasses-2; c++ {
		upper <<= 1
		if blockSize <= upper {
			return c
		}
	}
	return numClasses - 1
}

// insert adds blockOff (of blockSize) to the head of its size class's list
// (LIFO insertion per spec.md).
func (fl *freeLists) insert(data []byte, blockOff, blockSize int) {
	cls := sizeClass(blockSize, len(fl.heads))
	h := &fl.heads[cls]
	oldFirst := h.next

	writeLink(data, freePrevOff(blockOff), sentinel)
	writeLink(data, freeNextOff(blockOff), oldFirst)
	if oldFirst != sentinel {
		writeLink(data, freePrevOff(oldFirst), blockOff)
	} else {
		h.prev = blockOff
	}
	h.next = blockOff
}

// remove unlinks blockOff (of blockSize) from its size class's list.
func (fl *freeLists) remove(data []byte, blockOff, blockSize int) {
	cls := sizeClass(blockSize, len(fl.heads))
	h := &fl.heads[cls]

	prev := readLink(data, freePrevOff(blockOff))
	next := readLink(data, freeNextOff(blockOff))

	if prev == sentinel {
		h.next = next
	} else {
		writeLink(data, freeNextOff(prev), next)
	}
	if next == sentinel {
		h.prev = prev
	} else {
		writeLink(data, freePrevOff(next), prev)
	}
}

// findFit performs the first-fit scan spec.md §4.1 step 3 describes:
// starting at the class sized for need, scan classes ascending, and within
// a class walk from the head (ties broken in LIFO/insertion order).
func (fl *freeLists) findFit(data []byte, need int) int {
	start := sizeClass(need, len(fl.heads))
	for cls := start; cls < len(fl.heads); cls++ {
		for off := fl.heads[cls].next; off != sentinel; off = readLink(data, freeNextOff(off)) {
			if readHeader(data, off).blockSize >= need {
				return off
			}
		}
	}
	return -1
}
