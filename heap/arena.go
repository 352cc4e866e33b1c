package heap

// arena is the growable byte store backing a Heap. It plays the role the
// teacher's MemFiler plays for lldb.Allocator: a plain in-process resizable
// byte buffer, grown a page at a time, with no persistence of its own.
//
// mem_start/mem_end/mem_grow, spec.md's given OS services, are arena's
// public methods: start, end and grow.
type arena struct {
	data    []byte
	pageSz  int
	maxSize int // 0 == unbounded; otherwise simulates OOM once reached
}

func newArena(pageSize, maxSize int) *arena {
	return &arena{pageSz: pageSize, maxSize: maxSize}
}

// start returns the current lower bound of the usable heap (0 when the
// arena has not been grown yet).
func (a *arena) start() int { return 0 }

// end returns the current upper bound (exclusive) of the heap.
func (a *arena) end() int { return len(a.data) }

// grow appends one page to the arena and returns the offset at which the
// new page begins, or -1 if doing so would exceed maxSize (simulated OOM —
// the real allocator has no such cap; a bound is only ever installed by a
// test harness).
func (a *arena) grow() int {
	if a.maxSize != 0 && len(a.data)+a.pageSz > a.maxSize {
		return -1
	}
	off := len(a.data)
	a.data = append(a.data, make([]byte, a.pageSz)...)
	return off
}

func (a *arena) bytes() []byte { return a.data }
