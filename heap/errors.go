package heap

import "fmt"

// SizeErrorKind classifies why a requested size was rejected.
type SizeErrorKind int

const (
	// ErrZeroSize: malloc was asked for zero bytes.
	ErrZeroSize SizeErrorKind = iota
	// ErrSizeOverflow: the effective-size computation wrapped.
	ErrSizeOverflow
)

// SizeError reports a malloc/realloc request this allocator will never be
// able to satisfy, independent of available memory.
type SizeError struct {
	Kind SizeErrorKind
	Size int
}

func (e *SizeError) Error() string {
	switch e.Kind {
	case ErrZeroSize:
		return "heap: malloc of zero bytes"
	case ErrSizeOverflow:
		return fmt.Sprintf("heap: requested size %d overflows the block size field", e.Size)
	default:
		return fmt.Sprintf("heap: invalid size %d", e.Size)
	}
}

// CorruptionKind classifies a detected heap invariant violation.
type CorruptionKind int

const (
	ErrNilPointer CorruptionKind = iota
	ErrMisaligned
	ErrOutOfRange
	ErrBadBlockSize
	ErrNotAllocated
	ErrPrevAllocMismatch
)

// CorruptionError is the payload of the panic Free/Realloc raise when the
// pointer handed to them could not have come from this allocator. Per the
// allocator's contract this represents undefined behavior in the caller;
// the process is expected to die, not recover.
type CorruptionError struct {
	Kind CorruptionKind
	Off  int
}

func (e *CorruptionError) Error() string {
	switch e.Kind {
	case ErrNilPointer:
		return "heap: free/realloc of a nil pointer"
	case ErrMisaligned:
		return fmt.Sprintf("heap: pointer at offset %d is not 16-byte aligned", e.Off)
	case ErrOutOfRange:
		return fmt.Sprintf("heap: pointer at offset %d lies outside the usable heap", e.Off)
	case ErrBadBlockSize:
		return fmt.Sprintf("heap: block at offset %d has an invalid block size", e.Off)
	case ErrNotAllocated:
		return fmt.Sprintf("heap: block at offset %d is not currently allocated", e.Off)
	case ErrPrevAllocMismatch:
		return fmt.Sprintf("heap: block at offset %d disagrees with its physical predecessor's allocated bit", e.Off)
	default:
		return fmt.Sprintf("heap: corrupt heap at offset %d", e.Off)
	}
}

// abort panics with a CorruptionError. Free/Realloc never recover it: a
// detected invariant violation is undefined behavior in the caller and the
// allocator's contract is to abort, not to limp along.
func abort(kind CorruptionKind, off int) {
	panic(&CorruptionError{Kind: kind, Off: off})
}
