// Package heap implements a segregated-fit allocator over a growable byte
// arena: malloc/free/realloc with deferred-free quick lists, explicit
// coalescing of the segregated free lists, obfuscated block headers, and
// running peak-utilization accounting.
//
// The allocator is not safe for concurrent use; callers serialize their own
// access, the same contract lldb.Allocator documents for a single Filer.
package heap
