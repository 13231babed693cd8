// Package memory tracks how many bytes of Arrow column storage are resident
// across all open sessions.
package memory

import (
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// global backs every dataset built by schema inference. One allocator for the
// whole process keeps the resident-bytes figure meaningful.
var global = NewTrackedAllocator(memory.NewGoAllocator())

// TrackedAllocator wraps a memory.Allocator and keeps a running total of
// allocated bytes. Releasing a dataset returns its bytes to the counter.
type TrackedAllocator struct {
	underlying memory.Allocator
	bytesUsed  atomic.Int64
}

// NewTrackedAllocator wraps the given allocator.
func NewTrackedAllocator(underlying memory.Allocator) *TrackedAllocator {
	return &TrackedAllocator{underlying: underlying}
}

// Allocate implements memory.Allocator.
func (a *TrackedAllocator) Allocate(size int) []byte {
	a.bytesUsed.Add(int64(size))
	return a.underlying.Allocate(size)
}

// Reallocate implements memory.Allocator.
func (a *TrackedAllocator) Reallocate(size int, b []byte) []byte {
	a.bytesUsed.Add(int64(size - len(b)))
	return a.underlying.Reallocate(size, b)
}

// Free implements memory.Allocator.
func (a *TrackedAllocator) Free(b []byte) {
	a.bytesUsed.Add(-int64(len(b)))
	a.underlying.Free(b)
}

// BytesUsed returns the bytes currently held by live allocations.
func (a *TrackedAllocator) BytesUsed() int64 {
	return a.bytesUsed.Load()
}

// Default returns the process-wide tracked allocator.
func Default() *TrackedAllocator {
	return global
}
