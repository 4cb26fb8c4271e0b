// Package blockring provides a fixed-capacity single-producer
// single-consumer ring of audio blocks.
//
// All block storage is allocated at construction. Push never blocks: a full
// ring overwrites the oldest unread block and counts the loss. Pop never
// blocks: an empty ring reports an underrun so the caller can substitute
// silence. Counters are monotonic.
package blockring

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Ring buffers fixed-size sample blocks between one producer and one
// consumer goroutine.
type Ring struct {
	mu        sync.Mutex
	blocks    [][]float64
	head      int // oldest unread block
	count     int // unread blocks
	blockSize int

	dropped   atomic.Uint64
	underruns atomic.Uint64
}

// New creates a ring holding capacity blocks of blockSize samples each.
func New(capacity, blockSize int) (*Ring, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("blockring capacity must be positive: %d", capacity)
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("blockring block size must be positive: %d", blockSize)
	}

	blocks := make([][]float64, capacity)
	for i := range blocks {
		blocks[i] = make([]float64, blockSize)
	}

	return &Ring{blocks: blocks, blockSize: blockSize}, nil
}

// BlockSize returns the per-block sample count.
func (r *Ring) BlockSize() int { return r.blockSize }

// Capacity returns the number of block slots.
func (r *Ring) Capacity() int { return len(r.blocks) }

// Push copies block into the next slot. When the ring is full the oldest
// unread block is overwritten and the drop counter advances. The block
// length must equal BlockSize.
func (r *Ring) Push(block []float64) error {
	if len(block) != r.blockSize {
		return fmt.Errorf("blockring push: block length %d, want %d", len(block), r.blockSize)
	}

	r.mu.Lock()
	if r.count == len(r.blocks) {
		// Overwrite the oldest unread block.
		r.head = (r.head + 1) % len(r.blocks)
		r.count--
		r.dropped.Add(1)
	}
	slot := (r.head + r.count) % len(r.blocks)
	copy(r.blocks[slot], block)
	r.count++
	r.mu.Unlock()

	return nil
}

// Pop copies the oldest unread block into dst and reports whether a block
// was available. On an empty ring dst is zeroed, the underrun counter
// advances, and ok is false.
func (r *Ring) Pop(dst []float64) (ok bool, err error) {
	if len(dst) != r.blockSize {
		return false, fmt.Errorf("blockring pop: block length %d, want %d", len(dst), r.blockSize)
	}

	r.mu.Lock()
	if r.count == 0 {
		r.mu.Unlock()
		r.underruns.Add(1)
		for i := range dst {
			dst[i] = 0
		}
		return false, nil
	}
	copy(dst, r.blocks[r.head])
	r.head = (r.head + 1) % len(r.blocks)
	r.count--
	r.mu.Unlock()

	return true, nil
}

// Len returns the number of unread blocks.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Dropped returns the number of blocks lost to overwrites.
func (r *Ring) Dropped() uint64 { return r.dropped.Load() }

// Underruns returns the number of empty pops.
func (r *Ring) Underruns() uint64 { return r.underruns.Load() }
