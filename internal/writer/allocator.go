// Package writer provides the on-disk space allocator and memory-mapped file
// wrapper used by the vhd package.
package writer

import (
	"fmt"
	"sort"
)

// AllocatedBlock tracks a named, contiguous on-disk region: a footer copy,
// the header, a parent-locator payload, the BAT, or one data block. Naming
// each region is what lets ValidateNoOverlaps report the same (name, start,
// length) shape the overlap self-check (spec §4.6) is defined over.
type AllocatedBlock struct {
	Name   string
	Offset uint64
	Size   uint64
}

// Allocator tracks space allocation across a VHD file using an end-of-file
// strategy: every Allocate call places its block at the current end of file
// and advances it. There is no free-space reuse — VHD blocks are never
// deallocated once the BAT points at them (spec §4.6 write path only ever
// grows top_unused_offset).
//
// Not safe for concurrent use; a VHD file is mutated by a single owner
// (spec §5 "single-threaded per file").
type Allocator struct {
	blocks     []AllocatedBlock
	nextOffset uint64
}

// NewAllocator creates an allocator starting allocation at initialOffset —
// for a freshly created dynamic disk this is h_table_offset + 4*max_table_entries
// (spec §4.6 top_unused_offset, empty-BAT case).
func NewAllocator(initialOffset uint64) *Allocator {
	return &Allocator{
		blocks:     make([]AllocatedBlock, 0, 16),
		nextOffset: initialOffset,
	}
}

// Allocate reserves size bytes named name at the current end of file and
// returns the address it was placed at.
func (a *Allocator) Allocate(name string, size uint64) (uint64, error) {
	if size == 0 {
		return 0, fmt.Errorf("cannot allocate zero bytes for %q", name)
	}

	addr := a.nextOffset
	a.blocks = append(a.blocks, AllocatedBlock{Name: name, Offset: addr, Size: size})
	a.nextOffset = addr + size

	return addr, nil
}

// IsAllocated reports whether [offset, offset+size) overlaps any tracked
// block. Adjacent (touching) ranges do not count as overlapping.
func (a *Allocator) IsAllocated(offset, size uint64) bool {
	if size == 0 {
		return false
	}

	rangeEnd := offset + size
	for _, block := range a.blocks {
		blockEnd := block.Offset + block.Size
		if offset < blockEnd && block.Offset < rangeEnd {
			return true
		}
	}
	return false
}

// EndOfFile returns the current end-of-file address — where the next
// allocation will land, and the trailing footer's offset once all blocks for
// a write have been placed.
func (a *Allocator) EndOfFile() uint64 {
	return a.nextOffset
}

// Blocks returns a copy of all tracked blocks sorted by offset.
func (a *Allocator) Blocks() []AllocatedBlock {
	blocks := make([]AllocatedBlock, len(a.blocks))
	copy(blocks, a.blocks)

	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].Offset < blocks[j].Offset
	})

	return blocks
}

// ValidateNoOverlaps is the overlap self-check of spec §4.6 / §8 testable
// property 7: a linear scan over offset-sorted blocks must never find one
// block extending past the start of the next.
func (a *Allocator) ValidateNoOverlaps() error {
	blocks := a.Blocks()

	for i := 0; i < len(blocks)-1; i++ {
		current := blocks[i]
		next := blocks[i+1]

		if currentEnd := current.Offset + current.Size; currentEnd > next.Offset {
			return fmt.Errorf("overlap detected: %q at %d (size %d) overlaps %q at %d",
				current.Name, current.Offset, current.Size, next.Name, next.Offset)
		}
	}

	return nil
}
