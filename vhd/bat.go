package vhd

import (
	"encoding/binary"
	"fmt"

	"github.com/djs55/vhddisk/internal/utils"
)

// UnallocatedBlock is the BAT sentinel for a block that has never been
// written.
const UnallocatedBlock uint32 = 0xFFFFFFFF

// BAT is the Block Allocation Table: a flat big-endian array of block
// sector-offsets (spec §3).
type BAT []uint32

// MarshalBAT encodes bat as a contiguous big-endian byte buffer.
func MarshalBAT(bat BAT) []byte {
	buf := make([]byte, len(bat)*4)
	for i, entry := range bat {
		copy(buf[i*4:i*4+4], utils.WriteUint32(entry, binary.BigEndian))
	}
	return buf
}

// ParseBAT decodes maxTableEntries big-endian u32 entries from buf.
func ParseBAT(buf []byte, maxTableEntries uint32) (BAT, error) {
	need := int(maxTableEntries) * 4
	if len(buf) < need {
		return nil, utils.WrapError(utils.KindMalformedFormat, "short BAT buffer",
			fmt.Errorf("got %d bytes, want %d", len(buf), need))
	}

	bat := make(BAT, maxTableEntries)
	for i := range bat {
		entry, _, err := utils.ReadUint32(buf, i*4, binary.BigEndian)
		if err != nil {
			return nil, utils.WrapError(utils.KindMalformedFormat, "BAT entry decode", err)
		}
		bat[i] = entry
	}
	return bat, nil
}

// NewEmptyBAT returns a BAT of maxTableEntries entries, all unallocated.
func NewEmptyBAT(maxTableEntries uint32) BAT {
	bat := make(BAT, maxTableEntries)
	for i := range bat {
		bat[i] = UnallocatedBlock
	}
	return bat
}

// IsAllocated reports whether block i has a placed on-disk location.
func (b BAT) IsAllocated(block uint32) bool {
	return int(block) < len(b) && b[block] != UnallocatedBlock
}
