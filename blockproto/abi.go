// Package blockproto implements the Block Protocol wire layout (spec §4.3):
// fixed-size request/response slots in two pointer-width ABI variants,
// little-endian throughout.
package blockproto

import "math/bits"

// ABI identifies which request-slot layout a ring session uses.
type ABI int

const (
	X86_32 ABI = iota
	X86_64
	// Native resolves to X86_64 or X86_32 at Resolve() time, matching the
	// host's pointer width.
	Native
)

func (a ABI) String() string {
	switch a {
	case X86_32:
		return "X86_32"
	case X86_64:
		return "X86_64"
	case Native:
		return "Native"
	default:
		return "Unknown"
	}
}

// Resolve maps Native to the concrete ABI for the running host; X86_32 and
// X86_64 pass through unchanged.
func (a ABI) Resolve() ABI {
	if a != Native {
		return a
	}
	if bits.UintSize == 64 {
		return X86_64
	}
	return X86_32
}

// SlotSize returns the request-slot size in bytes for the resolved ABI: 112
// for X86_64, 108 for X86_32.
func (a ABI) SlotSize() int {
	if a.Resolve() == X86_32 {
		return 108
	}
	return 112
}
