package blockproto

import "encoding/binary"

// SegmentSize is the fixed on-wire size of one segment.
const SegmentSize = 8

// MaxSegments is the largest number of segments one request slot can carry.
const MaxSegments = 11

// Segment describes a contiguous sub-range within one shared 4 KiB page (8
// sectors of 512 B).
type Segment struct {
	GrantRef    uint32
	FirstSector uint8
	LastSector  uint8
}

// SectorCount returns how many sectors this segment covers.
func (s Segment) SectorCount() int {
	return int(s.LastSector) - int(s.FirstSector) + 1
}

// Marshal encodes s as 8 little-endian bytes: gref | first | last | padding.
func (s Segment) Marshal() []byte {
	buf := make([]byte, SegmentSize)
	binary.LittleEndian.PutUint32(buf[0:4], s.GrantRef)
	buf[4] = s.FirstSector
	buf[5] = s.LastSector
	return buf
}

// ParseSegment decodes an 8-byte segment slot.
func ParseSegment(buf []byte) Segment {
	return Segment{
		GrantRef:    binary.LittleEndian.Uint32(buf[0:4]),
		FirstSector: buf[4],
		LastSector:  buf[5],
	}
}
