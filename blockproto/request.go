package blockproto

import (
	"encoding/binary"
	"fmt"

	"github.com/djs55/vhddisk/internal/utils"
)

// Op identifies a request's operation.
type Op uint8

const (
	OpRead         Op = 0
	OpWrite        Op = 1
	OpWriteBarrier Op = 2
	OpFlush        Op = 3
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "Read"
	case OpWrite:
		return "Write"
	case OpWriteBarrier:
		return "WriteBarrier"
	case OpFlush:
		return "Flush"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(o))
	}
}

// Known reports whether o is one of the four defined operations; any other
// value round-trips as Unknown(n) but is not dispatchable by the backend.
func (o Op) Known() bool {
	return o <= OpFlush
}

// Request is a decoded block-protocol request slot.
type Request struct {
	Op       Op
	Handle   uint16
	ID       uint64
	Sector   uint64
	Segments []Segment
}

// Validate checks the §3 invariant: 1..=11 segments, each with
// last_sector >= first_sector, and (when wantSectors >= 0) that the sum of
// per-segment sector counts equals wantSectors.
func (r Request) Validate(wantSectors int) error {
	if len(r.Segments) < 1 || len(r.Segments) > MaxSegments {
		return utils.WrapError(utils.KindOutOfRange, "segment count",
			fmt.Errorf("got %d segments, want 1..=%d", len(r.Segments), MaxSegments))
	}

	total := 0
	for i, seg := range r.Segments {
		if seg.LastSector < seg.FirstSector {
			return utils.WrapError(utils.KindProtocolError, "segment range",
				fmt.Errorf("segment %d: last_sector %d < first_sector %d", i, seg.LastSector, seg.FirstSector))
		}
		total += seg.SectorCount()
	}

	if wantSectors >= 0 && total != wantSectors {
		return utils.WrapError(utils.KindProtocolError, "segment sector total",
			fmt.Errorf("segments cover %d sectors, want %d", total, wantSectors))
	}

	return nil
}

// idOffset returns the byte offset of the id field for the resolved ABI: 8
// for X86_64 (after 4 bytes of alignment padding), 4 for X86_32.
func idOffset(abi ABI) int {
	if abi.Resolve() == X86_64 {
		return 8
	}
	return 4
}

// Marshal encodes r as one request slot under the given ABI.
func (r Request) Marshal(abi ABI) []byte {
	buf := make([]byte, abi.SlotSize())

	buf[0] = uint8(r.Op)
	buf[1] = uint8(len(r.Segments))
	binary.LittleEndian.PutUint16(buf[2:4], r.Handle)

	off := idOffset(abi)
	binary.LittleEndian.PutUint64(buf[off:off+8], r.ID)
	binary.LittleEndian.PutUint64(buf[off+8:off+16], r.Sector)

	segOff := off + 16
	for i, seg := range r.Segments {
		copy(buf[segOff+i*SegmentSize:segOff+(i+1)*SegmentSize], seg.Marshal())
	}

	return buf
}

// ParseRequest decodes one request slot under the given ABI.
func ParseRequest(buf []byte, abi ABI) (Request, error) {
	size := abi.SlotSize()
	if len(buf) < size {
		return Request{}, utils.WrapError(utils.KindProtocolError, "short request slot",
			fmt.Errorf("got %d bytes, want %d", len(buf), size))
	}

	op := Op(buf[0])
	handle := binary.LittleEndian.Uint16(buf[2:4])

	off := idOffset(abi)
	id := binary.LittleEndian.Uint64(buf[off : off+8])
	sector := binary.LittleEndian.Uint64(buf[off+8 : off+16])

	nrSegs := int(buf[1])
	if nrSegs < 1 || nrSegs > MaxSegments {
		// id/op/handle/sector sit at fixed offsets independent of nr_segs, so a
		// bad segment count still leaves enough to address a NotSupported
		// response back to the right request.
		return Request{Op: op, Handle: handle, ID: id, Sector: sector},
			utils.WrapError(utils.KindProtocolError, "segment count",
				fmt.Errorf("nr_segs %d out of range 1..=%d", nrSegs, MaxSegments))
	}

	segOff := off + 16
	segs := make([]Segment, nrSegs)
	for i := 0; i < nrSegs; i++ {
		segs[i] = ParseSegment(buf[segOff+i*SegmentSize : segOff+(i+1)*SegmentSize])
	}

	return Request{Op: op, Handle: handle, ID: id, Sector: sector, Segments: segs}, nil
}
