package blockproto

import (
	"encoding/binary"
	"fmt"
)

// ResponseSize is the fixed on-wire size of a response slot.
const ResponseSize = 12

// Status identifies the outcome of a dispatched request.
type Status uint16

const (
	StatusOK          Status = 0
	StatusNotSupported Status = 0xFFFE
	StatusError        Status = 0xFFFF
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNotSupported:
		return "NotSupported"
	case StatusError:
		return "Error"
	default:
		return fmt.Sprintf("Unknown(%#x)", uint16(s))
	}
}

// Response is a decoded response slot: id | op | reserved | status, all
// little-endian.
type Response struct {
	ID     uint64
	Op     Op
	Status Status
}

// Marshal encodes r as a 12-byte response slot.
func (r Response) Marshal() []byte {
	buf := make([]byte, ResponseSize)
	binary.LittleEndian.PutUint64(buf[0:8], r.ID)
	buf[8] = uint8(r.Op)
	binary.LittleEndian.PutUint16(buf[10:12], uint16(r.Status))
	return buf
}

// ParseResponse decodes a 12-byte response slot.
func ParseResponse(buf []byte) (Response, error) {
	if len(buf) < ResponseSize {
		return Response{}, fmt.Errorf("short response slot: got %d bytes, want %d", len(buf), ResponseSize)
	}
	return Response{
		ID:     binary.LittleEndian.Uint64(buf[0:8]),
		Op:     Op(buf[8]),
		Status: Status(binary.LittleEndian.Uint16(buf[10:12])),
	}, nil
}
