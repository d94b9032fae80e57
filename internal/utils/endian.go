// Package utils provides the shared byte codec, error wrapping, buffer
// pooling, and overflow-checked arithmetic used by the vhd and blockproto
// packages.
package utils

import (
	"encoding/binary"
	"fmt"
)

// ReaderAt is a simplified interface for io.ReaderAt.
type ReaderAt interface {
	ReadAt(p []byte, off int64) (n int, err error)
}

// ReadUint64 reads a 64-bit value at the specified offset of a ReaderAt.
func ReadUint64(r ReaderAt, offset int64, order binary.ByteOrder) (uint64, error) {
	buf := GetBuffer(8)
	defer ReleaseBuffer(buf)

	if _, err := r.ReadAt(buf, offset); err != nil {
		return 0, err
	}
	return order.Uint64(buf), nil
}

// ReadUint8 reads an 8-bit value from buf at off, returning the value and the
// offset of the next unread byte.
func ReadUint8(buf []byte, off int) (uint8, int, error) {
	if off < 0 || off+1 > len(buf) {
		return 0, off, fmt.Errorf("read u8 at %d: out of range (len %d)", off, len(buf))
	}
	return buf[off], off + 1, nil
}

// ReadUint16 reads a 16-bit value from buf at off using the given byte order.
func ReadUint16(buf []byte, off int, order binary.ByteOrder) (uint16, int, error) {
	if off < 0 || off+2 > len(buf) {
		return 0, off, fmt.Errorf("read u16 at %d: out of range (len %d)", off, len(buf))
	}
	return order.Uint16(buf[off : off+2]), off + 2, nil
}

// ReadUint32 reads a 32-bit value from buf at off using the given byte order.
func ReadUint32(buf []byte, off int, order binary.ByteOrder) (uint32, int, error) {
	if off < 0 || off+4 > len(buf) {
		return 0, off, fmt.Errorf("read u32 at %d: out of range (len %d)", off, len(buf))
	}
	return order.Uint32(buf[off : off+4]), off + 4, nil
}

// ReadUint64Buf reads a 64-bit value from buf at off using the given byte order.
func ReadUint64Buf(buf []byte, off int, order binary.ByteOrder) (uint64, int, error) {
	if off < 0 || off+8 > len(buf) {
		return 0, off, fmt.Errorf("read u64 at %d: out of range (len %d)", off, len(buf))
	}
	return order.Uint64(buf[off : off+8]), off + 8, nil
}

// WriteUint8 returns the single-byte encoding of v.
func WriteUint8(v uint8) []byte {
	return []byte{v}
}

// WriteUint16 returns the byte-order encoding of v.
func WriteUint16(v uint16, order binary.ByteOrder) []byte {
	buf := make([]byte, 2)
	order.PutUint16(buf, v)
	return buf
}

// WriteUint32 returns the byte-order encoding of v.
func WriteUint32(v uint32, order binary.ByteOrder) []byte {
	buf := make([]byte, 4)
	order.PutUint32(buf, v)
	return buf
}

// WriteUint64 returns the byte-order encoding of v.
func WriteUint64(v uint64, order binary.ByteOrder) []byte {
	buf := make([]byte, 8)
	order.PutUint64(buf, v)
	return buf
}

// PadString right-pads s with NUL bytes to length n, truncating if s is
// already longer than n.
func PadString(s string, n int) []byte {
	buf := make([]byte, n)
	copy(buf, s)
	return buf
}

const (
	bomBE       = 0xFEFF
	bomLE       = 0xFFFE
	surrogateHi = 0xD800
	surrogateHiEnd = 0xDBFF
	surrogateLo = 0xDC00
	surrogateLoEnd = 0xDFFF
	surrogateBase  = 0x10000
)

// DecodeUTF16 decodes the whole of buf (a trailing odd byte is dropped) as
// UTF-16 text, honoring an optional leading byte-order mark and assuming
// big-endian when there is none, and returns the sequence of Unicode code
// points. Surrogate pairs are combined into a
// single code point >= 0x10000; an unpaired low surrogate is an error.
func DecodeUTF16(buf []byte) ([]rune, error) {
	if len(buf)%2 != 0 {
		buf = buf[:len(buf)-1]
	}
	if len(buf) == 0 {
		return nil, nil
	}

	order := binary.BigEndian
	i := 0
	if len(buf) >= 2 {
		mark := binary.BigEndian.Uint16(buf[0:2])
		switch mark {
		case bomBE:
			order = binary.BigEndian
			i = 2
		case bomLE:
			order = binary.LittleEndian
			i = 2
		}
	}

	var out []rune
	for i+1 < len(buf) {
		unit := order.Uint16(buf[i : i+2])
		i += 2

		switch {
		case unit >= surrogateHi && unit <= surrogateHiEnd:
			if i+1 >= len(buf) {
				return nil, fmt.Errorf("utf16 decode: unpaired high surrogate at end of buffer")
			}
			low := order.Uint16(buf[i : i+2])
			if low < surrogateLo || low > surrogateLoEnd {
				return nil, fmt.Errorf("utf16 decode: high surrogate %#x not followed by low surrogate", unit)
			}
			i += 2
			cp := surrogateBase + (rune(unit)-surrogateHi)<<10 + (rune(low) - surrogateLo)
			out = append(out, cp)
		case unit >= surrogateLo && unit <= surrogateLoEnd:
			return nil, fmt.Errorf("utf16 decode: unpaired low surrogate %#x", unit)
		default:
			out = append(out, rune(unit))
		}
	}
	return out, nil
}

// EncodeUTF16 encodes codepoints as little-endian UTF-16, emitting a
// surrogate pair for any code point >= 0x10000.
func EncodeUTF16(codepoints []rune) []byte {
	out := make([]byte, 0, len(codepoints)*2)
	for _, cp := range codepoints {
		if cp >= surrogateBase {
			v := cp - surrogateBase
			hi := uint16(surrogateHi + (v >> 10))
			lo := uint16(surrogateLo + (v & 0x3FF))
			out = append(out, byte(hi), byte(hi>>8), byte(lo), byte(lo>>8))
		} else {
			u := uint16(cp)
			out = append(out, byte(u), byte(u>>8))
		}
	}
	return out
}
