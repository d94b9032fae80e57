package vhd

import (
	"encoding/binary"
	"fmt"
	"log"

	"github.com/djs55/vhddisk/internal/utils"
)

// HeaderSize is the fixed on-disk size of a VHD header (dynamic/differencing
// disks only).
const HeaderSize = 1024

// HeaderCookie is the 8-byte magic at the start of every header.
const HeaderCookie = "cxsparse"

const (
	parentUnicodeNameOffset = 64
	parentUnicodeNameSize   = 512
	locatorsOffset          = 576
)

// Header is the 1024-byte structure immediately following the footer copy
// on dynamic and differencing disks.
type Header struct {
	DataOffset       uint64
	TableOffset      uint64
	HeaderVersion    uint32
	MaxTableEntries  uint32
	BlockSize        uint32
	Checksum         uint32
	ParentUID        [16]byte
	ParentTimeStamp  uint32
	ParentUnicodeName []rune
	Locators         [ParentLocatorCount]ParentLocator
}

// Marshal encodes h into a 1024-byte big-endian header, computing and
// filling in the checksum field.
func (h *Header) Marshal() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:8], HeaderCookie)
	copy(buf[8:16], utils.WriteUint64(h.DataOffset, binary.BigEndian))
	copy(buf[16:24], utils.WriteUint64(h.TableOffset, binary.BigEndian))
	copy(buf[24:28], utils.WriteUint32(h.HeaderVersion, binary.BigEndian))
	copy(buf[28:32], utils.WriteUint32(h.MaxTableEntries, binary.BigEndian))
	copy(buf[32:36], utils.WriteUint32(h.BlockSize, binary.BigEndian))
	copy(buf[40:56], h.ParentUID[:])
	copy(buf[56:60], utils.WriteUint32(h.ParentTimeStamp, binary.BigEndian))

	nameBytes := encodeParentUnicodeName(h.ParentUnicodeName)
	if len(nameBytes) > parentUnicodeNameSize {
		nameBytes = nameBytes[:parentUnicodeNameSize]
	}
	copy(buf[parentUnicodeNameOffset:parentUnicodeNameOffset+parentUnicodeNameSize], nameBytes)

	for i := range h.Locators {
		off := locatorsOffset + i*ParentLocatorSize
		copy(buf[off:off+ParentLocatorSize], h.Locators[i].Marshal())
	}

	h.Checksum = Checksum(buf, 36)
	copy(buf[36:40], utils.WriteUint32(h.Checksum, binary.BigEndian))

	return buf
}

// ParseHeader decodes a 1024-byte header buffer. Checksum mismatches are
// logged but tolerated (spec §7).
func ParseHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, utils.WrapError(utils.KindMalformedFormat, "short header buffer",
			fmt.Errorf("got %d bytes, want %d", len(buf), HeaderSize))
	}
	if string(buf[0:8]) != HeaderCookie {
		return nil, utils.WrapError(utils.KindMalformedFormat, "header cookie",
			fmt.Errorf("got %q, want %q", buf[0:8], HeaderCookie))
	}

	h := &Header{}
	h.DataOffset, _, _ = utils.ReadUint64Buf(buf, 8, binary.BigEndian)
	h.TableOffset, _, _ = utils.ReadUint64Buf(buf, 16, binary.BigEndian)
	h.HeaderVersion, _, _ = utils.ReadUint32(buf, 24, binary.BigEndian)
	h.MaxTableEntries, _, _ = utils.ReadUint32(buf, 28, binary.BigEndian)
	h.BlockSize, _, _ = utils.ReadUint32(buf, 32, binary.BigEndian)

	storedChecksum, _, _ := utils.ReadUint32(buf, 36, binary.BigEndian)
	h.Checksum = storedChecksum

	copy(h.ParentUID[:], buf[40:56])
	h.ParentTimeStamp, _, _ = utils.ReadUint32(buf, 56, binary.BigEndian)

	nameField := trimParentUnicodeNameField(buf[parentUnicodeNameOffset : parentUnicodeNameOffset+parentUnicodeNameSize])
	name, err := utils.DecodeUTF16(nameField)
	if err != nil {
		return nil, utils.WrapError(utils.KindMalformedFormat, "parent unicode name", err)
	}
	h.ParentUnicodeName = name

	for i := range h.Locators {
		off := locatorsOffset + i*ParentLocatorSize
		h.Locators[i] = ParseParentLocator(buf[off : off+ParentLocatorSize])
	}

	recomputed := Checksum(buf[:HeaderSize], 36)
	if recomputed != storedChecksum {
		log.Printf("vhd: header checksum mismatch: stored %#x, recomputed %#x", storedChecksum, recomputed)
	}

	return h, nil
}

// BlockSectorCount returns how many 512-byte sectors one block covers.
func (h *Header) BlockSectorCount() uint32 {
	return h.BlockSize / 512
}

// BitmapSize returns the per-block bitmap size in bytes, padded to a sector
// boundary (spec §4.6).
func (h *Header) BitmapSize() uint32 {
	bits := h.BlockSectorCount()
	bytes := (bits + 7) / 8
	return padToSector(bytes)
}

func padToSector(n uint32) uint32 {
	const sector = 512
	return (n + sector - 1) / sector * sector
}

// encodeParentUnicodeName encodes the parent_unicode_name field as
// big-endian UTF-16 with a leading BOM, the convention real VHD writers use
// (spec §3: "512 B UTF-16, BE with possible BOM") — distinct from
// internal/utils.EncodeUTF16, which always emits little-endian units with no
// byte-order mark.
func encodeParentUnicodeName(codepoints []rune) []byte {
	if len(codepoints) == 0 {
		return nil
	}

	out := make([]byte, 0, 2+len(codepoints)*2)
	out = append(out, 0xFE, 0xFF)

	for _, cp := range codepoints {
		if cp >= 0x10000 {
			v := cp - 0x10000
			hi := uint16(0xD800 + (v >> 10))
			lo := uint16(0xDC00 + (v & 0x3FF))
			out = append(out, byte(hi>>8), byte(hi), byte(lo>>8), byte(lo))
		} else {
			u := uint16(cp)
			out = append(out, byte(u>>8), byte(u))
		}
	}

	return out
}

// trimParentUnicodeNameField truncates the fixed 512-byte NUL-padded
// parent_unicode_name field at its first NUL UTF-16 code unit (after any
// leading BOM), since the field has no explicit length and real VHD writers
// NUL-pad rather than length-prefix it.
func trimParentUnicodeNameField(buf []byte) []byte {
	if len(buf) < 2 {
		return buf
	}

	start := 0
	mark := uint16(buf[0])<<8 | uint16(buf[1])
	if mark == 0xFEFF || mark == 0xFFFE {
		start = 2
	}

	for i := start; i+1 < len(buf); i += 2 {
		if buf[i] == 0 && buf[i+1] == 0 {
			return buf[:i]
		}
	}

	return buf
}
