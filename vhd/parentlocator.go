package vhd

import (
	"encoding/binary"

	"github.com/djs55/vhddisk/internal/utils"
)

// ParentLocatorSize is the on-disk size of a single parent locator entry.
const ParentLocatorSize = 24

// ParentLocatorCount is the number of locator slots in a header.
const ParentLocatorCount = 8

// PlatformCodeMacX identifies a file://-URI parent locator (spec §4.5 step
// 6: the only platform code this engine resolves).
const PlatformCodeMacX uint32 = 0x4D616358 // 'MacX'

// ParentLocator describes one of a header's 8 parent-locator entries.
// platform_data_space is ambiguous in the wild (spec §9): some writers store
// it in sectors, others in bytes. Both the raw stored value and the
// normalized byte count are preserved; PlatformDataSpaceRaw is what gets
// re-serialized on write.
type ParentLocator struct {
	PlatformCode           uint32
	PlatformDataSpaceRaw   uint32
	PlatformDataSpaceBytes uint32
	PlatformDataLength     uint32
	PlatformDataOffset     uint64
	PlatformData           []byte
}

// normalizePlatformDataSpace applies the spec-deviation rule: values below
// 512 are a sector count and must be multiplied by 512 to get bytes;
// otherwise the stored value already is bytes.
func normalizePlatformDataSpace(raw uint32) uint32 {
	if raw < 512 {
		return raw * 512
	}
	return raw
}

// Marshal encodes the locator's fixed 24-byte entry (platform_data itself is
// stored separately at PlatformDataOffset, not inline).
func (p *ParentLocator) Marshal() []byte {
	buf := make([]byte, ParentLocatorSize)
	copy(buf[0:4], utils.WriteUint32(p.PlatformCode, binary.BigEndian))
	copy(buf[4:8], utils.WriteUint32(p.PlatformDataSpaceRaw, binary.BigEndian))
	copy(buf[8:12], utils.WriteUint32(p.PlatformDataLength, binary.BigEndian))
	// bytes [12:16] reserved
	copy(buf[16:24], utils.WriteUint64(p.PlatformDataOffset, binary.BigEndian))
	return buf
}

// ParseParentLocator decodes one 24-byte locator entry.
func ParseParentLocator(buf []byte) ParentLocator {
	platformCode, _, _ := utils.ReadUint32(buf, 0, binary.BigEndian)
	spaceRaw, _, _ := utils.ReadUint32(buf, 4, binary.BigEndian)
	length, _, _ := utils.ReadUint32(buf, 8, binary.BigEndian)
	offset, _, _ := utils.ReadUint64Buf(buf, 16, binary.BigEndian)

	return ParentLocator{
		PlatformCode:           platformCode,
		PlatformDataSpaceRaw:   spaceRaw,
		PlatformDataSpaceBytes: normalizePlatformDataSpace(spaceRaw),
		PlatformDataLength:     length,
		PlatformDataOffset:     offset,
	}
}

// IsMacXFileURI reports whether this locator is a candidate for differencing
// parent resolution (spec §4.5 step 6).
func (p *ParentLocator) IsMacXFileURI() bool {
	return p.PlatformCode == PlatformCodeMacX && p.PlatformDataLength > 0
}
