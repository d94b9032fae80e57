package vhd

import (
	"encoding/binary"
	"fmt"
	"log"

	"github.com/djs55/vhddisk/internal/utils"
)

// FooterSize is the fixed on-disk size of a VHD footer.
const FooterSize = 512

// FooterCookie is the 8-byte magic at the start of every footer.
const FooterCookie = "conectix"

// Footer feature bits (spec §9 Open Question (b): bit-position
// interpretation, used for both encode and decode).
const (
	FeatureNoFeatures uint32 = 0x0
	FeatureTemporary  uint32 = 0x1
	FeatureReserved   uint32 = 0x2
)

// DiskType identifies the footer's disk_type field.
type DiskType uint32

const (
	DiskTypeNone         DiskType = 0
	DiskTypeReserved1    DiskType = 1
	DiskTypeFixed        DiskType = 2
	DiskTypeDynamic      DiskType = 3
	DiskTypeDifferencing DiskType = 4
	DiskTypeReserved5    DiskType = 5
	DiskTypeReserved6    DiskType = 6
)

func (d DiskType) String() string {
	switch d {
	case DiskTypeNone:
		return "None"
	case DiskTypeFixed:
		return "Fixed"
	case DiskTypeDynamic:
		return "Dynamic"
	case DiskTypeDifferencing:
		return "Differencing"
	default:
		return fmt.Sprintf("Reserved(%d)", uint32(d))
	}
}

// NoDataOffset marks Footer.DataOffset for a fixed disk, which has no header.
const NoDataOffset uint64 = 0xffff_ffff_ffff_ffff

// Epoch2000 is the VHD timestamp epoch, in Unix seconds: 2000-01-01T00:00:00Z.
const Epoch2000 = 946684800

// Known creator host OS codes (SPEC_FULL §12).
const (
	HostOSWindows     = "Wi2k"
	HostOSMacintosh   = "Mac "
	DefaultCreatorApp = "gogo"
)

// Footer is the 512-byte structure present at the start (copy) and end of
// every dynamic/differencing VHD, and at the end only of a fixed VHD.
type Footer struct {
	Features         uint32
	FormatVersion    uint32
	DataOffset       uint64
	TimeStamp        uint32
	CreatorAppRaw    [4]byte
	CreatorVersion   uint32
	CreatorHostOSRaw [4]byte
	OriginalSize     uint64
	CurrentSize      uint64
	Geometry         CHS
	DiskType         DiskType
	Checksum         uint32
	UUID             [16]byte
	SavedState       byte
}

// CreatorApp returns the 4-byte creator-app code as a trimmed string.
func (f *Footer) CreatorApp() string {
	return trimTrailingZero(f.CreatorAppRaw[:])
}

// SetCreatorApp sets the 4-byte creator-app code, truncating/padding to 4
// bytes.
func (f *Footer) SetCreatorApp(app string) {
	copy(f.CreatorAppRaw[:], utils.PadString(app, 4))
}

// CreatorHostOS returns the 4-byte creator host OS code as a trimmed string.
func (f *Footer) CreatorHostOS() string {
	return trimTrailingZero(f.CreatorHostOSRaw[:])
}

// SetCreatorHostOS sets the 4-byte creator host OS code.
func (f *Footer) SetCreatorHostOS(os string) {
	copy(f.CreatorHostOSRaw[:], utils.PadString(os, 4))
}

func trimTrailingZero(b []byte) string {
	i := len(b)
	for i > 0 && b[i-1] == 0 {
		i--
	}
	return string(b[:i])
}

// Marshal encodes f into a 512-byte big-endian footer, computing and filling
// in the checksum field.
func (f *Footer) Marshal() []byte {
	buf := make([]byte, FooterSize)
	copy(buf[0:8], FooterCookie)
	copy(buf[8:12], utils.WriteUint32(f.Features, binary.BigEndian))
	copy(buf[12:16], utils.WriteUint32(f.FormatVersion, binary.BigEndian))
	copy(buf[16:24], utils.WriteUint64(f.DataOffset, binary.BigEndian))
	copy(buf[24:28], utils.WriteUint32(f.TimeStamp, binary.BigEndian))
	copy(buf[28:32], f.CreatorAppRaw[:])
	copy(buf[32:36], utils.WriteUint32(f.CreatorVersion, binary.BigEndian))
	copy(buf[36:40], f.CreatorHostOSRaw[:])
	copy(buf[40:48], utils.WriteUint64(f.OriginalSize, binary.BigEndian))
	copy(buf[48:56], utils.WriteUint64(f.CurrentSize, binary.BigEndian))
	copy(buf[56:58], utils.WriteUint16(f.Geometry.Cylinders, binary.BigEndian))
	buf[58] = f.Geometry.Heads
	buf[59] = f.Geometry.SectorsPerTrack
	copy(buf[60:64], utils.WriteUint32(uint32(f.DiskType), binary.BigEndian))
	buf[84] = f.SavedState
	copy(buf[68:84], f.UUID[:])

	f.Checksum = Checksum(buf, 64)
	copy(buf[64:68], utils.WriteUint32(f.Checksum, binary.BigEndian))

	return buf
}

// ParseFooter decodes a 512-byte footer buffer. Checksum mismatches are
// logged but never fail the parse (spec §7 "local recovery").
func ParseFooter(buf []byte) (*Footer, error) {
	if len(buf) < FooterSize {
		return nil, utils.WrapError(utils.KindMalformedFormat, "short footer buffer",
			fmt.Errorf("got %d bytes, want %d", len(buf), FooterSize))
	}
	if string(buf[0:8]) != FooterCookie {
		return nil, utils.WrapError(utils.KindMalformedFormat, "footer cookie",
			fmt.Errorf("got %q, want %q", buf[0:8], FooterCookie))
	}

	f := &Footer{}
	f.Features, _, _ = utils.ReadUint32(buf, 8, binary.BigEndian)
	f.FormatVersion, _, _ = utils.ReadUint32(buf, 12, binary.BigEndian)
	f.DataOffset, _, _ = utils.ReadUint64Buf(buf, 16, binary.BigEndian)
	f.TimeStamp, _, _ = utils.ReadUint32(buf, 24, binary.BigEndian)
	copy(f.CreatorAppRaw[:], buf[28:32])
	f.CreatorVersion, _, _ = utils.ReadUint32(buf, 32, binary.BigEndian)
	copy(f.CreatorHostOSRaw[:], buf[36:40])
	f.OriginalSize, _, _ = utils.ReadUint64Buf(buf, 40, binary.BigEndian)
	f.CurrentSize, _, _ = utils.ReadUint64Buf(buf, 48, binary.BigEndian)

	cyl, _, _ := utils.ReadUint16(buf, 56, binary.BigEndian)
	f.Geometry = CHS{Cylinders: cyl, Heads: buf[58], SectorsPerTrack: buf[59]}

	diskType, _, _ := utils.ReadUint32(buf, 60, binary.BigEndian)
	f.DiskType = DiskType(diskType)

	storedChecksum, _, _ := utils.ReadUint32(buf, 64, binary.BigEndian)
	f.Checksum = storedChecksum

	copy(f.UUID[:], buf[68:84])
	f.SavedState = buf[84]

	recomputed := Checksum(buf[:FooterSize], 64)
	if recomputed != storedChecksum {
		log.Printf("vhd: footer checksum mismatch: stored %#x, recomputed %#x", storedChecksum, recomputed)
	}

	return f, nil
}
