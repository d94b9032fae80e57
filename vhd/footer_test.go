package vhd

import (
	"testing"

	"github.com/djs55/vhddisk/internal/utils"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFooter() *Footer {
	f := &Footer{
		Features:      FeatureReserved,
		FormatVersion: 0x00010000,
		DataOffset:    512,
		TimeStamp:     12345,
		CurrentSize:   4 * 1024 * 1024,
		OriginalSize:  4 * 1024 * 1024,
		Geometry:      ComputeCHS(8192),
		DiskType:      DiskTypeDynamic,
		SavedState:    0,
	}
	f.SetCreatorApp(DefaultCreatorApp)
	f.SetCreatorHostOS(HostOSWindows)
	f.UUID = [16]byte{0x0b, 0x8a, 0xe7, 0xed, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	return f
}

// TestFooter_RoundTrip is spec §8 property 4: parse(marshal(footer)) ==
// footer bit-for-bit.
func TestFooter_RoundTrip(t *testing.T) {
	want := sampleFooter()
	buf := want.Marshal()
	require.Len(t, buf, FooterSize)

	got, err := ParseFooter(buf)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("footer round-trip mismatch (-want +got):\n%s", diff)
	}
}

// TestFooter_Checksum is spec §8 property 5.
func TestFooter_Checksum(t *testing.T) {
	f := sampleFooter()
	buf := f.Marshal()

	recomputed := Checksum(buf, 64)
	assert.Equal(t, f.Checksum, recomputed)
}

func TestFooter_CookieAndLayout(t *testing.T) {
	f := sampleFooter()
	buf := f.Marshal()

	assert.Equal(t, FooterCookie, string(buf[0:8]))
	assert.Equal(t, uint32(DiskTypeDynamic), uint32FromBE(buf[60:64]))
}

func TestParseFooter_BadCookie(t *testing.T) {
	buf := make([]byte, FooterSize)
	copy(buf, "notconec")

	_, err := ParseFooter(buf)
	assert.True(t, utils.Is(err, utils.KindMalformedFormat))
}

func TestParseFooter_ShortBuffer(t *testing.T) {
	_, err := ParseFooter(make([]byte, 10))
	assert.Error(t, err)
}

func TestParseFooter_ChecksumMismatchTolerated(t *testing.T) {
	f := sampleFooter()
	buf := f.Marshal()
	buf[64] ^= 0xFF // corrupt the stored checksum

	got, err := ParseFooter(buf)
	require.NoError(t, err)
	assert.NotEqual(t, Checksum(buf, 64), got.Checksum)
}

func TestFooter_CreatorAccessors(t *testing.T) {
	f := &Footer{}
	f.SetCreatorApp("tap")
	f.SetCreatorHostOS(HostOSMacintosh)

	assert.Equal(t, "tap", f.CreatorApp())
	assert.Equal(t, "Mac ", f.CreatorHostOS())
}

func uint32FromBE(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
