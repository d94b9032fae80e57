package vhd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParentLocator_RoundTrip(t *testing.T) {
	want := ParentLocator{
		PlatformCode:       PlatformCodeMacX,
		PlatformDataSpaceRaw: 1,
		PlatformDataLength: 20,
		PlatformDataOffset: 1536,
	}

	buf := want.Marshal()
	require.Len(t, buf, ParentLocatorSize)

	got := ParseParentLocator(buf)
	assert.Equal(t, want.PlatformCode, got.PlatformCode)
	assert.Equal(t, want.PlatformDataSpaceRaw, got.PlatformDataSpaceRaw)
	assert.Equal(t, want.PlatformDataLength, got.PlatformDataLength)
	assert.Equal(t, want.PlatformDataOffset, got.PlatformDataOffset)
}

func TestParentLocator_PlatformDataSpaceNormalization(t *testing.T) {
	// Below 512: sector count, must be scaled to bytes.
	inSectors := ParseParentLocator((&ParentLocator{PlatformDataSpaceRaw: 1}).Marshal())
	assert.Equal(t, uint32(512), inSectors.PlatformDataSpaceBytes)

	// At or above 512: already bytes, passes through unchanged.
	inBytes := ParseParentLocator((&ParentLocator{PlatformDataSpaceRaw: 2048}).Marshal())
	assert.Equal(t, uint32(2048), inBytes.PlatformDataSpaceBytes)
}

func TestParentLocator_IsMacXFileURI(t *testing.T) {
	macX := ParentLocator{PlatformCode: PlatformCodeMacX, PlatformDataLength: 10}
	assert.True(t, macX.IsMacXFileURI())

	empty := ParentLocator{PlatformCode: PlatformCodeMacX, PlatformDataLength: 0}
	assert.False(t, empty.IsMacXFileURI())

	other := ParentLocator{PlatformCode: 0, PlatformDataLength: 10}
	assert.False(t, other.IsMacXFileURI())
}
