package vhd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djs55/vhddisk/internal/writer"
)

func newTestDynamic(t *testing.T, size uint64, blockSize uint32) *File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.vhd")
	f, err := CreateNewDynamic(path, size, [16]byte{1, 2, 3}, CreateOptions{BlockSize: blockSize})
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

// TestWriteThenReadSector_AllocatesOnFirstWrite covers the scenario of a
// write to an unallocated block: the block is allocated, zero-filled, the
// bitmap bit is set, and only the written sector differs from zero.
func TestWriteThenReadSector_AllocatesOnFirstWrite(t *testing.T) {
	f := newTestDynamic(t, 4096, 4096) // 8 sectors/block, 1 block total

	assert.False(t, f.BAT.IsAllocated(0))

	want := bytes.Repeat([]byte{'A'}, SectorSize)
	require.NoError(t, f.WriteSector(0, want))

	assert.True(t, f.BAT.IsAllocated(0))

	got, err := f.ReadSector(0)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	zeros, err := f.ReadSector(1)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, SectorSize), zeros)
}

func TestReadSector_UnallocatedBlockIsZero(t *testing.T) {
	f := newTestDynamic(t, 4096, 4096)

	got, err := f.ReadSector(3)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, SectorSize), got)
}

func TestReadWriteSector_OutOfRange(t *testing.T) {
	f := newTestDynamic(t, 4096, 4096)

	_, err := f.ReadSector(8) // size is exactly 8 sectors
	assert.Error(t, err)

	err = f.WriteSector(8, make([]byte, SectorSize))
	assert.Error(t, err)
}

func TestWriteSector_WrongSizeRejected(t *testing.T) {
	f := newTestDynamic(t, 4096, 4096)
	err := f.WriteSector(0, make([]byte, SectorSize-1))
	assert.Error(t, err)
}

// TestTopUnusedOffset_EmptyBAT covers the BAT-empty branch of
// top_unused_offset: table_offset + 4*max_table_entries.
func TestTopUnusedOffset_EmptyBAT(t *testing.T) {
	f := newTestDynamic(t, 4096, 4096)
	want := f.Header.TableOffset + uint64(f.Header.MaxTableEntries)*4
	assert.Equal(t, want, f.TopUnusedOffset())
}

// TestTopUnusedOffset_GrowsAfterAllocation covers the allocated branch:
// bat[i]*512 + block_size + bitmap_size_padded.
func TestTopUnusedOffset_GrowsAfterAllocation(t *testing.T) {
	f := newTestDynamic(t, 8192, 4096) // 2 blocks

	require.NoError(t, f.WriteSector(0, bytes.Repeat([]byte{'A'}, SectorSize)))

	blockStart := uint64(f.BAT[0]) * SectorSize
	want := blockStart + uint64(f.Header.BlockSize) + uint64(f.Header.BitmapSize())
	assert.Equal(t, want, f.TopUnusedOffset())
}

// TestWriteSector_SecondBlockDoesNotOverlapFirst writes into two distinct
// blocks of the same disk and confirms CheckOverlaps stays clean (spec §8
// testable property 7).
func TestWriteSector_SecondBlockDoesNotOverlapFirst(t *testing.T) {
	f := newTestDynamic(t, 8192, 4096) // 2 blocks, 8 sectors each

	require.NoError(t, f.WriteSector(0, bytes.Repeat([]byte{'A'}, SectorSize)))
	require.NoError(t, f.WriteSector(8, bytes.Repeat([]byte{'B'}, SectorSize)))

	report, err := f.CheckOverlaps()
	require.NoError(t, err)
	assert.NotEmpty(t, report)

	got0, err := f.ReadSector(0)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{'A'}, SectorSize), got0)

	got8, err := f.ReadSector(8)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{'B'}, SectorSize), got8)
}

// TestWriteSector_RewriteSameSector covers writing the same sector twice: the
// block must not be re-allocated (BAT entry unchanged).
func TestWriteSector_RewriteSameSector(t *testing.T) {
	f := newTestDynamic(t, 4096, 4096)

	require.NoError(t, f.WriteSector(0, bytes.Repeat([]byte{'A'}, SectorSize)))
	firstEntry := f.BAT[0]

	require.NoError(t, f.WriteSector(0, bytes.Repeat([]byte{'Z'}, SectorSize)))
	assert.Equal(t, firstEntry, f.BAT[0])

	got, err := f.ReadSector(0)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{'Z'}, SectorSize), got)
}

func TestFixedDisk_ReadWriteSector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixed.vhd")
	mf, err := writer.NewMappedFile(path, writer.ModeTruncate, 4096)
	require.NoError(t, err)

	footer := &Footer{
		FormatVersion: 0x00010000,
		DataOffset:    NoDataOffset,
		OriginalSize:  4096,
		CurrentSize:   4096,
		Geometry:      ComputeCHS(8),
		DiskType:      DiskTypeFixed,
	}
	footer.SetCreatorApp(DefaultCreatorApp)
	footer.SetCreatorHostOS(HostOSWindows)

	require.NoError(t, mf.WriteAtAddress(footer.Marshal(), 4096-FooterSize))

	f := &File{path: path, mapped: mf, Footer: footer}
	defer f.Close()

	want := bytes.Repeat([]byte{'F'}, SectorSize)
	require.NoError(t, f.WriteSector(0, want))

	got, err := f.ReadSector(0)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
