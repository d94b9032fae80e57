package vhd

import (
	"encoding/binary"
	"fmt"

	"github.com/djs55/vhddisk/internal/utils"
)

// SectorSize is the fixed sector size every VHD operation addresses in.
const SectorSize = 512

// ReadSector implements spec §4.6 "Read path": bounds-check against
// f_current_size, fall through to the parent (differencing) or zeros
// (dynamic) for an unallocated block, and consult the bitmap only for
// differencing disks.
func (f *File) ReadSector(s uint64) ([]byte, error) {
	if f.Footer.DiskType == DiskTypeFixed {
		return f.readFixedSector(s)
	}

	if s*SectorSize >= f.Footer.CurrentSize {
		return nil, utils.WrapError(utils.KindOutOfRange, "read sector",
			fmt.Errorf("sector %d beyond current size %d", s, f.Footer.CurrentSize))
	}

	addr := TranslateSector(s, f.Header.BlockSectorCount())

	if !f.BAT.IsAllocated(addr.Block) {
		if f.Footer.DiskType == DiskTypeDifferencing && f.Parent != nil {
			return f.Parent.ReadSector(s)
		}
		return make([]byte, SectorSize), nil
	}

	blockStart := f.Header.BlockStart(f.BAT[addr.Block])

	if f.Footer.DiskType == DiskTypeDifferencing {
		bitmapByte, err := f.readByte(addr.BitmapByteOffset(blockStart))
		if err != nil {
			return nil, err
		}
		if !addr.BitSet(bitmapByte) {
			if f.Parent == nil {
				return nil, utils.WrapError(utils.KindParentResolution, "read sector",
					fmt.Errorf("sector %d delegates to parent but none is resolved", s))
			}
			return f.Parent.ReadSector(s)
		}
	}

	dataStart := f.Header.DataStart(blockStart)
	buf := make([]byte, SectorSize)
	if _, err := f.mapped.ReadAt(buf, int64(addr.SectorOffset(dataStart))); err != nil {
		return nil, utils.WrapError(utils.KindBackendIOError, "read sector data", err)
	}
	return buf, nil
}

func (f *File) readFixedSector(s uint64) ([]byte, error) {
	if s*SectorSize >= f.Footer.CurrentSize {
		return nil, utils.WrapError(utils.KindOutOfRange, "read sector",
			fmt.Errorf("sector %d beyond current size %d", s, f.Footer.CurrentSize))
	}
	buf := make([]byte, SectorSize)
	if _, err := f.mapped.ReadAt(buf, int64(s*SectorSize)); err != nil {
		return nil, utils.WrapError(utils.KindBackendIOError, "read sector data", err)
	}
	return buf, nil
}

func (f *File) readByte(offset uint64) (byte, error) {
	buf := make([]byte, 1)
	if _, err := f.mapped.ReadAt(buf, int64(offset)); err != nil {
		return 0, utils.WrapError(utils.KindBackendIOError, "read bitmap byte", err)
	}
	return buf[0], nil
}

// WriteSector implements spec §4.6 "Write path": allocate the block on
// first write (zero-filled bitmap + data at top_unused_offset), then set the
// sector's bitmap bit and write its 512 bytes.
func (f *File) WriteSector(s uint64, data []byte) error {
	if f.Footer.DiskType == DiskTypeFixed {
		return f.writeFixedSector(s, data)
	}
	if len(data) != SectorSize {
		return utils.WrapError(utils.KindOutOfRange, "write sector",
			fmt.Errorf("data must be exactly %d bytes, got %d", SectorSize, len(data)))
	}
	if s*SectorSize >= f.Footer.CurrentSize {
		return utils.WrapError(utils.KindOutOfRange, "write sector",
			fmt.Errorf("sector %d beyond current size %d", s, f.Footer.CurrentSize))
	}

	addr := TranslateSector(s, f.Header.BlockSectorCount())

	if !f.BAT.IsAllocated(addr.Block) {
		if err := f.allocateBlock(addr.Block); err != nil {
			return err
		}
	}

	blockStart := f.Header.BlockStart(f.BAT[addr.Block])
	bitmapOff := addr.BitmapByteOffset(blockStart)

	bitmapByte, err := f.readByte(bitmapOff)
	if err != nil {
		return err
	}
	bitmapByte = addr.SetBit(bitmapByte)
	if err := f.mapped.WriteAtAddress([]byte{bitmapByte}, bitmapOff); err != nil {
		return utils.WrapError(utils.KindBackendIOError, "write bitmap byte", err)
	}

	dataStart := f.Header.DataStart(blockStart)
	if err := f.mapped.WriteAtAddress(data, addr.SectorOffset(dataStart)); err != nil {
		return utils.WrapError(utils.KindBackendIOError, "write sector data", err)
	}

	return nil
}

func (f *File) writeFixedSector(s uint64, data []byte) error {
	if len(data) != SectorSize {
		return utils.WrapError(utils.KindOutOfRange, "write sector",
			fmt.Errorf("data must be exactly %d bytes, got %d", SectorSize, len(data)))
	}
	if s*SectorSize >= f.Footer.CurrentSize {
		return utils.WrapError(utils.KindOutOfRange, "write sector",
			fmt.Errorf("sector %d beyond current size %d", s, f.Footer.CurrentSize))
	}
	if err := f.mapped.WriteAtAddress(data, s*SectorSize); err != nil {
		return utils.WrapError(utils.KindBackendIOError, "write sector data", err)
	}
	return nil
}

// TopUnusedOffset implements spec §4.6 top_unused_offset: the maximum of
// (bat[i]*512 + block_size + bitmap_size_padded) over allocated blocks, or
// — if the BAT is empty — table_offset + 4*max_table_entries.
func (f *File) TopUnusedOffset() uint64 {
	blockSpan := uint64(f.Header.BlockSize) + uint64(f.Header.BitmapSize())

	top := f.Header.TableOffset + uint64(f.Header.MaxTableEntries)*4
	any := false
	for _, entry := range f.BAT {
		if entry == UnallocatedBlock {
			continue
		}
		any = true
		candidate := uint64(entry)*SectorSize + blockSpan
		if candidate > top {
			top = candidate
		}
	}
	if !any {
		return f.Header.TableOffset + uint64(f.Header.MaxTableEntries)*4
	}
	return top
}

// allocateBlock places a new, zero-filled block (bitmap + data) at
// top_unused_offset, sector-aligned, updates the in-memory BAT and the
// on-disk BAT entry, then persists the trailing footer at the new end of
// file.
func (f *File) allocateBlock(block uint32) error {
	want := ceilToSector(f.TopUnusedOffset())
	blockSpan := uint64(f.Header.BitmapSize()) + uint64(f.Header.BlockSize)

	eof := f.mapped.EndOfFile()
	if eof < want {
		if _, err := f.mapped.Allocate("block-align-pad", want-eof); err != nil {
			return utils.WrapError(utils.KindBackendIOError, "pad to sector boundary", err)
		}
	}

	place, err := f.mapped.Allocate(fmt.Sprintf("block-%d", block), blockSpan)
	if err != nil {
		return utils.WrapError(utils.KindBackendIOError, "allocate block", err)
	}
	if place != want {
		return utils.WrapError(utils.KindOverlapDetected, "block placement",
			fmt.Errorf("sequential allocator placed block %d at %d, top_unused_offset computed %d", block, place, want))
	}

	f.BAT[block] = uint32(place / SectorSize)

	zeroed := make([]byte, blockSpan)
	if err := f.mapped.WriteAtAddress(zeroed, place); err != nil {
		return utils.WrapError(utils.KindBackendIOError, "zero-fill new block", err)
	}

	entryOffset := f.Header.TableOffset + uint64(block)*4
	if err := f.mapped.WriteAtAddress(utils.WriteUint32(f.BAT[block], binary.BigEndian), entryOffset); err != nil {
		return utils.WrapError(utils.KindBackendIOError, "persist BAT entry", err)
	}

	trailingOffset := place + blockSpan
	footerBuf := f.Footer.Marshal()
	if err := f.mapped.WriteAtAddress(footerBuf, trailingOffset); err != nil {
		return utils.WrapError(utils.KindBackendIOError, "persist trailing footer", err)
	}

	return nil
}

func ceilToSector(offset uint64) uint64 {
	return (offset + SectorSize - 1) / SectorSize * SectorSize
}
