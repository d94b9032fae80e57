package vhd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/djs55/vhddisk/internal/utils"
	"github.com/djs55/vhddisk/internal/writer"
)

// DefaultBlockSize is the block size new dynamic/differencing disks use
// unless CreateOptions.BlockSize overrides it (spec §4.6: "typically 2 MiB").
const DefaultBlockSize = 0x200000

// defaultDataOffset and defaultTableOffset are the footer/header/BAT layout
// spec §4.6 Construction names explicitly.
const (
	defaultDataOffset  = 512
	defaultTableOffset = 2048
)

// CreateOptions customizes CreateNewDynamic/CreateNewDifference. A zero
// value picks the documented defaults.
type CreateOptions struct {
	BlockSize     uint32
	CreatorApp    string
	CreatorHostOS string
}

func (o CreateOptions) blockSize() uint32 {
	if o.BlockSize == 0 {
		return DefaultBlockSize
	}
	return o.BlockSize
}

func (o CreateOptions) creatorApp() string {
	if o.CreatorApp == "" {
		return DefaultCreatorApp
	}
	return o.CreatorApp
}

func (o CreateOptions) creatorHostOS() string {
	if o.CreatorHostOS == "" {
		return HostOSWindows
	}
	return o.CreatorHostOS
}

func roundUpToBlock(size uint64, blockSize uint32) uint64 {
	b := uint64(blockSize)
	return (size + b - 1) / b * b
}

// CreateNewDynamic implements spec §4.6 Construction: round requestedSize up
// to the next block-size multiple, compute the pinned CHS geometry, and lay
// out footer copy | header | BAT | trailing footer.
func CreateNewDynamic(path string, requestedSize uint64, uuid [16]byte, opts CreateOptions) (*File, error) {
	blockSize := opts.blockSize()
	size := roundUpToBlock(requestedSize, blockSize)

	maxTableEntries := size / uint64(blockSize)
	if _, err := utils.SafeMultiply(maxTableEntries, 4); err != nil {
		return nil, utils.WrapError(utils.KindOutOfRange, "BAT size overflow", err)
	}

	mf, err := writer.NewMappedFile(path, writer.ModeTruncate, 0)
	if err != nil {
		return nil, utils.WrapError(utils.KindMalformedFormat, "create vhd file", err)
	}

	footer := &Footer{
		Features:      FeatureReserved,
		FormatVersion: 0x00010000,
		DataOffset:    defaultDataOffset,
		TimeStamp:     uint32(time.Now().Unix() - Epoch2000),
		OriginalSize:  size,
		CurrentSize:   size,
		Geometry:      ComputeCHS(size / 512),
		DiskType:      DiskTypeDynamic,
		UUID:          uuid,
	}
	footer.SetCreatorApp(opts.creatorApp())
	footer.SetCreatorHostOS(opts.creatorHostOS())

	header := &Header{
		DataOffset:      NoDataOffset,
		TableOffset:     defaultTableOffset,
		HeaderVersion:   0x00010000,
		MaxTableEntries: uint32(maxTableEntries),
		BlockSize:       blockSize,
	}

	bat := NewEmptyBAT(header.MaxTableEntries)

	if err := layoutNewFile(mf, footer, header, bat); err != nil {
		mf.Close()
		return nil, err
	}

	f := &File{path: path, mapped: mf, Footer: footer, Header: header, BAT: bat}
	return f, nil
}

// CreateNewDifference implements spec §4.6 Construction for differencing
// disks: load parent, copy its size/geometry/table shape, and populate
// locator 0 with a file:// reference back to it.
func CreateNewDifference(path, parentPath string, uuid [16]byte, opts CreateOptions) (*File, error) {
	parent, err := Load(parentPath)
	if err != nil {
		return nil, utils.WrapError(utils.KindParentResolution, "load parent for differencing disk", err)
	}

	blockSize := parent.Header.BlockSize
	if opts.BlockSize != 0 {
		blockSize = opts.BlockSize
	}

	mf, err := writer.NewMappedFile(path, writer.ModeTruncate, 0)
	if err != nil {
		parent.Close()
		return nil, utils.WrapError(utils.KindMalformedFormat, "create vhd file", err)
	}

	footer := &Footer{
		Features:      FeatureReserved,
		FormatVersion: 0x00010000,
		DataOffset:    defaultDataOffset,
		TimeStamp:     uint32(time.Now().Unix() - Epoch2000),
		OriginalSize:  parent.Footer.CurrentSize,
		CurrentSize:   parent.Footer.CurrentSize,
		Geometry:      parent.Footer.Geometry,
		DiskType:      DiskTypeDifferencing,
		UUID:          uuid,
	}
	footer.SetCreatorApp(opts.creatorApp())
	footer.SetCreatorHostOS(opts.creatorHostOS())

	info, err := os.Stat(parentPath)
	if err != nil {
		mf.Close()
		parent.Close()
		return nil, utils.WrapError(utils.KindParentResolution, "stat parent", err)
	}

	header := &Header{
		DataOffset:      NoDataOffset,
		TableOffset:     defaultTableOffset,
		HeaderVersion:   0x00010000,
		MaxTableEntries: parent.Header.MaxTableEntries,
		BlockSize:       blockSize,
		ParentUID:       parent.Footer.UUID,
		ParentTimeStamp: uint32(info.ModTime().Unix() - Epoch2000),
	}

	parentURI := fmt.Sprintf("file://./%s", filepath.Base(parentPath))
	parentData := encodeParentUnicodeName([]rune(parentURI))
	header.Locators[0] = ParentLocator{
		PlatformCode:         PlatformCodeMacX,
		PlatformDataSpaceRaw: uint32(len(parentData)),
		PlatformDataLength:   uint32(len(parentData)),
		PlatformDataOffset:   1536,
		PlatformData:         parentData,
	}

	bat := NewEmptyBAT(header.MaxTableEntries)

	if err := layoutNewFile(mf, footer, header, bat); err != nil {
		mf.Close()
		parent.Close()
		return nil, err
	}

	if err := mf.WriteAtAddress(parentData, header.Locators[0].PlatformDataOffset); err != nil {
		mf.Close()
		parent.Close()
		return nil, utils.WrapError(utils.KindMalformedFormat, "write parent locator data", err)
	}

	f := &File{path: path, mapped: mf, Footer: footer, Header: header, BAT: bat, Parent: parent}
	return f, nil
}

// layoutNewFile places footer-copy | header | (padding to table_offset) |
// BAT | trailing-footer, in that order, via the file's sequential
// allocator, then marshals and writes the real content for each region.
func layoutNewFile(mf *writer.MappedFile, footer *Footer, header *Header, bat BAT) error {
	footerAddr, err := mf.Allocate("footer-copy", FooterSize)
	if err != nil {
		return err
	}

	headerAddr, err := mf.Allocate("header", HeaderSize)
	if err != nil {
		return err
	}

	padding := int64(header.TableOffset) - int64(headerAddr) - HeaderSize
	if padding < 0 {
		return utils.WrapError(utils.KindOutOfRange, "header/table layout",
			fmt.Errorf("table_offset %d overlaps header ending at %d", header.TableOffset, headerAddr+HeaderSize))
	}
	if padding > 0 {
		if _, err := mf.Allocate("header-table-padding", uint64(padding)); err != nil {
			return err
		}
	}

	batAddr, err := mf.Allocate("bat", uint64(len(bat))*4)
	if err != nil {
		return err
	}
	if batAddr != header.TableOffset {
		return utils.WrapError(utils.KindOutOfRange, "BAT placement",
			fmt.Errorf("BAT landed at %d, want table_offset %d", batAddr, header.TableOffset))
	}

	headerBuf := header.Marshal()
	if err := mf.WriteAtAddress(headerBuf, headerAddr); err != nil {
		return err
	}

	if err := mf.WriteAtAddress(MarshalBAT(bat), batAddr); err != nil {
		return err
	}

	// The trailing footer always sits at top_unused_offset and relocates every
	// time a new block is appended (sectorio.go's allocateBlock rewrites it).
	// It is deliberately NOT tracked by the allocator: tracking it as
	// permanent space would make the very first block allocation collide
	// with it instead of legitimately growing past it.
	trailingAddr := mf.EndOfFile()

	footerBuf := footer.Marshal()
	if err := mf.WriteAtAddress(footerBuf, footerAddr); err != nil {
		return err
	}
	if err := mf.WriteAtAddress(footerBuf, trailingAddr); err != nil {
		return err
	}

	return nil
}
