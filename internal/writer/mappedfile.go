package writer

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// MappedFile wraps a memory-mapped VHD file. It
// provides:
//   - Space allocation tracking (via Allocator)
//   - Write-at-address operations against the mapped region directly,
//     growing the mapping (truncate + remap) on demand
//   - End-of-file tracking
//   - Msync-backed flush control
//
// Thread-safety: not thread-safe. Caller must synchronize access (spec §5:
// "the memory map is the sole locus of mutation... no internal locking is
// provided").
type MappedFile struct {
	file      *os.File
	data      []byte
	allocator *Allocator
}

// CreateMode specifies the file creation behavior.
type CreateMode int

const (
	// ModeTruncate creates a new file, truncating if it exists.
	ModeTruncate CreateMode = iota

	// ModeExclusive creates a new file, fails if it exists.
	ModeExclusive
)

const mappedFilePerm = 0666

// NewMappedFile creates and maps a new VHD file.
//
// Parameters:
//   - filename: path to the file to create
//   - mode: creation mode (truncate or exclusive)
//   - initialOffset: starting address for allocations (e.g. 0 for a fixed
//     disk's single trailing footer, or data_offset + header size for
//     dynamic/differencing disks before the BAT is placed)
func NewMappedFile(filename string, mode CreateMode, initialOffset uint64) (*MappedFile, error) {
	var osFile *os.File
	var err error

	switch mode {
	case ModeTruncate:
		osFile, err = os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, mappedFilePerm)
	case ModeExclusive:
		osFile, err = os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_EXCL, mappedFilePerm)
	default:
		return nil, fmt.Errorf("invalid create mode: %d", mode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	mf := &MappedFile{
		file:      osFile,
		allocator: NewAllocator(initialOffset),
	}

	if initialOffset > 0 {
		if err := mf.remap(initialOffset); err != nil {
			osFile.Close()
			return nil, err
		}
	}

	return mf, nil
}

// OpenMappedFile maps an existing file read/write, for vhd.Load and similar
// parse paths. The allocator starts at the file's current size, since the
// whole file is already allocated space from the allocator's point of view.
func OpenMappedFile(filename string) (*MappedFile, error) {
	osFile, err := os.OpenFile(filename, os.O_RDWR, mappedFilePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := osFile.Stat()
	if err != nil {
		osFile.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	size := uint64(info.Size())
	mf := &MappedFile{
		file:      osFile,
		allocator: NewAllocator(size),
	}

	if size > 0 {
		if err := mf.remap(size); err != nil {
			osFile.Close()
			return nil, err
		}
	}

	return mf, nil
}

// remap truncates the underlying file to size and re-establishes the mmap
// over it, unmapping any previous mapping first.
func (mf *MappedFile) remap(size uint64) error {
	if mf.data != nil {
		if err := unix.Munmap(mf.data); err != nil {
			return fmt.Errorf("munmap failed: %w", err)
		}
		mf.data = nil
	}

	if err := mf.file.Truncate(int64(size)); err != nil {
		return fmt.Errorf("truncate to %d failed: %w", size, err)
	}

	data, err := unix.Mmap(int(mf.file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap failed: %w", err)
	}

	mf.data = data
	return nil
}

func (mf *MappedFile) ensureMapped(size uint64) error {
	if uint64(len(mf.data)) >= size {
		return nil
	}
	return mf.remap(size)
}

// Allocate reserves size bytes named name at the current end of file,
// growing the memory map to cover it, and returns the address it was placed
// at.
func (mf *MappedFile) Allocate(name string, size uint64) (uint64, error) {
	if mf.file == nil {
		return 0, fmt.Errorf("mapped file is closed")
	}

	addr, err := mf.allocator.Allocate(name, size)
	if err != nil {
		return 0, err
	}

	if err := mf.ensureMapped(addr + size); err != nil {
		return 0, err
	}

	return addr, nil
}

// WriteAt copies data into the mapped region at offset, growing the mapping
// first if offset+len(data) extends past its current end. Implements
// io.WriterAt.
func (mf *MappedFile) WriteAt(data []byte, offset int64) (int, error) {
	if mf.file == nil {
		return 0, fmt.Errorf("mapped file is closed")
	}
	if len(data) == 0 {
		return 0, nil
	}
	if offset < 0 {
		return 0, fmt.Errorf("negative offset %d", offset)
	}

	end := uint64(offset) + uint64(len(data))
	if err := mf.ensureMapped(end); err != nil {
		return 0, err
	}

	n := copy(mf.data[uint64(offset):end], data)
	return n, nil
}

// WriteAtAddress writes data at a specific address (convenience method with
// uint64 address).
func (mf *MappedFile) WriteAtAddress(data []byte, addr uint64) error {
	_, err := mf.WriteAt(data, int64(addr))
	return err
}

// ReadAt reads data from the mapped region. Implements io.ReaderAt.
func (mf *MappedFile) ReadAt(buf []byte, addr int64) (int, error) {
	if mf.file == nil {
		return 0, fmt.Errorf("mapped file is closed")
	}
	if addr < 0 || uint64(addr) > uint64(len(mf.data)) {
		return 0, fmt.Errorf("read at %d beyond mapped size %d", addr, len(mf.data))
	}

	n := copy(buf, mf.data[addr:])
	if n < len(buf) {
		return n, fmt.Errorf("short read at %d: got %d of %d bytes", addr, n, len(buf))
	}
	return n, nil
}

// WriteAtWithAllocation allocates space named name and writes data into it in
// one step, returning the address it landed at.
func (mf *MappedFile) WriteAtWithAllocation(name string, data []byte) (uint64, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("cannot write empty data for %q", name)
	}

	addr, err := mf.Allocate(name, uint64(len(data)))
	if err != nil {
		return 0, err
	}

	if err := mf.WriteAtAddress(data, addr); err != nil {
		return 0, err
	}

	return addr, nil
}

// EndOfFile returns the current end-of-file address.
func (mf *MappedFile) EndOfFile() uint64 {
	return mf.allocator.EndOfFile()
}

// Bytes exposes the raw mapped region read-write, for vhd package code that
// indexes directly into the BAT or a block in place rather than going through
// WriteAt/ReadAt.
func (mf *MappedFile) Bytes() []byte {
	return mf.data
}

// Flush commits the mapped region back to the file via msync.
func (mf *MappedFile) Flush() error {
	if mf.file == nil {
		return fmt.Errorf("mapped file is closed")
	}
	if mf.data == nil {
		return nil
	}
	return unix.Msync(mf.data, unix.MS_SYNC)
}

// Close unmaps the region and closes the underlying file. This does NOT
// automatically flush — call Flush() first if needed.
func (mf *MappedFile) Close() error {
	if mf.file == nil {
		return nil
	}

	var unmapErr error
	if mf.data != nil {
		unmapErr = unix.Munmap(mf.data)
		mf.data = nil
	}

	closeErr := mf.file.Close()
	mf.file = nil

	if unmapErr != nil {
		return unmapErr
	}
	return closeErr
}

// File returns the underlying *os.File. Use with caution — direct file
// operations bypass the mapping and allocation tracking.
func (mf *MappedFile) File() *os.File {
	return mf.file
}

// Allocator returns the space allocator.
func (mf *MappedFile) Allocator() *Allocator {
	return mf.allocator
}

var (
	_ io.ReaderAt = (*MappedFile)(nil)
	_ io.WriterAt = (*MappedFile)(nil)
)
