package vhd

import (
	"fmt"

	"github.com/djs55/vhddisk/internal/utils"
	"github.com/djs55/vhddisk/internal/writer"
)

// File is a loaded VHD: the logical entity of spec §3 — path, memory map,
// footer, and (for dynamic/differencing disks) header, BAT, and an
// optionally resolved parent.
type File struct {
	path   string
	mapped *writer.MappedFile

	Footer *Footer
	Header *Header // nil for fixed disks
	BAT    BAT     // nil for fixed disks
	Parent *File   // non-nil once a differencing disk's parent is resolved
}

// Path returns the file's on-disk path.
func (f *File) Path() string {
	return f.path
}

// Load implements spec §4.5: memory-map path, parse the footer, and — for
// dynamic/differencing disks — the header, BAT, and (for differencing
// disks) the resolved parent chain.
func Load(path string) (*File, error) {
	mapped, err := writer.OpenMappedFile(path)
	if err != nil {
		return nil, utils.WrapError(utils.KindMalformedFormat, "open vhd file", err)
	}

	f := &File{path: path, mapped: mapped}

	footerBuf := make([]byte, FooterSize)
	if _, err := mapped.ReadAt(footerBuf, 0); err != nil {
		mapped.Close()
		return nil, utils.WrapError(utils.KindMalformedFormat, "read footer", err)
	}
	// A fixed disk has no footer copy at offset 0; its only footer is the
	// last FooterSize bytes of the file.
	if string(footerBuf[0:8]) != FooterCookie && mapped.EndOfFile() >= FooterSize {
		if _, err := mapped.ReadAt(footerBuf, int64(mapped.EndOfFile()-FooterSize)); err != nil {
			mapped.Close()
			return nil, utils.WrapError(utils.KindMalformedFormat, "read trailing footer", err)
		}
	}

	footer, err := ParseFooter(footerBuf)
	if err != nil {
		mapped.Close()
		return nil, err
	}
	f.Footer = footer

	if footer.DiskType == DiskTypeFixed {
		return f, nil
	}

	headerBuf := make([]byte, HeaderSize)
	if _, err := mapped.ReadAt(headerBuf, FooterSize); err != nil {
		mapped.Close()
		return nil, utils.WrapError(utils.KindMalformedFormat, "read header", err)
	}

	header, err := ParseHeader(headerBuf)
	if err != nil {
		mapped.Close()
		return nil, err
	}
	f.Header = header

	batBuf := make([]byte, header.MaxTableEntries*4)
	if _, err := mapped.ReadAt(batBuf, int64(header.TableOffset)); err != nil {
		mapped.Close()
		return nil, utils.WrapError(utils.KindMalformedFormat, "read BAT", err)
	}

	bat, err := ParseBAT(batBuf, header.MaxTableEntries)
	if err != nil {
		mapped.Close()
		return nil, err
	}
	f.BAT = bat

	if footer.DiskType == DiskTypeDifferencing {
		parent, err := resolveParent(f)
		if err != nil {
			mapped.Close()
			return nil, err
		}
		f.Parent = parent
	}

	return f, nil
}

// Close unmaps the backing file, and recursively closes any resolved parent
// chain.
func (f *File) Close() error {
	var err error
	if f.mapped != nil {
		err = f.mapped.Close()
	}
	if f.Parent != nil {
		if perr := f.Parent.Close(); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

// Flush commits pending mapped-region writes to disk.
func (f *File) Flush() error {
	if f.mapped == nil {
		return fmt.Errorf("vhd file has no backing map")
	}
	return f.mapped.Flush()
}
