// Package ring implements the shared ring protocol of spec §4.2: four
// free-running producer/consumer/event indices in a shared 4 KiB page,
// followed by a fixed-size array of request/response slots, with the
// barrier and notify-decision contract that makes producer and consumer
// safe to run in different address spaces.
package ring

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// PageSize is the fixed size of the shared ring's backing page.
const PageSize = 4096

// Page is an anonymous, shared memory-mapped page: the same mechanism
// internal/writer.MappedFile uses for a VHD file, sized to exactly one ring
// page instead of a growable file.
type Page struct {
	data []byte
}

// NewPage creates a fresh, zeroed anonymous shared page.
func NewPage() (*Page, error) {
	data, err := unix.Mmap(-1, 0, PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap ring page: %w", err)
	}
	return &Page{data: data}, nil
}

// Bytes exposes the raw page, for tests and for wiring a Ring onto an
// existing mapping (e.g. one obtained from a grant-page collaborator).
func (p *Page) Bytes() []byte {
	return p.data
}

// Close unmaps the page.
func (p *Page) Close() error {
	if p.data == nil {
		return nil
	}
	err := unix.Munmap(p.data)
	p.data = nil
	return err
}
