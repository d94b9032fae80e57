// Package backend implements the service loop of spec §4.4: it decodes
// requests off a shared ring, dispatches per-segment I/O through a
// caller-supplied Ops implementation, and publishes responses.
package backend

import "context"

// Ops is the storage-side collaborator a backend is bound to. A real
// implementation wraps a vhd.File; tests substitute an in-memory fake.
//
// sectorInDevice is the absolute device sector the transfer starts at;
// firstSectorInPage/lastSectorInPage select the sub-range of page_buf (one
// page's worth of sectors) this segment covers.
type Ops interface {
	Read(ctx context.Context, pageBuf []byte, sectorInDevice uint64, firstSectorInPage, lastSectorInPage uint8) error
	Write(ctx context.Context, pageBuf []byte, sectorInDevice uint64, firstSectorInPage, lastSectorInPage uint8) error
}
