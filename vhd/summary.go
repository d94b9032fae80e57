package vhd

// Summary is a read-only digest of a loaded VHD, the shape cmd/vhdctl's
// inspect subcommand prints and tests assert against instead of reaching
// into Footer/Header/BAT fields directly.
type Summary struct {
	Path            string
	DiskType        DiskType
	OriginalSize    uint64
	CurrentSize     uint64
	Geometry        CHS
	BlockSize       uint32
	AllocatedBlocks int
	ParentPath      string
}

// Inspect builds a Summary of f.
func (f *File) Inspect() Summary {
	s := Summary{
		Path:         f.path,
		DiskType:     f.Footer.DiskType,
		OriginalSize: f.Footer.OriginalSize,
		CurrentSize:  f.Footer.CurrentSize,
		Geometry:     f.Footer.Geometry,
	}

	if f.Header != nil {
		s.BlockSize = f.Header.BlockSize
	}

	for _, entry := range f.BAT {
		if entry != UnallocatedBlock {
			s.AllocatedBlocks++
		}
	}

	if f.Parent != nil {
		s.ParentPath = f.Parent.Path()
	}

	return s
}
