package vhd

import (
	"github.com/djs55/vhddisk/internal/utils"
)

// OverlapReport is one entry of the overlap self-check report: the name,
// start, and length of an allocated region (spec §4.6 Overlap self-check).
type OverlapReport struct {
	Name   string
	Start  uint64
	Length uint64
}

// CheckOverlaps implements the spec §8 testable property 7 self-check: walk
// every tracked region (footer copy, header, BAT, each block's bitmap+data)
// offset-sorted and confirm none extends past the start of the next. On
// success it returns the sorted report for inspection; on failure it returns
// a KindOverlapDetected error.
func (f *File) CheckOverlaps() ([]OverlapReport, error) {
	blocks := f.mapped.Allocator().Blocks()

	report := make([]OverlapReport, len(blocks))
	for i, b := range blocks {
		report[i] = OverlapReport{Name: b.Name, Start: b.Offset, Length: b.Size}
	}

	if err := f.mapped.Allocator().ValidateNoOverlaps(); err != nil {
		return report, utils.WrapError(utils.KindOverlapDetected, "overlap self-check", err)
	}

	return report, nil
}
