// Package vhd implements the VHD (Virtual Hard Disk) file format: fixed,
// dynamic, and differencing disks — footer, header, parent locators, BAT,
// per-block bitmaps, checksums, chain traversal, and sector read/write with
// allocate-on-write.
package vhd

// Checksum computes the VHD one's-complement checksum of buf: the bitwise
// complement of the unsigned byte-wise sum of every byte, treating the four
// bytes at [checksumOffset, checksumOffset+4) — the checksum field's own
// position — as zero during the sum. Used identically by Footer and Header.
func Checksum(buf []byte, checksumOffset int) uint32 {
	var sum uint32
	for i, b := range buf {
		if i >= checksumOffset && i < checksumOffset+4 {
			continue
		}
		sum += uint32(b)
	}
	return ^sum
}
