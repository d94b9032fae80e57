package blockproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSegment_RoundTrip(t *testing.T) {
	s := Segment{GrantRef: 0xABCD1234, FirstSector: 2, LastSector: 7}
	buf := s.Marshal()
	assert.Len(t, buf, SegmentSize)

	got := ParseSegment(buf)
	assert.Equal(t, s, got)
}

func TestSegment_SectorCount(t *testing.T) {
	assert.Equal(t, 8, Segment{FirstSector: 0, LastSector: 7}.SectorCount())
	assert.Equal(t, 1, Segment{FirstSector: 3, LastSector: 3}.SectorCount())
}
