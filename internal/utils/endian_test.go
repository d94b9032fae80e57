package utils

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// mockReaderAt is a mock implementation of ReaderAt for testing.
type mockReaderAt struct {
	data []byte
	err  error
}

func (m *mockReaderAt) ReadAt(p []byte, off int64) (n int, err error) {
	if m.err != nil {
		return 0, m.err
	}

	if off < 0 || off >= int64(len(m.data)) {
		return 0, io.EOF
	}

	n = copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func TestReadUint64_LittleEndian(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		offset   int64
		expected uint64
		order    binary.ByteOrder
	}{
		{
			name:     "zero value",
			data:     []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
			offset:   0,
			expected: 0,
			order:    binary.LittleEndian,
		},
		{
			name:     "max value",
			data:     []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
			offset:   0,
			expected: 0xFFFFFFFFFFFFFFFF,
			order:    binary.LittleEndian,
		},
		{
			name:     "with offset",
			data:     []byte{0xFF, 0xFF, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
			offset:   2,
			expected: 1,
			order:    binary.LittleEndian,
		},
		{
			name:     "typical BAT sector offset",
			data:     []byte{0x60, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
			offset:   0,
			expected: 0x60,
			order:    binary.LittleEndian,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &mockReaderAt{data: tt.data}
			val, err := ReadUint64(reader, tt.offset, tt.order)
			require.NoError(t, err)
			require.Equal(t, tt.expected, val)
		})
	}
}

func TestReadUint64_BigEndian(t *testing.T) {
	reader := &mockReaderAt{data: []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00}}
	val, err := ReadUint64(reader, 0, binary.BigEndian)
	require.NoError(t, err)
	require.Equal(t, uint64(0x1000), val)
}

func TestReadUint64_Errors(t *testing.T) {
	tests := []struct {
		name   string
		reader ReaderAt
	}{
		{"read error", &mockReaderAt{data: []byte{}, err: errors.New("read error")}},
		{"offset beyond data", &mockReaderAt{data: []byte{0x01, 0x02}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadUint64(tt.reader, 100, binary.LittleEndian)
			require.Error(t, err)
		})
	}
}

func TestReadUint64_WithBytesReader(t *testing.T) {
	data := []byte{0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC, 0xDE, 0xF0}
	reader := bytes.NewReader(data)
	val, err := ReadUint64(reader, 0, binary.LittleEndian)
	require.NoError(t, err)
	require.Equal(t, binary.LittleEndian.Uint64(data), val)
}

func TestSliceReaders(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09}

	v8, off, err := ReadUint8(buf, 0)
	require.NoError(t, err)
	require.Equal(t, uint8(0x01), v8)
	require.Equal(t, 1, off)

	v16, off, err := ReadUint16(buf, off, binary.LittleEndian)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0302), v16)
	require.Equal(t, 3, off)

	v32, off, err := ReadUint32(buf, off, binary.BigEndian)
	require.NoError(t, err)
	require.Equal(t, uint32(0x04050607), v32)
	require.Equal(t, 7, off)

	_, _, err = ReadUint64Buf(buf, off, binary.LittleEndian)
	require.Error(t, err, "only 2 bytes remain, should fail to read 8")
}

func TestWriteRoundTrip(t *testing.T) {
	require.Equal(t, []byte{0xAB}, WriteUint8(0xAB))
	require.Equal(t, []byte{0x01, 0x02}, WriteUint16(0x0201, binary.LittleEndian))
	require.Equal(t, []byte{0x02, 0x01}, WriteUint16(0x0201, binary.BigEndian))

	v, _, err := ReadUint32(WriteUint32(0xDEADBEEF, binary.BigEndian), 0, binary.BigEndian)
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), v)
}

func TestPadString(t *testing.T) {
	require.Equal(t, []byte("ab\x00\x00\x00"), PadString("ab", 5))
	require.Equal(t, []byte("abcde"), PadString("abcdefgh", 5), "longer input is truncated")
}

// TestDecodeUTF16 covers scenario C3 from the spec's testable properties.
func TestDecodeUTF16(t *testing.T) {
	hi, err := DecodeUTF16([]byte{0xFF, 0xFE, 0x48, 0x00, 0x69, 0x00})
	require.NoError(t, err)
	require.Equal(t, []rune{0x48, 0x69}, hi)

	surrogate, err := DecodeUTF16([]byte{0xD8, 0x01, 0xDC, 0x37})
	require.NoError(t, err)
	require.Equal(t, []rune{0x10437}, surrogate)
}

func TestDecodeUTF16_UnpairedLowSurrogate(t *testing.T) {
	_, err := DecodeUTF16([]byte{0x00, 0x00, 0xDC, 0x37})
	require.Error(t, err)
}

func TestEncodeUTF16_SurrogatePair(t *testing.T) {
	out := EncodeUTF16([]rune{0x10437})
	// EncodeUTF16 emits little-endian units with no mark, and DecodeUTF16
	// assumes big-endian without one, so the LE mark is prepended.
	back, err := DecodeUTF16(append([]byte{0xFF, 0xFE}, out...))
	require.NoError(t, err)
	require.Equal(t, []rune{0x10437}, back)
}

func TestReaderAtInterface(t *testing.T) {
	t.Run("bytes.Reader", func(_ *testing.T) {
		data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
		var _ ReaderAt = bytes.NewReader(data)
	})

	t.Run("mockReaderAt", func(_ *testing.T) {
		var _ ReaderAt = &mockReaderAt{}
	})
}

func BenchmarkReadUint64(b *testing.B) {
	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i)
	}
	reader := &mockReaderAt{data: data}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		offset := int64((i * 8) % (len(data) - 8))
		_, _ = ReadUint64(reader, offset, binary.LittleEndian)
	}
}
