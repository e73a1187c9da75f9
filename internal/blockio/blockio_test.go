package blockio

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildBlock(bigEndian bool, payload []byte) []byte {
	hdr := make([]byte, 16)
	if bigEndian {
		binary.BigEndian.PutUint32(hdr[0:4], 4)
		binary.BigEndian.PutUint32(hdr[8:12], 4)
		binary.BigEndian.PutUint32(hdr[12:16], uint32(len(payload)))
	} else {
		binary.BigEndian.PutUint32(hdr[0:4], swapSentinel)
		binary.LittleEndian.PutUint32(hdr[8:12], 4)
		binary.LittleEndian.PutUint32(hdr[12:16], uint32(len(payload)))
	}
	trailer := make([]byte, 4)
	if bigEndian {
		binary.BigEndian.PutUint32(trailer, uint32(len(payload)))
	} else {
		binary.LittleEndian.PutUint32(trailer, uint32(len(payload)))
	}
	out := append([]byte(nil), hdr...)
	out = append(out, payload...)
	out = append(out, trailer...)
	return out
}

func TestReadBlockBigEndian(t *testing.T) {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint32(payload[0:4], math.Float32bits(1.5))
	binary.BigEndian.PutUint32(payload[4:8], math.Float32bits(-2.25))

	r := New(bytes.NewReader(buildBlock(true, payload)))
	b, err := r.ReadBlock()
	require.NoError(t, err)
	require.True(t, b.BigEndian)
	require.True(t, r.BigEndian())
	require.Equal(t, 2, b.NumFloat32())
	require.Equal(t, 1.5, b.Float32(0))
	require.Equal(t, -2.25, b.Float32(1))
}

func TestReadBlockLittleEndianSwap(t *testing.T) {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, math.Float32bits(3.25))

	r := New(bytes.NewReader(buildBlock(false, payload)))
	b, err := r.ReadBlock()
	require.NoError(t, err)
	require.False(t, b.BigEndian)
	require.Equal(t, 3.25, b.Float32(0))
}

func TestReadBlockDetectsEndianPerBlock(t *testing.T) {
	var buf bytes.Buffer
	p1 := make([]byte, 4)
	binary.BigEndian.PutUint32(p1, math.Float32bits(1))
	buf.Write(buildBlock(true, p1))
	p2 := make([]byte, 4)
	binary.LittleEndian.PutUint32(p2, math.Float32bits(2))
	buf.Write(buildBlock(false, p2))

	r := New(bytes.NewReader(buf.Bytes()))
	b1, err := r.ReadBlock()
	require.NoError(t, err)
	require.True(t, b1.BigEndian)
	require.Equal(t, 1.0, b1.Float32(0))

	b2, err := r.ReadBlock()
	require.NoError(t, err)
	require.False(t, b2.BigEndian)
	require.Equal(t, 2.0, b2.Float32(0))
}

// A bad leading marker word is framing corruption: fatal, not a clean
// end-of-stream signal.
func TestReadBlockCorruptHeaderMarker(t *testing.T) {
	hdr := make([]byte, 16)
	binary.BigEndian.PutUint32(hdr[0:4], 0xdeadbeef)
	r := New(bytes.NewReader(hdr))
	_, err := r.ReadBlock()
	require.Error(t, err)
	var ce *CorruptError
	require.ErrorAs(t, err, &ce)
}

// A trailer length that disagrees with the header is also framing
// corruption.
func TestReadBlockCorruptTrailer(t *testing.T) {
	payload := make([]byte, 4)
	block := buildBlock(true, payload)
	// flip the trailer's length word so it no longer matches the header.
	binary.BigEndian.PutUint32(block[len(block)-4:], 99)
	r := New(bytes.NewReader(block))
	_, err := r.ReadBlock()
	require.Error(t, err)
	var ce *CorruptError
	require.ErrorAs(t, err, &ce)
}

// The stream simply running out mid-payload is a truncation, reported as
// io.ErrUnexpectedEOF rather than a *CorruptError, so a caller can treat it
// as a clean (if early) end of table.
func TestReadBlockTruncatedPayload(t *testing.T) {
	full := buildBlock(true, make([]byte, 8))
	truncated := full[:len(full)-6] // cut into the payload/trailer region
	r := New(bytes.NewReader(truncated))
	_, err := r.ReadBlock()
	require.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestReadBlockCleanEOF(t *testing.T) {
	r := New(bytes.NewReader(nil))
	_, err := r.ReadBlock()
	require.Equal(t, io.EOF, err)
}
