package waveform

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// spice2Magic both opens a Spice2G6 raw file and, reread as the leading
// bytes of any later row, signals that a new analysis follows.
const spice2Magic = "rawfile1"

// parseSpice2Raw reads the fixed sequential binary layout Berkeley
// Spice2G6 writes: an 8-byte magic, a fixed header, name/type/location
// arrays, and a plot title, after which rows of 8-byte values follow with
// no further framing.
func parseSpice2Raw(name string, r io.ReadSeeker, opts []Option) (*Stream, error) {
	magic := make([]byte, 8)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, nil
	}
	if string(magic) != spice2Magic {
		return nil, nil
	}

	hdr := make([]byte, 80+8+8+2+2+2)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, nil
	}
	nvars := int16(binary.LittleEndian.Uint16(hdr[98:100]))
	if nvars < 1 {
		return nil, nil
	}
	ndv := int(nvars) - 1

	readName := func() (string, error) {
		buf := make([]byte, 8)
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		if i := bytes.IndexByte(buf, 0); i >= 0 {
			buf = buf[:i]
		}
		if i := bytes.IndexByte(buf, ' '); i >= 0 {
			buf = buf[:i]
		}
		return strings.TrimSpace(string(buf)), nil
	}

	ivName, err := readName()
	if err != nil {
		return nil, nil
	}
	dvNames := make([]string, ndv)
	for i := range dvNames {
		dvNames[i], err = readName()
		if err != nil {
			return nil, nil
		}
	}

	// one discard word plus ndv type words, then one discard word plus ndv
	// location words: both arrays are read and thrown away, since the
	// original reader never derives anything from them either.
	discard := make([]byte, 2*(1+ndv))
	if _, err := io.ReadFull(r, discard); err != nil {
		return nil, nil
	}
	if _, err := io.ReadFull(r, discard); err != nil {
		return nil, nil
	}

	title := make([]byte, 24)
	if _, err := io.ReadFull(r, title); err != nil {
		return nil, nil
	}

	s := newStream(name, ndv, 0, opts)
	s.IVar = Variable{Name: ivName, Kind: KindTime, Col: 0, NCols: 1}
	for i, nm := range dvNames {
		s.DVars[i] = Variable{Name: nm, Kind: KindVoltage, Col: i + 1, NCols: 1}
	}
	s.NCols = 1 + ndv
	s.NTables = 1
	s.dec = &spice2Decoder{r: r, s: s}
	return s, nil
}

type spice2Decoder struct {
	r io.Reader
	s *Stream
}

func (d *spice2Decoder) readSweep(out []float64) (int, error) { return RowEOF, nil }

func (d *spice2Decoder) readValue() (float64, bool, error) {
	buf := make([]byte, 8)
	n, err := io.ReadFull(d.r, buf)
	if err == io.EOF || (err == io.ErrUnexpectedEOF && n == 0) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.WithStack(err)
	}
	if string(buf) == spice2Magic {
		return 0, false, nil
	}
	bits := binary.LittleEndian.Uint64(buf)
	return math.Float64frombits(bits), true, nil
}

func (d *spice2Decoder) readRow(ivar *float64, dvars []float64) (int, error) {
	iv, ok, err := d.readValue()
	if err != nil {
		d.s.logf(SeverityError, "spice2 raw: %v", err)
		return RowFatal, err
	}
	if !ok {
		return RowEOF, nil
	}
	*ivar = iv
	for i := 0; i < d.s.NCols-1; i++ {
		v, ok, err := d.readValue()
		if err != nil {
			d.s.logf(SeverityError, "spice2 raw: %v", err)
			return RowFatal, err
		}
		if !ok {
			// the stream ran out partway through a row: a truncated
			// payload, not a framing error, so this table simply ends here.
			d.s.logf(SeverityWarn, "spice2 raw: row truncated at column %d", i)
			return RowEOF, nil
		}
		dvars[i] = v
	}
	return RowOK, nil
}
