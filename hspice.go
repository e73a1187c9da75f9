package waveform

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/mewkiz/pkg/readerutil"
	"github.com/pkg/errors"

	"github.com/stgtell/waveform/internal/blockio"
	"github.com/stgtell/waveform/internal/lineio"
)

// isTruncation reports whether err signals the byte source simply running
// out, as opposed to a framing mismatch: a corrupted-record error per §7
// stays fatal, but a truncated row or sweep vector is reported as a clean
// end of table with a Warn diagnostic.
func isTruncation(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}

// headerSentinel terminates the logical HSPICE header, in both the ascii
// and binary sub-dialects, after which row data begins.
const headerSentinel = "$&%#"

// hspiceEndOfTable tags an independent-variable value at or above this
// threshold as the end-of-table marker rather than a sample.
const hspiceEndOfTable = 1.0e29

// hsVersions lists the HSPICE output-format version tags this reader
// recognizes; any other value means the file is not HSPICE output.
var hsVersions = map[string]bool{"9007": true, "9601": true}

type hspiceHeader struct {
	nauto, nprobe, nsweep, ntables int
	ivar                           Variable
	dvars                          []Variable
	svars                          []Variable
}

// hsKind maps an HSPICE variable-kind integer to a Kind. idx 0 is the
// independent variable, which uses a different mapping than the
// dependents.
func hsKind(idx, code int) Kind {
	if idx == 0 {
		switch code {
		case 1:
			return KindTime
		case 2:
			return KindFrequency
		case 3:
			return KindVoltage
		default:
			return KindUnknown
		}
	}
	switch code {
	case 1, 2, 3:
		return KindVoltage
	case 8, 15, 22:
		return KindCurrent
	default:
		return KindUnknown
	}
}

// parseHSpiceHeader interprets the fixed-offset count/version/table-count
// fields and the whitespace-tokenized kind/name list that follows them, out
// of the raw header bytes assembled from 80-column lines (see
// accumulateHeader). Shared verbatim by the ascii and binary sub-dialects.
func parseHSpiceHeader(hdr []byte) (*hspiceHeader, error) {
	if len(hdr) < 180 {
		return nil, errors.New("waveform: hspice: header shorter than the fixed-field region")
	}
	atoi := func(b []byte) (int, bool) {
		n, err := strconv.Atoi(strings.TrimSpace(string(b)))
		return n, err == nil
	}
	nauto, ok1 := atoi(hdr[0:4])
	nprobe, ok2 := atoi(hdr[4:8])
	nsweep, ok3 := atoi(hdr[8:12])
	if !ok1 || !ok2 || !ok3 {
		return nil, errors.New("waveform: hspice: malformed count fields")
	}
	version := string(hdr[16:20])
	if !hsVersions[version] {
		return nil, errors.Errorf("waveform: hspice: unrecognized version %q", version)
	}
	ntables, ok := atoi(hdr[176:180])
	if !ok || ntables == 0 {
		ntables = 1
	}

	nvars := nauto + nprobe
	if nvars < 1 {
		return nil, errors.New("waveform: hspice: no variables declared")
	}
	tokens := strings.Fields(string(hdr[180:]))
	need := 2*nvars + nsweep
	if len(tokens) < need {
		return nil, errors.Errorf("waveform: hspice: header declares %d tokens, only %d present", need, len(tokens))
	}
	kindTokens := tokens[:nvars]
	nameTokens := tokens[nvars : 2*nvars]
	sweepTokens := tokens[2*nvars : 2*nvars+nsweep]

	kinds := make([]int, nvars)
	for i, t := range kindTokens {
		n, err := strconv.Atoi(t)
		if err != nil {
			return nil, errors.Wrapf(err, "waveform: hspice: parsing kind code %d", i)
		}
		kinds[i] = n
	}

	h := &hspiceHeader{nauto: nauto, nprobe: nprobe, nsweep: nsweep, ntables: ntables}
	ivarKind := hsKind(0, kinds[0])
	ivarCols := 1
	isComplex := ivarKind == KindFrequency
	if isComplex {
		ivarCols = 2
	}
	h.ivar = Variable{Name: nameTokens[0], Kind: ivarKind, Col: 0, NCols: ivarCols}

	col := ivarCols
	h.dvars = make([]Variable, 0, nvars-1)
	for i := 1; i < nvars; i++ {
		ncols := 1
		if isComplex {
			ncols = 2
		}
		h.dvars = append(h.dvars, Variable{Name: nameTokens[i], Kind: hsKind(i, kinds[i]), Col: col, NCols: ncols})
		col += ncols
	}
	h.svars = make([]Variable, 0, nsweep)
	for _, name := range sweepTokens {
		h.svars = append(h.svars, Variable{Name: name, Kind: KindUnknown, Col: 0, NCols: 0})
	}
	return h, nil
}

// accumulateHeader pulls chunks from next until their concatenation
// contains headerSentinel, returning the header bytes (sentinel excluded)
// and whatever bytes of the final chunk followed the sentinel.
func accumulateHeader(next func() ([]byte, error)) (hdr, leftover []byte, err error) {
	var buf []byte
	for {
		chunk, cerr := next()
		if cerr != nil {
			return nil, nil, cerr
		}
		buf = append(buf, chunk...)
		if idx := bytes.Index(buf, []byte(headerSentinel)); idx >= 0 {
			return buf[:idx], buf[idx+len(headerSentinel):], nil
		}
		if len(buf) > 1<<20 {
			return nil, nil, errors.New("waveform: hspice: header sentinel not found")
		}
	}
}

// fixedFieldReader extracts 11-character fixed-width value fields from a
// continuous stream reassembled from text lines, ignoring the line breaks
// between them.
type fixedFieldReader struct {
	lr  *lineio.Reader
	buf []byte
}

func (f *fixedFieldReader) next(n int) ([]byte, error) {
	for len(f.buf) < n {
		line, err := f.lr.ReadLine()
		if err != nil {
			return nil, err
		}
		f.buf = append(f.buf, line...)
	}
	out := f.buf[:n]
	f.buf = f.buf[n:]
	return out, nil
}

func (f *fixedFieldReader) ReadValue() (float64, error) {
	b, err := f.next(11)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
}

type hsAsciiDecoder struct {
	vr           *fixedFieldReader
	s            *Stream
	readSweepYet bool
	tablesRead   int
}

func (d *hsAsciiDecoder) readSweep(out []float64) (int, error) {
	for i := range d.s.SVars {
		v, err := d.vr.ReadValue()
		if isTruncation(err) {
			d.s.logf(SeverityWarn, "hspice ascii: sweep vector truncated at field %d", i)
			return RowEOF, nil
		}
		if err != nil {
			d.s.logf(SeverityError, "hspice ascii: %v", err)
			return RowFatal, errors.WithStack(err)
		}
		if out != nil {
			out[i] = v
		}
	}
	d.readSweepYet = true
	return RowOK, nil
}

func (d *hsAsciiDecoder) readRow(ivar *float64, dvars []float64) (int, error) {
	if len(d.s.SVars) > 0 && !d.readSweepYet {
		if rc, err := d.readSweep(nil); rc != RowOK || err != nil {
			return rc, err
		}
	}
	iv, err := d.vr.ReadValue()
	if isTruncation(err) {
		if err == io.ErrUnexpectedEOF {
			d.s.logf(SeverityWarn, "hspice ascii: row truncated reading independent variable")
		}
		return RowEOF, nil
	}
	if err != nil {
		d.s.logf(SeverityError, "hspice ascii: %v", err)
		return RowFatal, errors.WithStack(err)
	}
	if iv >= hspiceEndOfTable {
		d.tablesRead++
		d.readSweepYet = false
		if d.tablesRead >= d.s.NTables {
			return RowEOF, nil
		}
		return RowBoundary, nil
	}
	*ivar = iv
	for i := 0; i < d.s.NCols-d.s.IVar.NCols; i++ {
		v, verr := d.vr.ReadValue()
		if isTruncation(verr) {
			d.s.logf(SeverityWarn, "hspice ascii: row truncated at column %d", i)
			return RowEOF, nil
		}
		if verr != nil {
			d.s.logf(SeverityError, "hspice ascii: %v", verr)
			return RowFatal, errors.WithStack(verr)
		}
		dvars[i] = v
	}
	return RowOK, nil
}

// parseHSAscii reads the text-encoded HSPICE dialect: a multi-line,
// sentinel-terminated header of fixed-offset fields followed by
// whitespace tokens, then 11-character fixed-width value fields laid out
// continuously.
func parseHSAscii(name string, r io.ReadSeeker, opts []Option) (*Stream, error) {
	lr := lineio.New(r)
	hdr, leftover, err := accumulateHeader(func() ([]byte, error) {
		line, lerr := lr.ReadLine()
		if lerr != nil {
			return nil, lerr
		}
		return append([]byte(nil), line...), nil
	})
	if err != nil {
		return nil, nil
	}
	h, err := parseHSpiceHeader(hdr)
	if err != nil {
		logf(nil, SeverityError, "hspice", "ascii: malformed header: %v", err)
		return nil, nil
	}
	s := newStream(name, len(h.dvars), len(h.svars), opts)
	s.IVar, s.NTables = h.ivar, h.ntables
	copy(s.DVars, h.dvars)
	copy(s.SVars, h.svars)
	s.NCols = h.ivar.NCols
	for _, v := range h.dvars {
		s.NCols += v.NCols
	}
	s.dec = &hsAsciiDecoder{vr: &fixedFieldReader{lr: lr, buf: leftover}, s: s}
	return s, nil
}

type hsBinaryDecoder struct {
	br           *blockio.Reader
	block        *blockio.Block
	pos          int
	s            *Stream
	readSweepYet bool
	tablesRead   int
}

func (d *hsBinaryDecoder) nextFloat() (float64, error) {
	for d.block == nil || d.pos >= d.block.NumFloat32() {
		b, err := d.br.ReadBlock()
		if err != nil {
			return 0, err
		}
		d.block, d.pos = b, 0
	}
	v := d.block.Float32(d.pos)
	d.pos++
	return v, nil
}

// classifyBlockErr turns a blockio error into the row status and log call
// it implies: a *blockio.CorruptError means the binary framing itself was
// wrong and is always fatal, while a plain io.EOF/io.ErrUnexpectedEOF means
// the stream ran out of blocks or mid-block, reported as a clean end of
// table with a Warn diagnostic.
func (d *hsBinaryDecoder) classifyBlockErr(err error, context string) (int, error) {
	if ce, ok := err.(*blockio.CorruptError); ok {
		d.s.logf(SeverityError, "hspice binary: %v", ce)
		return RowFatal, ce
	}
	if isTruncation(err) {
		d.s.logf(SeverityWarn, "hspice binary: %s truncated", context)
		return RowEOF, nil
	}
	d.s.logf(SeverityError, "hspice binary: %v", err)
	return RowFatal, errors.WithStack(err)
}

func (d *hsBinaryDecoder) readSweep(out []float64) (int, error) {
	for i := range d.s.SVars {
		v, err := d.nextFloat()
		if err != nil {
			return d.classifyBlockErr(err, "sweep vector")
		}
		if out != nil {
			out[i] = v
		}
	}
	d.readSweepYet = true
	return RowOK, nil
}

func (d *hsBinaryDecoder) readRow(ivar *float64, dvars []float64) (int, error) {
	if len(d.s.SVars) > 0 && !d.readSweepYet {
		if rc, err := d.readSweep(nil); rc != RowOK || err != nil {
			return rc, err
		}
	}
	iv, err := d.nextFloat()
	if err != nil {
		return d.classifyBlockErr(err, "row")
	}
	if iv >= hspiceEndOfTable {
		d.tablesRead++
		d.readSweepYet = false
		if d.tablesRead >= d.s.NTables {
			return RowEOF, nil
		}
		return RowBoundary, nil
	}
	*ivar = iv
	for i := 0; i < d.s.NCols-d.s.IVar.NCols; i++ {
		v, ferr := d.nextFloat()
		if ferr != nil {
			return d.classifyBlockErr(ferr, "row")
		}
		dvars[i] = v
	}
	return RowOK, nil
}

// parseHSBinary reads the binary-encoded HSPICE dialect: the same
// sentinel-terminated header as the ascii sub-dialect, carried inside
// length-framed binary blocks, followed by row data packed as 32-bit
// floats whose byte order is rediscovered at every block boundary.
func parseHSBinary(name string, r io.ReadSeeker, opts []Option) (*Stream, error) {
	br := blockio.New(r)
	hdr, leftover, err := accumulateHeader(func() ([]byte, error) {
		b, berr := br.ReadBlock()
		if berr != nil {
			return nil, berr
		}
		return b.Data, nil
	})
	if err != nil {
		return nil, nil
	}
	h, err := parseHSpiceHeader(hdr)
	if err != nil {
		logf(nil, SeverityError, "hspice", "binary: malformed header: %v", err)
		return nil, nil
	}
	s := newStream(name, len(h.dvars), len(h.svars), opts)
	s.IVar, s.NTables = h.ivar, h.ntables
	copy(s.DVars, h.dvars)
	copy(s.SVars, h.svars)
	s.NCols = h.ivar.NCols
	for _, v := range h.dvars {
		s.NCols += v.NCols
	}
	// Row data starts at the next 4-byte boundary after the sentinel; any
	// odd trailing bytes of the header's final line are padding.
	leftover = leftover[len(leftover)%4:]
	dec := &hsBinaryDecoder{br: br, s: s}
	if len(leftover) > 0 {
		dec.block = &blockio.Block{Data: leftover, BigEndian: br.BigEndian()}
	}
	s.dec = dec
	return s, nil
}

// parseHSpice sniffs the leading byte to decide between the ascii and
// binary HSPICE sub-dialects, the way the original dispatches on whether
// the first byte of the file is a printable character.
func parseHSpice(name string, r io.ReadSeeker, opts []Option) (*Stream, error) {
	b, err := readerutil.ReadByte(r)
	if err != nil {
		return nil, nil
	}
	if _, serr := r.Seek(0, io.SeekStart); serr != nil {
		return nil, serr
	}
	if b < ' ' {
		return parseHSBinary(name, r, opts)
	}
	return parseHSAscii(name, r, opts)
}
