package waveform

import (
	"encoding/binary"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/stgtell/waveform/internal/lineio"
)

func spice3Kind(s string) Kind {
	switch strings.ToLower(s) {
	case "voltage":
		return KindVoltage
	case "current":
		return KindCurrent
	case "frequency":
		return KindFrequency
	case "time":
		return KindTime
	default:
		return KindUnknown
	}
}

type spice3Header struct {
	ivar      Variable
	dvars     []Variable
	npoints   int
	isComplex bool
}

// parseSpice3Header reads the key/value header shared by the spice3 raw
// text and binary sub-dialects, stopping at and reporting which of
// "Values"/"Binary" introduced the row data.
func parseSpice3Header(lr *lineio.Reader) (h *spice3Header, binary bool, err error) {
	first, ferr := lr.ReadLine()
	if ferr != nil || !strings.HasPrefix(string(first), "Title:") {
		return nil, false, nil
	}

	h = &spice3Header{}
	var names []string
	var kinds []Kind
	var nvars int

	for {
		line, lerr := lr.ReadLine()
		if lerr != nil {
			return nil, false, nil
		}
		text := string(line)
		key, val, hasColon := strings.Cut(text, ":")
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if !hasColon {
			continue
		}
		switch key {
		case "Flags":
			h.isComplex = strings.Contains(strings.ToLower(val), "complex")
		case "No. Variables":
			n, e := strconv.Atoi(val)
			if e != nil {
				return nil, false, nil
			}
			nvars = n
		case "No. Points":
			n, e := strconv.Atoi(val)
			if e != nil {
				return nil, false, nil
			}
			h.npoints = n
		case "Variables":
			if nvars == 0 {
				return nil, false, nil
			}
			names = make([]string, nvars)
			kinds = make([]Kind, nvars)
			for i := 0; i < nvars; i++ {
				vline, verr := lr.ReadLine()
				if verr != nil {
					return nil, false, nil
				}
				fields := strings.Fields(string(vline))
				if len(fields) < 3 {
					return nil, false, nil
				}
				names[i] = fields[1]
				kinds[i] = spice3Kind(fields[2])
			}
		case "Values":
			binary = false
			goto done
		case "Binary":
			binary = true
			goto done
		}
	}
done:
	if names == nil || len(names) == 0 {
		return nil, false, nil
	}
	// A complex flag pads the independent variable with an extra, always-zero
	// slot on disk (the row's leading value is itself a real,pad pair in text
	// mode), so it occupies two descriptor columns here just as a complex
	// dependent variable does.
	ivarCols := 1
	if h.isComplex {
		ivarCols = 2
	}
	h.ivar = Variable{Name: names[0], Kind: kinds[0], Col: 0, NCols: ivarCols}
	col := ivarCols
	h.dvars = make([]Variable, 0, len(names)-1)
	for i := 1; i < len(names); i++ {
		ncols := 1
		if h.isComplex {
			ncols = 2
		}
		h.dvars = append(h.dvars, Variable{Name: names[i], Kind: kinds[i], Col: col, NCols: ncols})
		col += ncols
	}
	return h, binary, nil
}

// spice3State is the pushback/monotonicity bookkeeping shared by the text
// and binary spice3 raw sub-dialects: the independent value is compared
// against the last one seen, and a decrease pushes the just-read row back
// to be replayed as the first row of the next table.
type spice3State struct {
	lastIval    float64
	hasPushback bool
	pushedIval  float64
	pushedDvars []float64
}

func newSpice3State(ndvals int) *spice3State {
	// OQ1: initialized to -Inf, not left undefined, so the first row of the
	// first table is never mistaken for a monotonicity violation.
	return &spice3State{lastIval: math.Inf(-1), pushedDvars: make([]float64, ndvals)}
}

func (st *spice3State) deliver(iv float64, vals []float64, ivar *float64, dvars []float64) (int, bool) {
	if iv < st.lastIval {
		st.hasPushback = true
		st.pushedIval = iv
		copy(st.pushedDvars, vals)
		return RowBoundary, true
	}
	st.lastIval = iv
	*ivar = iv
	copy(dvars, vals)
	return RowOK, true
}

func (st *spice3State) takePushback(ivar *float64, dvars []float64) bool {
	if !st.hasPushback {
		return false
	}
	st.hasPushback = false
	st.lastIval = st.pushedIval
	*ivar = st.pushedIval
	copy(dvars, st.pushedDvars)
	return true
}

type spice3TextDecoder struct {
	lr    *lineio.Reader
	s     *Stream
	state *spice3State
}

func (d *spice3TextDecoder) readSweep(out []float64) (int, error) { return RowEOF, nil }

func (d *spice3TextDecoder) readRow(ivar *float64, dvars []float64) (int, error) {
	if d.state.takePushback(ivar, dvars) {
		return RowOK, nil
	}
	line, err := d.lr.ReadLine()
	if err == io.EOF {
		return RowEOF, nil
	}
	if err != nil {
		return RowFatal, errors.WithStack(err)
	}
	fields := strings.Fields(string(line))
	want := 2 + len(d.s.DVars)
	if len(fields) < want {
		d.s.logf(SeverityWarn, "spice3 raw: row has %d fields, want %d: truncated", len(fields), want)
		return RowEOF, nil
	}
	ivalTok := fields[1]
	if d.s.IVar.NCols == 2 {
		// the complex flag pads the independent value with an always-zero
		// second slot, written as a literal comma pair just like a complex
		// dependent column; only the real part is kept.
		re, _, ok := strings.Cut(ivalTok, ",")
		if !ok {
			d.s.logf(SeverityError, "spice3 raw: complex independent value %q missing padding slot", ivalTok)
			return RowFatal, errors.New("waveform: spice3 raw: complex independent value missing padding slot")
		}
		ivalTok = re
	}
	iv, err := strconv.ParseFloat(ivalTok, 64)
	if err != nil {
		d.s.logf(SeverityError, "spice3 raw: malformed independent value %q: %v", fields[1], err)
		return RowFatal, errors.WithStack(err)
	}
	vals := make([]float64, d.s.NCols-d.s.IVar.NCols)
	col := 0
	for i, dv := range d.s.DVars {
		tok := fields[2+i]
		if dv.NCols == 2 {
			re, im, ok := strings.Cut(tok, ",")
			if !ok {
				d.s.logf(SeverityError, "spice3 raw: complex column %d missing imaginary part", i)
				return RowFatal, errors.Errorf("waveform: spice3 raw: complex column %d missing imaginary part", i)
			}
			rv, rerr := strconv.ParseFloat(re, 64)
			iv2, ierr := strconv.ParseFloat(im, 64)
			if rerr != nil || ierr != nil {
				d.s.logf(SeverityError, "spice3 raw: malformed complex value %q", tok)
				return RowFatal, errors.New("waveform: spice3 raw: malformed complex value")
			}
			vals[col], vals[col+1] = rv, iv2
		} else {
			v, verr := strconv.ParseFloat(tok, 64)
			if verr != nil {
				d.s.logf(SeverityError, "spice3 raw: malformed value %q: %v", tok, verr)
				return RowFatal, errors.WithStack(verr)
			}
			vals[col] = v
		}
		col += dv.NCols
	}
	rc, _ := d.state.deliver(iv, vals, ivar, dvars)
	return rc, nil
}

// parseSpice3Raw reads the text and binary spice3 raw sub-dialects, which
// share a single key/value header and differ only in row encoding.
func parseSpice3Raw(name string, r io.ReadSeeker, opts []Option) (*Stream, error) {
	lr := lineio.New(r)
	h, isBinary, err := parseSpice3Header(lr)
	if err != nil || h == nil {
		return nil, nil
	}
	s := newStream(name, len(h.dvars), 0, opts)
	s.IVar, s.NTables = h.ivar, 0
	copy(s.DVars, h.dvars)
	s.NCols = h.ivar.NCols
	for _, v := range h.dvars {
		s.NCols += v.NCols
	}
	ndvals := s.NCols - s.IVar.NCols
	if isBinary {
		s.dec = &spice3BinaryDecoder{r: r, s: s, state: newSpice3State(ndvals)}
	} else {
		s.dec = &spice3TextDecoder{lr: lr, s: s, state: newSpice3State(ndvals)}
	}
	return s, nil
}

type spice3BinaryDecoder struct {
	r     io.Reader
	s     *Stream
	state *spice3State
}

func (d *spice3BinaryDecoder) readSweep(out []float64) (int, error) { return RowEOF, nil }

func (d *spice3BinaryDecoder) readRow(ivar *float64, dvars []float64) (int, error) {
	if d.state.takePushback(ivar, dvars) {
		return RowOK, nil
	}
	buf := make([]byte, 8*d.s.NCols)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			if err == io.ErrUnexpectedEOF {
				d.s.logf(SeverityWarn, "spice3 raw: binary row truncated")
			}
			return RowEOF, nil
		}
		d.s.logf(SeverityError, "spice3 raw: %v", err)
		return RowFatal, errors.WithStack(err)
	}
	vals := make([]float64, d.s.NCols)
	for i := 0; i < d.s.NCols; i++ {
		bits := binary.NativeEndian.Uint64(buf[i*8 : i*8+8])
		vals[i] = math.Float64frombits(bits)
	}
	// vals[0] is the independent value; when complex, vals[1] is its
	// always-zero padding slot rather than the first dependent value.
	iv := vals[0]
	rc, _ := d.state.deliver(iv, vals[d.s.IVar.NCols:], ivar, dvars)
	return rc, nil
}
