package waveform

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/stgtell/waveform/internal/lineio"
)

// guessKind infers a variable's physical kind from common SPICE naming
// conventions (v(...), i(...)) for the dialects that don't carry an
// explicit per-variable type tag.
func guessKind(name string) Kind {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "v("):
		return KindVoltage
	case strings.HasPrefix(lower, "i("):
		return KindCurrent
	case lower == "time":
		return KindTime
	case lower == "frequency" || lower == "freq":
		return KindFrequency
	default:
		return KindUnknown
	}
}

// isNumberToken reports whether tok looks like the leading token of a data
// row rather than trailing garbage or a blank/footer line, mirroring the
// original's strspn check against "0123456789eE+-.".
func isNumberToken(tok string) bool {
	if tok == "" {
		return false
	}
	for _, r := range tok {
		switch {
		case r >= '0' && r <= '9':
		case r == 'e' || r == 'E' || r == '+' || r == '-' || r == '.':
		default:
			return false
		}
	}
	return true
}

func isPrintableHeaderLine(line []byte) bool {
	for _, b := range line {
		if b == '\t' || b == ' ' {
			continue
		}
		if b < '!' || b > '~' {
			return false
		}
	}
	return true
}

// asciiDecoder implements decoder for the plain ascii and CAzM dialects,
// which share everything except how the header's leading lines are
// scanned for an analysis-type hint.
type asciiDecoder struct {
	lr *lineio.Reader
	s  *Stream
}

func (d *asciiDecoder) readRow(ivar *float64, dvars []float64) (int, error) {
	line, err := d.lr.ReadLine()
	if err == io.EOF {
		return RowEOF, nil
	}
	if err != nil {
		return RowFatal, errors.WithStack(err)
	}
	fields := strings.Fields(string(line))
	if len(fields) == 0 {
		// a blank line can indicate end of data.
		return RowEOF, nil
	}
	if !isNumberToken(fields[0]) {
		d.s.logf(SeverityError, "expected number, got %q: maybe this isn't an ascii data file at all?", fields[0])
		return RowFatal, errors.Errorf("waveform: ascii: expected number, got %q", fields[0])
	}
	want := d.s.NCols
	if len(fields) < want {
		d.s.logf(SeverityWarn, "row has %d fields, want %d: truncated", len(fields), want)
		return RowEOF, nil
	}
	iv, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		d.s.logf(SeverityError, "malformed independent variable %q: %v", fields[0], err)
		return RowFatal, errors.Wrap(err, "waveform: ascii: parsing independent variable")
	}
	*ivar = iv
	for i := 0; i < d.s.NCols-1; i++ {
		v, err := strconv.ParseFloat(fields[1+i], 64)
		if err != nil {
			d.s.logf(SeverityError, "malformed column %d value %q: %v", i, fields[1+i], err)
			return RowFatal, errors.Wrapf(err, "waveform: ascii: parsing column %d", i)
		}
		dvars[i] = v
	}
	return RowOK, nil
}

func (d *asciiDecoder) readSweep(out []float64) (int, error) { return RowEOF, nil }

// parseVarHeaderLine splits a whitespace-separated line of variable names
// into an independent variable plus one dependent Variable per remaining
// name, assigning disjoint, tiling column ranges.
func parseVarHeaderLine(line string) (Variable, []Variable) {
	names := strings.Fields(line)
	if len(names) == 0 {
		return Variable{}, nil
	}
	ivName := names[0]
	ivKind := guessKind(ivName)
	if ivKind == KindUnknown {
		ivKind = KindTime
	}
	iv := Variable{Name: ivName, Kind: ivKind, Col: 0, NCols: 1}
	dvars := make([]Variable, 0, len(names)-1)
	for i, name := range names[1:] {
		dvars = append(dvars, Variable{Name: name, Kind: guessKind(name), Col: i + 1, NCols: 1})
	}
	return iv, dvars
}

// parseASCII reads the header of a plain whitespace-separated text
// waveform file: a single line of printable characters naming the
// independent variable followed by the dependent variables.
func parseASCII(name string, r io.ReadSeeker, opts []Option) (*Stream, error) {
	lr := lineio.New(r)
	line, err := lr.ReadLine()
	if err != nil || !isPrintableHeaderLine(line) {
		return nil, nil
	}
	iv, dvars := parseVarHeaderLine(string(line))
	if len(dvars) == 0 {
		return nil, nil
	}
	s := newStream(name, len(dvars), 0, opts)
	s.IVar = iv
	copy(s.DVars, dvars)
	s.NCols = 1 + len(dvars)
	s.NTables = 1
	s.dec = &asciiDecoder{lr: lr, s: s}
	return s, nil
}

// parseCAzM reads the header of a CAzM simulator output file: up to 30
// lines are scanned for an analysis-type keyword before the variable-name
// header line is found.
func parseCAzM(name string, r io.ReadSeeker, opts []Option) (*Stream, error) {
	lr := lineio.New(r)
	hint := KindUnknown
	var varLine []byte
	for i := 0; i < 30; i++ {
		line, err := lr.ReadLine()
		if err != nil {
			return nil, nil
		}
		lower := strings.ToLower(string(line))
		switch {
		case strings.Contains(lower, "transient"):
			hint = KindTime
		case strings.Contains(lower, "ac analysis"):
			hint = KindFrequency
		case strings.Contains(lower, "transfer"):
			hint = KindVoltage
		}
		if !isPrintableHeaderLine(line) {
			continue
		}
		fields := strings.Fields(string(line))
		if len(fields) >= 2 {
			varLine = line
			break
		}
	}
	if varLine == nil {
		return nil, nil
	}
	iv, dvars := parseVarHeaderLine(string(varLine))
	if len(dvars) == 0 {
		return nil, nil
	}
	if hint != KindUnknown {
		iv.Kind = hint
	}
	s := newStream(name, len(dvars), 0, opts)
	s.IVar = iv
	copy(s.DVars, dvars)
	s.NCols = 1 + len(dvars)
	s.NTables = 1
	s.dec = &asciiDecoder{lr: lr, s: s}
	return s, nil
}
