package waveform

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/stgtell/waveform/internal/lineio"
)

func nsoutKind(s string) Kind {
	switch strings.ToLower(s) {
	case "v":
		return KindVoltage
	case "i":
		return KindCurrent
	default:
		return KindUnknown
	}
}

type nsoutVar struct {
	name  string
	index int
	kind  Kind
}

// parseNSOut reads a Nanosim ".out" file: a semicolon/keyword-led header
// declaring per-index dependent variables and physical resolutions,
// followed by a sparse body where each sample is a bare independent-value
// line followed by "index value" updates to a dense per-index array.
func parseNSOut(name string, r io.ReadSeeker, opts []Option) (*Stream, error) {
	lr := lineio.New(r)
	first, err := lr.ReadLine()
	if err != nil || !strings.HasPrefix(string(first), ";!") {
		return nil, nil
	}

	var vars []nsoutVar
	timeRes, voltageRes, currentRes := 1.0, 1.0, 1.0
	maxIndex := -1
	var firstDataLine string
	gotDataLine := false

	line := first
	for {
		if len(line) > 0 {
			switch {
			case line[0] == ';':
				// comment, including the identity line already consumed above
			case line[0] == '.':
				fields := strings.Fields(string(line[1:]))
				if len(fields) == 0 {
					return nil, nil
				}
				switch fields[0] {
				case "time_resolution":
					if len(fields) < 2 {
						return nil, nil
					}
					if v, e := strconv.ParseFloat(fields[1], 64); e == nil {
						timeRes = v
					}
				case "voltage_resolution":
					if len(fields) < 2 {
						return nil, nil
					}
					if v, e := strconv.ParseFloat(fields[1], 64); e == nil {
						voltageRes = v
					}
				case "current_resolution":
					if len(fields) < 2 {
						return nil, nil
					}
					if v, e := strconv.ParseFloat(fields[1], 64); e == nil {
						currentRes = v
					}
				case "index":
					if len(fields) < 4 {
						return nil, nil
					}
					idx, e := strconv.Atoi(fields[2])
					if e != nil {
						return nil, nil
					}
					if idx > maxIndex {
						maxIndex = idx
					}
					vars = append(vars, nsoutVar{name: fields[1], index: idx, kind: nsoutKind(fields[3])})
				}
			case line[0] >= '0' && line[0] <= '9':
				firstDataLine = string(line)
				gotDataLine = true
			}
		}
		if gotDataLine {
			break
		}
		line, err = lr.ReadLine()
		if err != nil {
			return nil, nil
		}
	}
	if len(vars) == 0 || !gotDataLine {
		return nil, nil
	}

	s := newStream(name, len(vars), 0, opts)
	s.IVar = Variable{Name: "TIME", Kind: KindTime, Col: 0, NCols: 1}
	indexes := make([]int, len(vars))
	col := 1
	for i, v := range vars {
		s.DVars[i] = Variable{Name: v.name, Kind: v.kind, Col: col, NCols: 1}
		indexes[i] = v.index
		col++
	}
	s.NCols = col
	s.NTables = 1
	s.dec = &nsoutDecoder{
		lr:         lr,
		s:          s,
		pending:    firstDataLine,
		indexes:    indexes,
		datrow:     make([]float64, maxIndex+1),
		timeRes:    timeRes,
		voltageRes: voltageRes,
		currentRes: currentRes,
	}
	return s, nil
}

type nsoutDecoder struct {
	lr         *lineio.Reader
	s          *Stream
	pending    string
	eof        bool
	indexes    []int
	datrow     []float64
	timeRes    float64
	voltageRes float64
	currentRes float64
}

func (d *nsoutDecoder) readSweep(out []float64) (int, error) { return RowEOF, nil }

func (d *nsoutDecoder) readRow(ivar *float64, dvars []float64) (int, error) {
	if d.eof && d.pending == "" {
		return RowEOF, nil
	}
	iv, err := strconv.ParseFloat(strings.TrimSpace(d.pending), 64)
	if err != nil {
		d.s.logf(SeverityError, "nanosim out: malformed independent-variable line %q: %v", d.pending, err)
		return RowFatal, errors.Wrap(err, "waveform: nanosim out: parsing independent-variable line")
	}
	*ivar = iv * d.timeRes * 1e-9
	d.pending = ""

	for {
		line, lerr := d.lr.ReadLine()
		if lerr == io.EOF {
			d.eof = true
			break
		}
		if lerr != nil {
			d.s.logf(SeverityError, "nanosim out: %v", lerr)
			return RowFatal, errors.WithStack(lerr)
		}
		if len(line) > 0 && line[0] == ';' {
			continue
		}
		fields := strings.Fields(string(line))
		if len(fields) == 0 {
			d.s.logf(SeverityError, "nanosim out: expected value line, got blank")
			return RowFatal, errors.New("waveform: nanosim out: expected value line")
		}
		if len(fields) < 2 {
			// no value token: this is the independent-variable line that
			// starts the next sample.
			d.pending = fields[0]
			break
		}
		idx, ierr := strconv.Atoi(fields[0])
		if ierr != nil {
			d.s.logf(SeverityError, "nanosim out: malformed sample index %q: %v", fields[0], ierr)
			return RowFatal, errors.WithStack(ierr)
		}
		val, verr := strconv.ParseFloat(fields[1], 64)
		if verr != nil {
			d.s.logf(SeverityError, "nanosim out: malformed sample value %q: %v", fields[1], verr)
			return RowFatal, errors.WithStack(verr)
		}
		if idx >= 0 && idx < len(d.datrow) {
			d.datrow[idx] = val
		} else {
			// OQ5: an out-of-range index is silently skipped by the
			// original; skip it here too but surface it at debug level.
			d.s.logf(SeverityDebug, "sample index %d out of range (max %d)", idx, len(d.datrow)-1)
		}
	}

	for i, v := range d.s.DVars {
		scale := 1.0
		switch v.Kind {
		case KindVoltage:
			scale = d.voltageRes
		case KindCurrent:
			scale = d.currentRes
		}
		dvars[i] = d.datrow[d.indexes[i]] * scale
	}
	return RowOK, nil
}
