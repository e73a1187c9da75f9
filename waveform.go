// Package waveform incrementally reads analog simulation output — voltage,
// current, time and frequency traces — from the several on-disk formats
// produced by HSPICE, CAzM, Spice3, Berkeley Spice2G6 and Nanosim, behind
// one streaming Stream handle.
package waveform

import (
	"io"
	"os"
	"regexp"

	"github.com/pkg/errors"
)

// Row/sweep return codes, mirroring the original library's integer
// protocol: 1 means a row was delivered, 0 means clean end of data, -1
// means a fatal, unrecoverable parse error, and -2 means one table ended
// and another follows.
const (
	RowOK       = 1
	RowEOF      = 0
	RowFatal    = -1
	RowBoundary = -2 // end of one table, more tables may follow
)

// decoder is the mutable, per-format state behind a Stream: the row and
// sweep reading functions along with whatever bookkeeping (line buffer,
// pushback, byte order) that format needs between calls.
type decoder interface {
	readRow(ivar *float64, dvars []float64) (int, error)
	readSweep(out []float64) (int, error)
}

type noneDecoder struct{}

func (noneDecoder) readRow(ivar *float64, dvars []float64) (int, error) { return RowEOF, nil }
func (noneDecoder) readSweep(out []float64) (int, error)                { return RowEOF, nil }

// Stream is an open waveform file or byte source together with its
// variable descriptors. A Stream is not safe for concurrent use.
type Stream struct {
	Name    string
	Format  Format
	IVar    Variable
	DVars   []Variable
	SVars   []Variable
	NCols   int
	NTables int

	closer  io.Closer
	logger  Logger
	dec     decoder
}

// Option configures a Stream at open time.
type Option func(*Stream)

// WithLogger overrides the process-wide default Logger for this Stream
// only, per Design Note 4 (an injectable logger in place of the original's
// global message hook).
func WithLogger(l Logger) Option {
	return func(s *Stream) { s.logger = l }
}

func (s *Stream) logf(sev Severity, format string, args ...interface{}) {
	logf(s.logger, sev, s.Format.String(), format, args...)
}

// ReadRow reads the next row into *ivar and dvars, which must be at least
// NCols-IVar.NCols long (one slot per dependent-variable column). It
// returns RowOK, RowEOF or RowBoundary, or RowFatal with a non-nil error
// for a malformed record.
func (s *Stream) ReadRow(ivar *float64, dvars []float64) (int, error) {
	if need := s.NCols - s.IVar.NCols; len(dvars) < need {
		return RowFatal, errors.Errorf("waveform: ReadRow: dvars has %d columns, need %d", len(dvars), need)
	}
	return s.dec.readRow(ivar, dvars)
}

// ReadSweep reads the sweep-parameter vector for the table about to be
// read, into out which must be at least len(SVars) long. Most formats have
// no sweep parameters and ReadSweep is a no-op returning RowEOF.
func (s *Stream) ReadSweep(out []float64) (int, error) {
	if len(out) < len(s.SVars) {
		return RowFatal, errors.Errorf("waveform: ReadSweep: out has %d slots, need %d", len(out), len(s.SVars))
	}
	return s.dec.readSweep(out)
}

// Close releases the underlying byte source. Variable metadata remains
// valid after Close; further ReadRow/ReadSweep calls return RowEOF.
func (s *Stream) Close() error {
	s.dec = noneDecoder{}
	if s.closer != nil {
		c := s.closer
		s.closer = nil
		return c.Close()
	}
	return nil
}

// formatEntry is one row of the format registry: a name usable as an
// explicit format override, an optional filename-matching regexp used
// during autodetection, and the header parser itself.
type formatEntry struct {
	name    string
	pattern *regexp.Regexp
	parse   func(name string, r io.ReadSeeker, opts []Option) (*Stream, error)
}

var registry = []formatEntry{
	{"hspice", regexp.MustCompile(`\.(tr|sw|ac)[0-9]$`), parseHSpice},
	{"hsascii", nil, parseHSAscii},
	{"hsbinary", nil, parseHSBinary},
	{"cazm", regexp.MustCompile(`\.[BNW]$`), parseCAzM},
	{"spice3raw", regexp.MustCompile(`\.raw$`), parseSpice3Raw},
	{"spice2raw", regexp.MustCompile(`\.rawspice$`), parseSpice2Raw},
	{"ascii", regexp.MustCompile(`\.(asc|acs|ascii)$`), parseASCII},
	{"nsout", regexp.MustCompile(`\.out$`), parseNSOut},
}

// FormatName reports the registry name for format index n, or "" if n is
// out of range, mirroring ss_filetype_name.
func FormatName(n int) string {
	if n >= 0 && n < len(registry) {
		return registry[n].name
	}
	return ""
}

// Open opens name for reading. If format is "", the registry is searched
// for a parser: entries whose filename pattern matches name are tried
// first, in registry order, then every remaining entry is tried in
// registry order. The byte source is rewound to offset 0 between failed
// attempts.
func Open(name, format string, opts ...Option) (*Stream, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	s, err := openInternal(f, name, format, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

// OpenFP opens an already-open byte source for reading. Unlike Open,
// format is required: there is no filename to autodetect a dialect from.
// The caller retains ownership of r; Close on the returned Stream does not
// close r.
func OpenFP(r io.ReadSeeker, format string, opts ...Option) (*Stream, error) {
	if format == "" {
		return nil, errors.New("waveform: OpenFP: format is required")
	}
	return openInternal(r, "<waveform>", format, opts)
}

func openInternal(r io.ReadSeeker, name, format string, opts []Option) (*Stream, error) {
	if format != "" {
		for i := range registry {
			if registry[i].name == format {
				s, err := registry[i].parse(name, r, opts)
				if err != nil {
					return nil, errors.Wrapf(err, "waveform: open %q as %q", name, format)
				}
				if s == nil {
					return nil, errors.Errorf("waveform: %q does not look like a %q file", name, format)
				}
				s.Format = Format(i)
				return s, nil
			}
		}
		return nil, errors.Errorf("waveform: unknown format %q", format)
	}

	tried := make([]bool, len(registry))
	try := func(i int) (*Stream, error) {
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, errors.WithStack(err)
		}
		s, err := registry[i].parse(name, r, opts)
		if err != nil {
			logf(nil, SeverityDebug, "waveform", "format %q rejected %q: %v", registry[i].name, name, err)
			return nil, nil
		}
		if s != nil {
			s.Format = Format(i)
		}
		return s, nil
	}

	for i, e := range registry {
		if e.pattern != nil && e.pattern.MatchString(name) {
			tried[i] = true
			if s, err := try(i); err != nil {
				return nil, err
			} else if s != nil {
				return s, nil
			}
		}
	}
	for i := range registry {
		if tried[i] {
			continue
		}
		if s, err := try(i); err != nil {
			return nil, err
		} else if s != nil {
			return s, nil
		}
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, errors.WithStack(err)
	}
	return nil, errors.Errorf("waveform: %q: unrecognized format", name)
}

// newStream allocates a Stream with its variable slices sized for ndv
// dependent variables and nsweep sweep parameters, mirroring ss_new.
func newStream(name string, ndv, nsweep int, opts []Option) *Stream {
	s := &Stream{
		Name:  name,
		DVars: make([]Variable, ndv),
		SVars: make([]Variable, nsweep),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
