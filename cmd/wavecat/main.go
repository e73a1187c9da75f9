// Command wavecat converts one of the seven waveform dialects this package
// reads into a space-separated text table, the way the reference sp2sp
// companion tool did for the original C library.
package main

import (
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	flag "github.com/ogier/pflag"
	"github.com/pkg/errors"

	"github.com/stgtell/waveform"
)

const (
	sweepNone    = "none"
	sweepPrepend = "prepend"
	sweepHead    = "head"
)

var (
	beginVal   = flag.StringP("begin", "b", "", "start output after independent-variable value V is reached")
	outType    = flag.StringP("convert", "c", "ascii", "output format: ascii, nohead, cazm, none")
	ndigits    = flag.IntP("digits", "d", 7, "number of significant digits in output")
	endVal     = flag.StringP("end", "e", "", "stop output after independent-variable value V is reached")
	fieldNames = flag.StringP("fields", "f", "", "comma-separated list of field names to output")
	fieldNums  = flag.StringP("numbers", "n", "", "comma-separated list of field numbers to output; 0 is the independent variable")
	sweepStyle = flag.StringP("sweep", "s", sweepPrepend, "sweep-parameter handling: none, prepend, head")
	inType     = flag.StringP("type", "t", "", "assume input is of this format; default autodetects")
	unitFilter = flag.StringP("units", "u", "", "output only variables of this kind: time, volt, amps, freq")
	verbose    = flag.BoolP("verbose", "v", false, "print detailed variable information to stderr")
	config     = flag.StringP("config", "", "", "path to a TOML config file supplying defaults")
)

func main() {
	flag.Parse()
	if *config != "" {
		if err := loadConfig(*config); err != nil {
			log.Fatalf("%+v", err)
		}
	}
	if *ndigits < 5 {
		*ndigits = 5
	}
	args := flag.Args()
	if len(args) != 1 {
		flag.Usage()
		os.Exit(1)
	}
	if err := run(args[0], os.Stdout); err != nil {
		log.Fatalf("%+v", err)
	}
}

// wavecatConfig holds the subset of flags a TOML config file may supply as
// defaults. Only fields left at their flag default are overridden, so an
// explicit command-line flag always wins.
type wavecatConfig struct {
	Digits     int    `toml:"digits"`
	InputType  string `toml:"input_type"`
	SweepStyle string `toml:"sweep"`
}

func loadConfig(path string) error {
	var c wavecatConfig
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return errors.Wrapf(err, "wavecat: reading config %q", path)
	}
	if *ndigits == 7 && c.Digits != 0 {
		*ndigits = c.Digits
	}
	if *inType == "" && c.InputType != "" {
		*inType = c.InputType
	}
	if *sweepStyle == sweepPrepend && c.SweepStyle != "" {
		*sweepStyle = c.SweepStyle
	}
	return nil
}

func run(path string, w *os.File) error {
	switch *sweepStyle {
	case sweepNone, sweepPrepend, sweepHead:
	default:
		return errors.Errorf("wavecat: unknown sweep-data style %q", *sweepStyle)
	}
	if *verbose {
		waveform.SetLevel(waveform.SeverityDebug)
	}
	s, err := waveform.Open(path, *inType)
	if err != nil {
		return errors.WithStack(err)
	}
	defer s.Close()

	if *verbose {
		printVerbose(s)
	}

	begin, err := parseBound(*beginVal, negInf)
	if err != nil {
		return errors.Wrap(err, "wavecat: -begin")
	}
	end, err := parseBound(*endVal, posInf)
	if err != nil {
		return errors.Wrap(err, "wavecat: -end")
	}

	indices, err := selectFields(s, *fieldNames, *fieldNums, *unitFilter)
	if err != nil {
		return err
	}
	if len(indices) == 0 {
		return errors.New("wavecat: no fields selected for output")
	}

	switch *outType {
	case "cazm":
		fmt.Fprintln(w, "* CAZM-format output converted with wavecat")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "TRANSIENT ANALYSIS")
		printHeader(w, s, indices)
		return printData(w, s, indices, begin, end, *ndigits)
	case "ascii":
		printHeader(w, s, indices)
		return printData(w, s, indices, begin, end, *ndigits)
	case "nohead":
		return printData(w, s, indices, begin, end, *ndigits)
	case "none":
		return nil
	default:
		return errors.Errorf("wavecat: invalid output type %q", *outType)
	}
}

const (
	negInf = -1
	posInf = 1
)

// parseBound parses a -begin/-end value. An empty string means the bound is
// unset, falling back to the caller-chosen infinity rather than requiring
// the user to spell out the widest representable float.
func parseBound(s string, sign int) (float64, error) {
	if s == "" {
		return math.Inf(sign), nil
	}
	return strconv.ParseFloat(s, 64)
}

func printVerbose(s *waveform.Stream) {
	fmt.Fprintf(os.Stderr, "filename: %q\n", s.Name)
	fmt.Fprintf(os.Stderr, "  columns: %d\n", s.NCols)
	fmt.Fprintf(os.Stderr, "  tables: %d\n", s.NTables)
	fmt.Fprintf(os.Stderr, "independent variable:\n")
	fmt.Fprintf(os.Stderr, "  name: %q\n", s.IVar.Name)
	fmt.Fprintf(os.Stderr, "  kind: %s\n", s.IVar.Kind)
	fmt.Fprintf(os.Stderr, "  col: %d\n", s.IVar.Col)
	fmt.Fprintf(os.Stderr, "  ncols: %d\n", s.IVar.NCols)
	fmt.Fprintf(os.Stderr, "sweep parameters: %d\n", len(s.SVars))
	for _, v := range s.SVars {
		fmt.Fprintf(os.Stderr, "  name: %q\n", v.Name)
	}
	fmt.Fprintf(os.Stderr, "dependent variables: %d\n", len(s.DVars))
	for i, v := range s.DVars {
		fmt.Fprintf(os.Stderr, " dv[%d] %q (kind=%s col=%d ncols=%d)\n", i, v.Name, v.Kind, v.Col, v.NCols)
	}
}

func kindFromUnitName(u string) waveform.Kind {
	switch strings.ToLower(u) {
	case "time":
		return waveform.KindTime
	case "volt", "volts", "voltage":
		return waveform.KindVoltage
	case "current", "amps":
		return waveform.KindCurrent
	case "freq", "frequency", "hertz":
		return waveform.KindFrequency
	default:
		return waveform.KindUnknown
	}
}

// selectFields resolves which of the independent variable (index 0) and
// dependent variables (index 1..ndv) to emit, in priority order: an
// explicit name list, then an explicit number list, then every field whose
// kind matches -units, then every field.
func selectFields(s *waveform.Stream, names, nums, unit string) ([]int, error) {
	switch {
	case names != "":
		return parseFieldNames(s, names)
	case nums != "":
		return parseFieldNumbers(s, nums)
	default:
		want := kindFromUnitName(unit)
		var out []int
		for i := 0; i <= len(s.DVars); i++ {
			if i == 0 || want == waveform.KindUnknown || s.DVars[i-1].Kind == want {
				out = append(out, i)
			}
		}
		return out, nil
	}
}

func parseFieldNumbers(s *waveform.Stream, list string) ([]int, error) {
	var out []int
	for _, tok := range strings.FieldsFunc(list, func(r rune) bool { return r == ',' }) {
		n, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil || n < 0 || n > len(s.DVars) {
			return nil, errors.Errorf("wavecat: bad field number in -numbers option: %q", tok)
		}
		out = append(out, n)
	}
	return out, nil
}

// findDVByName looks for name as-is, then with "v(" stripped, the way
// hspice mangles voltage-node names.
func findDVByName(s *waveform.Stream, name string) int {
	for i, v := range s.DVars {
		if strings.EqualFold(v.Name, name) {
			return i
		}
	}
	for i, v := range s.DVars {
		if len(v.Name) > 2 && strings.EqualFold(v.Name[:2], "v(") && strings.EqualFold(name, v.Name[2:]) {
			return i
		}
	}
	return -1
}

func parseFieldNames(s *waveform.Stream, list string) ([]int, error) {
	var out []int
	for _, tok := range strings.FieldsFunc(list, func(r rune) bool { return r == ',' }) {
		name := strings.TrimSpace(tok)
		if strings.EqualFold(name, s.IVar.Name) {
			out = append(out, 0)
			continue
		}
		n := findDVByName(s, name)
		if n < 0 {
			return nil, errors.Errorf("wavecat: field name in -fields option not found in file: %q", name)
		}
		out = append(out, n+1)
	}
	return out, nil
}

func printHeader(w *os.File, s *waveform.Stream, indices []int) {
	if len(s.SVars) > 0 && *sweepStyle == sweepPrepend {
		for _, v := range s.SVars {
			fmt.Fprintf(w, "%s ", v.Name)
		}
	}
	for i, idx := range indices {
		if i > 0 {
			fmt.Fprint(w, " ")
		}
		if idx == 0 {
			fmt.Fprint(w, waveform.VarName(s.IVar, 0))
			continue
		}
		v := s.DVars[idx-1]
		for j := 0; j < v.NCols; j++ {
			if j > 0 {
				fmt.Fprint(w, " ")
			}
			fmt.Fprint(w, waveform.VarName(v, j))
		}
	}
	fmt.Fprintln(w)
}

func printData(w *os.File, s *waveform.Stream, indices []int, begin, end float64, ndigits int) error {
	dvals := make([]float64, s.NCols-s.IVar.NCols)
	var spar []float64
	if len(s.SVars) > 0 {
		spar = make([]float64, len(s.SVars))
	}
	style := *sweepStyle
	tab := 0
	for {
		if len(s.SVars) > 0 {
			rc, err := s.ReadSweep(spar)
			if err != nil {
				return errors.WithStack(err)
			}
			if rc <= 0 {
				break
			}
		}
		if tab > 0 && style == sweepHead {
			fmt.Fprintf(w, "# sweep %d;", tab)
			for i, v := range s.SVars {
				fmt.Fprintf(w, " %s=%g", v.Name, spar[i])
			}
			fmt.Fprintln(w)
		}
		var ival float64
		var rc int
		var err error
		for {
			rc, err = s.ReadRow(&ival, dvals)
			if err != nil {
				return errors.WithStack(err)
			}
			if rc != waveform.RowOK {
				break
			}
			if ival < begin {
				continue
			}
			if ival > end {
				if s.NTables == 1 {
					break
				}
				continue
			}
			if len(s.SVars) > 0 && style == sweepPrepend {
				for _, v := range spar {
					fmt.Fprintf(w, "%s ", formatFloat(v, ndigits))
				}
			}
			for i, idx := range indices {
				if i > 0 {
					fmt.Fprint(w, " ")
				}
				if idx == 0 {
					fmt.Fprint(w, formatFloat(ival, ndigits))
					continue
				}
				v := s.DVars[idx-1]
				col := v.Col - s.IVar.NCols
				for j := 0; j < v.NCols; j++ {
					if j > 0 {
						fmt.Fprint(w, " ")
					}
					fmt.Fprint(w, formatFloat(dvals[col+j], ndigits))
				}
			}
			fmt.Fprintln(w)
		}
		if rc == waveform.RowBoundary {
			if len(s.SVars) == 0 {
				style = sweepHead
			}
			tab++
			continue
		}
		break
	}
	return nil
}

func formatFloat(v float64, ndigits int) string {
	return strconv.FormatFloat(v, 'g', ndigits, 64)
}
