package waveform

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// CAzM's 30-line keyword scan recognizes "ac analysis" and overrides the
// guessed independent-variable kind to frequency even though the banner
// line carrying the keyword is itself unusable as the variable-name line
// (it's marked non-printable here, as a real banner's extra formatting
// bytes would be) and the real header line's own name ("x") would
// otherwise default to time.
func TestCAzMACAnalysisHint(t *testing.T) {
	src := "AC ANALYSIS\x01\nx vout\n100 1\n200 2\n"
	s, err := OpenFP(strings.NewReader(src), "cazm")
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, KindFrequency, s.IVar.Kind)
	require.Equal(t, "vout", s.DVars[0].Name)
}

// A blank line ends the data region cleanly.
func TestAsciiBlankLineEndsData(t *testing.T) {
	src := "t v1\n0 1\n\n1 2\n"
	s, err := OpenFP(strings.NewReader(src), "ascii")
	require.NoError(t, err)
	defer s.Close()

	dvars := make([]float64, s.NCols)
	var iv float64

	rc, err := s.ReadRow(&iv, dvars)
	require.NoError(t, err)
	require.Equal(t, RowOK, rc)
	require.Equal(t, 0.0, iv)

	rc, err = s.ReadRow(&iv, dvars)
	require.NoError(t, err)
	require.Equal(t, RowEOF, rc)
}

// A row whose leading token isn't numeric (a footer or comment line mixed
// into the data region) is a fatal error, not a skip: the ascii format is
// loosely enough defined that continuing past garbage risks silently
// misreading a binary file as ascii.
func TestAsciiRejectsNonNumericRow(t *testing.T) {
	src := "t v1\n0 1\n* end of data\n1 2\n"
	s, err := OpenFP(strings.NewReader(src), "ascii")
	require.NoError(t, err)
	defer s.Close()

	dvars := make([]float64, s.NCols)
	var iv float64

	rc, err := s.ReadRow(&iv, dvars)
	require.NoError(t, err)
	require.Equal(t, RowOK, rc)
	require.Equal(t, 0.0, iv)

	rc, err = s.ReadRow(&iv, dvars)
	require.Error(t, err)
	require.Equal(t, RowFatal, rc)
}

// A header line containing a non-printable byte can't be the plain-ascii
// variable-name line, so parseASCII rejects the file outright.
func TestAsciiRejectsNonPrintableHeader(t *testing.T) {
	_, err := OpenFP(strings.NewReader("\x01\x02\x03\n0 1\n"), "ascii")
	require.Error(t, err)
}

// Property 5: a file built exactly as the ascii format would emit one
// (variable-name header line, then each row as whitespace-separated
// high-precision fields) reads back the same values it was built from.
func TestAsciiRoundTrip(t *testing.T) {
	rows := [][3]float64{
		{0, 1.25, -3.5},
		{1e-9, 0.000123456789, 42},
		{2e-9, -1, 1.0 / 3.0},
	}
	var b strings.Builder
	b.WriteString("t v1 v2\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%.17g %.17g %.17g\n", r[0], r[1], r[2])
	}

	s, err := OpenFP(strings.NewReader(b.String()), "ascii")
	require.NoError(t, err)
	defer s.Close()

	dvars := make([]float64, s.NCols)
	var iv float64
	for _, want := range rows {
		rc, err := s.ReadRow(&iv, dvars)
		require.NoError(t, err)
		require.Equal(t, RowOK, rc)
		require.InDelta(t, want[0], iv, math.Abs(want[0])*1e-15+1e-300)
		require.InDelta(t, want[1], dvars[0], math.Abs(want[1])*1e-15+1e-300)
		require.InDelta(t, want[2], dvars[1], math.Abs(want[2])*1e-15+1e-300)
	}

	rc, err := s.ReadRow(&iv, dvars)
	require.NoError(t, err)
	require.Equal(t, RowEOF, rc)
}
