package waveform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// S6: nsout header declares a time and a voltage resolution scale; every
// independent value is additionally scaled by the fixed 1e-9 time-unit
// factor.
func TestNSOutScenario(t *testing.T) {
	src := ";!output_format\n" +
		".time_resolution 2\n" +
		".voltage_resolution 0.5\n" +
		".index a 0 v\n" +
		"0\n" +
		"0 10\n" +
		"1\n" +
		"0 20\n"
	s, err := OpenFP(strings.NewReader(src), "nsout")
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, "TIME", s.IVar.Name)
	require.Equal(t, KindTime, s.IVar.Kind)
	require.Len(t, s.DVars, 1)
	require.Equal(t, "a", s.DVars[0].Name)
	require.Equal(t, KindVoltage, s.DVars[0].Kind)

	dvars := make([]float64, s.NCols)
	var iv float64

	rc, err := s.ReadRow(&iv, dvars)
	require.NoError(t, err)
	require.Equal(t, RowOK, rc)
	require.Equal(t, 0.0, iv)
	require.Equal(t, 5.0, dvars[0])

	rc, err = s.ReadRow(&iv, dvars)
	require.NoError(t, err)
	require.Equal(t, RowOK, rc)
	require.Equal(t, 2e-9, iv)
	require.Equal(t, 10.0, dvars[0])

	rc, err = s.ReadRow(&iv, dvars)
	require.NoError(t, err)
	require.Equal(t, RowEOF, rc)
}

// OQ5: a sample index outside the declared index range is silently skipped
// (now also logged at debug level) rather than treated as an error.
func TestNSOutOutOfRangeIndexSkipped(t *testing.T) {
	src := ";!output_format\n" +
		".index a 0 v\n" +
		"0\n" +
		"0 3\n" +
		"9 99\n"
	s, err := OpenFP(strings.NewReader(src), "nsout")
	require.NoError(t, err)
	defer s.Close()

	dvars := make([]float64, s.NCols)
	var iv float64
	rc, err := s.ReadRow(&iv, dvars)
	require.NoError(t, err)
	require.Equal(t, RowOK, rc)
	require.Equal(t, 3.0, dvars[0])
}
