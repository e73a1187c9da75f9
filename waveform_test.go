package waveform

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// S1: plain ASCII table, three real-valued columns.
func TestAsciiScenario(t *testing.T) {
	src := "t v1 v2\n0 0 1\n1 2 3\n2 4 5\n"
	s, err := OpenFP(strings.NewReader(src), "ascii")
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, 3, s.NCols)
	require.Len(t, s.DVars, 2)

	wantIvals := []float64{0, 1, 2}
	wantDvals := [][]float64{{0, 1}, {2, 3}, {4, 5}}
	dvars := make([]float64, s.NCols)
	for i, wantIv := range wantIvals {
		var iv float64
		rc, err := s.ReadRow(&iv, dvars)
		require.NoError(t, err)
		require.Equal(t, RowOK, rc)
		require.Equal(t, wantIv, iv)
		require.Equal(t, wantDvals[i], dvars[:2])
	}
	var iv float64
	rc, err := s.ReadRow(&iv, dvars)
	require.NoError(t, err)
	require.Equal(t, RowEOF, rc)
}

// S2: CAzM transient analysis header.
func TestCAzMScenario(t *testing.T) {
	src := "TRANSIENT\ntime v1\n0 5\n1e-9 5\n"
	s, err := OpenFP(strings.NewReader(src), "cazm")
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, KindTime, s.IVar.Kind)
	require.Len(t, s.DVars, 1)
	require.Equal(t, "v1", s.DVars[0].Name)

	dvars := make([]float64, s.NCols)
	var iv float64
	rc, err := s.ReadRow(&iv, dvars)
	require.NoError(t, err)
	require.Equal(t, RowOK, rc)
	require.Equal(t, 0.0, iv)
	rc, err = s.ReadRow(&iv, dvars)
	require.NoError(t, err)
	require.Equal(t, RowOK, rc)
	require.Equal(t, 1e-9, iv)
}

// Property 1: column-tiling invariant.
func TestColumnTilingInvariant(t *testing.T) {
	src := "t v1 v2 v3\n0 1 2 3\n"
	s, err := OpenFP(strings.NewReader(src), "ascii")
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, 0, s.IVar.Col)
	require.Equal(t, 1, s.IVar.NCols)
	want := s.IVar.NCols
	for _, v := range s.DVars {
		require.Equal(t, want, v.Col)
		want += v.NCols
	}
	require.Equal(t, s.NCols, want)
}

// Property 2: metadata is unaffected by reading rows.
func TestIdempotentMetadata(t *testing.T) {
	src := "t v1\n0 1\n1 2\n"
	s, err := OpenFP(strings.NewReader(src), "ascii")
	require.NoError(t, err)
	defer s.Close()

	before := s.DVars[0]
	dvars := make([]float64, s.NCols)
	var iv float64
	_, err = s.ReadRow(&iv, dvars)
	require.NoError(t, err)
	require.Equal(t, before, s.DVars[0])
}

// Property 3: a format parser that rejects a file leaves the byte source at
// offset 0, so autodetection can try the next registry entry starting from
// the true beginning of the file rather than wherever the previous attempt
// left off.
func TestAutodetectRewindsOnReject(t *testing.T) {
	// No filename suffix matches any registry pattern, so every entry is
	// tried in order starting from hspice; hspice/hsascii/hsbinary all
	// reject this plain text before cazm's looser header scan claims it. If
	// any of the rejected attempts failed to rewind, cazm would see a
	// truncated or shifted header instead of the true first line.
	dir := t.TempDir()
	path := filepath.Join(dir, "capture")
	src := "t v1 v2\n0 0 1\n1 2 3\n2 4 5\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	s, err := Open(path, "")
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, "cazm", s.Format.String())
	require.Equal(t, "t", s.IVar.Name)
	require.Len(t, s.DVars, 2)

	dvars := make([]float64, s.NCols)
	var iv float64
	rc, err := s.ReadRow(&iv, dvars)
	require.NoError(t, err)
	require.Equal(t, RowOK, rc)
	require.Equal(t, 0.0, iv)
	require.Equal(t, []float64{0, 1}, dvars[:2])
}

func TestOpenUnknownFormat(t *testing.T) {
	_, err := OpenFP(strings.NewReader("x"), "bogus")
	require.Error(t, err)
}

func TestOpenFPRequiresFormat(t *testing.T) {
	_, err := OpenFP(strings.NewReader("x"), "")
	require.Error(t, err)
}
