package lineio

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadLineSplitsOnNewline(t *testing.T) {
	r := New(strings.NewReader("alpha\nbeta\ngamma"))

	line, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "alpha", string(line))

	line, err = r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "beta", string(line))

	// final line has no trailing newline but is still returned, with a
	// clean io.EOF on the call after.
	line, err = r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "gamma", string(line))

	_, err = r.ReadLine()
	require.Equal(t, io.EOF, err)
}

func TestReadLineEmptyInput(t *testing.T) {
	r := New(strings.NewReader(""))
	_, err := r.ReadLine()
	require.Equal(t, io.EOF, err)
}

func TestReadLineReusesBuffer(t *testing.T) {
	r := New(strings.NewReader("one\ntwo\n"))
	first, err := r.ReadLine()
	require.NoError(t, err)
	firstCopy := append([]byte(nil), first...)

	_, err = r.ReadLine()
	require.NoError(t, err)

	// the returned slice is only valid until the next call; a caller that
	// needs to retain it must copy, which is what firstCopy demonstrates.
	require.Equal(t, "one", string(firstCopy))
}
