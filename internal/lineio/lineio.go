// Package lineio provides a buffered, growable line-at-a-time reader for the
// text-based waveform dialects (HSPICE ascii, CAzM, plain ascii, spice3
// raw text, nsout).
package lineio

import (
	"bufio"
	"io"
)

// Reader reads '\n'-terminated lines from an underlying io.Reader, reusing
// a single growable buffer across calls the way the original fread_line
// grows its line buffer by doubling rather than reallocating per line.
type Reader struct {
	br  *bufio.Reader
	buf []byte
}

// New wraps r in a Reader. r is read byte-by-byte through a bufio.Reader,
// so callers should not wrap r in their own buffering.
func New(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r), buf: make([]byte, 0, 1024)}
}

// ReadLine returns the next line, without its trailing newline, as a slice
// valid only until the next call to ReadLine. Callers that need to retain
// the bytes must copy them. io.EOF is returned once no more data is
// available; a final line with no trailing newline is still returned, with
// io.EOF on the following call.
func (r *Reader) ReadLine() ([]byte, error) {
	r.buf = r.buf[:0]
	any := false
	for {
		b, err := r.br.ReadByte()
		if err != nil {
			if any {
				return r.buf, nil
			}
			return nil, err
		}
		any = true
		if b == '\n' {
			return r.buf, nil
		}
		r.buf = append(r.buf, b)
	}
}
