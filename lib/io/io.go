// Package iolib has the io helpers the standard io package lacks.
package iolib

import "io"

// NopWriteCloser returns w with a Close that does nothing.
func NopWriteCloser(w io.Writer) io.WriteCloser { return nopCloser{w} }

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// WriteFull keeps writing until buf is drained.
// A writer that makes no progress without an error fails with [io.ErrShortWrite].
func WriteFull(w io.Writer, buf []byte) (int, error) {
	var written int
	for written < len(buf) {
		n, err := w.Write(buf[written:])
		written += n
		switch {
		case err != nil:
			return written, err
		case n == 0:
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}
