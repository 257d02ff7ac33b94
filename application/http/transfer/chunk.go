package transfer

import (
	"bytes"
	"io"
	"strconv"

	"minihttp/application/util/rule"

	"github.com/pkg/errors"
)

type Chunk struct {
	Size       uint64
	Extensions [][2]string
}

type chunkState uint8

const (
	stateSize chunkState = iota
	stateData
	stateDataCR
	stateDataLF
	stateTrailer
	stateDone
)

type DecoderOptions struct {
	// AllowSoleLF accepts a bare LF wherever CRLF is expected.
	AllowSoleLF bool

	// MaxLineLength limits chunk size lines and trailer lines. Zero means unlimited.
	MaxLineLength uint
}

// ChunkDecoder decodes the chunked transfer coding incrementally.
// Input can be split anywhere; partial lines are kept until the rest arrives.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-7.1
type ChunkDecoder struct {
	opts DecoderOptions

	state     chunkState
	line      []byte // partial size or trailer line
	remaining uint64 // data bytes left in current chunk
	chunk     *Chunk

	trailers [][]byte
}

func NewChunkDecoder(opts DecoderOptions) *ChunkDecoder {
	return &ChunkDecoder{opts: opts}
}

func (d *ChunkDecoder) LastChunk() *Chunk { return d.chunk }

// Done reports whether the last chunk and the trailer section were consumed.
func (d *ChunkDecoder) Done() bool { return d.state == stateDone }

// Trailers returns the raw trailer field lines, without line terminators.
func (d *ChunkDecoder) Trailers() [][]byte {
	clone := make([][]byte, len(d.trailers))
	for idx, line := range d.trailers {
		clone[idx] = bytes.Clone(line)
	}
	return clone
}

// Decode consumes src and appends the chunk data found in it to dst.
// n is the number of bytes consumed from src. Once done is true, nothing more is consumed,
// so src[n:] is whatever followed the message.
func (d *ChunkDecoder) Decode(dst, src []byte) (out []byte, n int, done bool, err error) {
loop:
	for n < len(src) {
		switch d.state {
		case stateSize, stateTrailer:
			line, consumed, ok, err := d.takeLine(src[n:])
			n += consumed
			if err != nil {
				return dst, n, false, err
			}
			if !ok {
				break loop
			}

			if d.state == stateSize {
				chunk, err := decodeChunkHeader(line)
				if err != nil {
					return dst, n, false, errors.Wrap(err, "decoding chunk")
				}
				d.chunk = &chunk

				if chunk.Size == 0 {
					// Last chunk.
					d.state = stateTrailer
				} else {
					d.remaining = chunk.Size
					d.state = stateData
				}
				continue
			}

			if len(line) == 0 {
				// Empty line ends the trailer section.
				d.state = stateDone
				break loop
			}
			d.trailers = append(d.trailers, line)

		case stateData:
			take := uint64(len(src) - n)
			if take > d.remaining {
				take = d.remaining
			}
			dst = append(dst, src[n:n+int(take)]...)
			n += int(take)
			d.remaining -= take

			if d.remaining == 0 {
				d.state = stateDataCR
			}

		case stateDataCR:
			c := src[n]
			n++
			switch {
			case c == rule.CR:
				d.state = stateDataLF
			case c == rule.LF && d.opts.AllowSoleLF:
				d.state = stateSize
			default:
				return dst, n, false, errors.Errorf("CRLF delimiter not found after chunk data: %q", c)
			}

		case stateDataLF:
			c := src[n]
			n++
			if c != rule.LF {
				return dst, n, false, errors.Errorf("CRLF delimiter not found after chunk data: %q", c)
			}
			d.state = stateSize

		case stateDone:
			break loop
		}
	}

	return dst, n, d.state == stateDone, nil
}

// takeLine collects one line, possibly across several calls.
func (d *ChunkDecoder) takeLine(src []byte) (line []byte, consumed int, ok bool, err error) {
	idx := bytes.IndexByte(src, rule.LF)
	if idx < 0 {
		d.line = append(d.line, src...)
		if err := d.checkLineLength(); err != nil {
			return nil, len(src), false, err
		}
		return nil, len(src), false, nil
	}

	d.line = append(d.line, src[:idx]...)
	if err := d.checkLineLength(); err != nil {
		return nil, idx + 1, false, err
	}

	line = d.line
	d.line = nil

	if !d.opts.AllowSoleLF {
		if len(line) == 0 || line[len(line)-1] != rule.CR {
			return nil, idx + 1, false, errors.New("missing CR before LF")
		}
	}
	line = bytes.TrimSuffix(line, []byte{rule.CR})

	return line, idx + 1, true, nil
}

func (d *ChunkDecoder) checkLineLength() error {
	if d.opts.MaxLineLength > 0 && uint(len(d.line)) > d.opts.MaxLineLength {
		return errors.Errorf("chunk line length exceeds limit(%d)", d.opts.MaxLineLength)
	}
	return nil
}

func decodeChunkHeader(line []byte) (Chunk, error) {
	parts := bytes.Split(line, []byte{';'})

	// Trim BWS.
	sizeRaw := bytes.TrimFunc(parts[0], rule.IsOWS)
	chunkSize, err := decodeChunkSize(sizeRaw)
	if err != nil {
		return Chunk{}, errors.Wrap(err, "decoding chunk size")
	}

	// Decode chunk extensions
	parts = parts[1:]
	extensions := make([][2]string, 0)
	for _, part := range parts {
		k, v, _ := bytes.Cut(part, []byte{'='})
		// Trim BWS.
		k = bytes.TrimFunc(k, rule.IsOWS)
		v = bytes.TrimFunc(v, rule.IsOWS)

		extensions = append(extensions, [2]string{
			string(k),
			string(rule.Unquote(v)),
		})
	}

	return Chunk{Size: chunkSize, Extensions: extensions}, nil
}

func decodeChunkSize(b []byte) (uint64, error) {
	if len(b) == 0 {
		return 0, errors.New("chunk size is empty")
	}

	for _, c := range b {
		if !rule.IsHexDigit(rune(c)) {
			return 0, errors.Errorf("failed to decode hex: %q", string(b))
		}
	}

	size, err := strconv.ParseUint(string(b), 16, 64)
	if err != nil {
		return 0, errors.Errorf("chunk size larger than 64bit: %q", string(b))
	}

	return size, nil
}

// ChunkedWriter turns a byte stream into the chunked transfer coding.
// Every non-empty Write becomes one chunk. Close writes the last chunk and the trailer section.
type ChunkedWriter struct {
	w   io.Writer
	buf []byte

	extensions [][2]string
	trailers   [][2]string
	closed     bool
}

var _ io.WriteCloser = (*ChunkedWriter)(nil)

var errWriterClosed = errors.New("chunked writer is closed")

func NewChunkedWriter(w io.Writer) *ChunkedWriter {
	return &ChunkedWriter{w: w}
}

// SetExtensions attaches extensions to the next chunk only.
// Values that are not tokens are sent as quoted strings.
func (cw *ChunkedWriter) SetExtensions(extensions [][2]string) {
	cw.extensions = extensions
}

// SetTrailers sets the fields sent after the last chunk.
func (cw *ChunkedWriter) SetTrailers(trailers [][2]string) {
	cw.trailers = trailers
}

func (cw *ChunkedWriter) Write(p []byte) (int, error) {
	if cw.closed {
		return 0, errWriterClosed
	}
	// A zero size chunk would end the body.
	if len(p) == 0 {
		return 0, nil
	}

	cw.buf = append(cw.appendHeader(cw.buf[:0], len(p)), p...)
	cw.buf = append(cw.buf, rule.CRLF...)
	if _, err := cw.w.Write(cw.buf); err != nil {
		return 0, errors.Wrap(err, "writing chunk")
	}

	return len(p), nil
}

func (cw *ChunkedWriter) Close() error {
	if cw.closed {
		return errWriterClosed
	}
	cw.closed = true

	buf := cw.appendHeader(cw.buf[:0], 0)
	for _, field := range cw.trailers {
		buf = append(buf, field[0]+": "+field[1]...)
		buf = append(buf, rule.CRLF...)
	}
	buf = append(buf, rule.CRLF...)

	if _, err := cw.w.Write(buf); err != nil {
		return errors.Wrap(err, "writing last chunk")
	}
	return nil
}

//	chunk-size [ chunk-ext ] CRLF
func (cw *ChunkedWriter) appendHeader(buf []byte, size int) []byte {
	buf = strconv.AppendUint(buf, uint64(size), 16)
	for _, ext := range cw.extensions {
		buf = append(buf, ';')
		buf = append(buf, ext[0]...)
		if ext[1] == "" {
			continue
		}
		buf = append(buf, '=')
		buf = appendExtValue(buf, ext[1])
	}
	cw.extensions = nil

	return append(buf, rule.CRLF...)
}

//	chunk-ext-val = token / quoted-string
func appendExtValue(buf []byte, v string) []byte {
	if rule.IsValidToken(v) {
		return append(buf, v...)
	}

	buf = append(buf, '"')
	for i := 0; i < len(v); i++ {
		if v[i] == '"' || v[i] == '\\' {
			buf = append(buf, '\\')
		}
		buf = append(buf, v[i])
	}
	return append(buf, '"')
}
