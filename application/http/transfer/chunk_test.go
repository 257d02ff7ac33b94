package transfer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type ChunkDecoderTestSuite struct {
	suite.Suite
}

func TestChunkDecoderTestSuite(t *testing.T) {
	suite.Run(t, new(ChunkDecoderTestSuite))
}

func (s *ChunkDecoderTestSuite) TestDecode() {
	input := []byte("" +
		"5;ext=foo\r\n" +
		"ABCDE\r\n" +
		"a\r\n" +
		"FGHIJKLNMO\r\n" +
		"0\r\n" + // last chunk
		"Hello: World\r\n" + // trailer
		"\r\n", // end of trailer section
	)

	d := NewChunkDecoder(DecoderOptions{})
	out, n, done, err := d.Decode(nil, input)
	s.Require().NoError(err)
	s.True(done)
	s.True(d.Done())
	s.Equal(len(input), n)
	s.Equal([]byte("ABCDEFGHIJKLNMO"), out)
	s.Equal([][]byte{[]byte("Hello: World")}, d.Trailers())
}

func (s *ChunkDecoderTestSuite) TestDecodeByteByByte() {
	input := []byte("" +
		"4\r\n" +
		"test\r\n" +
		"3;a=\"b c\"\r\n" +
		"abc\r\n" +
		"0\r\n" +
		"\r\n",
	)

	d := NewChunkDecoder(DecoderOptions{})
	var out []byte
	for idx := range input {
		var (
			n    int
			done bool
			err  error
		)
		out, n, done, err = d.Decode(out, input[idx:idx+1])
		s.Require().NoError(err)
		s.Equal(1, n)
		s.Equal(idx == len(input)-1, done)
	}

	s.Equal([]byte("testabc"), out)
	s.Empty(d.Trailers())
	s.Equal(uint64(0), d.LastChunk().Size)
}

func (s *ChunkDecoderTestSuite) TestDecodeStopsAtEnd() {
	input := []byte("1\r\nx\r\n0\r\n\r\nleftover")

	d := NewChunkDecoder(DecoderOptions{})
	out, n, done, err := d.Decode(nil, input)
	s.Require().NoError(err)
	s.True(done)
	s.Equal([]byte("x"), out)
	s.Equal([]byte("leftover"), input[n:])

	// Nothing is consumed after the message.
	out, n, done, err = d.Decode(out, []byte("more"))
	s.Require().NoError(err)
	s.True(done)
	s.Zero(n)
	s.Equal([]byte("x"), out)
}

func (s *ChunkDecoderTestSuite) TestDecodeErrors() {
	testcases := []struct {
		desc  string
		opts  DecoderOptions
		input string
	}{
		{desc: "empty size line", input: "\r\n"},
		{desc: "size is not hex", input: "zz\r\n"},
		{desc: "size overflows 64bit", input: "FFFFFFFFFFFFFFFFFF\r\n"},
		{desc: "data longer than size", input: "2\r\nabc\r\n"},
		{desc: "missing LF after data", input: "2\r\nab\rX"},
		{desc: "sole LF on size line", input: "2\nab\r\n"},
		{desc: "sole LF after data", input: "2\r\nab\n"},
		{desc: "line too long", opts: DecoderOptions{MaxLineLength: 4}, input: "1;ext=long\r\n"},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			d := NewChunkDecoder(tc.opts)
			_, _, done, err := d.Decode(nil, []byte(tc.input))
			s.Error(err)
			s.False(done)
		})
	}
}

func (s *ChunkDecoderTestSuite) TestDecodeAllowSoleLF() {
	d := NewChunkDecoder(DecoderOptions{AllowSoleLF: true})
	out, _, done, err := d.Decode(nil, []byte("2\nab\n0\nX-Sum: 1\n\n"))
	s.Require().NoError(err)
	s.True(done)
	s.Equal([]byte("ab"), out)
	s.Equal([][]byte{[]byte("X-Sum: 1")}, d.Trailers())
}

func (s *ChunkDecoderTestSuite) TestDecodeChunkHeader() {
	testcases := []struct {
		desc     string
		input    []byte
		expected Chunk
		wantErr  bool
	}{
		{
			desc:  "example chunk",
			input: []byte("5;ext=foo"),
			expected: Chunk{
				Size: 5,
				Extensions: [][2]string{
					{"ext", "foo"},
				},
			},
		},
		{
			desc:  "BWS inside chunk",
			input: []byte("5 ; ext = foo"),
			expected: Chunk{
				Size: 5,
				Extensions: [][2]string{
					{"ext", "foo"},
				},
			},
		},
		{
			desc:  "quoted extension",
			input: []byte(`a;name="x y"`),
			expected: Chunk{
				Size: 10,
				Extensions: [][2]string{
					{"name", "x y"},
				},
			},
		},
		{
			desc:    "malformed chunk (empty)",
			input:   []byte(""),
			wantErr: true,
		},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			chunk, err := decodeChunkHeader(tc.input)
			if tc.wantErr {
				s.Error(err)
				return
			}

			s.NoError(err)
			s.Equal(tc.expected, chunk)
		})
	}
}

func TestDecodeChunkSize(t *testing.T) {
	testcases := []struct {
		desc     string
		input    []byte
		expected uint64
		wantErr  bool
	}{
		{
			desc:     "normal hex",
			input:    []byte("FF"),
			expected: 0xFF,
		},
		{
			desc:     "lowercase hex",
			input:    []byte("1a"),
			expected: 0x1A,
		},
		{
			desc:    "invalid hex",
			input:   []byte("haha this aint hex"),
			wantErr: true,
		},
		{
			desc:    "hex too long",
			input:   []byte("FFFFFFFFFFFFFFFFFF"), // 9 bytes
			wantErr: true,
		},
		{
			desc:    "signed",
			input:   []byte("-1"),
			wantErr: true,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			size, err := decodeChunkSize(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.expected, size)
		})
	}
}

type ChunkedWriterTestSuite struct {
	suite.Suite
}

func TestChunkedWriterTestSuite(t *testing.T) {
	suite.Run(t, new(ChunkedWriterTestSuite))
}

func (s *ChunkedWriterTestSuite) TestWrite() {
	buf := bytes.NewBuffer(nil)

	cw := NewChunkedWriter(buf)

	// Empty write is ignored
	n, err := cw.Write(nil)
	s.Require().NoError(err)
	s.Require().Zero(n)
	s.Require().Empty(buf.Bytes())

	cw.SetExtensions([][2]string{{"foo", "bar"}})
	p := []byte("ABC")

	expected := []byte("" +
		"3;foo=bar\r\n" +
		"ABC\r\n",
	)

	n, err = cw.Write(p)
	s.Require().NoError(err)
	s.Equal(len(p), n)
	s.Equal(expected, buf.Bytes())
}

func (s *ChunkedWriterTestSuite) TestClose() {
	buf := bytes.NewBuffer(nil)

	cw := NewChunkedWriter(buf)
	cw.SetTrailers([][2]string{{"foo", "bar"}})

	cw.SetExtensions([][2]string{{"foo", "bar"}})
	expected := []byte("" +
		"0;foo=bar\r\n" +
		"foo: bar\r\n" +
		"\r\n",
	)

	err := cw.Close()
	s.Require().NoError(err)
	s.Equal(expected, buf.Bytes())
}

func (s *ChunkedWriterTestSuite) TestCloseWithoutTrailers() {
	buf := bytes.NewBuffer(nil)

	s.Require().NoError(NewChunkedWriter(buf).Close())
	s.Equal([]byte("0\r\n\r\n"), buf.Bytes())
}

func (s *ChunkedWriterTestSuite) TestRoundTrip() {
	buf := bytes.NewBuffer(nil)

	cw := NewChunkedWriter(buf)
	for _, part := range []string{"hello", ", ", "world"} {
		_, err := cw.Write([]byte(part))
		s.Require().NoError(err)
	}
	cw.SetTrailers([][2]string{{"X-Checksum", "abc"}})
	s.Require().NoError(cw.Close())

	d := NewChunkDecoder(DecoderOptions{})
	out, n, done, err := d.Decode(nil, buf.Bytes())
	s.Require().NoError(err)
	s.True(done)
	s.Equal(buf.Len(), n)
	s.Equal([]byte("hello, world"), out)
	s.Equal([][]byte{[]byte("X-Checksum: abc")}, d.Trailers())
}

func (s *ChunkedWriterTestSuite) TestQuotedExtension() {
	buf := bytes.NewBuffer(nil)

	cw := NewChunkedWriter(buf)
	cw.SetExtensions([][2]string{{"name", `a "b"`}, {"flag", ""}})
	_, err := cw.Write([]byte("x"))
	s.Require().NoError(err)
	s.Equal("1;name=\"a \\\"b\\\"\";flag\r\nx\r\n", buf.String())

	d := NewChunkDecoder(DecoderOptions{})
	_, _, _, err = d.Decode(nil, buf.Bytes())
	s.Require().NoError(err)
	s.Equal([][2]string{{"name", `a "b"`}, {"flag", ""}}, d.LastChunk().Extensions)
}

func (s *ChunkedWriterTestSuite) TestWriteAfterClose() {
	cw := NewChunkedWriter(bytes.NewBuffer(nil))
	s.Require().NoError(cw.Close())

	_, err := cw.Write([]byte("late"))
	s.Error(err)
	s.Error(cw.Close())
}
