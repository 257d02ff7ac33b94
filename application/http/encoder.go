package http

import (
	"bufio"
	"io"

	"minihttp/application/util/rule"

	"github.com/pkg/errors"
)

type EncodeOptions struct {
	// UseSoleLF terminates lines with LF only instead of CRLF.
	//
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-2.2-3
	UseSoleLF bool
}

var DefaultEncodeOptions = EncodeOptions{
	UseSoleLF: false,
}

// RequestEncoder writes requests in HTTP/1.1 message format.
type RequestEncoder struct {
	bw  *bufio.Writer
	eol []byte
}

func NewRequestEncoder(w io.Writer, opts EncodeOptions) *RequestEncoder {
	eol := rule.CRLF
	if opts.UseSoleLF {
		eol = eol[1:]
	}
	return &RequestEncoder{bw: bufio.NewWriter(w), eol: eol}
}

// Encode validates request and writes it out.
// Validation failures are returned as [*Error] before anything is written.
func (re *RequestEncoder) Encode(request *Request) error {
	if err := request.validate(); err != nil {
		return err
	}

	re.line(string(request.method), " ", request.target.RequestTarget(), " ", Version11.String())
	for _, f := range request.headers.fields {
		re.line(f.Name, ": ", f.Value)
	}
	re.line()

	// bufio.Writer keeps the first error, so checking once after the body is enough.
	if _, err := re.bw.Write(request.body); err != nil {
		return errors.Wrap(err, "writing request")
	}
	if err := re.bw.Flush(); err != nil {
		return errors.Wrap(err, "flushing request")
	}

	return nil
}

func (re *RequestEncoder) line(parts ...string) {
	for _, p := range parts {
		re.bw.WriteString(p)
	}
	re.bw.Write(re.eol)
}
