package http

import (
	"bufio"
	"bytes"

	"minihttp/application/util/rule"

	"github.com/pkg/errors"
)

type DecodeOptions struct {
	// AllowSoleLF specifies whether a single LF character should be recognized as a valid line terminator.
	//
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-2.2-3
	AllowSoleLF bool

	// MaxStartLineLength sets the limit of request line or status line length.
	// Recommended: >= 8000
	//
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-3-5
	MaxStartLineLength uint

	// MaxFieldLineLength sets the limit of field line length on headers and trailers.
	MaxFieldLineLength uint

	// MaxHeaderCount sets the limit of fields in a single header section.
	MaxHeaderCount uint

	// MaxBodySize sets the limit of a decoded response body.
	MaxBodySize uint64
}

// Zero on any limit means unlimited.
var DefaultDecodeOptions = DecodeOptions{
	AllowSoleLF:        false,
	MaxStartLineLength: 8192,
	MaxFieldLineLength: 8192,
	MaxHeaderCount:     256,
	MaxBodySize:        0,
}

var (
	errLineTooLong       = errors.New("line length exceeds limit")
	ErrMissingCRBeforeLF = errors.New("missing CR before LF")
)

// trimLine strips the line terminator from a line that ends right before LF.
// A CR left inside the line is read as SP.
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-2.2-4
func trimLine(b []byte, allowSoleLF bool) ([]byte, error) {
	trimmed, hadCR := bytes.CutSuffix(b, []byte{rule.CR})
	if !hadCR && !allowSoleLF {
		return nil, ErrMissingCRBeforeLF
	}
	return bytes.ReplaceAll(trimmed, []byte{rule.CR}, []byte{rule.SP}), nil
}

// RequestHead is the request line and header section as seen by the receiving side.
type RequestHead struct {
	Method  Method
	Target  string
	Version Version
	Headers Headers
}

var (
	ErrMalformedRequestLine = errors.New("request line is malformed")
	ErrTooManyFields        = errors.New("too many fields")
)

// ReadRequestHead reads a request line and its header section from br.
// The body, if any, is left unread in br.
func ReadRequestHead(br *bufio.Reader, opts DecodeOptions) (RequestHead, error) {
	lines := lineReader{br: br, allowSoleLF: opts.AllowSoleLF}

	// Empty lines before the request line are ignored.
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-2.2-6
	var line []byte
	for len(line) == 0 {
		var err error
		if line, err = lines.next(opts.MaxStartLineLength); err != nil {
			return RequestHead{}, errors.Wrap(err, "reading request line")
		}
	}

	head, err := parseRequestLine(line)
	if err != nil {
		return RequestHead{}, errors.Wrapf(ErrMalformedRequestLine, "%s: %q", err, line)
	}

	for {
		line, err := lines.next(opts.MaxFieldLineLength)
		switch {
		case err != nil:
			return RequestHead{}, errors.Wrap(err, "reading field line")
		case len(line) == 0:
			return head, nil
		case opts.MaxHeaderCount > 0 && uint(head.Headers.Len()) >= opts.MaxHeaderCount:
			return RequestHead{}, ErrTooManyFields
		}

		field, err := ParseField(line)
		if err != nil {
			return RequestHead{}, errors.Wrap(err, "parsing field")
		}
		head.Headers.Add(field.Name, field.Value)
	}
}

type lineReader struct {
	br          *bufio.Reader
	allowSoleLF bool
}

func (lr lineReader) next(limit uint) ([]byte, error) {
	b, err := lr.br.ReadSlice(rule.LF)
	switch {
	case errors.Is(err, bufio.ErrBufferFull), err == nil && limit > 0 && uint(len(b)) > limit:
		return nil, errLineTooLong
	case err != nil:
		return nil, err
	}

	return trimLine(b[:len(b)-1], lr.allowSoleLF)
}

//	request-line = method SP request-target SP HTTP-version
func parseRequestLine(line []byte) (RequestHead, error) {
	method, rest, ok1 := bytes.Cut(line, []byte{rule.SP})
	target, version, ok2 := bytes.Cut(rest, []byte{rule.SP})
	if !ok1 || !ok2 || bytes.IndexByte(version, rule.SP) >= 0 {
		return RequestHead{}, errors.New("expected three parts separated by SP")
	}

	head := RequestHead{Method: Method(method), Target: string(target)}
	if !head.Method.IsValid() {
		return RequestHead{}, errors.New("method is not a valid token")
	}
	if head.Target == "" {
		return RequestHead{}, errors.New("request target should not be empty")
	}

	var err error
	if head.Version, err = ParseVersion(version); err != nil {
		return RequestHead{}, errors.Wrap(err, "parsing version")
	}
	return head, nil
}
