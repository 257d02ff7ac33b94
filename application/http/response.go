package http

import (
	"bytes"
	"io"
	"mime"
	"strings"

	"minihttp/application/http/status"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"golang.org/x/text/encoding/htmlindex"
)

var ErrUnsupportedCharset = errors.New("unsupported charset")

// Response is produced by a [Parser] and never changes afterwards.
type Response struct {
	version  Version
	code     int
	reason   string
	headers  Headers
	trailers Headers
	body     []byte
	framing  Framing
}

func (r *Response) Version() Version { return r.version }
func (r *Response) StatusCode() int  { return r.code }

// Reason is the reason phrase as received. It may be empty.
func (r *Response) Reason() string { return r.reason }

// Status pairs the code with the reason phrase, which falls back to the
// canonical phrase when none was received.
func (r *Response) Status() status.Status {
	if r.reason != "" {
		return status.Status{Code: r.code, ReasonPhrase: r.reason}
	}
	s, _ := status.FromCode(r.code)
	return s
}

func (r *Response) Headers() Headers { return r.headers.Clone() }

// Header returns the first value of the named header.
func (r *Response) Header(name string) (string, bool) { return r.headers.Get(name) }

// Trailers are the fields sent after a chunked body.
func (r *Response) Trailers() Headers { return r.trailers.Clone() }

func (r *Response) Body() []byte         { return bytes.Clone(r.body) }
func (r *Response) BodyReader() io.Reader { return bytes.NewReader(r.body) }
func (r *Response) Framing() Framing      { return r.framing }

// ContentLength returns the length announced by Content-Length,
// ok is false when the body was not framed by it.
func (r *Response) ContentLength() (length uint64, ok bool) {
	if r.framing.Kind != FramingFixed {
		return 0, false
	}
	return r.framing.Length, true
}

// WithReason returns a copy of r with its reason phrase replaced.
func (r *Response) WithReason(reason string) *Response {
	clone := *r
	clone.reason = reason
	return &clone
}

// Charset returns the charset parameter of Content-Type, lowercased, or "" if there is none.
func (r *Response) Charset() string {
	ct, ok := r.headers.Get(headerContentType)
	if !ok {
		return ""
	}

	_, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}

	return strings.ToLower(params["charset"])
}

// Text decodes the body as text.
// The charset comes from Content-Type, UTF-8 is assumed when it is absent.
// Byte sequences which are invalid in the charset are replaced with U+FFFD.
func (r *Response) Text() (string, error) {
	charset := r.Charset()
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return strings.ToValidUTF8(string(r.body), "�"), nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", errors.Wrapf(ErrUnsupportedCharset, "%q", charset)
	}

	text, err := enc.NewDecoder().Bytes(r.body)
	if err != nil {
		return "", errors.Wrapf(err, "decoding %s body", charset)
	}

	return string(text), nil
}

// JSON looks path up in the body, using github.com/tidwall/gjson path syntax.
// The result does not exist if the body is not JSON or the path is absent.
func (r *Response) JSON(path string) gjson.Result {
	return gjson.GetBytes(r.body, path)
}

func (r *Response) IsJSON() bool { return gjson.ValidBytes(r.body) }
