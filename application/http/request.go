package http

import (
	"bytes"
	"io"
	"strconv"

	"github.com/pkg/errors"
	"github.com/tidwall/sjson"
)

const (
	headerContentLength    = "Content-Length"
	headerContentType      = "Content-Type"
	headerTransferEncoding = "Transfer-Encoding"
)

// Request is built by its owner and then handed to a client.
// It is never modified once it has been sent.
type Request struct {
	method  Method
	target  Target
	headers Headers

	body    []byte
	hasBody bool

	// autoLength is the 1-based index of the Content-Length field managed by SetBody.
	autoLength int
}

// NewRequest creates a request with no headers and no body.
func NewRequest(method Method, target Target) (*Request, error) {
	if err := validateRequestLine(method, target); err != nil {
		return nil, NewError(KindInvalidMethodOrTarget, err)
	}

	return &Request{method: method, target: target}, nil
}

func (r *Request) Method() Method   { return r.method }
func (r *Request) Target() Target   { return r.target }
func (r *Request) Headers() Headers { return r.headers.Clone() }
func (r *Request) HasBody() bool    { return r.hasBody }
func (r *Request) Body() []byte     { return bytes.Clone(r.body) }

// AddHeader appends a field. Existing fields with the same name are kept.
//
// An explicit Content-Length replaces the one SetBody maintains.
func (r *Request) AddHeader(name, value string) *Request {
	if r.autoLength > 0 && equalFold(name, headerContentLength) {
		r.headers.removeAt(r.autoLength - 1)
		r.autoLength = 0
	}

	r.headers.Add(name, value)
	return r
}

// SetBody sets the body and keeps Content-Length in sync with it,
// unless the caller has set Content-Length on its own.
func (r *Request) SetBody(body []byte) *Request {
	r.body = bytes.Clone(body)
	r.hasBody = true

	length := strconv.Itoa(len(r.body))
	switch {
	case r.autoLength > 0:
		r.headers.setAt(r.autoLength-1, length)
	case r.headers.Has(headerContentLength):
		// Explicitly set by the caller.
	default:
		r.headers.Add(headerContentLength, length)
		r.autoLength = r.headers.Len()
	}

	return r
}

// SetJSON sets value at path inside the JSON body, creating the body when there is none.
// Path syntax is the one of github.com/tidwall/sjson (e.g. "user.name", "tags.-1").
func (r *Request) SetJSON(path string, value any) error {
	doc := r.body
	if len(doc) == 0 {
		doc = []byte("{}")
	}

	doc, err := sjson.SetBytes(doc, path, value)
	if err != nil {
		return errors.Wrapf(err, "setting json path %q", path)
	}

	if !r.headers.Has(headerContentType) {
		r.AddHeader(headerContentType, "application/json")
	}
	r.SetBody(doc)

	return nil
}

// Serialize renders the request in HTTP/1.1 wire format.
func (r *Request) Serialize() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 256+len(r.body)))
	if err := NewRequestEncoder(buf, DefaultEncodeOptions).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo streams the serialized request into w.
func (r *Request) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	err := NewRequestEncoder(cw, DefaultEncodeOptions).Encode(r)
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// Clone returns a deep copy which can be modified without touching r.
func (r *Request) Clone() *Request {
	clone := *r
	clone.headers = r.headers.Clone()
	clone.body = bytes.Clone(r.body)
	return &clone
}

func (r *Request) validate() error {
	if err := validateRequestLine(r.method, r.target); err != nil {
		return NewError(KindInvalidMethodOrTarget, err)
	}

	for _, f := range r.headers.fields {
		if err := f.validate(); err != nil {
			return NewError(KindInvalidHeader, err)
		}
	}

	return nil
}

func equalFold(a, b string) bool {
	return len(a) == len(b) && bytes.EqualFold([]byte(a), []byte(b))
}
