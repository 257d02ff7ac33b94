package http

import (
	"bytes"
	"strconv"
	"strings"

	"minihttp/application/util/rule"

	"github.com/pkg/errors"
)

// [Major, Minor]
type Version [2]uint

var Version11 = Version{1, 1}

// ParseVersion parses http version text(e.g. "HTTP/1.1") into [Version].
func ParseVersion(b []byte) (Version, error) {
	prefix := []byte("HTTP/")
	if !bytes.HasPrefix(b, prefix) {
		return Version{}, errors.Errorf("http version prefix not found: %s", b)
	}

	// Get major and minor version.
	first, second, found := bytes.Cut(b[len(prefix):], []byte{'.'})
	if !found {
		return Version{}, errors.Errorf("dot separator not found in version: %s", b)
	}

	major, err1 := strconv.ParseUint(string(first), 10, 64)
	minor, err2 := strconv.ParseUint(string(second), 10, 64)
	if err1 != nil || err2 != nil {
		return Version{}, errors.Errorf("http version is not convertible to int: %s", b)
	}

	return Version{uint(major), uint(minor)}, nil
}

func (ver Version) Text() []byte {
	buf := bytes.NewBuffer(nil)
	buf.Write([]byte("HTTP/"))
	buf.Write([]byte(strconv.FormatUint(uint64(ver[0]), 10)))
	buf.Write([]byte{'.'})
	buf.Write([]byte(strconv.FormatUint(uint64(ver[1]), 10)))
	return buf.Bytes()
}

func (ver Version) String() string { return string(ver.Text()) }

type Field struct{ Name, Value string }

func ParseField(fieldLine []byte) (Field, error) {
	name, value, found := bytes.Cut(fieldLine, []byte{':'})
	if !found {
		return Field{}, errors.Errorf("colon separator not found in header: %q", string(fieldLine))
	}

	// No whitespace is allowed between field name and colon.
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-5.1-2
	if !rule.IsValidToken(string(name)) {
		return Field{}, errors.Errorf("field name is not a valid token: %q", string(name))
	}

	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-5.1-3
	value = bytes.TrimFunc(value, rule.IsOWS)

	return Field{Name: string(name), Value: string(value)}, nil
}

func (f Field) Text() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, len(f.Name)+len(f.Value)+2))
	buf.WriteString(f.Name)
	buf.Write([]byte(": "))
	buf.WriteString(f.Value)
	return buf.Bytes()
}

func (f Field) validate() error {
	if !rule.IsValidToken(f.Name) {
		return errors.Errorf("field name is not a valid token: %q", f.Name)
	}
	if rule.HasLineBreak(f.Value) {
		return errors.Errorf("field value of %q contains a line break", f.Name)
	}
	return nil
}

// Headers is an ordered field list.
// Names may repeat and every occurrence is kept in the order it was added,
// as it appears on the wire. Lookups are case-insensitive.
type Headers struct{ fields []Field }

func (h *Headers) Add(name, value string) {
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

// Get returns the value of the first field named name.
func (h Headers) Get(name string) (value string, ok bool) {
	if idx := h.index(name); idx >= 0 {
		return h.fields[idx].Value, true
	}
	return "", false
}

func (h Headers) Values(name string) []string {
	var values []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			values = append(values, f.Value)
		}
	}
	return values
}

func (h Headers) Has(name string) bool { return h.index(name) >= 0 }
func (h Headers) Len() int             { return len(h.fields) }

// Fields returns a copy of all fields in wire order.
func (h Headers) Fields() []Field {
	return append([]Field(nil), h.fields...)
}

func (h Headers) Clone() Headers { return Headers{fields: h.Fields()} }

func (h Headers) index(name string) int {
	for idx, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return idx
		}
	}
	return -1
}

func (h *Headers) setAt(idx int, value string) { h.fields[idx].Value = value }

func (h *Headers) removeAt(idx int) {
	h.fields = append(h.fields[:idx], h.fields[idx+1:]...)
}
