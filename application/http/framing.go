package http

import (
	"strconv"
	"strings"

	"minihttp/application/http/transfer"

	"github.com/pkg/errors"
)

type FramingKind uint8

const (
	FramingEmpty FramingKind = iota
	FramingFixed
	FramingChunked
	FramingUntilClose
)

func (k FramingKind) String() string {
	switch k {
	case FramingEmpty:
		return "empty"
	case FramingFixed:
		return "fixed"
	case FramingChunked:
		return "chunked"
	case FramingUntilClose:
		return "until-close"
	default:
		return "unknown"
	}
}

// Framing tells where a response body ends.
// Length is only meaningful for FramingFixed.
type Framing struct {
	Kind   FramingKind
	Length uint64
}

func (f Framing) String() string {
	if f.Kind == FramingFixed {
		return "fixed(" + strconv.FormatUint(f.Length, 10) + ")"
	}
	return f.Kind.String()
}

var (
	ErrInvalidContentLength     = errors.New("invalid content length")
	ErrConflictingContentLength = errors.New("conflicting content length")
)

// selectFraming decides once, right after the header section, how the body is delimited.
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-6.3
func selectFraming(method Method, code int, headers Headers) (Framing, error) {
	if method == MethodHead || isBodyless(code) {
		return Framing{Kind: FramingEmpty}, nil
	}

	if values := headers.Values(headerTransferEncoding); len(values) > 0 {
		if transfer.IsChunked(transfer.ParseCodings(values)) {
			return Framing{Kind: FramingChunked}, nil
		}
		// Any other coding is delimited by close, Content-Length is ignored.
		// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-6.3-2.4.2
		return Framing{Kind: FramingUntilClose}, nil
	}

	if values := headers.Values(headerContentLength); len(values) > 0 {
		length, err := parseContentLength(values)
		if err != nil {
			return Framing{}, err
		}
		return Framing{Kind: FramingFixed, Length: length}, nil
	}

	return Framing{Kind: FramingUntilClose}, nil
}

// 1xx, 204 and 304 never carry content.
func isBodyless(code int) bool {
	return (code >= 100 && code < 200) || code == 204 || code == 304
}

// parseContentLength accepts repeated values, either as several fields or as a list,
// as long as they are all the same.
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-8.6-8
func parseContentLength(values []string) (uint64, error) {
	var (
		length uint64
		seen   bool
	)

	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" || strings.IndexFunc(part, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
				return 0, errors.Wrapf(ErrInvalidContentLength, "%q", value)
			}

			n, err := strconv.ParseUint(part, 10, 64)
			if err != nil {
				return 0, errors.Wrapf(ErrInvalidContentLength, "%q", value)
			}

			if seen && n != length {
				return 0, errors.Wrapf(ErrConflictingContentLength, "%d and %d", length, n)
			}
			length, seen = n, true
		}
	}

	return length, nil
}
