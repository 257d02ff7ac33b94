package uri

import (
	"strings"

	"github.com/pkg/errors"
)

const upperHex = "0123456789ABCDEF"

// escape percent-encodes every byte of s that cs does not allow.
func escape(s string, cs charSet) string {
	n := 0
	for idx := 0; idx < len(s); idx++ {
		if !cs.contains(s[idx]) {
			n++
		}
	}
	if n == 0 {
		return s
	}

	b := new(strings.Builder)
	b.Grow(len(s) + 2*n)
	for idx := 0; idx < len(s); idx++ {
		c := s[idx]
		if cs.contains(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&0xF])
	}
	return b.String()
}

func unescape(s string) (string, error) {
	if !strings.Contains(s, "%") {
		return s, nil
	}

	buf := make([]byte, 0, len(s))
	for idx := 0; idx < len(s); idx++ {
		c := s[idx]
		if c != '%' {
			buf = append(buf, c)
			continue
		}

		if !isPercentEncoded(s[idx:]) {
			return "", errors.Errorf("malformed percent-encoding: %q", s[idx:min(len(s), idx+3)])
		}
		buf = append(buf, unhex(s[idx+1])<<4|unhex(s[idx+2]))
		idx += 2
	}

	return string(buf), nil
}

// unhex assumes c is a hex digit.
func unhex(c byte) byte {
	switch {
	case is(c, classDigit):
		return c - '0'
	case c >= 'a':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// EscapeUnsafe percent-encodes the bytes of raw's path, query and fragment that may not
// appear there as they are, such as spaces, non-ASCII bytes and a '%' that does not start
// an escape. Valid escapes and control bytes are left alone, so Parse still rejects the latter.
// Scheme and authority are never touched.
func EscapeUnsafe(raw string) string {
	start := 0
	if idx := strings.Index(raw, "://"); idx >= 0 {
		start = idx + len("://")
		if end := strings.IndexAny(raw[start:], "/?#"); end >= 0 {
			start += end
		} else {
			return raw
		}
	}

	b := new(strings.Builder)
	b.Grow(len(raw))
	b.WriteString(raw[:start])

	seenFragment := false
	for idx := start; idx < len(raw); idx++ {
		c := raw[idx]
		switch {
		case c == '#' && !seenFragment:
			seenFragment = true
		case c == '%' && isPercentEncoded(raw[idx:]):
		case queryChars.contains(c), is(c, classCTL):
		default:
			b.WriteByte('%')
			b.WriteByte(upperHex[c>>4])
			b.WriteByte(upperHex[c&0xF])
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
