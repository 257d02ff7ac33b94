package uri

import (
	"github.com/pkg/errors"
)

type class uint8

const (
	classAlpha class = 1 << iota
	classDigit
	classHex
	classUnreserved
	classSubDelim
	classCTL
)

var classes = func() (table [256]class) {
	for c := 0; c < 256; c++ {
		b := byte(c)
		switch {
		case 'a' <= b && b <= 'z', 'A' <= b && b <= 'Z':
			table[c] |= classAlpha | classUnreserved
		case '0' <= b && b <= '9':
			table[c] |= classDigit | classUnreserved
		case b < ' ' || b == 0x7f:
			table[c] |= classCTL
		}
		if ('0' <= b && b <= '9') || ('a' <= b && b <= 'f') || ('A' <= b && b <= 'F') {
			table[c] |= classHex
		}
	}

	// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-2.3
	for _, b := range []byte("-._~") {
		table[b] |= classUnreserved
	}
	// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-2.2
	for _, b := range []byte("!$&'()*+,;=") {
		table[b] |= classSubDelim
	}

	return table
}()

func is(c byte, mask class) bool { return classes[c]&mask != 0 }

// charSet is the bytes a component may carry as they are.
type charSet struct {
	mask  class
	extra string
}

func (cs charSet) contains(c byte) bool {
	if is(c, cs.mask) {
		return true
	}
	for idx := 0; idx < len(cs.extra); idx++ {
		if cs.extra[idx] == c {
			return true
		}
	}
	return false
}

var (
	// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-3.1
	schemeChars = charSet{mask: classAlpha | classDigit, extra: "+-."}
	// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-3.2.1
	userInfoChars = charSet{mask: classUnreserved | classSubDelim, extra: ":"}
	// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-3.2.2
	regNameChars = charSet{mask: classUnreserved | classSubDelim}
	// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-3.3
	pathChars = charSet{mask: classUnreserved | classSubDelim, extra: ":@/"}
	// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-3.4
	queryChars = charSet{mask: classUnreserved | classSubDelim, extra: ":@/?"}
	// IP literals keep their brackets and colons when rendered.
	hostChars = charSet{mask: classUnreserved | classSubDelim, extra: "[]:"}
)

// validate checks every byte of s is in cs or belongs to a percent-encoding.
func validate(s string, cs charSet) error {
	for idx := 0; idx < len(s); idx++ {
		c := s[idx]
		if cs.contains(c) {
			continue
		}
		if c == '%' && isPercentEncoded(s[idx:]) {
			idx += 2
			continue
		}
		return errors.Errorf("invalid byte %q at %d", c, idx)
	}
	return nil
}

// isPercentEncoded reports whether s starts with "%" HEXDIG HEXDIG.
// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-2.1
func isPercentEncoded(s string) bool {
	return len(s) >= 3 && s[0] == '%' && is(s[1], classHex) && is(s[2], classHex)
}

func containsCTL(s string) bool {
	for idx := 0; idx < len(s); idx++ {
		if is(s[idx], classCTL) {
			return true
		}
	}
	return false
}
