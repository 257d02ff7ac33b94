// Package rule holds the small pieces of RFC 9110/9112 grammar shared across the http packages.
package rule

const (
	CR   byte = '\r'
	LF   byte = '\n'
	SP   byte = ' '
	HTAB byte = '\t'
	VT   byte = 0x0B
	FF   byte = 0x0C
	NUL  byte = 0x00
)

var (
	OWS         = []byte{SP, HTAB}
	CRLF        = []byte{CR, LF}
	Whitespaces = []byte{SP, HTAB, VT, FF, CR}
)

func IsWhitespace(r rune) bool {
	for _, ws := range Whitespaces {
		if r == rune(ws) {
			return true
		}
	}
	return false
}

// IsOWS reports whether r is optional whitespace (SP / HTAB).
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.6.3
func IsOWS(r rune) bool { return r == rune(SP) || r == rune(HTAB) }

func IsAlpha(r rune) bool { return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') }
func IsDigit(r rune) bool { return '0' <= r && r <= '9' }

func IsHexDigit(r rune) bool {
	return IsDigit(r) || ('a' <= r && r <= 'f') || ('A' <= r && r <= 'F')
}

// HasLineBreak reports whether s contains CR, LF or NUL.
// Any of them inside a request line or a field would let the caller inject extra lines.
func HasLineBreak(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case CR, LF, NUL:
			return true
		}
	}
	return false
}
