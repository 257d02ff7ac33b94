package transfer

import (
	"strings"
)

type Coding string

const (
	CodingChunked Coding = "chunked"
)

// ParseCodings flattens Transfer-Encoding field values into the list of codings,
// in the order they were applied. Parameters are dropped and names are lowercased.
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-6.1
func ParseCodings(values []string) []Coding {
	var codings []Coding
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			name, _, _ := strings.Cut(part, ";")
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			codings = append(codings, Coding(name))
		}
	}
	return codings
}

// IsChunked reports whether chunked is the final coding,
// which is the only case where it delimits the message.
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-6.3-2.4.1
func IsChunked(codings []Coding) bool {
	if len(codings) == 0 {
		return false
	}
	return codings[len(codings)-1] == CodingChunked
}
