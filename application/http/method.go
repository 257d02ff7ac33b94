package http

import (
	"net"
	"strconv"
	"strings"

	"minihttp/application/util/rule"

	"github.com/pkg/errors"
)

// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-9
type Method string

const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodPatch   Method = "PATCH"
	MethodOptions Method = "OPTIONS"
	MethodConnect Method = "CONNECT"
	MethodTrace   Method = "TRACE"
)

// IsValid reports whether m can appear on a request line.
// Extension methods are fine as long as they are tokens.
func (m Method) IsValid() bool { return rule.IsValidToken(string(m)) }

func (m Method) String() string { return string(m) }

const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
)

func DefaultPort(scheme string) uint16 {
	switch strings.ToLower(scheme) {
	case SchemeHTTPS:
		return 443
	default:
		return 80
	}
}

// Target is an already-resolved request target.
// Host carries no brackets even for IPv6 literals.
type Target struct {
	Scheme string
	Host   string
	Port   uint16
	Path   string
	Query  string
}

// RequestTarget renders the origin-form used on the request line.
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-3.2.1
func (t Target) RequestTarget() string {
	path := t.Path
	if path == "" {
		path = "/"
	}
	if t.Query == "" {
		return path
	}
	return path + "?" + t.Query
}

// Authority renders host[:port] for the Host header; the port is left out when it is
// the default one for the scheme.
func (t Target) Authority() string {
	port := t.Port
	if port == 0 || port == DefaultPort(t.Scheme) {
		if strings.Contains(t.Host, ":") {
			return "[" + t.Host + "]"
		}
		return t.Host
	}
	return net.JoinHostPort(t.Host, strconv.FormatUint(uint64(port), 10))
}

// EffectivePort is Port, or the scheme default when Port is zero.
func (t Target) EffectivePort() uint16 {
	if t.Port == 0 {
		return DefaultPort(t.Scheme)
	}
	return t.Port
}

func (t Target) IsSecure() bool { return strings.EqualFold(t.Scheme, SchemeHTTPS) }

func validateRequestLine(method Method, t Target) error {
	if !method.IsValid() {
		return errors.Errorf("method is not a valid token: %q", string(method))
	}

	if t.Host == "" {
		return errors.New("target host is empty")
	}

	for _, part := range []string{t.Scheme, t.Host, t.Path, t.Query} {
		if rule.HasLineBreak(part) {
			return errors.Errorf("target contains a line break: %q", part)
		}
		if strings.ContainsRune(part, rune(rule.SP)) {
			return errors.Errorf("target contains a space: %q", part)
		}
	}

	switch {
	case t.Path == "", strings.HasPrefix(t.Path, "/"):
	case t.Path == "*" && method == MethodOptions:
		// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-3.2.4
	default:
		return errors.Errorf("path must be absolute: %q", t.Path)
	}

	return nil
}
