package uri

import (
	"net/netip"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// URI holds parsed components.
// Path is unescaped, RawPath and Query are kept as they were written
// since the escaping inside them is meaningful to the server.
type URI struct {
	Scheme    string
	Authority *Authority
	Path      string
	RawPath   string
	Query     *string
	Fragment  *string
}

type Authority struct {
	UserInfo string
	Host     string

	// Port can be digits of any length in RFC 3986,
	// but only 0 ~ 65535 are of any use to a client.
	// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-3.2.3
	Port *uint16
}

// Hostname is Host without the brackets of an IP literal.
func (a Authority) Hostname() string {
	if strings.HasPrefix(a.Host, "[") && strings.HasSuffix(a.Host, "]") {
		return a.Host[1 : len(a.Host)-1]
	}
	return a.Host
}

// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-4.2
func (u URI) IsRelativeRef() bool { return u.Scheme == "" }

// String recomposes the URI.
// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-5.3
func (u URI) String() string {
	var b strings.Builder

	if u.Scheme != "" {
		b.WriteString(u.Scheme + ":")
	}

	if a := u.Authority; a != nil {
		b.WriteString("//")
		if a.UserInfo != "" {
			b.WriteString(escape(a.UserInfo, userInfoChars) + "@")
		}
		b.WriteString(escape(a.Host, hostChars))
		if a.Port != nil {
			b.WriteString(":" + strconv.FormatUint(uint64(*a.Port), 10))
		}
	}

	switch {
	case u.RawPath != "":
		b.WriteString(u.RawPath)
	default:
		b.WriteString(escape(u.Path, pathChars))
	}

	if u.Query != nil {
		b.WriteString("?" + *u.Query)
	}
	if u.Fragment != nil {
		b.WriteString("#" + *u.Fragment)
	}

	return b.String()
}

// Parse parses a URI reference. Scheme and host are lowercased.
//
//	URI-reference = [ scheme ":" ] [ "//" authority ] path [ "?" query ] [ "#" fragment ]
func Parse(raw string) (URI, error) {
	if containsCTL(raw) {
		return URI{}, errors.New("URI should not contain CTL bytes")
	}

	var u URI

	rest, fragment, hasFragment := strings.Cut(raw, "#")
	rest, query, hasQuery := strings.Cut(rest, "?")

	if hasFragment {
		if err := validate(fragment, queryChars); err != nil {
			return URI{}, errors.Wrap(err, "fragment is not valid")
		}
		u.Fragment = &fragment
	}
	if hasQuery {
		if err := validate(query, queryChars); err != nil {
			return URI{}, errors.Wrap(err, "query is not valid")
		}
		u.Query = &query
	}

	scheme, rest, err := cutScheme(rest)
	if err != nil {
		return URI{}, errors.Wrap(err, "getting scheme")
	}
	u.Scheme = strings.ToLower(scheme)

	if hier, found := strings.CutPrefix(rest, "//"); found {
		rawAuthority := hier
		rest = ""
		if idx := strings.IndexByte(hier, '/'); idx >= 0 {
			rawAuthority, rest = hier[:idx], hier[idx:]
		}

		authority, err := parseAuthority(rawAuthority)
		if err != nil {
			return URI{}, errors.Wrap(err, "parsing authority")
		}
		u.Authority = &authority
	}

	if err := checkPath(rest, u.Authority != nil, u.IsRelativeRef()); err != nil {
		return URI{}, errors.Wrap(err, "path is not valid")
	}
	if u.Path, err = unescape(rest); err != nil {
		return URI{}, errors.Wrap(err, "unescaping path")
	}
	u.RawPath = rest

	return u, nil
}

// cutScheme takes the scheme off s. A colon after the first slash belongs to the path.
func cutScheme(s string) (scheme, rest string, err error) {
	colon := strings.IndexByte(s, ':')
	if colon < 0 || strings.Contains(s[:colon], "/") {
		return "", s, nil
	}

	scheme = s[:colon]
	if scheme == "" {
		return "", "", errors.New("scheme is empty")
	}
	if !is(scheme[0], classAlpha) {
		return "", "", errors.New("scheme doesn't start with ALPHA")
	}
	for idx := 1; idx < len(scheme); idx++ {
		if !schemeChars.contains(scheme[idx]) {
			return "", "", errors.Errorf("scheme contains invalid byte %q", scheme[idx])
		}
	}

	return scheme, s[colon+1:], nil
}

//	authority = [ userinfo "@" ] host [ ":" port ]
func parseAuthority(raw string) (Authority, error) {
	var (
		a   Authority
		err error
	)

	hostPort := raw
	if idx := strings.LastIndexByte(raw, '@'); idx >= 0 {
		userInfo := raw[:idx]
		if err := validate(userInfo, userInfoChars); err != nil {
			return Authority{}, errors.Wrap(err, "user information is not valid")
		}
		if a.UserInfo, err = unescape(userInfo); err != nil {
			return Authority{}, errors.Wrap(err, "unescaping user information")
		}
		hostPort = raw[idx+1:]
	}

	host, port, err := splitHostPort(hostPort)
	if err != nil {
		return Authority{}, err
	}

	if port != "" {
		n, err := strconv.ParseUint(port, 10, 16)
		if err != nil {
			return Authority{}, errors.Errorf("port %q is not in range of 0 ~ 65535", port)
		}
		p := uint16(n)
		a.Port = &p
	}

	if err := checkHost(host); err != nil {
		return Authority{}, errors.Wrap(err, "host is not valid")
	}
	if host, err = unescape(host); err != nil {
		return Authority{}, errors.Wrap(err, "unescaping host")
	}
	a.Host = strings.ToLower(host)

	return a, nil
}

// splitHostPort separates the port digits from the host. An empty port is no port.
// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-6.2.3
func splitHostPort(s string) (host, port string, err error) {
	host = s
	if strings.HasPrefix(s, "[") {
		end := strings.LastIndexByte(s, ']')
		if end < 0 {
			return "", "", errors.New("missing ']' in IP literal")
		}
		host, s = s[:end+1], s[end+1:]
		if s == "" {
			return host, "", nil
		}
		if s[0] != ':' {
			return "", "", errors.Errorf("unexpected %q after IP literal", s)
		}
		return host, s[1:], nil
	}

	if idx := strings.LastIndexByte(s, ':'); idx >= 0 {
		host, port = s[:idx], s[idx+1:]
	}
	return host, port, nil
}

// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-3.2.2
func checkHost(host string) error {
	if len(host) > 255 {
		return errors.Errorf("host length exceeds limit(255): %d", len(host))
	}

	literal, found := strings.CutPrefix(host, "[")
	if !found {
		// IPv4address is a subset of reg-name, and an empty reg-name is valid.
		return validate(host, regNameChars)
	}

	literal = strings.TrimSuffix(literal, "]")
	if addr, err := netip.ParseAddr(literal); err == nil && addr.Is6() {
		return nil
	}
	if isIPvFuture(literal) {
		return nil
	}
	return errors.Errorf("malformed IP literal %q", host)
}

//	IPvFuture = "v" 1*HEXDIG "." 1*( unreserved / sub-delims / ":" )
func isIPvFuture(s string) bool {
	version, addr, found := strings.Cut(s, ".")
	if !found || len(version) < 2 || version[0] != 'v' || addr == "" {
		return false
	}
	for idx := 1; idx < len(version); idx++ {
		if !is(version[idx], classHex) {
			return false
		}
	}
	for idx := 0; idx < len(addr); idx++ {
		if !userInfoChars.contains(addr[idx]) {
			return false
		}
	}
	return true
}

// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-3.3
func checkPath(path string, hasAuthority, isRelative bool) error {
	switch {
	case hasAuthority && path != "" && path[0] != '/':
		return errors.New("URI with authority must either be empty or start with '/'")
	case !hasAuthority && strings.HasPrefix(path, "//"):
		return errors.New("URI without authority should not start with '//'")
	}

	if isRelative {
		first, _, _ := strings.Cut(path, "/")
		if strings.ContainsRune(first, ':') {
			return errors.New("relative URI reference's first segment should not contain ':'")
		}
	}

	return validate(path, pathChars)
}
