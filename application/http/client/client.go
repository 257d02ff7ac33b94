// Package client sends HTTP/1.1 requests, one connection per exchange.
package client

import (
	"context"
	"io"
	"log/slog"
	"net/netip"
	"strings"

	"minihttp/application/http"
	"minihttp/application/http/status"
	"minihttp/application/util/domain"
	"minihttp/application/util/uri"
	"minihttp/transport"
	"minihttp/transport/tcp"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Client struct {
	opts Options

	logger *slog.Logger
	clock  clock.Clock

	lookuper   domain.Lookuper
	connDialer transport.ConnDialer

	combineAddr CombineAddrFunc
}

// CombineAddrFunc builds the address to dial for a resolved target.
type CombineAddrFunc func(ip netip.Addr, port uint16, target http.Target) transport.Addr

func New(
	d transport.ConnDialer,
	lookuper domain.Lookuper,
	logger *slog.Logger,
	clock clock.Clock,
	opts Options,
) *Client {
	if opts.ReadBufferSize == 0 {
		opts.ReadBufferSize = DefaultOptions.ReadBufferSize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	return &Client{
		connDialer: d,
		lookuper:   lookuper,
		logger:     logger,
		opts:       opts,
		clock:      clock,
		combineAddr: tcpAddr,
	}
}

// tcpAddr is the default address: TLS for https, with the target host as server name.
func tcpAddr(ip netip.Addr, port uint16, target http.Target) transport.Addr {
	addr := tcp.NewAddr(ip, port)
	addr.ServerName = target.Host
	addr.TLS = target.IsSecure()
	return addr
}

// Send performs one exchange: it connects, writes the request, reads the response
// and closes the connection. The request is not modified.
//
// A failed exchange returns no response and one [*http.Error].
func (c *Client) Send(ctx context.Context, request *http.Request) (_ *http.Response, err error) {
	start := c.clock.Now()
	logger := c.logger.With(
		slog.String("exchange", uuid.NewString()),
		slog.String("method", request.Method().String()),
		slog.String("target", request.Target().Authority()+request.Target().RequestTarget()),
	)
	logger.Debug("starting exchange")

	defer func() {
		if err != nil {
			logger.Debug("exchange failed", slog.String("kind", http.KindOf(err).String()), slog.Any("error", err))
		}
	}()

	request = c.withDefaultHeaders(request)

	raw, err := request.Serialize()
	if err != nil {
		return nil, err
	}

	addr, err := c.resolve(ctx, request.Target())
	if err != nil {
		return nil, http.NewError(http.KindConnect, err)
	}

	conn, err := openConn(ctx, c.connDialer, addr, c.clock, c.opts.Timeout)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warn("closing connection", slog.Any("error", err))
		}
	}()
	logger.Debug("connected", slog.String("addr", conn.RemoteAddr().String()))

	if err := conn.WriteAll(raw); err != nil {
		return nil, err
	}
	logger.Debug("request written", slog.Int("bytes", len(raw)))

	response, err := c.receive(conn, request.Method())
	if err != nil {
		return nil, err
	}

	if !c.opts.UseReceivedReasonPhrase && response.Reason() == "" {
		if st, ok := status.FromCode(response.StatusCode()); ok {
			response = response.WithReason(st.ReasonPhrase)
		}
	}

	logger.Debug("response parsed",
		slog.Int("status", response.StatusCode()),
		slog.Int("body_size", len(response.Body())),
		slog.String("framing", response.Framing().String()),
		slog.Duration("duration", c.clock.Since(start)),
	)

	return response, nil
}

func (c *Client) receive(conn *Conn, method http.Method) (*http.Response, error) {
	parser := http.NewParser(method, c.opts.Decode)
	buf := make([]byte, c.opts.ReadBufferSize)

	for {
		n, readErr := conn.ReadSome(buf)
		if n > 0 {
			done, err := parser.Feed(buf[:n])
			if err != nil {
				return nil, err
			}
			if done {
				return parser.Response()
			}
		}

		switch {
		case readErr == nil:
			continue
		case errors.Is(readErr, io.EOF):
			if _, err := parser.CloseInput(); err != nil {
				return nil, err
			}
			return parser.Response()
		default:
			return nil, readErr
		}
	}
}

// withDefaultHeaders returns a clone of request with the client's default fields
// added where the caller did not set them.
func (c *Client) withDefaultHeaders(request *http.Request) *http.Request {
	request = request.Clone()
	headers := request.Headers()

	add := func(name, value string) {
		if !headers.Has(name) {
			request.AddHeader(name, value)
			headers.Add(name, value)
		}
	}

	add("Host", request.Target().Authority())
	add("User-Agent", c.opts.UserAgent)
	add("Accept", "*/*")
	// Connections are never reused.
	add("Connection", "close")

	for _, f := range c.opts.DefaultHeaders {
		add(f.Name, f.Value)
	}

	return request
}

func (c *Client) resolve(ctx context.Context, target http.Target) (transport.Addr, error) {
	port := target.EffectivePort()

	var ipAddr netip.Addr
	if addr, err := netip.ParseAddr(target.Host); err == nil {
		ipAddr = addr.Unmap()
	} else {
		// Host is a domain name. Resolve it to the ip address.
		result, err := c.lookuper.LookupIP(ctx, target.Host)
		if err != nil {
			return nil, errors.Wrapf(err, "lookup for host(%s) failed", target.Host)
		}
		if len(result) == 0 {
			return nil, errors.Wrapf(domain.ErrDomainNotFound, "%s", target.Host)
		}

		// Lets simply use the first address.
		ipAddr = result[0]
	}

	return c.combineAddr(ipAddr, port, target), nil
}

// NewRequest builds a request for a URL such as "http://example.com:8080/path?q".
// A URL without a scheme is taken as http.
func (c *Client) NewRequest(method http.Method, rawURL string) (*http.Request, error) {
	target, err := ResolveTarget(rawURL)
	if err != nil {
		return nil, err
	}
	return http.NewRequest(method, target)
}

// Get sends a GET request with no body to rawURL.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	request, err := c.NewRequest(http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, request)
}

// ResolveTarget turns an absolute http or https URL into a request target.
// The fragment is dropped and an empty path becomes "/".
// Bytes that may not appear in a path or query, such as spaces, are percent-encoded.
func ResolveTarget(raw string) (http.Target, error) {
	invalid := func(err error) (http.Target, error) {
		return http.Target{}, http.NewError(http.KindInvalidMethodOrTarget, err)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return invalid(errors.New("empty url"))
	}
	if !strings.Contains(raw, "://") {
		raw = http.SchemeHTTP + "://" + raw
	}

	// Spaces and other unsafe bytes typed into a path or query are sent escaped.
	raw = uri.EscapeUnsafe(raw)

	u, err := uri.Parse(raw)
	if err != nil {
		return invalid(errors.Wrapf(err, "parsing url %q", raw))
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != http.SchemeHTTP && scheme != http.SchemeHTTPS {
		return invalid(errors.Errorf("unsupported scheme %q", u.Scheme))
	}
	if u.Authority == nil || u.Authority.Hostname() == "" {
		return invalid(errors.Errorf("url %q has no host", raw))
	}

	target := http.Target{
		Scheme: scheme,
		Host:   u.Authority.Hostname(),
		Port:   http.DefaultPort(scheme),
		Path:   u.RawPath,
	}
	if u.Authority.Port != nil {
		target.Port = *u.Authority.Port
	}
	if target.Path == "" {
		target.Path = "/"
	}
	if u.Query != nil {
		target.Query = *u.Query
	}

	return target, nil
}
