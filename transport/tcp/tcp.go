// Package tcp dials TCP connections, optionally secured with TLS,
// through the operating system's network stack.
package tcp

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/netip"
	"os"
	"syscall"
	"time"

	"minihttp/transport"

	"github.com/pkg/errors"
)

type Addr struct {
	AddrPort netip.AddrPort

	// ServerName is sent as SNI and verified against the certificate.
	ServerName string
	TLS        bool
}

var _ transport.Addr = Addr{}

func NewAddr(ip netip.Addr, port uint16) Addr {
	return Addr{AddrPort: netip.AddrPortFrom(ip, port)}
}

func (a Addr) Protocol() transport.Protocol { return transport.TCP }
func (a Addr) String() string                { return a.AddrPort.String() }

type Dialer struct {
	dialer net.Dialer

	// TLSConfig is cloned for every dial, ServerName is filled from the [Addr].
	TLSConfig *tls.Config
}

var _ transport.ConnDialer = (*Dialer)(nil)

func NewDialer(tlsConfig *tls.Config) *Dialer {
	return &Dialer{TLSConfig: tlsConfig}
}

func (d *Dialer) Dial(ctx context.Context, addr transport.Addr) (transport.Conn, error) {
	tcpAddr, ok := addr.(Addr)
	if !ok {
		return nil, errors.Wrapf(transport.ErrNetUnreachable, "not a tcp address: %s", addr)
	}

	nc, err := d.dialer.DialContext(ctx, "tcp", tcpAddr.AddrPort.String())
	if err != nil {
		return nil, errors.Wrapf(mapError(err), "dialing %s", tcpAddr)
	}

	if !tcpAddr.TLS {
		return &conn{nc: nc, local: localAddr(nc), remote: tcpAddr}, nil
	}

	cfg := &tls.Config{}
	if d.TLSConfig != nil {
		cfg = d.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = tcpAddr.ServerName
	}

	tc := tls.Client(nc, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		nc.Close()
		return nil, errors.Wrapf(err, "tls handshake with %s", tcpAddr)
	}

	return &conn{nc: tc, local: localAddr(nc), remote: tcpAddr}, nil
}

func localAddr(nc net.Conn) Addr {
	ap, err := netip.ParseAddrPort(nc.LocalAddr().String())
	if err != nil {
		return Addr{}
	}
	return Addr{AddrPort: ap}
}

// conn adapts [net.Conn] to [transport.Conn].
type conn struct {
	nc     net.Conn
	local  Addr
	remote Addr
}

var _ transport.Conn = (*conn)(nil)

func (c *conn) Read(p []byte) (int, error) {
	n, err := c.nc.Read(p)
	return n, mapError(err)
}

func (c *conn) Write(p []byte) (int, error) {
	n, err := c.nc.Write(p)
	return n, mapError(err)
}

func (c *conn) Close() error {
	if err := c.nc.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (c *conn) LocalAddr() transport.Addr  { return c.local }
func (c *conn) RemoteAddr() transport.Addr { return c.remote }

func (c *conn) SetReadDeadLine(t time.Time)  { _ = c.nc.SetReadDeadline(t) }
func (c *conn) SetWriteDeadLine(t time.Time) { _ = c.nc.SetWriteDeadline(t) }

// mapError translates errors of package net into the transport sentinels,
// keeping the original as the cause.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return wrap(transport.ErrConnClosed, err)
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNABORTED), errors.Is(err, syscall.EPIPE):
		return wrap(transport.ErrConnReset, err)
	case errors.Is(err, os.ErrDeadlineExceeded):
		return wrap(transport.ErrDeadLineExceeded, err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return wrap(transport.ErrConnRefused, err)
	case errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTUNREACH):
		return wrap(transport.ErrNetUnreachable, err)
	}
	return err
}

type mappedError struct {
	sentinel error
	cause    error
}

func wrap(sentinel, cause error) error { return &mappedError{sentinel: sentinel, cause: cause} }

func (e *mappedError) Error() string   { return e.sentinel.Error() + ": " + e.cause.Error() }
func (e *mappedError) Unwrap() []error { return []error{e.sentinel, e.cause} }
