package client

import (
	"context"
	"io"
	"sync"
	"time"

	"minihttp/application/http"
	iolib "minihttp/lib/io"
	"minihttp/transport"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

var errConnBroken = errors.New("connection is broken")

// Conn owns one transport connection for exactly one exchange.
// It is not safe for concurrent reads or writes, but Close and context
// cancellation may come from any goroutine.
type Conn struct {
	con     transport.Conn
	clock   clock.Clock
	timeout TimeoutOptions

	ctx  context.Context
	stop func() bool

	broken    error
	closed    bool
	closeErr  error
	cancelled bool
	mu        sync.Mutex // guards the fields above and deadline updates
}

// openConn dials addr. Every failure is a [http.KindConnect] error.
func openConn(
	ctx context.Context,
	dialer transport.ConnDialer,
	addr transport.Addr,
	clock clock.Clock,
	timeout TimeoutOptions,
) (*Conn, error) {
	dialCtx := ctx
	if timeout.Connect > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = clock.WithTimeout(ctx, timeout.Connect)
		defer cancel()
	}

	con, err := dialer.Dial(dialCtx, addr)
	if err != nil {
		return nil, http.NewError(http.KindConnect, errors.Wrapf(err, "dialing %s", addr))
	}

	c := &Conn{
		con:     con,
		clock:   clock,
		timeout: timeout,
		ctx:     ctx,
	}
	c.stop = context.AfterFunc(ctx, c.interrupt)

	return c, nil
}

// interrupt unblocks pending reads and writes once the exchange context is done.
func (c *Conn) interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelled = true
	past := c.clock.Now().Add(-time.Second)
	c.con.SetReadDeadLine(past)
	c.con.SetWriteDeadLine(past)
}

// arm checks the connection is usable and sets the deadline for the next operation.
func (c *Conn) arm(set func(time.Time), d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed:
		return transport.ErrConnClosed
	case c.broken != nil:
		return errors.Wrap(errConnBroken, c.broken.Error())
	case c.cancelled:
		return c.ctx.Err()
	}

	if d > 0 {
		set(c.clock.Now().Add(d))
	} else {
		set(time.Time{})
	}
	return nil
}

// cause prefers the context error over the deadline it triggered.
func (c *Conn) cause(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelled && errors.Is(err, transport.ErrDeadLineExceeded) {
		return errors.Wrap(c.ctx.Err(), err.Error())
	}
	return err
}

func (c *Conn) markBroken(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken == nil {
		c.broken = err
	}
}

// WriteAll writes all of p or fails with a [http.KindWrite] error,
// after which the connection refuses further use.
func (c *Conn) WriteAll(p []byte) error {
	if err := c.arm(c.con.SetWriteDeadLine, c.timeout.Write); err != nil {
		return http.NewError(http.KindWrite, err)
	}

	n, err := iolib.WriteFull(c.con, p)
	if err != nil {
		err = errors.Wrapf(c.cause(err), "wrote %d of %d bytes", n, len(p))
		c.markBroken(err)
		return http.NewError(http.KindWrite, err)
	}

	return nil
}

// ReadSome performs one read. The end of the stream is (0, io.EOF).
// Other failures, a reset by the peer included, are [http.KindRead] errors.
func (c *Conn) ReadSome(p []byte) (int, error) {
	if err := c.arm(c.con.SetReadDeadLine, c.timeout.Read); err != nil {
		return 0, http.NewError(http.KindRead, err)
	}

	n, err := c.con.Read(p)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, transport.ErrConnClosed), errors.Is(err, io.EOF):
		return n, io.EOF
	}

	err = c.cause(err)
	c.markBroken(err)
	return n, http.NewError(http.KindRead, err)
}

// Close releases the connection. Only the first call does anything.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.closeErr
	}
	c.closed = true

	c.stop()
	c.closeErr = c.con.Close()
	return c.closeErr
}

func (c *Conn) RemoteAddr() transport.Addr { return c.con.RemoteAddr() }
