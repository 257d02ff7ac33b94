// Package pipe provides in-memory connections, so that clients can be tested
// against a server running in the same process.
//
// A write returns once the peer has read all of it, the same as net.Pipe.
package pipe

import (
	"sync"
	"sync/atomic"
	"time"

	"minihttp/transport"

	"github.com/benbjohnson/clock"
)

type Addr struct {
	Name string
}

func (a Addr) Protocol() transport.Protocol { return transport.Pipe }
func (a Addr) String() string                { return a.Name }

var _ transport.Addr = Addr{}

// stream carries bytes in one direction.
// Every change is announced by closing changed and replacing it.
type stream struct {
	mu       sync.Mutex
	buf      []byte
	queued   uint64
	consumed uint64
	changed  chan struct{}
}

func newStream() *stream { return &stream{changed: make(chan struct{})} }

func (s *stream) announce() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// push queues b and returns the offset the reader has to reach to have consumed it.
func (s *stream) push(b []byte) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = append(s.buf, b...)
	s.queued += uint64(len(b))
	s.announce()
	return s.queued
}

// pull copies queued bytes into b. When nothing is queued it returns the channel to wait on.
func (s *stream) pull(b []byte) (int, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buf) == 0 {
		return 0, s.changed
	}

	n := copy(b, s.buf)
	s.buf = s.buf[n:]
	s.consumed += uint64(n)
	s.announce()
	return n, nil
}

func (s *stream) progress() (uint64, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumed, s.changed
}

// discard drops whatever the reader has not taken yet.
func (s *stream) discard() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = nil
	s.queued = s.consumed
}

// end is one side of a pair.
type end struct {
	addr Addr
	peer *end

	in, out *stream
	writeMu sync.Mutex

	readDeadLine, writeDeadLine *deadLine

	closeOnce sync.Once
	closed    chan struct{}
	aborted   atomic.Bool
}

var _ transport.Conn = (*end)(nil)

// NewPair creates two connected ends named name1 and name2.
func NewPair(name1, name2 string, clock clock.Clock) (c1, c2 *end) {
	forward, backward := newStream(), newStream()
	c1 = newEnd(name1, backward, forward, clock)
	c2 = newEnd(name2, forward, backward, clock)
	c1.peer, c2.peer = c2, c1
	return c1, c2
}

func newEnd(name string, in, out *stream, clock clock.Clock) *end {
	return &end{
		addr:          Addr{Name: name},
		in:            in,
		out:           out,
		readDeadLine:  newDeadLine(clock),
		writeDeadLine: newDeadLine(clock),
		closed:        make(chan struct{}),
	}
}

func (e *end) LocalAddr() transport.Addr  { return e.addr }
func (e *end) RemoteAddr() transport.Addr { return e.peer.addr }

func (e *end) SetReadDeadLine(t time.Time)  { e.readDeadLine.set(t) }
func (e *end) SetWriteDeadLine(t time.Time) { e.writeDeadLine.set(t) }

func (e *end) Close() error {
	e.closeOnce.Do(func() { close(e.closed) })
	return nil
}

// Reset closes the end abortively, like a TCP RST.
// The peer's pending and later operations fail with [transport.ErrConnReset].
func (e *end) Reset() error {
	e.aborted.Store(true)
	return e.Close()
}

// peerGone is the error for an operation that found the peer closed.
func (e *end) peerGone() error {
	if e.peer.aborted.Load() {
		return transport.ErrConnReset
	}
	return transport.ErrConnClosed
}

func (e *end) Read(b []byte) (int, error) {
	for {
		if err := e.usable(e.readDeadLine); err != nil {
			return 0, err
		}

		n, changed := e.in.pull(b)
		if changed == nil {
			return n, nil
		}

		if err := e.wait(changed, e.readDeadLine); err != nil {
			return 0, err
		}
	}
}

func (e *end) Write(b []byte) (int, error) {
	if err := e.usable(e.writeDeadLine); err != nil {
		return 0, err
	}
	if len(b) == 0 {
		return 0, nil
	}

	// One writer at a time, so writes never interleave.
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	target := e.out.push(b)
	start := target - uint64(len(b))
	for {
		consumed, changed := e.out.progress()
		if consumed >= target {
			return len(b), nil
		}

		if err := e.wait(changed, e.writeDeadLine); err != nil {
			e.out.discard()
			return int(consumed - start), err
		}
	}
}

func (e *end) usable(d *deadLine) error {
	switch {
	case isClosed(e.closed):
		return transport.ErrConnClosed
	case isClosed(e.peer.closed):
		return e.peerGone()
	case isClosed(d.done()):
		return transport.ErrDeadLineExceeded
	}
	return nil
}

// wait blocks until changed fires. It fails when either end closes or the deadline passes.
func (e *end) wait(changed <-chan struct{}, d *deadLine) error {
	select {
	case <-changed:
		return nil
	case <-e.closed:
		return transport.ErrConnClosed
	case <-e.peer.closed:
		return e.peerGone()
	case <-d.done():
		return transport.ErrDeadLineExceeded
	}
}

// deadLine is a channel that closes when the time set on it passes.
type deadLine struct {
	clock clock.Clock

	mu    sync.Mutex
	timer *clock.Timer
	gen   uint64
	fired chan struct{}
}

func newDeadLine(clock clock.Clock) *deadLine {
	return &deadLine{clock: clock, fired: make(chan struct{})}
}

// set replaces the deadline. The zero time clears it.
func (d *deadLine) set(t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	if isClosed(d.fired) {
		d.fired = make(chan struct{})
	}

	if t.IsZero() {
		return
	}

	wait := d.clock.Until(t)
	if wait <= 0 {
		close(d.fired)
		return
	}

	gen := d.gen
	d.timer = d.clock.AfterFunc(wait, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		// A timer stopped too late must not fire a newer deadline.
		if d.gen == gen && !isClosed(d.fired) {
			close(d.fired)
		}
	})
}

func (d *deadLine) done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fired
}

func isClosed(c <-chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}
