package pipe

import (
	"context"
	"sync"

	"minihttp/transport"

	"github.com/benbjohnson/clock"
)

// dialAttempt is a connection waiting in a listener's queue.
// The listener answers on result exactly once: nil when accepted, an error when refused.
type dialAttempt struct {
	conn   *end
	result chan error
}

func newDialAttempt(conn *end) dialAttempt {
	return dialAttempt{conn: conn, result: make(chan error, 1)}
}

// Transport connects dialers to listeners by [Addr].
type Transport struct {
	clock clock.Clock

	mu        sync.Mutex
	listeners map[Addr]*Listener
}

var _ transport.ConnDialer = (*Transport)(nil)

func NewTransport(clock clock.Clock) *Transport {
	return &Transport{clock: clock, listeners: make(map[Addr]*Listener)}
}

func (t *Transport) lookup(addr Addr) (*Listener, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.listeners[addr]
	return l, ok
}

func (t *Transport) Listen(addr Addr) (*Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, taken := t.listeners[addr]; taken {
		return nil, transport.ErrAddrAlreadyInUse
	}

	l := &Listener{
		addr:   addr,
		owner:  t,
		queue:  make(chan dialAttempt),
		closed: make(chan struct{}),
	}
	t.listeners[addr] = l
	return l, nil
}

func (t *Transport) Dial(ctx context.Context, addr transport.Addr) (transport.Conn, error) {
	target, ok := addr.(Addr)
	if !ok {
		return nil, transport.ErrNetUnreachable
	}

	l, ok := t.lookup(target)
	if !ok {
		return nil, transport.ErrConnRefused
	}

	client, server := NewPair("dialer", target.Name, t.clock)
	attempt := newDialAttempt(server)

	select {
	case l.queue <- attempt:
	case <-l.closed:
		return nil, transport.ErrConnRefused
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case err := <-attempt.result:
		if err != nil {
			return nil, err
		}
		return client, nil
	case <-ctx.Done():
		// The server side may already be accepted. Closing lets it see the end.
		client.Close()
		return nil, ctx.Err()
	}
}

type Listener struct {
	addr  Addr
	owner *Transport

	queue chan dialAttempt

	closeMu sync.Mutex
	closed  chan struct{}
}

var _ transport.ConnListener = (*Listener)(nil)

func (l *Listener) Addr() Addr { return l.addr }

func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case attempt := <-l.queue:
		attempt.result <- nil
		return attempt.conn, nil
	case <-l.closed:
		return nil, transport.ErrConnListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting and refuses every dialer still queued.
// The address is free again once Close returns.
func (l *Listener) Close() error {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()

	if isClosed(l.closed) {
		return transport.ErrConnListenerClosed
	}
	close(l.closed)

drain:
	for {
		select {
		case attempt := <-l.queue:
			attempt.result <- transport.ErrConnRefused
		default:
			break drain
		}
	}

	l.owner.mu.Lock()
	delete(l.owner.listeners, l.addr)
	l.owner.mu.Unlock()

	return nil
}
