// Package test holds suites any [transport.Conn] implementation should pass.
package test

import (
	"bytes"
	"io"
	"sync"
	"time"

	"minihttp/transport"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

// ConnTestSuite runs against C1 and C2, which the embedding suite connects
// to each other in its SetupTest after calling this one.
type ConnTestSuite struct {
	suite.Suite
	C1, C2 transport.Conn
	Clock  clock.Clock

	watchdog *time.Timer
}

const watchdogTimeout = time.Second

func (s *ConnTestSuite) SetupTest() {
	s.Clock = clock.New()
	s.watchdog = time.AfterFunc(watchdogTimeout, func() {
		s.Fail("test is stuck")
		s.C1.Close()
		s.C2.Close()
	})
}

func (s *ConnTestSuite) TearDownTest() {
	defer goleak.VerifyNone(s.T())
	s.watchdog.Stop()
	s.NoError(s.C1.Close())
	s.NoError(s.C2.Close())
}

// async runs fn in the background. The returned func waits for it.
func async(fn func()) (wait func()) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn()
	}()
	return wg.Wait
}

// drain reads c in chunks of size until it fails.
func drain(c transport.Conn, size int) ([]byte, error) {
	var out []byte
	chunk := make([]byte, size)
	for {
		n, err := c.Read(chunk)
		out = append(out, chunk[:n]...)
		if err != nil {
			return out, err
		}
	}
}

func (s *ConnTestSuite) TestReadWrite() {
	data := []byte("Hello, World!")

	wait := async(func() {
		n, err := s.C1.Write(data)
		s.NoError(err)
		s.Equal(len(data), n)
	})
	defer wait()

	first := make([]byte, 10)
	n, err := io.ReadFull(s.C2, first)
	s.Require().NoError(err)
	s.Equal(data[:n], first)

	rest := make([]byte, 10)
	n, err = s.C2.Read(rest)
	s.Require().NoError(err)
	s.Equal(data[len(first):], rest[:n])
}

func (s *ConnTestSuite) TestConcurrentWrites() {
	const writers = 10
	data := []byte("ABCD")

	wait := async(func() {
		var wg sync.WaitGroup
		for range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				n, err := s.C1.Write(data)
				s.NoError(err)
				s.Equal(len(data), n)
			}()
		}
		wg.Wait()
		s.NoError(s.C1.Close())
	})
	defer wait()

	got, err := drain(s.C2, 3)
	s.ErrorIs(err, transport.ErrConnClosed)
	s.Equal(bytes.Repeat(data, writers), got)
}

func (s *ConnTestSuite) TestClose() {
	s.Require().NoError(s.C1.Close())
	// Closing twice is harmless.
	s.NoError(s.C1.Close())

	for _, c := range []transport.Conn{s.C1, s.C2} {
		buf := make([]byte, 4)

		n, err := c.Read(buf)
		s.ErrorIs(err, transport.ErrConnClosed)
		s.Zero(n)

		n, err = c.Write(buf)
		s.ErrorIs(err, transport.ErrConnClosed)
		s.Zero(n)
	}
}

func (s *ConnTestSuite) TestCloseUnblocksRead() {
	time.AfterFunc(50*time.Millisecond, func() { s.C1.Close() })

	_, err := s.C1.Read(make([]byte, 1))
	s.ErrorIs(err, transport.ErrConnClosed)
}

func (s *ConnTestSuite) TestCloseUnblocksWrite() {
	time.AfterFunc(50*time.Millisecond, func() { s.C1.Close() })

	_, err := s.C1.Write([]byte("hey"))
	s.ErrorIs(err, transport.ErrConnClosed)
}

func (s *ConnTestSuite) TestDeadLinePassed() {
	past := s.Clock.Now().Add(-time.Second)
	s.C1.SetReadDeadLine(past)
	s.C1.SetWriteDeadLine(past)

	n, err := s.C1.Read(make([]byte, 1))
	s.ErrorIs(err, transport.ErrDeadLineExceeded)
	s.Zero(n)

	n, err = s.C1.Write([]byte("x"))
	s.ErrorIs(err, transport.ErrDeadLineExceeded)
	s.Zero(n)
}

func (s *ConnTestSuite) TestReadDeadLineFires() {
	s.C1.SetReadDeadLine(s.Clock.Now().Add(20 * time.Millisecond))

	n, err := s.C1.Read(make([]byte, 1))
	s.ErrorIs(err, transport.ErrDeadLineExceeded)
	s.Zero(n)
}

func (s *ConnTestSuite) TestDeadLineCleared() {
	s.C1.SetReadDeadLine(s.Clock.Now().Add(-time.Second))
	s.C1.SetReadDeadLine(time.Time{})

	wait := async(func() {
		_, err := s.C2.Write([]byte("x"))
		s.NoError(err)
	})
	defer wait()

	b := make([]byte, 1)
	n, err := s.C1.Read(b)
	s.Require().NoError(err)
	s.Equal("x", string(b[:n]))
}

func (s *ConnTestSuite) TestAddr() {
	s.Equal(s.C1.LocalAddr(), s.C2.RemoteAddr())
	s.Equal(s.C2.LocalAddr(), s.C1.RemoteAddr())
}

// The reader must still get every byte written before the peer closed.
func (s *ConnTestSuite) TestReadAfterPeerClose() {
	data := []byte("last words")

	wait := async(func() {
		_, err := s.C2.Write(data)
		s.NoError(err)
		s.NoError(s.C2.Close())
	})
	defer wait()

	got, err := drain(s.C1, 4)
	s.ErrorIs(err, transport.ErrConnClosed)
	s.Equal(data, got)
}
