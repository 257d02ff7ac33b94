package pipe

import (
	"testing"
	"time"

	"minihttp/transport"
	"minihttp/transport/test"

	"github.com/stretchr/testify/suite"
)

type PipeTestSuite struct {
	test.ConnTestSuite
}

func TestPipeTestSuite(t *testing.T) {
	suite.Run(t, new(PipeTestSuite))
}

func (s *PipeTestSuite) SetupTest() {
	s.ConnTestSuite.SetupTest()
	s.C1, s.C2 = NewPair("A", "B", s.Clock)
}

func (s *PipeTestSuite) TestReset() {
	peer := s.C2.(*end)

	time.AfterFunc(20*time.Millisecond, func() { peer.Reset() })
	_, err := s.C1.Read(make([]byte, 1))
	s.ErrorIs(err, transport.ErrConnReset)

	_, err = s.C1.Write([]byte("x"))
	s.ErrorIs(err, transport.ErrConnReset)

	// The aborting side only sees its own close.
	_, err = s.C2.Read(make([]byte, 1))
	s.ErrorIs(err, transport.ErrConnClosed)
}

func TestAddr(t *testing.T) {
	addr := Addr{Name: "server"}
	if addr.Protocol() != transport.Pipe || addr.String() != "server" {
		t.Fatalf("unexpected addr: %s/%s", addr.Protocol(), addr)
	}
}
