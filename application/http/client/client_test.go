package client

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/netip"
	"strconv"
	"sync"
	"testing"
	"time"

	"minihttp/application/http"
	"minihttp/application/http/transfer"
	"minihttp/application/util/domain"
	"minihttp/transport"
	"minihttp/transport/pipe"
	"minihttp/transport/tcp"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

type ClientTestSuite struct {
	suite.Suite

	transport *pipe.Transport
	listener  *pipe.Listener
	lookuper  domain.Lookuper

	client *Client

	wg sync.WaitGroup
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (s *ClientTestSuite) SetupTest() {
	s.transport = pipe.NewTransport(clock.New())

	var err error
	s.listener, err = s.transport.Listen(pipe.Addr{Name: "server"})
	s.Require().NoError(err)

	s.lookuper = domain.NewMapLookuper(map[string][]netip.Addr{
		"example.com": {netip.MustParseAddr("192.0.2.1")},
	})

	s.client = s.newClient(DefaultOptions)
}

func (s *ClientTestSuite) TearDownTest() {
	s.listener.Close()
	s.wg.Wait()
	goleak.VerifyNone(s.T())
}

func (s *ClientTestSuite) newClient(opts Options) *Client {
	client := New(s.transport, s.lookuper, slog.New(slog.DiscardHandler), clock.New(), opts)
	client.combineAddr = func(ip netip.Addr, port uint16, target http.Target) transport.Addr {
		return s.listener.Addr()
	}
	return client
}

type exchange struct {
	head http.RequestHead
	body []byte
}

// serve accepts one connection, reads a request from it and passes the connection
// to handle. The connection is closed once handle returns.
func (s *ClientTestSuite) serve(handle func(conn transport.Conn)) <-chan exchange {
	received := make(chan exchange, 1)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(received)

		conn, err := s.listener.Accept(context.Background())
		if err != nil {
			return
		}
		defer conn.Close()

		br := bufio.NewReader(conn)
		head, err := http.ReadRequestHead(br, http.DefaultDecodeOptions)
		if !s.NoError(err) {
			return
		}

		var body []byte
		if cl, ok := head.Headers.Get("Content-Length"); ok {
			n, err := strconv.Atoi(cl)
			if !s.NoError(err) {
				return
			}
			body = make([]byte, n)
			_, err = io.ReadFull(br, body)
			if !s.NoError(err) {
				return
			}
		}

		received <- exchange{head: head, body: body}
		handle(conn)
	}()

	return received
}

func respond(raw string) func(conn transport.Conn) {
	return func(conn transport.Conn) {
		conn.Write([]byte(raw))
	}
}

// reset aborts a pipe connection the way a TCP RST does.
func reset(conn transport.Conn) {
	conn.(interface{ Reset() error }).Reset()
}

// waitClose blocks until the client closes the connection.
func waitClose(conn transport.Conn) {
	for {
		if _, err := conn.Read(make([]byte, 1)); err != nil {
			return
		}
	}
}

func (s *ClientTestSuite) TestSendFixed() {
	received := s.serve(respond("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"))

	req, err := http.NewRequest(http.MethodGet, http.Target{Scheme: "http", Host: "example.com", Path: "/path", Query: "q=1"})
	s.Require().NoError(err)

	res, err := s.client.Send(context.Background(), req)
	s.Require().NoError(err)

	s.Equal(200, res.StatusCode())
	s.Equal("OK", res.Reason())
	s.Equal("hello", string(res.Body()))
	s.Equal(http.Framing{Kind: http.FramingFixed, Length: 5}, res.Framing())

	ex := <-received
	s.Equal(http.MethodGet, ex.head.Method)
	s.Equal("/path?q=1", ex.head.Target)
	s.Equal(http.Version11, ex.head.Version)
	s.Equal([]http.Field{
		{Name: "Host", Value: "example.com"},
		{Name: "User-Agent", Value: DefaultUserAgent},
		{Name: "Accept", Value: "*/*"},
		{Name: "Connection", Value: "close"},
	}, ex.head.Headers.Fields())

	// The caller's request is left as it was.
	s.Zero(req.Headers().Len())
}

func (s *ClientTestSuite) TestSendChunked() {
	s.serve(func(conn transport.Conn) {
		conn.Write([]byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n"))

		cw := transfer.NewChunkedWriter(conn)
		cw.Write([]byte("hello "))
		cw.Write([]byte("world"))
		cw.SetTrailers([][2]string{{"X-Checksum", "abc"}})
		cw.Close()

		waitClose(conn)
	})

	res, err := s.client.Get(context.Background(), "http://example.com/")
	s.Require().NoError(err)

	s.Equal("hello world", string(res.Body()))
	s.Equal(http.FramingChunked, res.Framing().Kind)
	v, ok := res.Trailers().Get("x-checksum")
	s.True(ok)
	s.Equal("abc", v)
}

func (s *ClientTestSuite) TestSendUntilClose() {
	s.serve(respond("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\n\r\nuntil the end"))

	res, err := s.client.Get(context.Background(), "example.com")
	s.Require().NoError(err)

	s.Equal("until the end", string(res.Body()))
	s.Equal(http.FramingUntilClose, res.Framing().Kind)

	text, err := res.Text()
	s.NoError(err)
	s.Equal("until the end", text)
}

func (s *ClientTestSuite) TestSendBody() {
	received := s.serve(respond("HTTP/1.1 201 Created\r\nContent-Type: application/json\r\nContent-Length: 11\r\n\r\n{\"id\":\"42\"}"))

	req, err := s.client.NewRequest(http.MethodPost, "http://example.com:8080/items")
	s.Require().NoError(err)
	s.Require().NoError(req.SetJSON("name", "gopher"))

	res, err := s.client.Send(context.Background(), req)
	s.Require().NoError(err)

	s.Equal(201, res.StatusCode())
	s.True(res.IsJSON())
	s.Equal("42", res.JSON("id").String())

	ex := <-received
	s.Equal(http.MethodPost, ex.head.Method)
	s.Equal("/items", ex.head.Target)
	s.Equal(`{"name":"gopher"}`, string(ex.body))

	host, _ := ex.head.Headers.Get("Host")
	s.Equal("example.com:8080", host)
	ct, _ := ex.head.Headers.Get("Content-Type")
	s.Equal("application/json", ct)
}

func (s *ClientTestSuite) TestNotFound() {
	s.serve(respond("HTTP/1.1 404 Not Found\r\nContent-Length: 9\r\n\r\nnot found"))

	res, err := s.client.Get(context.Background(), "http://example.com/missing")
	s.Require().NoError(err)

	s.Equal(404, res.StatusCode())
	s.Equal("Not Found", res.Reason())
	s.Equal("not found", string(res.Body()))
}

func (s *ClientTestSuite) TestHead() {
	// The server keeps the connection open; the client must not wait for it.
	s.serve(func(conn transport.Conn) {
		conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 1024\r\n\r\n"))
		waitClose(conn)
	})

	req, err := s.client.NewRequest(http.MethodHead, "http://example.com/")
	s.Require().NoError(err)

	res, err := s.client.Send(context.Background(), req)
	s.Require().NoError(err)

	s.Equal(200, res.StatusCode())
	s.Empty(res.Body())
	s.Equal(http.FramingEmpty, res.Framing().Kind)
}

func (s *ClientTestSuite) TestReasonPhrase() {
	testcases := []struct {
		desc        string
		useReceived bool
		raw         string
		expected    string
	}{
		{desc: "empty filled", raw: "HTTP/1.1 404 \r\nContent-Length: 0\r\n\r\n", expected: "Not Found"},
		{desc: "received kept", raw: "HTTP/1.1 404 Nope\r\nContent-Length: 0\r\n\r\n", expected: "Nope"},
		{desc: "empty kept", useReceived: true, raw: "HTTP/1.1 404 \r\nContent-Length: 0\r\n\r\n", expected: ""},
		{desc: "unknown code", raw: "HTTP/1.1 299 \r\nContent-Length: 0\r\n\r\n", expected: ""},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			opts := DefaultOptions
			opts.UseReceivedReasonPhrase = tc.useReceived
			client := s.newClient(opts)

			s.serve(respond(tc.raw))

			res, err := client.Get(context.Background(), "http://example.com/")
			s.Require().NoError(err)
			s.Equal(tc.expected, res.Reason())

			s.wg.Wait()
		})
	}
}

func (s *ClientTestSuite) TestDefaultHeaders() {
	opts := DefaultOptions
	opts.DefaultHeaders = []http.Field{
		{Name: "X-Api-Key", Value: "secret"},
		{Name: "Accept", Value: "text/html"},
	}
	client := s.newClient(opts)

	received := s.serve(respond("HTTP/1.1 204 No Content\r\n\r\n"))

	req, err := client.NewRequest(http.MethodGet, "http://example.com/")
	s.Require().NoError(err)
	req.AddHeader("user-agent", "custom/2.0")

	res, err := client.Send(context.Background(), req)
	s.Require().NoError(err)
	s.Equal(204, res.StatusCode())

	ex := <-received
	s.Equal([]string{"custom/2.0"}, ex.head.Headers.Values("User-Agent"))
	s.Equal([]string{"*/*"}, ex.head.Headers.Values("Accept"))
	s.Equal([]string{"secret"}, ex.head.Headers.Values("X-Api-Key"))
}

func (s *ClientTestSuite) TestProtocolErrors() {
	testcases := []struct {
		desc     string
		raw      string
		expected error
	}{
		{desc: "malformed status line", raw: "HTTP/1.1 2000 Bad\r\n\r\n", expected: http.ErrMalformedStatusLine},
		{desc: "malformed header", raw: "HTTP/1.1 200 OK\r\nNo colon\r\n\r\n", expected: http.ErrMalformedHeaderLine},
		{desc: "conflicting length", raw: "HTTP/1.1 200 OK\r\nContent-Length: 3\r\nContent-Length: 4\r\n\r\nabc", expected: http.ErrMalformedHeaderLine},
		{desc: "truncated body", raw: "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nabc", expected: http.ErrTruncatedBody},
		{desc: "bad chunk", raw: "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\nzz\r\n", expected: http.ErrMalformedChunk},
		{desc: "truncated chunk", raw: "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nte", expected: http.ErrTruncatedBody},
		{desc: "closed before status", raw: "", expected: http.ErrMalformedStatusLine},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			s.serve(respond(tc.raw))

			res, err := s.client.Get(context.Background(), "http://example.com/")
			s.Nil(res)
			s.ErrorIs(err, tc.expected)

			s.wg.Wait()
		})
	}
}

func (s *ClientTestSuite) TestResetMidBody() {
	testcases := []struct {
		desc string
		raw  string
	}{
		{desc: "fixed", raw: "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nabc"},
		{desc: "chunked", raw: "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nte"},
		{desc: "until close", raw: "HTTP/1.1 200 OK\r\n\r\npartial"},
		{desc: "headers", raw: "HTTP/1.1 200 OK\r\nContent-Le"},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			s.serve(func(conn transport.Conn) {
				conn.Write([]byte(tc.raw))
				reset(conn)
			})

			res, err := s.client.Get(context.Background(), "http://example.com/")
			s.Nil(res)
			s.ErrorIs(err, http.ErrRead)
			s.ErrorIs(err, transport.ErrConnReset)
			s.NotErrorIs(err, http.ErrTruncatedBody)

			s.wg.Wait()
		})
	}
}

func (s *ClientTestSuite) TestConnectErrors() {
	s.Run("refused", func() {
		s.Require().NoError(s.listener.Close())

		res, err := s.client.Get(context.Background(), "http://example.com/")
		s.Nil(res)
		s.ErrorIs(err, http.ErrConnect)
		s.ErrorIs(err, transport.ErrConnRefused)
	})

	s.Run("unknown host", func() {
		res, err := s.client.Get(context.Background(), "http://unknown.test/")
		s.Nil(res)
		s.ErrorIs(err, http.ErrConnect)
		s.ErrorIs(err, domain.ErrDomainNotFound)
	})
}

func (s *ClientTestSuite) TestInvalidInput() {
	s.Run("header injection", func() {
		req, err := s.client.NewRequest(http.MethodGet, "http://example.com/")
		s.Require().NoError(err)
		req.AddHeader("X-Bad", "a\r\nInjected: yes")

		res, err := s.client.Send(context.Background(), req)
		s.Nil(res)
		s.ErrorIs(err, http.ErrInvalidHeader)
	})

	s.Run("bad url", func() {
		res, err := s.client.Get(context.Background(), "ftp://example.com/")
		s.Nil(res)
		s.ErrorIs(err, http.ErrInvalidMethodOrTarget)
	})
}

func (s *ClientTestSuite) TestReadTimeout() {
	opts := DefaultOptions
	opts.Timeout.Read = 50 * time.Millisecond
	client := s.newClient(opts)

	s.serve(waitClose)

	res, err := client.Get(context.Background(), "http://example.com/")
	s.Nil(res)
	s.ErrorIs(err, http.ErrRead)
	s.ErrorIs(err, transport.ErrDeadLineExceeded)
}

func (s *ClientTestSuite) TestCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.serve(func(conn transport.Conn) {
		cancel()
		waitClose(conn)
	})

	res, err := s.client.Get(ctx, "http://example.com/")
	s.Nil(res)
	s.ErrorIs(err, http.ErrRead)
	s.ErrorIs(err, context.Canceled)
}

func (s *ClientTestSuite) TestConcurrentSend() {
	const n = 5

	lookuper := domain.NewMapLookuper(nil)
	client := New(s.transport, lookuper, slog.New(slog.DiscardHandler), clock.New(), DefaultOptions)

	listeners := make([]*pipe.Listener, n)
	for i := range n {
		lis, err := s.transport.Listen(pipe.Addr{Name: strconv.Itoa(i)})
		s.Require().NoError(err)
		defer lis.Close()
		listeners[i] = lis
	}
	// Each worker talks to its own listener, picked by the last byte of the IP.
	client.combineAddr = func(ip netip.Addr, port uint16, target http.Target) transport.Addr {
		return listeners[ip.As4()[3]].Addr()
	}

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(2)
		go func() {
			defer wg.Done()
			conn, err := listeners[i].Accept(context.Background())
			if !assert.NoError(s.T(), err) {
				return
			}
			defer conn.Close()
			_, err = http.ReadRequestHead(bufio.NewReader(conn), http.DefaultDecodeOptions)
			assert.NoError(s.T(), err)
			body := strconv.Itoa(i)
			conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body))
		}()
		go func() {
			defer wg.Done()
			ip := netip.AddrFrom4([4]byte{10, 0, 0, byte(i)})
			res, err := client.Get(context.Background(), "http://"+ip.String()+"/")
			if assert.NoError(s.T(), err) {
				assert.Equal(s.T(), strconv.Itoa(i), string(res.Body()))
			}
		}()
	}
	wg.Wait()
}

func TestTCPAddr(t *testing.T) {
	ip := netip.MustParseAddr("192.0.2.7")

	addr := tcpAddr(ip, 8443, http.Target{Scheme: http.SchemeHTTPS, Host: "example.com"})
	assert.Equal(t, tcp.Addr{AddrPort: netip.AddrPortFrom(ip, 8443), ServerName: "example.com", TLS: true}, addr)

	addr = tcpAddr(ip, 80, http.Target{Scheme: http.SchemeHTTP, Host: "example.com"})
	assert.Equal(t, "192.0.2.7:80", addr.String())
	assert.False(t, addr.(tcp.Addr).TLS)
}

func TestResolveTarget(t *testing.T) {
	testcases := []struct {
		desc     string
		raw      string
		expected http.Target
		wantErr  bool
	}{
		{
			desc:     "http",
			raw:      "http://example.com/a/b?x=1&y=2",
			expected: http.Target{Scheme: "http", Host: "example.com", Port: 80, Path: "/a/b", Query: "x=1&y=2"},
		},
		{
			desc:     "https with port",
			raw:      "https://Example.COM:8443",
			expected: http.Target{Scheme: "https", Host: "example.com", Port: 8443, Path: "/"},
		},
		{
			desc:     "no scheme",
			raw:      "localhost:8080/ping",
			expected: http.Target{Scheme: "http", Host: "localhost", Port: 8080, Path: "/ping"},
		},
		{
			desc:     "fragment dropped",
			raw:      "http://example.com/doc#section",
			expected: http.Target{Scheme: "http", Host: "example.com", Port: 80, Path: "/doc"},
		},
		{
			desc:     "ipv6 literal",
			raw:      "http://[::1]:8080/",
			expected: http.Target{Scheme: "http", Host: "::1", Port: 8080, Path: "/"},
		},
		{
			desc:     "escaped path kept",
			raw:      "http://example.com/a%20b",
			expected: http.Target{Scheme: "http", Host: "example.com", Port: 80, Path: "/a%20b"},
		},
		{
			desc:     "spaces escaped",
			raw:      "http://example.com/a b?q=c d",
			expected: http.Target{Scheme: "http", Host: "example.com", Port: 80, Path: "/a%20b", Query: "q=c%20d"},
		},
		{
			desc:     "stray percent escaped",
			raw:      "example.com/50%off",
			expected: http.Target{Scheme: "http", Host: "example.com", Port: 80, Path: "/50%25off"},
		},
		{desc: "line break in path", raw: "http://example.com/a\r\nX: y", wantErr: true},
		{desc: "empty", raw: "", wantErr: true},
		{desc: "unsupported scheme", raw: "ftp://example.com/", wantErr: true},
		{desc: "no host", raw: "http:///path", wantErr: true},
		{desc: "bad port", raw: "http://example.com:99999/", wantErr: true},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			target, err := ResolveTarget(tc.raw)
			if tc.wantErr {
				assert.ErrorIs(t, err, http.ErrInvalidMethodOrTarget)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, target)
		})
	}
}
