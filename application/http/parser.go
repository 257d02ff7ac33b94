package http

import (
	"bytes"
	"io"
	"strconv"

	"minihttp/application/http/transfer"
	"minihttp/application/util/rule"

	"github.com/pkg/errors"
)

type State uint8

const (
	StateStatusLine State = iota
	StateHeaders
	StateBody
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateStatusLine:
		return "status-line"
	case StateHeaders:
		return "headers"
	case StateBody:
		return "body"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Parser turns the bytes of one response into a [Response].
// Input is pushed with Feed in pieces of any size, and CloseInput tells that the peer
// has closed the stream. A parser serves a single exchange.
type Parser struct {
	method Method
	opts   DecodeOptions

	state State
	err   error

	// Received but not yet consumed bytes.
	pending []byte

	version Version
	code    int
	reason  string
	headers Headers

	framing   Framing
	remaining uint64
	chunks    *transfer.ChunkDecoder
	body      []byte
	trailers  Headers

	interim  int
	response *Response
}

// NewParser creates a parser for the response to a request made with method.
// The method matters since responses to HEAD never have a body.
func NewParser(method Method, opts DecodeOptions) *Parser {
	return &Parser{
		method: method,
		opts:   opts,
		state:  StateStatusLine,
	}
}

func (p *Parser) State() State { return p.state }

// Interim returns how many 1xx responses were skipped before the final one.
func (p *Parser) Interim() int { return p.interim }

// Feed consumes b and reports whether the response is complete.
// Once the parser is done, further input is ignored.
func (p *Parser) Feed(b []byte) (done bool, err error) {
	switch p.state {
	case StateDone:
		return true, nil
	case StateError:
		return false, p.err
	}

	p.pending = append(p.pending, b...)
	if err := p.advance(); err != nil {
		return false, p.fail(err)
	}

	return p.state == StateDone, nil
}

// CloseInput tells the parser that the stream has ended.
// It completes a body delimited by close, and fails for any other unfinished state.
func (p *Parser) CloseInput() (done bool, err error) {
	switch p.state {
	case StateDone:
		return true, nil
	case StateError:
		return false, p.err
	case StateStatusLine:
		return false, p.fail(NewError(KindMalformedStatusLine, errors.Wrap(io.ErrUnexpectedEOF, "stream ended before status line")))
	case StateHeaders:
		return false, p.fail(NewError(KindMalformedHeaderLine, errors.Wrap(io.ErrUnexpectedEOF, "stream ended inside header section")))
	}

	switch p.framing.Kind {
	case FramingUntilClose:
		p.finish()
		return true, nil
	case FramingFixed:
		return false, p.fail(NewError(KindTruncatedBody, errors.Errorf("received %d of %d bytes", len(p.body), p.framing.Length)))
	default:
		return false, p.fail(NewError(KindTruncatedBody, errors.Wrap(io.ErrUnexpectedEOF, "stream ended inside chunked body")))
	}
}

// Response returns the parsed response. It is only available once the parser is done.
func (p *Parser) Response() (*Response, error) {
	switch p.state {
	case StateDone:
		return p.response, nil
	case StateError:
		return nil, p.err
	default:
		return nil, errors.Errorf("response is incomplete, parser is in %s state", p.state)
	}
}

func (p *Parser) fail(err error) error {
	p.state = StateError
	p.err = err
	p.pending = nil
	return err
}

func (p *Parser) advance() error {
	for {
		switch p.state {
		case StateStatusLine:
			line, ok, err := p.readLine(p.opts.MaxStartLineLength)
			if err != nil {
				return NewError(KindMalformedStatusLine, err)
			}
			if !ok {
				return nil
			}

			// An empty line can be received before message.
			// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-2.2-6
			if len(line) == 0 {
				continue
			}

			if err := p.parseStatusLine(line); err != nil {
				return NewError(KindMalformedStatusLine, err)
			}
			p.headers = Headers{}
			p.state = StateHeaders

		case StateHeaders:
			line, ok, err := p.readLine(p.opts.MaxFieldLineLength)
			if err != nil {
				return NewError(KindMalformedHeaderLine, err)
			}
			if !ok {
				return nil
			}

			if len(line) == 0 {
				// An empty line. This means that there are no more headers.
				if err := p.endHeaders(); err != nil {
					return err
				}
				continue
			}

			if p.opts.MaxHeaderCount > 0 && uint(p.headers.Len()) >= p.opts.MaxHeaderCount {
				return NewError(KindMalformedHeaderLine, ErrTooManyFields)
			}

			field, err := ParseField(line)
			if err != nil {
				return NewError(KindMalformedHeaderLine, err)
			}
			p.headers.Add(field.Name, field.Value)

		case StateBody:
			if len(p.pending) == 0 {
				return nil
			}
			return p.consumeBody()

		default:
			return nil
		}
	}
}

// readLine takes one line out of pending, without its terminator.
// ok is false when no complete line is buffered yet.
func (p *Parser) readLine(limit uint) (line []byte, ok bool, err error) {
	idx := bytes.IndexByte(p.pending, rule.LF)
	if idx < 0 {
		if limit > 0 && uint(len(p.pending)) > limit {
			return nil, false, errLineTooLong
		}
		return nil, false, nil
	}

	if limit > 0 && uint(idx+1) > limit {
		return nil, false, errLineTooLong
	}

	line, err = trimLine(p.pending[:idx], p.opts.AllowSoleLF)
	p.pending = p.pending[idx+1:]
	if err != nil {
		return nil, false, err
	}

	return line, true, nil
}

// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-4
func (p *Parser) parseStatusLine(line []byte) error {
	verRaw, rest, found := bytes.Cut(line, []byte{rule.SP})
	if !found || len(verRaw) == 0 {
		return errors.Errorf("status line is malformed: %q", string(line))
	}

	ver, err := ParseVersion(verRaw)
	if err != nil {
		return errors.Wrap(err, "parsing version")
	}
	if ver[0] != 1 {
		return errors.Errorf("unsupported major version: %s", ver)
	}

	codeRaw, reason, _ := bytes.Cut(rest, []byte{rule.SP})
	if len(codeRaw) != 3 {
		return errors.Errorf("status code is not 3 digits: %q", string(codeRaw))
	}
	for _, c := range codeRaw {
		if !rule.IsDigit(rune(c)) {
			return errors.Errorf("status code is not 3 digits: %q", string(codeRaw))
		}
	}

	code, _ := strconv.Atoi(string(codeRaw))
	if code < 100 || code > 599 {
		return errors.Errorf("status code out of range: %d", code)
	}

	p.version = ver
	p.code = code
	p.reason = string(reason)

	return nil
}

func (p *Parser) endHeaders() error {
	// Interim responses are followed by the final one on the same stream.
	// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-15.2
	if p.code < 200 && p.code != 101 {
		p.interim++
		p.state = StateStatusLine
		return nil
	}

	framing, err := selectFraming(p.method, p.code, p.headers)
	if err != nil {
		return NewError(KindMalformedHeaderLine, err)
	}
	p.framing = framing

	switch framing.Kind {
	case FramingEmpty:
		p.finish()
		return nil

	case FramingFixed:
		if framing.Length == 0 {
			p.finish()
			return nil
		}
		if p.opts.MaxBodySize > 0 && framing.Length > p.opts.MaxBodySize {
			return NewError(KindBodyTooLarge, errors.Errorf("content length %d exceeds limit(%d)", framing.Length, p.opts.MaxBodySize))
		}
		p.remaining = framing.Length
		p.body = make([]byte, 0, min(framing.Length, 64<<10))

	case FramingChunked:
		p.chunks = transfer.NewChunkDecoder(transfer.DecoderOptions{
			AllowSoleLF:   p.opts.AllowSoleLF,
			MaxLineLength: p.opts.MaxFieldLineLength,
		})
	}

	p.state = StateBody
	return nil
}

func (p *Parser) consumeBody() error {
	switch p.framing.Kind {
	case FramingFixed:
		take := min(uint64(len(p.pending)), p.remaining)
		p.body = append(p.body, p.pending[:take]...)
		p.pending = p.pending[take:]
		p.remaining -= take

		if p.remaining == 0 {
			// Anything after the body does not belong to this response.
			p.finish()
			return nil
		}

	case FramingChunked:
		body, n, done, err := p.chunks.Decode(p.body, p.pending)
		p.body = body
		p.pending = p.pending[n:]
		if err != nil {
			return NewError(KindMalformedChunk, err)
		}
		if err := p.checkBodySize(); err != nil {
			return err
		}

		if done {
			for _, line := range p.chunks.Trailers() {
				field, err := ParseField(line)
				if err != nil {
					return NewError(KindMalformedChunk, errors.Wrap(err, "parsing trailer"))
				}
				p.trailers.Add(field.Name, field.Value)
			}
			p.finish()
		}
		return nil

	case FramingUntilClose:
		p.body = append(p.body, p.pending...)
		p.pending = p.pending[:0]
	}

	return p.checkBodySize()
}

func (p *Parser) checkBodySize() error {
	if p.opts.MaxBodySize > 0 && uint64(len(p.body)) > p.opts.MaxBodySize {
		return NewError(KindBodyTooLarge, errors.Errorf("body exceeds limit(%d)", p.opts.MaxBodySize))
	}
	return nil
}

func (p *Parser) finish() {
	p.state = StateDone
	p.pending = nil

	body := p.body
	if body == nil {
		body = []byte{}
	}

	p.response = &Response{
		version:  p.version,
		code:     p.code,
		reason:   p.reason,
		headers:  p.headers,
		trailers: p.trailers,
		body:     body,
		framing:  p.framing,
	}
}
